package sampler_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/autoscalehub/autoscale/pkg/adc"
	"github.com/autoscalehub/autoscale/pkg/sampler"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time      { return c.now }
func (c *fakeClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }

func TestReadStableRawStopsOnLowDispersion(t *testing.T) {
	values := make([]int32, 0, 50)
	for i := 0; i < 50; i++ {
		values = append(values, 10000)
	}
	r := adc.NewSimReader(values)
	clock := &fakeClock{now: time.Unix(0, 0)}

	got := sampler.ReadStableRaw(r, sampler.Params{
		MinSamples:      10,
		MaxSamples:      200,
		MaxStdDevCounts: 5,
		MinDuration:     5 * time.Millisecond,
		ReadInterval:    time.Millisecond,
	}, clock)

	assert.Equal(t, int32(10000), got)
}

func TestReadStableRawHitsCapWithHighDispersion(t *testing.T) {
	values := make([]int32, 0, 20)
	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			values = append(values, 0)
		} else {
			values = append(values, 100000)
		}
	}
	r := adc.NewSimReader(values)
	clock := &fakeClock{now: time.Unix(0, 0)}

	got := sampler.ReadStableRaw(r, sampler.Params{
		MinSamples:      5,
		MaxSamples:      20,
		MaxStdDevCounts: 1,
		MinDuration:     time.Millisecond,
		ReadInterval:    time.Millisecond,
	}, clock)

	assert.InDelta(t, 50000, got, 5000)
}

func TestReadStableRawMinSamplesFloor(t *testing.T) {
	r := adc.NewSimReader([]int32{1, 1, 1})
	clock := &fakeClock{now: time.Unix(0, 0)}

	got := sampler.ReadStableRaw(r, sampler.Params{
		MinSamples:      0,
		MaxSamples:      5,
		MaxStdDevCounts: 0,
		ReadInterval:    time.Millisecond,
	}, clock)

	assert.Equal(t, int32(1), got)
}
