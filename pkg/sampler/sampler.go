// Package sampler implements the stable-raw sampler (§4.B): collects raw
// ADC counts until their dispersion is low or a sample cap is reached,
// returning a denoised average.
package sampler

import (
	"math"
	"time"

	"github.com/autoscalehub/autoscale/internal/stats"
	"github.com/autoscalehub/autoscale/pkg/adc"
)

// hardSampleCap is the internal upper bound on max_samples mentioned in
// §4.B's edge cases ("capped at an internal bound, >= 128 in practice").
const hardSampleCap = 4096

// Clock abstracts time so tests can avoid real sleeps.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time     { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// Params configures one ReadStableRaw call.
type Params struct {
	MinSamples      int
	MaxSamples      int
	MaxStdDevCounts float64
	MinDuration     time.Duration
	ReadInterval    time.Duration
}

// ReadStableRaw collects raw samples from r until n >= MinSamples and
// elapsed >= MinDuration; if the collected samples' standard deviation is
// <= MaxStdDevCounts, it returns their rounded mean. If MaxSamples is
// reached first, it returns the mean of everything collected regardless
// of dispersion. Never fails.
func ReadStableRaw(r adc.Reader, p Params, clock Clock) int32 {
	if clock == nil {
		clock = realClock{}
	}
	if p.MinSamples < 1 {
		p.MinSamples = 1
	}
	if p.MaxSamples < p.MinSamples || p.MaxSamples > hardSampleCap {
		p.MaxSamples = hardSampleCap
	}
	if p.ReadInterval <= 0 {
		p.ReadInterval = time.Millisecond
	}

	start := clock.Now()
	var counts []float64

	for {
		if r.IsReady() {
			counts = append(counts, float64(r.ReadRaw()))
		}
		clock.Sleep(p.ReadInterval)

		elapsed := clock.Now().Sub(start)
		n := len(counts)

		if n >= p.MaxSamples {
			return round(stats.Mean(counts))
		}
		if n >= p.MinSamples && elapsed >= p.MinDuration {
			if stats.StdDev(counts) <= p.MaxStdDevCounts {
				return round(stats.Mean(counts))
			}
		}
	}
}

func round(x float64) int32 {
	return int32(math.Round(x))
}
