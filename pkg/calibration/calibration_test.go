package calibration_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoscalehub/autoscale/pkg/adc"
	"github.com/autoscalehub/autoscale/pkg/calibration"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time       { return c.now }
func (c *fakeClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }

func TestTareComputesZeroOffset(t *testing.T) {
	r := adc.NewSimReader([]int32{100, 100, 100, 100})
	st := &calibration.MemStore{}
	eng := calibration.New(r, st, &fakeClock{now: time.Unix(0, 0)})
	eng.TareReadCount = 4

	require.NoError(t, eng.Tare())
	assert.Equal(t, int32(100), eng.ZeroOffset)
}

func TestTareFailsWhenReaderNeverReady(t *testing.T) {
	r := adc.NewSimReader(nil)
	st := &calibration.MemStore{}
	eng := calibration.New(r, st, &fakeClock{now: time.Unix(0, 0)})
	eng.TareOverallTimeout = time.Millisecond

	err := eng.Tare()
	assert.ErrorIs(t, err, calibration.ErrTareFailed)
}

func TestTwoPointRejectsTooSmallMassDelta(t *testing.T) {
	r := adc.NewSimReader([]int32{0})
	st := &calibration.MemStore{}
	eng := calibration.New(r, st, &fakeClock{now: time.Unix(0, 0)})

	err := eng.TwoPoint(1000, 100.0, 1100, 102.0)
	assert.ErrorIs(t, err, calibration.ErrMassDeltaTooSmall)
}

func TestTwoPointSetsCountsPerGram(t *testing.T) {
	r := adc.NewSimReader([]int32{0})
	st := &calibration.MemStore{}
	eng := calibration.New(r, st, &fakeClock{now: time.Unix(0, 0)})

	require.NoError(t, eng.TwoPoint(1000, 100.0, 5000, 200.0))
	assert.InDelta(t, 40.0, eng.CountsPerGram, 1e-9)

	saved, ok := st.Load()
	assert.True(t, ok)
	assert.Equal(t, eng.CountsPerGram, saved)
}

func TestResetRevertsToDefault(t *testing.T) {
	r := adc.NewSimReader([]int32{0})
	st := &calibration.MemStore{}
	eng := calibration.New(r, st, &fakeClock{now: time.Unix(0, 0)})
	eng.CountsPerGram = 999
	st.Save(999)

	eng.Reset()
	assert.Equal(t, calibration.DefaultCountsPerGram, eng.CountsPerGram)
	_, ok := st.Load()
	assert.False(t, ok)
}

func TestNewLoadsPersistedFactor(t *testing.T) {
	r := adc.NewSimReader([]int32{0})
	st := &calibration.MemStore{}
	st.Save(555.0)

	eng := calibration.New(r, st, &fakeClock{now: time.Unix(0, 0)})
	assert.Equal(t, 555.0, eng.CountsPerGram)
}

func TestConvertAppliesSignInversion(t *testing.T) {
	r := adc.NewSimReader([]int32{0})
	st := &calibration.MemStore{}
	eng := calibration.New(r, st, &fakeClock{now: time.Unix(0, 0)})
	eng.CountsPerGram = 1000
	eng.SignInverted = true

	got := eng.Convert(2000)
	assert.Equal(t, -0.002, got)
}
