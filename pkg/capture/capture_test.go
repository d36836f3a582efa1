package capture_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoscalehub/autoscale/pkg/capture"
	"github.com/autoscalehub/autoscale/pkg/model"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type recordingTransport struct {
	submitted []model.Event
}

func (t *recordingTransport) Submit(e model.Event) error {
	t.submitted = append(t.submitted, e)
	return nil
}

func TestMachineStaysIdleBelowTrigger(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	transport := &recordingTransport{}
	m := capture.New(capture.DefaultConfig(), transport, clock, "scale-1")

	for i := 0; i < 20; i++ {
		clock.advance(200 * time.Millisecond)
		m.Tick(0.05)
	}
	assert.Equal(t, capture.StateIdle, m.State())
}

func TestMachineTransitionsOnArmedRiseAndTrigger(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	transport := &recordingTransport{}
	m := capture.New(capture.DefaultConfig(), transport, clock, "scale-1")

	for i := 0; i < 20; i++ {
		clock.advance(200 * time.Millisecond)
		m.Tick(0.05)
	}
	require.Equal(t, capture.StateIdle, m.State())

	clock.advance(50 * time.Millisecond)
	m.Tick(50.0)

	assert.Equal(t, capture.StateActive, m.State())
}

func TestMachineTerminatesOnHysteresisAndCooldownBlocksRetrigger(t *testing.T) {
	cfg := capture.DefaultConfig()
	clock := &fakeClock{now: time.Unix(0, 0)}
	transport := &recordingTransport{}
	m := capture.New(cfg, transport, clock, "scale-1")

	for i := 0; i < 20; i++ {
		clock.advance(200 * time.Millisecond)
		m.Tick(0.05)
	}
	clock.advance(50 * time.Millisecond)
	m.Tick(50.0)
	require.Equal(t, capture.StateActive, m.State())

	clock.advance(50 * time.Millisecond)
	for d := time.Duration(0); d < cfg.BelowHold+100*time.Millisecond; d += 50 * time.Millisecond {
		clock.advance(50 * time.Millisecond)
		m.Tick(1.0)
	}

	assert.Equal(t, capture.StateIdle, m.State())
	require.Len(t, transport.submitted, 1)
	assert.Equal(t, "scale-1", transport.submitted[0].DeviceID)

	clock.advance(cfg.PostActiveCooldown / 2)
	m.Tick(5.0)
	assert.Equal(t, capture.StateIdle, m.State(), "cooldown must suppress re-trigger")
}

func TestMachineTerminatesOnHardCap(t *testing.T) {
	cfg := capture.DefaultConfig()
	cfg.ActiveMax = 500 * time.Millisecond
	clock := &fakeClock{now: time.Unix(0, 0)}
	transport := &recordingTransport{}
	m := capture.New(cfg, transport, clock, "scale-1")

	for i := 0; i < 20; i++ {
		clock.advance(200 * time.Millisecond)
		m.Tick(0.05)
	}
	clock.advance(50 * time.Millisecond)
	m.Tick(50.0)
	require.Equal(t, capture.StateActive, m.State())

	for i := 0; i < 20; i++ {
		clock.advance(50 * time.Millisecond)
		m.Tick(5.0)
	}
	assert.Equal(t, capture.StateIdle, m.State())
}

func TestPauseSuppressesTransitions(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	m := capture.New(capture.DefaultConfig(), &recordingTransport{}, clock, "scale-1")
	m.Pause()

	for i := 0; i < 30; i++ {
		clock.advance(200 * time.Millisecond)
		m.Tick(5.0)
	}
	assert.Equal(t, capture.StateIdle, m.State())
}
