// Package capture implements the event-capture state machine (§4.D):
// IDLE/ACTIVE with hysteresis, rising-edge arming, and post-event
// cooldown, following the teacher's enum-with-String() state pattern.
package capture

import (
	"math"
	"time"

	"github.com/autoscalehub/autoscale/pkg/model"
)

// State is a state in the capture machine.
type State int

const (
	StateIdle State = iota
	StateActive
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Config carries the reference-design constants from §4.D.
type Config struct {
	IdlePoll           time.Duration
	TriggerKg          float64
	ReleaseKg          float64
	BelowHold          time.Duration
	ActiveMax          time.Duration
	MaxSamples         int
	ArmBandKg          float64
	ArmStable          time.Duration
	RiseMinKg          float64
	PostActiveCooldown time.Duration
	EMAAlpha           float64
	Deadband           float64
}

// DefaultConfig returns the numerical constants given in §4.D.
func DefaultConfig() Config {
	return Config{
		IdlePoll:           200 * time.Millisecond,
		TriggerKg:          4.00,
		ReleaseKg:          3.00,
		BelowHold:          2000 * time.Millisecond,
		ActiveMax:          90000 * time.Millisecond,
		MaxSamples:         6000,
		ArmBandKg:          1.0,
		ArmStable:          2500 * time.Millisecond,
		RiseMinKg:          0.20,
		PostActiveCooldown: 4000 * time.Millisecond,
		EMAAlpha:           0.1,
		Deadband:           0.005,
	}
}

// Transport submits a finished event; the on-device buffer is cleared
// after Submit returns regardless of outcome (§4.E).
type Transport interface {
	Submit(e model.Event) error
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Machine runs the IDLE/ACTIVE capture loop for one device.
type Machine struct {
	cfg       Config
	transport Transport
	clock     Clock
	deviceID  string

	state State

	ema      float64
	havePrev bool
	prevEMA  float64

	armed          bool
	armStableSince time.Time
	haveArmWindow  bool

	buffer    []model.Sample
	sessionT0 time.Time

	releaseSince  time.Time
	haveRelease   bool

	cooldownUntil time.Time
	pausedForCalibration bool
}

// New returns a Machine in the IDLE state.
func New(cfg Config, transport Transport, clock Clock, deviceID string) *Machine {
	if clock == nil {
		clock = realClock{}
	}
	return &Machine{cfg: cfg, transport: transport, clock: clock, deviceID: deviceID, state: StateIdle}
}

// Pause suspends capture entirely (used during calibration); the machine
// emits no state transitions while paused.
func (m *Machine) Pause()  { m.pausedForCalibration = true }
func (m *Machine) Resume() { m.pausedForCalibration = false }

// State returns the machine's current state.
func (m *Machine) State() State { return m.state }

// Tick feeds one converted sample (kg) into the machine and advances its
// state. It returns the submitted Event when ACTIVE terminates this
// tick, or nil otherwise.
func (m *Machine) Tick(kg float64) *model.Event {
	if math.Abs(kg) < m.cfg.Deadband {
		kg = 0
	}
	if m.pausedForCalibration {
		return nil
	}

	now := m.clock.Now()

	switch m.state {
	case StateIdle:
		return m.tickIdle(now, kg)
	case StateActive:
		return m.tickActive(now, kg)
	}
	return nil
}

func (m *Machine) tickIdle(now time.Time, kg float64) *model.Event {
	if now.Before(m.cooldownUntil) {
		m.updateEMA(kg)
		return nil
	}

	m.updateEMA(kg)

	withinBand := math.Abs(m.ema) <= m.cfg.ArmBandKg
	if withinBand {
		if !m.haveArmWindow {
			m.armStableSince = now
			m.haveArmWindow = true
		} else if now.Sub(m.armStableSince) >= m.cfg.ArmStable {
			m.armed = true
		}
	} else {
		m.haveArmWindow = false
	}

	if !m.havePrev {
		return nil
	}
	rise := m.ema - m.prevEMA

	if m.armed && rise >= m.cfg.RiseMinKg && math.Abs(m.ema) >= m.cfg.TriggerKg {
		m.armed = false
		m.buffer = m.buffer[:0]
		m.sessionT0 = now
		m.haveRelease = false
		m.state = StateActive
		m.buffer = append(m.buffer, model.Sample{T: 0, Kg: kg})
	}
	return nil
}

func (m *Machine) tickActive(now time.Time, kg float64) *model.Event {
	tRel := now.Sub(m.sessionT0)
	if len(m.buffer) < m.cfg.MaxSamples {
		m.buffer = append(m.buffer, model.Sample{T: tRel.Milliseconds(), Kg: kg})
	}

	if math.Abs(kg) < m.cfg.ReleaseKg {
		if !m.haveRelease {
			m.releaseSince = now
			m.haveRelease = true
		} else if now.Sub(m.releaseSince) >= m.cfg.BelowHold {
			return m.terminate(now)
		}
	} else {
		m.haveRelease = false
	}

	if tRel >= m.cfg.ActiveMax {
		return m.terminate(now)
	}
	return nil
}

func (m *Machine) terminate(now time.Time) *model.Event {
	t0 := m.sessionT0.UnixMilli()
	event := model.Event{
		DeviceID:  m.deviceID,
		T0EpochMs: &t0,
		Samples:   append([]model.Sample(nil), m.buffer...),
	}
	event.Derive()

	if m.transport != nil {
		_ = m.transport.Submit(event)
	}

	m.buffer = nil
	m.state = StateIdle
	m.havePrev = false
	m.haveArmWindow = false
	m.armed = false
	m.cooldownUntil = now.Add(m.cfg.PostActiveCooldown)
	return &event
}

func (m *Machine) updateEMA(kg float64) {
	if !m.havePrev {
		m.ema = kg
		m.prevEMA = kg
		m.havePrev = true
		return
	}
	m.prevEMA = m.ema
	m.ema = m.cfg.EMAAlpha*kg + (1-m.cfg.EMAAlpha)*m.ema
}
