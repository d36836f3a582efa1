// Package aggregate computes per-event statistics exposed to consumers:
// sample count, peak weight, time-of-event, and a coarse morning/night
// classification.
package aggregate

import (
	"time"

	"github.com/autoscalehub/autoscale/pkg/model"
)

// TimeOfDay classifies an hour-of-day into the two buckets the spec
// defines: Morning for anything before 15:00, Night otherwise.
type TimeOfDay string

const (
	Morning TimeOfDay = "morning"
	Night   TimeOfDay = "night"
)

// Stats is the aggregate view over one event.
type Stats struct {
	SampleCount int
	PeakKg      float64
	EventTime   time.Time
	TimeOfDay   TimeOfDay
}

// Compute derives Stats for e, deriving SampleCount/PeakKg fresh from its
// samples rather than trusting stored fields, and using t0_epoch_ms as
// the event time when present (falling back to ingest time otherwise, as
// t0_epoch_ms is advisory-only per the device's uptime-vs-wall-clock
// ambiguity).
func Compute(e model.Event) Stats {
	derived := e
	derived.Derive()

	eventTime := e.CreatedAt
	if e.T0EpochMs != nil {
		eventTime = time.UnixMilli(*e.T0EpochMs)
	}

	return Stats{
		SampleCount: derived.SampleCount,
		PeakKg:      derived.PeakKg,
		EventTime:   eventTime,
		TimeOfDay:   classify(eventTime),
	}
}

func classify(t time.Time) TimeOfDay {
	if t.Hour() < 15 {
		return Morning
	}
	return Night
}
