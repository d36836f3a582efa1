// Package model defines the durable data shapes shared by ingest, the
// worker, and the detector/consensus pipeline: samples, events, devices,
// jobs, and results, per the system's data model.
package model

import "time"

// Sample is a single (t, kg) pair within an Event. t is milliseconds
// since the event's session start; kg is a finite force reading.
type Sample struct {
	T  int64   `json:"t"`
	Kg float64 `json:"kg"`
}

// Event is an ordered, finite sequence of Samples captured for one
// device. It is immutable once written.
type Event struct {
	ID          int64     `json:"id"`
	DeviceID    string    `json:"device_id"`
	T0EpochMs   *int64    `json:"t0_epoch_ms,omitempty"`
	Samples     []Sample  `json:"samples"`
	SampleCount int       `json:"sample_count"`
	PeakKg      float64   `json:"peak_kg"`
	CreatedAt   time.Time `json:"created_at"`
}

// Derive computes SampleCount and PeakKg from Samples. PeakKg is 0 for an
// event with no samples.
func (e *Event) Derive() {
	e.SampleCount = len(e.Samples)
	var peak float64
	for i, s := range e.Samples {
		if i == 0 || s.Kg > peak {
			peak = s.Kg
		}
	}
	e.PeakKg = peak
}

// Device is a stable device identifier grouped under a household.
type Device struct {
	ID          int64     `json:"id"`
	DeviceID    string    `json:"device_id"`
	HouseholdID string    `json:"household_id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// JobStatus is a state in the Job lifecycle DAG: pending -> processing ->
// (done | failed). There is no reversion.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobDone       JobStatus = "done"
	JobFailed     JobStatus = "failed"
)

// Job is an event-scoped unit of work processed by the worker loop.
type Job struct {
	ID        int64      `json:"id"`
	EventID   int64      `json:"event_id"`
	Status    JobStatus  `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	PickedAt  *time.Time `json:"picked_at,omitempty"`
	DoneAt    *time.Time `json:"done_at,omitempty"`
	Attempts  int        `json:"attempts"`
	Error     *string    `json:"error,omitempty"`
}

// DetectorMode names which path of the plateau detector produced a Result.
type DetectorMode string

const (
	ModePlateauV6  DetectorMode = "plateau-v6"
	ModeFallback   DetectorMode = "fallback-tail-median"
	ModeConsensus  DetectorMode = "consensus"
)

// RawDetection is the output of the plateau detector (§4.G), before any
// consensus refinement.
type RawDetection struct {
	Weight        float64      `json:"weight"`
	Uncertainty   float64      `json:"uncertainty"`
	Quality       float64      `json:"quality"`
	Mode          DetectorMode `json:"mode"`
	StartS        float64      `json:"start_s"`
	EndS          float64      `json:"end_s"`
	MeanDeriv     float64      `json:"mean_deriv"`
	MeanDispersion float64     `json:"mean_dispersion"`
	NPoints       int          `json:"n_points"`
}

// ConsensusDetection is the output of the consensus refiner (§4.H). The
// refiner returns a nil *ConsensusDetection when no band-qualifying window
// exists and the raw detection stands.
type ConsensusDetection struct {
	Weight      float64 `json:"weight"`
	Uncertainty float64 `json:"uncertainty"`
	Mode        DetectorMode `json:"mode"`
	StartS      float64 `json:"start_s"`
	EndS        float64 `json:"end_s"`
	BandKg      float64 `json:"band_kg"`
}

// Result is an append-only record of a detector (and optional consensus)
// run over one event. Multiple results per event are permitted; the most
// recent (by ComputedAt) is authoritative.
//
// ConsensusKg and SourceCount are the minimum metadata bag required by
// spec.md §3: the computed consensus scalar and how many prior raw
// weights fed it, independent of whether a consensus window qualified.
type Result struct {
	ID          int64               `json:"id"`
	EventID     int64               `json:"event_id"`
	Raw         RawDetection        `json:"raw"`
	Consensus   *ConsensusDetection `json:"consensus,omitempty"`
	ConsensusKg float64             `json:"consensus_kg"`
	SourceCount int                 `json:"source_count"`
	ComputedAt  time.Time           `json:"computed_at"`
}
