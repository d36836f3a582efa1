// Package worker implements the worker loop (§4.I): draining pending
// jobs in bounded batches, running the detector and consensus refiner
// over each event, and writing results.
package worker

import (
	"context"
	"time"

	"github.com/autoscalehub/autoscale/internal/stats"
	"github.com/autoscalehub/autoscale/pkg/consensus"
	"github.com/autoscalehub/autoscale/pkg/detector"
	"github.com/autoscalehub/autoscale/pkg/logging"
	"github.com/autoscalehub/autoscale/pkg/metrics"
	"github.com/autoscalehub/autoscale/pkg/model"
	"github.com/autoscalehub/autoscale/pkg/store"
)

const (
	consensusHistoryLimit = 10
	noSamplesError        = "no samples"

	weightRoundPlaces = 5
	windowRoundPlaces = 3
	slopeRoundPlaces  = 6
)

// DefaultConsensusBand is the consensus refiner's tolerance, in kg, used
// when New is given a non-positive band; cmd/worker-runner passes the
// configured band to New.
const DefaultConsensusBand = 1.0

// Worker drains jobs from a Store and runs the detection pipeline.
type Worker struct {
	st      store.Store
	log     *logging.Logger
	metrics *metrics.Metrics
	band    float64
}

// New returns a Worker. band is the consensus acceptance tolerance.
func New(st store.Store, log *logging.Logger, m *metrics.Metrics, band float64) *Worker {
	if band <= 0 {
		band = DefaultConsensusBand
	}
	return &Worker{st: st, log: log, metrics: m, band: band}
}

// RunBatch claims up to `batch` pending jobs and processes each one. It
// returns the number of jobs picked, matching the worker invocation
// response shape in §6. A per-job failure is recorded on that job and
// does not abort the rest of the batch.
func (w *Worker) RunBatch(ctx context.Context, batch int) (int, error) {
	jobs, err := w.st.ClaimPendingJobs(ctx, batch)
	if err != nil {
		return 0, err
	}
	if w.metrics != nil {
		w.metrics.JobsClaimed.Add(float64(len(jobs)))
	}

	for _, job := range jobs {
		w.processJob(ctx, job)
	}
	return len(jobs), nil
}

func (w *Worker) processJob(ctx context.Context, job model.Job) {
	log := w.log.With("job_id", job.ID).With("event_id", job.EventID)

	event, err := w.st.GetEvent(ctx, job.EventID)
	if err != nil {
		w.fail(ctx, job, err, log)
		return
	}

	if len(event.Samples) == 0 {
		errMsg := noSamplesError
		if err := w.st.MarkJobDone(ctx, job.ID, &errMsg); err != nil {
			log.Error("mark job done (no samples)", err)
		}
		if w.metrics != nil {
			w.metrics.JobsDone.Inc()
		}
		return
	}

	start := time.Now()
	raw := detector.Detect(event.Samples)

	recent, err := w.st.RecentRawWeights(ctx, event.DeviceID, consensusHistoryLimit)
	if err != nil {
		w.fail(ctx, job, err, log)
		return
	}

	consensusKg, consensusDetection := consensus.Refine(event.Samples, raw, recent, w.band)
	if w.metrics != nil {
		w.metrics.DetectorDuration.Observe(time.Since(start).Seconds())
		w.metrics.DetectorMode.WithLabelValues(string(raw.Mode)).Inc()
	}

	result := roundResult(model.Result{
		EventID:     job.EventID,
		Raw:         raw,
		Consensus:   consensusDetection,
		ConsensusKg: consensusKg,
		SourceCount: len(recent),
	})

	if _, err := w.st.InsertResult(ctx, result); err != nil {
		w.fail(ctx, job, err, log)
		return
	}

	if err := w.st.MarkJobDone(ctx, job.ID, nil); err != nil {
		log.Error("mark job done", err)
	}
	if w.metrics != nil {
		w.metrics.JobsDone.Inc()
	}
}

func (w *Worker) fail(ctx context.Context, job model.Job, cause error, log *logging.Logger) {
	log.Error("job failed", cause)
	if err := w.st.MarkJobFailed(ctx, job.ID, cause.Error()); err != nil {
		log.Error("mark job failed", err)
	}
	if w.metrics != nil {
		w.metrics.JobsFailed.Inc()
	}
}

// roundResult applies the rounding precision from §4.I step 2: weight to
// 1e-5 kg, window bounds to 1e-3 s, slope (mean derivative) to 1e-6.
func roundResult(r model.Result) model.Result {
	r.Raw.Weight = stats.Round(r.Raw.Weight, weightRoundPlaces)
	r.Raw.Uncertainty = stats.Round(r.Raw.Uncertainty, weightRoundPlaces)
	r.Raw.StartS = stats.Round(r.Raw.StartS, windowRoundPlaces)
	r.Raw.EndS = stats.Round(r.Raw.EndS, windowRoundPlaces)
	r.Raw.MeanDeriv = stats.Round(r.Raw.MeanDeriv, slopeRoundPlaces)
	r.Raw.MeanDispersion = stats.Round(r.Raw.MeanDispersion, slopeRoundPlaces)
	r.ConsensusKg = stats.Round(r.ConsensusKg, weightRoundPlaces)

	if r.Consensus != nil {
		r.Consensus.Weight = stats.Round(r.Consensus.Weight, weightRoundPlaces)
		r.Consensus.Uncertainty = stats.Round(r.Consensus.Uncertainty, weightRoundPlaces)
		r.Consensus.StartS = stats.Round(r.Consensus.StartS, windowRoundPlaces)
		r.Consensus.EndS = stats.Round(r.Consensus.EndS, windowRoundPlaces)
	}
	return r
}
