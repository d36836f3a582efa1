package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autoscalehub/autoscale/pkg/apperr"
	"github.com/autoscalehub/autoscale/pkg/model"
)

// PGStore is a Store backed by Postgres (Supabase-compatible) via pgx.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects to url and pings it before returning, so a bad
// connection string fails at startup rather than on first request.
func NewPGStore(ctx context.Context, url string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *PGStore) Close() { s.pool.Close() }

func (s *PGStore) UpsertDevice(ctx context.Context, deviceID, householdID, displayName string) (model.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, 7*time.Second)
	defer cancel()

	const q = `
		INSERT INTO devices (device_id, household_id, display_name, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (device_id) DO UPDATE SET
			household_id = CASE WHEN EXCLUDED.household_id <> '' THEN EXCLUDED.household_id ELSE devices.household_id END,
			display_name = CASE WHEN EXCLUDED.display_name <> '' THEN EXCLUDED.display_name ELSE devices.display_name END
		RETURNING id, device_id, household_id, display_name, created_at`

	var d model.Device
	err := s.pool.QueryRow(ctx, q, deviceID, householdID, displayName).
		Scan(&d.ID, &d.DeviceID, &d.HouseholdID, &d.DisplayName, &d.CreatedAt)
	if ctx.Err() != nil {
		return model.Device{}, apperr.Timeout("device upsert timed out")
	}
	if err != nil {
		return model.Device{}, apperr.Internal("upsert device", err)
	}
	return d, nil
}

func (s *PGStore) GetDeviceByDeviceID(ctx context.Context, deviceID string) (model.Device, bool, error) {
	const q = `SELECT id, device_id, household_id, display_name, created_at FROM devices WHERE device_id = $1`
	var d model.Device
	err := s.pool.QueryRow(ctx, q, deviceID).
		Scan(&d.ID, &d.DeviceID, &d.HouseholdID, &d.DisplayName, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Device{}, false, nil
	}
	if err != nil {
		return model.Device{}, false, apperr.Internal("get device", err)
	}
	return d, true, nil
}

func (s *PGStore) InsertEvent(ctx context.Context, e model.Event) (model.Event, error) {
	samplesJSON, err := json.Marshal(e.Samples)
	if err != nil {
		return model.Event{}, apperr.Internal("marshal samples", err)
	}

	const q = `
		INSERT INTO events (device_id, t0_epoch_ms, samples, sample_count, peak_kg, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id, created_at`

	err = s.pool.QueryRow(ctx, q, e.DeviceID, e.T0EpochMs, samplesJSON, e.SampleCount, e.PeakKg).
		Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return model.Event{}, apperr.Internal("insert event", err)
	}
	return e, nil
}

func (s *PGStore) GetEvent(ctx context.Context, id int64) (model.Event, error) {
	const q = `SELECT id, device_id, t0_epoch_ms, samples, sample_count, peak_kg, created_at FROM events WHERE id = $1`
	var e model.Event
	var samplesJSON []byte
	err := s.pool.QueryRow(ctx, q, id).
		Scan(&e.ID, &e.DeviceID, &e.T0EpochMs, &samplesJSON, &e.SampleCount, &e.PeakKg, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Event{}, apperr.NotFound("event %d not found", id)
	}
	if err != nil {
		return model.Event{}, apperr.Internal("get event", err)
	}
	if err := json.Unmarshal(samplesJSON, &e.Samples); err != nil {
		return model.Event{}, apperr.Internal("unmarshal samples", err)
	}
	return e, nil
}

func (s *PGStore) EnqueueJob(ctx context.Context, eventID int64) (model.Job, error) {
	const q = `
		INSERT INTO jobs (event_id, status, created_at, attempts)
		VALUES ($1, 'pending', now(), 0)
		RETURNING id, event_id, status, created_at, attempts`

	var j model.Job
	err := s.pool.QueryRow(ctx, q, eventID).
		Scan(&j.ID, &j.EventID, &j.Status, &j.CreatedAt, &j.Attempts)
	if err != nil {
		return model.Job{}, apperr.Internal("enqueue job", err)
	}
	return j, nil
}

// ClaimPendingJobs flips up to batch pending jobs to processing in a
// single conditional UPDATE, per the job-claim-atomicity design note —
// never a read followed by a separate write.
func (s *PGStore) ClaimPendingJobs(ctx context.Context, batch int) ([]model.Job, error) {
	const q = `
		UPDATE jobs SET status = 'processing', picked_at = now(), attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM jobs WHERE status = 'pending' ORDER BY created_at ASC LIMIT $1 FOR UPDATE SKIP LOCKED
		)
		RETURNING id, event_id, status, created_at, picked_at, attempts`

	rows, err := s.pool.Query(ctx, q, batch)
	if err != nil {
		return nil, apperr.Internal("claim jobs", err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		var j model.Job
		if err := rows.Scan(&j.ID, &j.EventID, &j.Status, &j.CreatedAt, &j.PickedAt, &j.Attempts); err != nil {
			return nil, apperr.Internal("scan claimed job", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *PGStore) MarkJobDone(ctx context.Context, jobID int64, errMsg *string) error {
	const q = `UPDATE jobs SET status = 'done', done_at = now(), error = $2 WHERE id = $1`
	_, err := s.pool.Exec(ctx, q, jobID, errMsg)
	if err != nil {
		return apperr.Internal("mark job done", err)
	}
	return nil
}

func (s *PGStore) MarkJobFailed(ctx context.Context, jobID int64, errMsg string) error {
	const q = `UPDATE jobs SET status = 'failed', done_at = now(), error = $2 WHERE id = $1`
	_, err := s.pool.Exec(ctx, q, jobID, errMsg)
	if err != nil {
		return apperr.Internal("mark job failed", err)
	}
	return nil
}

func (s *PGStore) InsertResult(ctx context.Context, r model.Result) (model.Result, error) {
	const q = `
		INSERT INTO results (
			event_id, raw_weight, raw_uncertainty, raw_quality, raw_mode,
			raw_start_s, raw_end_s, raw_mean_deriv, raw_mean_dispersion, raw_n_points,
			consensus_weight, consensus_uncertainty, consensus_mode, consensus_start_s, consensus_end_s, consensus_band_kg,
			consensus_kg, source_count, computed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18, now())
		RETURNING id, computed_at`

	var consensusWeight, consensusUncertainty, consensusStart, consensusEnd, consensusBand *float64
	var consensusMode *string
	if r.Consensus != nil {
		consensusWeight = &r.Consensus.Weight
		consensusUncertainty = &r.Consensus.Uncertainty
		consensusStart = &r.Consensus.StartS
		consensusEnd = &r.Consensus.EndS
		consensusBand = &r.Consensus.BandKg
		mode := string(r.Consensus.Mode)
		consensusMode = &mode
	}

	err := s.pool.QueryRow(ctx, q,
		r.EventID, r.Raw.Weight, r.Raw.Uncertainty, r.Raw.Quality, r.Raw.Mode,
		r.Raw.StartS, r.Raw.EndS, r.Raw.MeanDeriv, r.Raw.MeanDispersion, r.Raw.NPoints,
		consensusWeight, consensusUncertainty, consensusMode, consensusStart, consensusEnd, consensusBand,
		r.ConsensusKg, r.SourceCount,
	).Scan(&r.ID, &r.ComputedAt)
	if err != nil {
		return model.Result{}, apperr.Internal("insert result", err)
	}
	return r, nil
}

func (s *PGStore) RecentRawWeights(ctx context.Context, deviceID string, limit int) ([]float64, error) {
	const q = `
		SELECT r.raw_weight FROM results r
		JOIN events e ON e.id = r.event_id
		WHERE e.device_id = $1
		ORDER BY r.computed_at DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, q, deviceID, limit)
	if err != nil {
		return nil, apperr.Internal("recent raw weights", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var w float64
		if err := rows.Scan(&w); err != nil {
			return nil, apperr.Internal("scan raw weight", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
