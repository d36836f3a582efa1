// Package store defines the persistence interface used by ingest, the
// worker, and the registry, plus a Postgres-backed implementation over
// pgx and an in-memory double for tests.
package store

import (
	"context"

	"github.com/autoscalehub/autoscale/pkg/model"
)

// Store is the persistence boundary the rest of the pipeline depends on.
// Implementations must make job claim (ClaimPendingJobs) a single
// conditional update, never a read-then-write.
type Store interface {
	UpsertDevice(ctx context.Context, deviceID, householdID, displayName string) (model.Device, error)
	GetDeviceByDeviceID(ctx context.Context, deviceID string) (model.Device, bool, error)

	InsertEvent(ctx context.Context, e model.Event) (model.Event, error)
	GetEvent(ctx context.Context, id int64) (model.Event, error)

	EnqueueJob(ctx context.Context, eventID int64) (model.Job, error)
	ClaimPendingJobs(ctx context.Context, batch int) ([]model.Job, error)
	MarkJobDone(ctx context.Context, jobID int64, errMsg *string) error
	MarkJobFailed(ctx context.Context, jobID int64, errMsg string) error

	InsertResult(ctx context.Context, r model.Result) (model.Result, error)
	RecentRawWeights(ctx context.Context, deviceID string, limit int) ([]float64, error)
}
