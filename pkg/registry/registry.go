// Package registry implements the device registry: mapping stable
// device identifiers to internal rows and households, idempotent and
// time-bounded.
package registry

import (
	"context"
	"time"

	"github.com/autoscalehub/autoscale/pkg/apperr"
	"github.com/autoscalehub/autoscale/pkg/model"
	"github.com/autoscalehub/autoscale/pkg/store"
)

const upsertTimeout = 7 * time.Second

// Registry resolves device identities against a Store.
type Registry struct {
	st store.Store
}

func New(st store.Store) *Registry {
	return &Registry{st: st}
}

// Upsert inserts or updates the device row for deviceID, returning the
// canonical row. Idempotent: repeated calls with the same deviceID yield
// the same row, with householdID/displayName only overwritten when
// non-empty. Bounds the call to upsertTimeout and reports a distinct
// timeout error class on expiry.
func (r *Registry) Upsert(ctx context.Context, deviceID, householdID, displayName string) (model.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, upsertTimeout)
	defer cancel()

	d, err := r.st.UpsertDevice(ctx, deviceID, householdID, displayName)
	if ctx.Err() != nil {
		return model.Device{}, apperr.Timeout("device registry upsert timed out for %q", deviceID)
	}
	if err != nil {
		return model.Device{}, err
	}
	return d, nil
}

// Resolve looks up deviceID without creating it.
func (r *Registry) Resolve(ctx context.Context, deviceID string) (model.Device, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, upsertTimeout)
	defer cancel()

	d, ok, err := r.st.GetDeviceByDeviceID(ctx, deviceID)
	if ctx.Err() != nil {
		return model.Device{}, false, apperr.Timeout("device registry lookup timed out for %q", deviceID)
	}
	return d, ok, err
}
