package registry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoscalehub/autoscale/pkg/registry"
	"github.com/autoscalehub/autoscale/pkg/store"
)

func TestUpsertIdempotent(t *testing.T) {
	reg := registry.New(store.NewMemStore())
	ctx := context.Background()

	first, err := reg.Upsert(ctx, "scale-1", "house-a", "Kitchen Scale")
	require.NoError(t, err)

	second, err := reg.Upsert(ctx, "scale-1", "house-a", "Kitchen Scale")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.DeviceID, second.DeviceID)
}

func TestResolveUnknownDevice(t *testing.T) {
	reg := registry.New(store.NewMemStore())
	_, ok, err := reg.Resolve(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpsertPreservesDisplayNameWhenEmpty(t *testing.T) {
	reg := registry.New(store.NewMemStore())
	ctx := context.Background()

	first, err := reg.Upsert(ctx, "scale-2", "house-b", "Bathroom Scale")
	require.NoError(t, err)

	second, err := reg.Upsert(ctx, "scale-2", "", "")
	require.NoError(t, err)

	assert.Equal(t, first.DisplayName, second.DisplayName)
	assert.Equal(t, first.HouseholdID, second.HouseholdID)
}
