package registry_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoscalehub/autoscale/pkg/logging"
	"github.com/autoscalehub/autoscale/pkg/registry"
	"github.com/autoscalehub/autoscale/pkg/store"
)

func newTestHandler(t *testing.T) *registry.Handler {
	t.Helper()
	reg := registry.New(store.NewMemStore())
	return registry.NewHandler(registry.HandlerConfig{
		Registry:       reg,
		Logger:         logging.New(logging.Config{}),
		FunctionSecret: "s3cret",
	})
}

func doRegisterRequest(t *testing.T, h *registry.Handler, body any, secret string) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("x-function-secret", secret)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRegisterReturnsScaleShape(t *testing.T) {
	h := newTestHandler(t)

	rec := doRegisterRequest(t, h, map[string]any{
		"device_id":    "scale-1",
		"household_id": "house-a",
		"display_name": "Kitchen Scale",
	}, "s3cret")

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["ok"])

	scale, ok := resp["scale"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "scale-1", scale["device_id"])
	assert.Equal(t, "house-a", scale["household_id"])
	assert.Equal(t, "Kitchen Scale", scale["display_name"])
	assert.NotNil(t, scale["id"])
}

func TestRegisterMissingDeviceIDBadRequest(t *testing.T) {
	h := newTestHandler(t)
	rec := doRegisterRequest(t, h, map[string]any{"household_id": "house-a"}, "s3cret")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterWrongSecretUnauthorized(t *testing.T) {
	h := newTestHandler(t)
	rec := doRegisterRequest(t, h, map[string]any{"device_id": "scale-1"}, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterIsIdempotent(t *testing.T) {
	h := newTestHandler(t)

	first := doRegisterRequest(t, h, map[string]any{"device_id": "scale-2", "household_id": "house-b"}, "s3cret")
	assert.Equal(t, http.StatusOK, first.Code)

	second := doRegisterRequest(t, h, map[string]any{"device_id": "scale-2", "household_id": "house-b"}, "s3cret")
	assert.Equal(t, http.StatusOK, second.Code)

	var firstResp, secondResp map[string]any
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstResp))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &secondResp))

	firstScale := firstResp["scale"].(map[string]any)
	secondScale := secondResp["scale"].(map[string]any)
	assert.Equal(t, firstScale["id"], secondScale["id"])
}
