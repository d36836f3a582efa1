package ingest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoscalehub/autoscale/pkg/ingest"
	"github.com/autoscalehub/autoscale/pkg/logging"
	"github.com/autoscalehub/autoscale/pkg/store"
)

func newTestServer(t *testing.T) (*ingest.Server, store.Store) {
	t.Helper()
	st := store.NewMemStore()
	srv := ingest.NewServer(ingest.Config{
		Store:              st,
		Logger:             logging.New(logging.Config{}),
		FunctionSecret:     "s3cret",
		DefaultHouseholdID: "house-a",
	})
	return srv, st
}

func doRequest(t *testing.T, srv *ingest.Server, body any, secret string) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("x-function-secret", secret)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestIngestValidEventAutoRegisters(t *testing.T) {
	srv, st := newTestServer(t)

	rec := doRequest(t, srv, map[string]any{
		"scale_id": "scale-new",
		"samples":  []map[string]any{{"t": 0, "kg": 1.0}, {"t": 100, "kg": 5.0}},
	}, "s3cret")

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["ok"])
	assert.Equal(t, float64(2), resp["sample_count"])
	assert.Equal(t, 5.0, resp["peak_kg"])

	_, ok, err := st.GetDeviceByDeviceID(context.Background(), "scale-new")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIngestWrongSecretUnauthorized(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, map[string]any{"scale_id": "x", "samples": []map[string]any{{"t": 0, "kg": 1}}}, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIngestMissingDeviceIDBadRequest(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, map[string]any{"samples": []map[string]any{{"t": 0, "kg": 1}}}, "s3cret")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestEmptySamplesBadRequest(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, map[string]any{"scale_id": "x", "samples": []map[string]any{}}, "s3cret")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestNegativeTimestampBadRequest(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, map[string]any{
		"scale_id": "x",
		"samples":  []map[string]any{{"t": -1, "kg": 1.0}},
	}, "s3cret")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestUnknownDeviceNoDefaultHousehold404(t *testing.T) {
	st := store.NewMemStore()
	srv := ingest.NewServer(ingest.Config{
		Store:          st,
		Logger:         logging.New(logging.Config{}),
		FunctionSecret: "s3cret",
	})
	rec := doRequest(t, srv, map[string]any{
		"scale_id": "no-such-device",
		"samples":  []map[string]any{{"t": 0, "kg": 1.0}},
	}, "s3cret")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
