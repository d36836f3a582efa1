package registry

import (
	"encoding/json"
	"net/http"

	"github.com/autoscalehub/autoscale/pkg/apperr"
	"github.com/autoscalehub/autoscale/pkg/logging"
	"github.com/autoscalehub/autoscale/pkg/metrics"
)

// registerRequest mirrors the explicit device-registration wire shape
// from §6: device_id required, display_name and household_id optional.
type registerRequest struct {
	DeviceID    string `json:"device_id"`
	DisplayName string `json:"display_name"`
	HouseholdID string `json:"household_id"`
}

// Handler implements the explicit "Device registration" endpoint from
// §6: POST {device_id, display_name?, household_id?} behind the same
// shared-secret header as ingest, returning the upserted scale row.
type Handler struct {
	reg            *Registry
	log            *logging.Logger
	metrics        *metrics.Metrics
	functionSecret string
}

// HandlerConfig carries Handler's runtime dependencies and secret.
type HandlerConfig struct {
	Registry       *Registry
	Logger         *logging.Logger
	Metrics        *metrics.Metrics
	FunctionSecret string
}

func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		reg:            cfg.Registry,
		log:            cfg.Logger,
		metrics:        cfg.Metrics,
		functionSecret: cfg.FunctionSecret,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, x-function-secret")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := h.handle(w, r); err != nil {
		h.writeError(w, err)
	}
}

func (h *Handler) handle(w http.ResponseWriter, r *http.Request) error {
	if r.Header.Get("x-function-secret") != h.functionSecret || h.functionSecret == "" {
		return apperr.Unauthorized("Unauthorized")
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperr.BadRequest("malformed JSON body: %v", err)
	}
	if req.DeviceID == "" {
		return apperr.BadRequest("device_id is required")
	}

	device, err := h.reg.Upsert(r.Context(), req.DeviceID, req.HouseholdID, req.DisplayName)
	if err != nil {
		return err
	}

	if h.log != nil {
		h.log.With("device_id", device.DeviceID).Info("device registered")
	}

	return writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"scale": map[string]any{
			"id":           device.ID,
			"household_id": device.HouseholdID,
			"device_id":    device.DeviceID,
			"display_name": device.DisplayName,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	ae, ok := apperr.As(err)
	if !ok {
		ae = apperr.Internal("internal error", err)
	}

	status := http.StatusInternalServerError
	switch ae.Kind {
	case apperr.KindBadRequest:
		status = http.StatusBadRequest
	case apperr.KindUnauthorized:
		status = http.StatusUnauthorized
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindTimeout:
		status = http.StatusGatewayTimeout
	}

	if h.metrics != nil {
		h.metrics.IngestRejected.WithLabelValues(string(ae.Kind)).Inc()
	}

	_ = writeJSON(w, status, map[string]any{"error": ae.Error()})
}
