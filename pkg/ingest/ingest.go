// Package ingest implements the HTTP ingest endpoint (§4.F): payload
// validation, device resolution with optional auto-registration, and
// durable event+job insertion.
package ingest

import (
	"encoding/json"
	"math"
	"net/http"

	"github.com/autoscalehub/autoscale/pkg/apperr"
	"github.com/autoscalehub/autoscale/pkg/logging"
	"github.com/autoscalehub/autoscale/pkg/metrics"
	"github.com/autoscalehub/autoscale/pkg/model"
	"github.com/autoscalehub/autoscale/pkg/registry"
	"github.com/autoscalehub/autoscale/pkg/store"
)

// wireSample mirrors the JSON sample shape from §6.
type wireSample struct {
	T  *float64 `json:"t"`
	Kg *float64 `json:"kg"`
}

// wireEvent mirrors the ingest wire format from §6.
type wireEvent struct {
	ScaleID   string       `json:"scale_id"`
	T0EpochMs *int64       `json:"t0_epoch_ms"`
	Samples   []wireSample `json:"samples"`
}

// Server handles POST /ingest requests.
type Server struct {
	st                 store.Store
	reg                *registry.Registry
	log                *logging.Logger
	metrics            *metrics.Metrics
	functionSecret     string
	defaultHouseholdID string
}

// Config carries the handler's runtime dependencies and secrets.
type Config struct {
	Store              store.Store
	Logger             *logging.Logger
	Metrics            *metrics.Metrics
	FunctionSecret     string
	DefaultHouseholdID string
}

func NewServer(cfg Config) *Server {
	return &Server{
		st:                 cfg.Store,
		reg:                registry.New(cfg.Store),
		log:                cfg.Logger,
		metrics:            cfg.Metrics,
		functionSecret:     cfg.FunctionSecret,
		defaultHouseholdID: cfg.DefaultHouseholdID,
	}
}

// ServeHTTP implements http.Handler, applying permissive CORS per §4.F.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, x-function-secret")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := s.handle(w, r); err != nil {
		s.writeError(w, err)
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) error {
	if r.Header.Get("x-function-secret") != s.functionSecret || s.functionSecret == "" {
		return apperr.Unauthorized("Unauthorized")
	}

	var wire wireEvent
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		return apperr.BadRequest("malformed JSON body: %v", err)
	}

	event, err := validateAndConvert(wire)
	if err != nil {
		return err
	}

	ctx := r.Context()
	device, ok, err := s.reg.Resolve(ctx, event.DeviceID)
	if err != nil {
		return err
	}
	if !ok {
		if s.defaultHouseholdID == "" {
			return apperr.NotFound("unknown device %q", event.DeviceID)
		}
		device, err = s.reg.Upsert(ctx, event.DeviceID, s.defaultHouseholdID, event.DeviceID)
		if err != nil {
			return err
		}
	}
	_ = device

	event.Derive()
	stored, err := s.st.InsertEvent(ctx, event)
	if err != nil {
		return err
	}
	if _, err := s.st.EnqueueJob(ctx, stored.ID); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.EventsIngested.Inc()
	}
	s.log.With("device_id", event.DeviceID).With("event_id", stored.ID).Info("event ingested")

	return writeJSON(w, http.StatusOK, map[string]any{
		"ok":           true,
		"sample_count": stored.SampleCount,
		"peak_kg":      stored.PeakKg,
	})
}

func validateAndConvert(wire wireEvent) (model.Event, error) {
	if wire.ScaleID == "" {
		return model.Event{}, apperr.BadRequest("scale_id is required")
	}
	if len(wire.Samples) == 0 {
		return model.Event{}, apperr.BadRequest("samples must be a non-empty array")
	}

	samples := make([]model.Sample, len(wire.Samples))
	for i, ws := range wire.Samples {
		if ws.T == nil || ws.Kg == nil {
			return model.Event{}, apperr.BadRequest("sample %d missing t or kg", i)
		}
		if *ws.T < 0 {
			return model.Event{}, apperr.BadRequest("sample %d has negative t", i)
		}
		if math.IsNaN(*ws.Kg) || math.IsInf(*ws.Kg, 0) {
			return model.Event{}, apperr.BadRequest("sample %d has non-finite kg", i)
		}
		if i > 0 && *ws.T < *wire.Samples[i-1].T {
			return model.Event{}, apperr.BadRequest("sample %d violates non-decreasing t order", i)
		}
		samples[i] = model.Sample{T: int64(*ws.T), Kg: *ws.Kg}
	}

	return model.Event{
		DeviceID:  wire.ScaleID,
		T0EpochMs: wire.T0EpochMs,
		Samples:   samples,
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
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

	if s.metrics != nil {
		s.metrics.IngestRejected.WithLabelValues(string(ae.Kind)).Inc()
	}

	_ = writeJSON(w, status, map[string]any{"error": ae.Error()})
}
