// Package transport implements the device-side event transport (§4.E):
// serializes a captured event and posts it to the ingest endpoint with a
// shared-secret header, fire-and-forget with success reporting.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/autoscalehub/autoscale/pkg/model"
)

// wireEvent mirrors the ingest wire format from §6.
type wireEvent struct {
	ScaleID   string         `json:"scale_id"`
	T0EpochMs *int64         `json:"t0_epoch_ms,omitempty"`
	Samples   []model.Sample `json:"samples"`
}

// HTTPTransport posts events to an ingest endpoint with a shared-secret
// header, over TLS when the endpoint URL is https.
type HTTPTransport struct {
	endpoint       string
	functionSecret string
	client         *http.Client
}

// NewHTTPTransport returns an HTTPTransport posting to endpoint.
func NewHTTPTransport(endpoint, functionSecret string) *HTTPTransport {
	return &HTTPTransport{
		endpoint:       endpoint,
		functionSecret: functionSecret,
		client:         &http.Client{Timeout: 10 * time.Second},
	}
}

// Submit serializes e and posts it. A non-2xx response or network error
// is reported to the caller; per §4.E there is no retry queue, so the
// capture state machine clears its buffer unconditionally after this
// call returns.
func (t *HTTPTransport) Submit(e model.Event) error {
	body, err := json.Marshal(wireEvent{ScaleID: e.DeviceID, T0EpochMs: e.T0EpochMs, Samples: e.Samples})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-function-secret", t.functionSecret)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upload event: unexpected status %d", resp.StatusCode)
	}
	return nil
}
