package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	v1 "github.com/cartwatch-lab/cartwatch/internal/api/v1"
)

// DefaultTimeout bounds a single delivery attempt when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// DeliveryResult is the outcome of one delivery attempt. It is a plain value:
// business code never handles delivery I/O errors, it hands the result to a
// Reporter and moves on.
type DeliveryResult struct {
	Action     string
	Status     string
	HTTPStatus int
	Err        error
	Elapsed    time.Duration
}

// OK reports whether the payload was accepted by the endpoint.
func (r DeliveryResult) OK() bool {
	return r.Err == nil
}

// Sink delivers outbound notification payloads. Implementations never return
// an error to the caller; delivery is attempted once, best-effort.
type Sink interface {
	Deliver(ctx context.Context, payload v1.NotificationPayload) DeliveryResult
}

// Reporter consumes delivery results for observability.
type Reporter interface {
	Report(result DeliveryResult)
}

// LogReporter writes delivery results to the structured log.
type LogReporter struct{}

func (LogReporter) Report(r DeliveryResult) {
	if r.Err != nil {
		slog.Error("Webhook delivery failed",
			"action", r.Action,
			"status", r.Status,
			"error", r.Err,
			"elapsed", r.Elapsed,
		)
		return
	}
	slog.Info("Webhook delivered",
		"action", r.Action,
		"status", r.Status,
		"http_status", r.HTTPStatus,
		"elapsed", r.Elapsed,
	)
}

// WebhookSink posts payloads as JSON to a single configured automation
// endpoint. One attempt per payload, no retry, no queueing: event forwarding
// is a remarketing side channel, not the system of record.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink creates a sink for the given endpoint. timeout bounds each
// attempt; non-positive values fall back to DefaultTimeout.
func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Deliver posts the payload once. A non-2xx response or transport error is
// recorded in the result, never raised. An in-flight delivery is not aborted
// on caller cancellation; the client timeout bounds worst-case suspension.
func (s *WebhookSink) Deliver(ctx context.Context, payload v1.NotificationPayload) DeliveryResult {
	result := DeliveryResult{Action: payload.Action, Status: payload.Status}

	body, err := json.Marshal(payload)
	if err != nil {
		result.Err = fmt.Errorf("encoding payload: %w", err)
		return result
	}

	req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		result.Err = fmt.Errorf("building request: %w", err)
		return result
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	result.Elapsed = time.Since(start)
	if err != nil {
		result.Err = fmt.Errorf("posting webhook: %w", err)
		return result
	}
	defer resp.Body.Close()

	// Drain a bounded slice of the body so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	result.HTTPStatus = resp.StatusCode
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		result.Err = fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return result
}
