package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	webhookUserAgent   = "Fleetguard-Audit-Webhook/1.0"
	webhookTimeout     = 10 * time.Second
	webhookRetryDelay  = 1 * time.Second
	webhookMaxAttempts = 2
)

// WebhookSink POSTs each record as JSON to an external endpoint, retrying
// once on a 5xx response or transport error.
type WebhookSink struct {
	url        string
	authHeader string // "Header: Value" format, e.g. "Authorization: Bearer xxx"
	client     *http.Client
	retryDelay time.Duration
}

var _ Sink = (*WebhookSink)(nil)

// WebhookOption configures a WebhookSink.
type WebhookOption func(*WebhookSink)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(w *WebhookSink) {
		w.client = c
	}
}

// WithRetryDelay sets the pause before the retry.
func WithRetryDelay(d time.Duration) WebhookOption {
	return func(w *WebhookSink) {
		w.retryDelay = d
	}
}

// NewWebhookSink creates a sink posting to url. authHeader is optional.
func NewWebhookSink(url, authHeader string, opts ...WebhookOption) *WebhookSink {
	w := &WebhookSink{
		url:        url,
		authHeader: authHeader,
		client:     &http.Client{Timeout: webhookTimeout},
		retryDelay: webhookRetryDelay,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *WebhookSink) Write(ctx context.Context, rec Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("audit webhook: marshal: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < webhookMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.retryDelay):
			}
		}

		retry, err := w.send(ctx, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return err
		}
	}
	return lastErr
}

// send performs one POST and reports whether a failure is worth retrying.
func (w *WebhookSink) send(ctx context.Context, body []byte) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("audit webhook: request creation: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", webhookUserAgent)
	if w.authHeader != "" {
		if name, value, ok := strings.Cut(w.authHeader, ":"); ok {
			req.Header.Set(strings.TrimSpace(name), strings.TrimSpace(value))
		}
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return true, fmt.Errorf("audit webhook: request failed: %w", err)
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("audit webhook: server error: status %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("audit webhook: client error: status %d", resp.StatusCode)
	}
}
