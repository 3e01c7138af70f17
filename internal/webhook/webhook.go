// Package webhook implements the clap-detection webhook dispatcher
// (spec §4.5, component C6): retrying HTTP POST with exponential
// backoff and a connection pool kept per destination host.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/clapd/clapd/internal/detectorerr"
)

const (
	requestTimeout = 5 * time.Second
	maxAttempts    = 3
	initialBackoff = 1 * time.Second
)

// Payload is the JSON body posted to a webhook URL, matching spec §6's
// wire shape exactly.
type Payload struct {
	Event      string  `json:"event"`
	Source     string  `json:"source"`
	StreamName string  `json:"stream_name,omitempty"`
	Timestamp  int64   `json:"timestamp"`
	Score      float64 `json:"score"`
	Test       bool    `json:"test,omitempty"`
}

// Dispatcher posts Payloads to webhook URLs, retrying on 5xx and
// transport errors with exponential backoff. One *http.Client per
// destination host keeps connections pooled without sharing idle
// conns across hosts indefinitely, mirroring the teacher's
// one-session-per-stream isolation idiom adapted to per-host HTTP
// clients instead of per-stream model sessions.
type Dispatcher struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]*http.Client
}

// New creates a Dispatcher.
func New(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger:  logger.With("component", "webhook"),
		clients: make(map[string]*http.Client),
	}
}

// Send posts payload to url as JSON, retrying up to maxAttempts times
// on 5xx responses or transport errors. Returns a detectorerr-wrapped
// WebhookError once the retry budget is exhausted; callers must never
// let that block or fail the ingest path (spec §7 propagation rules).
func (d *Dispatcher) Send(ctx context.Context, url string, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return detectorerr.New(detectorerr.WebhookError, fmt.Errorf("encode payload: %w", err))
	}
	client := d.clientFor(url)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = initialBackoff
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0
	attempts := backoff.WithMaxRetries(policy, maxAttempts-1)

	var lastErr error
	attempt := 0
	op := func() error {
		attempt++
		reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("webhook %s: status %d", url, resp.StatusCode)
		if isRetryableStatus(resp.StatusCode) {
			return lastErr
		}
		return backoff.Permanent(lastErr)
	}

	if err := backoff.Retry(op, attempts); err != nil {
		d.logger.Error("webhook delivery failed", "url", url, "attempts", attempt, "error", lastErr)
		return detectorerr.New(detectorerr.WebhookError, lastErr)
	}
	d.logger.Info("webhook delivered", "url", url, "event", payload.Event, "attempts", attempt)
	return nil
}

func (d *Dispatcher) clientFor(url string) *http.Client {
	host := hostOf(url)

	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.clients[host]; ok {
		return c
	}
	c := &http.Client{Timeout: requestTimeout}
	d.clients[host] = c
	return c
}

// hostOf extracts the host:port a client pool key should be keyed on.
// Malformed URLs fall back to the raw string so every bad URL still
// gets *a* client rather than panicking.
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}

func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
