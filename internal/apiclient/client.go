// Package apiclient implements the authenticated, retrying HTTP
// client for the control-plane API (spec §4.1).
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/smtlab/scheduler/internal/telemetry"
)

// ErrRetryExhausted is returned when every retry attempt has been
// spent without a successful response.
var ErrRetryExhausted = errors.New("smtlab: control API retries exhausted")

// RemoteError is a non-2xx final response from the control API.
type RemoteError struct {
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("smtlab: control API returned %d: %s", e.Status, e.Body)
}

var retryableMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPut:     true,
	http.MethodPost:    true,
	http.MethodOptions: true,
}

var retryableStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

const maxAttempts = 5

// Client wraps all calls to the control API: base URL prefixing,
// Basic auth, per-request timeout, retry with exponential backoff,
// and a circuit breaker per endpoint group.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	log      *zap.Logger

	mu       sync.Mutex
	breakers map[string]*breaker
}

// New builds a Client against baseURL (normalised with a trailing
// slash by config.Load) using the given Basic Auth credentials.
func New(baseURL, username, password string, log *zap.Logger) *Client {
	return &Client{
		baseURL:  baseURL,
		username: username,
		password: password,
		http:     &http.Client{Timeout: 5 * time.Second},
		log:      log,
		breakers: make(map[string]*breaker),
	}
}

func (c *Client) breakerFor(group string) *breaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.breakers[group]
	if !ok {
		b = newBreaker(group)
		c.breakers[group] = b
	}
	return b
}

// endpointGroup extracts the leading path segment used to key the
// per-resource circuit breaker and metrics (runs, benchmarks,
// results, solvers, queues).
func endpointGroup(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		return trimmed[:i]
	}
	return trimmed
}

// doJSON issues method against {base}/{path}, optionally encoding
// body as the JSON request payload, and decodes a JSON response into
// out (when out is non-nil). Implements the retry/backoff/circuit
// breaker contract of spec §4.1.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	group := endpointGroup(path)
	b := c.breakerFor(group)

	var bodyBytes []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("smtlab: encoding request body: %w", err)
		}
		bodyBytes = encoded
	}

	var respBody []byte
	err := b.execute(ctx, func() error {
		data, callErr := c.attemptWithRetry(ctx, method, path, bodyBytes)
		respBody = data
		return callErr
	})
	if err != nil {
		telemetry.APIRequestsTotal.WithLabelValues(method, group, "error").Inc()
		return err
	}

	telemetry.APIRequestsTotal.WithLabelValues(method, group, "ok").Inc()

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("smtlab: decoding response body: %w", err)
		}
	}
	return nil
}

// attemptWithRetry performs the bounded-retry loop described in
// spec §4.1: up to maxAttempts for idempotent methods, exponential
// backoff producing the 0, 2, 4, 8, 16s delay sequence.
func (c *Client) attemptWithRetry(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	url := c.baseURL + strings.TrimPrefix(path, "/")
	group := endpointGroup(path)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = 16 * time.Second
	bo.MaxElapsedTime = 0
	bo.Reset()

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := bo.NextBackOff()
			telemetry.APIRetries.WithLabelValues(group).Inc()
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		data, status, err := c.doOnce(ctx, method, url, body)

		// Success.
		if err == nil && status >= 200 && status < 300 {
			return data, nil
		}

		// Transport error or a retryable status: retry if the method
		// permits it and attempts remain; otherwise fail immediately.
		retryable := err != nil || retryableStatuses[status]
		if retryable && retryableMethods[method] {
			lastErr = err
			if err == nil {
				lastErr = &RemoteError{Status: status, Body: string(data)}
			}
			continue
		}

		// Permanent error: non-2xx, non-retryable status (or a
		// non-idempotent method), propagate immediately.
		if err != nil {
			return nil, err
		}
		return nil, &RemoteError{Status: status, Body: string(data)}
	}

	if c.log != nil {
		c.log.Warn("control API retries exhausted", zap.String("path", path), zap.Error(lastErr))
	}
	return nil, fmt.Errorf("%w: %v", ErrRetryExhausted, lastErr)
}

func (c *Client) doOnce(ctx context.Context, method, url string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, err
	}
	req.SetBasicAuth(c.username, c.password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return data, resp.StatusCode, nil
}
