package uiprotect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/uilibs/uiprotect/internal/metrics"
)

// Retry policy for idempotent requests. Writes are never retried; the
// caller sees the first failure.
const (
	retryBase        = 500 * time.Millisecond
	retryCap         = 30 * time.Second
	retryMaxAttempts = 5
)

// apiPath is the private API prefix every resource path hangs off.
const apiPath = "/proxy/protect/api"

// get fetches an API path with retries on transport and 5xx failures.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	var body []byte
	op := func() error {
		var err error
		body, err = c.doOnce(ctx, http.MethodGet, path, nil, "")
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryBase
	bo.MaxInterval = retryCap
	bo.MaxElapsedTime = 0
	policy := backoff.WithMaxRetries(backoff.WithContext(bo, ctx), retryMaxAttempts-1)

	notify := func(err error, wait time.Duration) {
		metrics.RecordHTTPRetry()
		c.log.Debug().Err(err).Dur("backoff", wait).Str("path", path).Msg("retrying request")
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return body, nil
}

// post sends a write. Not retried.
func (c *Client) post(ctx context.Context, path string, payload []byte) ([]byte, error) {
	return c.doOnce(ctx, http.MethodPost, path, payload, "application/json")
}

// patch sends a partial update. Not retried.
func (c *Client) patch(ctx context.Context, path string, payload []byte) ([]byte, error) {
	return c.doOnce(ctx, http.MethodPatch, path, payload, "application/json")
}

// doOnce performs a single authenticated request, allowing exactly one
// re-login when the session cookie has lapsed server-side.
func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte, contentType string) ([]byte, error) {
	if err := c.auth.ensure(ctx); err != nil {
		return nil, err
	}

	body, status, err := c.roundTrip(ctx, method, path, payload, contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if status == http.StatusUnauthorized {
		c.auth.invalidate()
		if err := c.auth.ensure(ctx); err != nil {
			return nil, err
		}
		body, status, err = c.roundTrip(ctx, method, path, payload, contentType)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransport, err)
		}
	}
	if status < 200 || status > 299 {
		return nil, errorFromStatus(status, string(bytes.TrimSpace(body)))
	}
	return body, nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte, contentType string) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.auth.cfg.baseURL()+path, reader)
	if err != nil {
		return nil, 0, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.auth.decorate(req)

	resp, err := c.auth.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	c.auth.captureCSRF(resp)

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

// retryable reports whether the GET failure is worth another attempt.
func retryable(err error) bool {
	if errors.Is(err, ErrTransport) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return false
}
