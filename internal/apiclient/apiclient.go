// Package apiclient is the JSON-over-HTTP transport shared by the provider
// clients. Requests carry a bearer token and are retried with exponential
// backoff on network errors, 5xx responses and 429s.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	// ErrServerError matches 5xx responses.
	ErrServerError = errors.New("server error")
	// ErrRateLimited matches 429 responses.
	ErrRateLimited = errors.New("rate limited")
	// ErrRequestFailed matches any other non-2xx response.
	ErrRequestFailed = errors.New("request failed")
)

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	switch e.kind() {
	case ErrRequestFailed:
		return fmt.Sprintf("%s with status %d: %s", ErrRequestFailed, e.Code, e.Body)
	case ErrRateLimited:
		return fmt.Sprintf("%s: %s", ErrRateLimited, e.Body)
	default:
		return fmt.Sprintf("%s %d: %s", ErrServerError, e.Code, e.Body)
	}
}

// Unwrap returns the sentinel for the status class.
func (e *StatusError) Unwrap() error { return e.kind() }

func (e *StatusError) kind() error {
	switch {
	case e.Code >= 500:
		return ErrServerError
	case e.Code == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return ErrRequestFailed
	}
}

func (e *StatusError) retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// Caller performs authenticated JSON requests.
type Caller struct {
	HTTPClient  *http.Client
	Token       string
	MaxRetries  int
	BaseBackoff time.Duration
}

// Call sends in as the JSON body (nil for none) and decodes the response into
// out (nil to discard it). Transient failures are retried up to MaxRetries
// times, doubling the wait after each.
func (c *Caller) Call(ctx context.Context, method, url string, in, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = b
	}

	var lastErr error
	backoff := c.BaseBackoff
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		err := c.do(ctx, method, url, body, out)
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Caller) do(ctx context.Context, method, url string, body []byte, out any) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("request cancelled: %w", ctx.Err())
		}
		return &transientError{err: fmt.Errorf("request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &transientError{err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// transientError marks network-level failures worth retrying.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }

func (e *transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.retryable()
}
