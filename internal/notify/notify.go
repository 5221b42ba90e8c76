// Package notify delivers batch and job lifecycle events to the calling
// application's callback URL.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/maauso/listingvideo-api/internal/job"
)

// EventType names an outbound event.
type EventType string

// Outbound event types.
const (
	EventJobCompleted   EventType = "job.completed"
	EventJobFailed      EventType = "job.failed"
	EventBatchCompleted EventType = "batch.completed"
	EventBatchFailed    EventType = "batch.failed"
)

// ErrDeliveryFailed is returned when the callback answered with a non-2xx status.
var ErrDeliveryFailed = errors.New("notify: delivery failed")

// Event is the JSON body posted to the callback URL.
type Event struct {
	Type        EventType  `json:"event"`
	BatchID     string     `json:"batch_id"`
	ListingID   string     `json:"listing_id"`
	JobID       string     `json:"job_id,omitempty"`
	Status      job.Status `json:"status"`
	VideoURL    string     `json:"video_url,omitempty"`
	RenderJobID string     `json:"render_job_id,omitempty"`
	Error       string     `json:"error,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

// Sender delivers events.
type Sender interface {
	// Send posts ev to callbackURL. An empty callbackURL is a no-op.
	Send(ctx context.Context, callbackURL string, ev Event) error
}

// HTTPSender posts events as JSON with a bounded retry on 5xx and transport errors.
type HTTPSender struct {
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
	logger      *slog.Logger
}

// SenderOption configures an HTTPSender.
type SenderOption func(*HTTPSender)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) SenderOption {
	return func(s *HTTPSender) {
		s.httpClient = c
	}
}

// WithMaxRetries sets the number of retries after the first attempt.
func WithMaxRetries(n int) SenderOption {
	return func(s *HTTPSender) {
		s.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff between retries.
func WithBaseBackoff(d time.Duration) SenderOption {
	return func(s *HTTPSender) {
		s.baseBackoff = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SenderOption {
	return func(s *HTTPSender) {
		s.logger = l
	}
}

// NewHTTPSender creates an HTTPSender.
func NewHTTPSender(opts ...SenderOption) *HTTPSender {
	s := &HTTPSender{
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		maxRetries:  2,
		baseBackoff: 500 * time.Millisecond,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send posts ev to callbackURL.
func (s *HTTPSender) Send(ctx context.Context, callbackURL string, ev Event) error {
	if callbackURL == "" {
		return nil
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}

	backoff := s.baseBackoff
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("notify: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		retry, err := s.post(ctx, callbackURL, ev.Type, body)
		if err == nil {
			s.logger.Debug("event delivered",
				slog.String("event", string(ev.Type)),
				slog.String("batch_id", ev.BatchID),
				slog.String("job_id", ev.JobID),
			)
			return nil
		}
		lastErr = err
		if !retry {
			break
		}
	}

	return lastErr
}

// post performs one delivery and reports whether a failure is worth retrying.
func (s *HTTPSender) post(ctx context.Context, url string, eventType EventType, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("notify: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", string(eventType))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, fmt.Errorf("notify: request cancelled: %w", ctx.Err())
		}
		return true, fmt.Errorf("notify: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return false, nil
	}
	retry := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
	return retry, fmt.Errorf("%w: status %d", ErrDeliveryFailed, resp.StatusCode)
}

// Compile-time check that HTTPSender implements Sender.
var _ Sender = (*HTTPSender)(nil)
