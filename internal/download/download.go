// Package download fetches remote binaries (provider-produced clips) with
// bounded linear-backoff retries, declared-size validation and optional
// SHA-256 checksums.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// Static errors for download operations.
var (
	// ErrURLRequired is returned when no URL is given.
	ErrURLRequired = errors.New("download: URL is required")
	// ErrSizeMismatch is returned when the body length differs from the
	// declared Content-Length. It is never retried.
	ErrSizeMismatch = errors.New("download: size mismatch")
	// ErrBadStatus is returned for non-2xx responses.
	ErrBadStatus = errors.New("download: unexpected status")
)

// Options controls a single Download call.
type Options struct {
	// MaxAttempts is the total number of tries. Values below 1 mean 1.
	MaxAttempts int
	// BaseDelay is multiplied by the attempt number between tries.
	BaseDelay time.Duration
	// ValidateSize checks the body length against Content-Length when declared.
	ValidateSize bool
	// ComputeChecksum returns a hex SHA-256 of the body.
	ComputeChecksum bool
}

// DefaultOptions returns the options used for clip archiving.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:     3,
		BaseDelay:       time.Second,
		ValidateSize:    true,
		ComputeChecksum: true,
	}
}

// Result is a downloaded body.
type Result struct {
	Data           []byte
	ContentType    string
	ChecksumSHA256 string // empty unless ComputeChecksum was set
}

// Downloader performs HTTP GETs with retries.
type Downloader struct {
	httpClient *http.Client
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Downloader) {
		d.httpClient = c
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(d *Downloader) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates a Downloader.
func New(opts ...Option) *Downloader {
	d := &Downloader{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		logger:     slog.Default(),
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Download fetches url. Between failed attempts it waits BaseDelay*attempt.
// The last failure is returned once attempts are exhausted. A size mismatch
// fails immediately.
func (d *Downloader) Download(ctx context.Context, url string, opts Options) (*Result, error) {
	if url == "" {
		return nil, ErrURLRequired
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err := d.fetch(ctx, url, opts)
		if err == nil {
			return res, nil
		}
		if errors.Is(err, ErrSizeMismatch) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("download: context cancelled: %w", ctx.Err())
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}

		delay := opts.BaseDelay * time.Duration(attempt)
		d.logger.Warn("download attempt failed, retrying",
			slog.String("url", url),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		if err := d.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("download: context cancelled: %w", err)
		}
	}

	return nil, fmt.Errorf("download: failed after %d attempts: %w", maxAttempts, lastErr)
}

func (d *Downloader) fetch(ctx context.Context, url string, opts Options) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("download: create request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w %d", ErrBadStatus, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil && !(opts.ValidateSize && errors.Is(err, io.ErrUnexpectedEOF)) {
		return nil, fmt.Errorf("download: read body: %w", err)
	}

	if opts.ValidateSize {
		if declared, ok := declaredLength(resp); ok && int64(len(data)) != declared {
			return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrSizeMismatch, declared, len(data))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("download: read body: %w", err)
	}

	res := &Result{
		Data:        data,
		ContentType: resp.Header.Get("Content-Type"),
	}
	if opts.ComputeChecksum {
		sum := sha256.Sum256(data)
		res.ChecksumSHA256 = hex.EncodeToString(sum[:])
	}
	return res, nil
}

// declaredLength reads Content-Length from the header rather than
// resp.ContentLength so that a truncated body is still compared against what
// the server promised.
func declaredLength(resp *http.Response) (int64, bool) {
	raw := resp.Header.Get("Content-Length")
	if raw == "" {
		if resp.ContentLength >= 0 {
			return resp.ContentLength, true
		}
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
