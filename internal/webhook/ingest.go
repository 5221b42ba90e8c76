package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/maauso/listingvideo-api/internal/generator"
)

var (
	// ErrInvalidPayload is returned when a verified body is not a callback document.
	ErrInvalidPayload = errors.New("webhook: invalid payload")
	// ErrUnknownStatus is returned for a status that is neither success nor failure.
	ErrUnknownStatus = errors.New("webhook: unknown status")
)

// Payload is the callback body posted by provider workers.
type Payload struct {
	RequestID string        `json:"request_id"`
	Status    string        `json:"status"`
	Error     string        `json:"error,omitempty"`
	Payload   *ResultDetail `json:"payload,omitempty"`
}

// ResultDetail carries the generated clip.
type ResultDetail struct {
	Video struct {
		URL             string   `json:"url"`
		DurationSeconds *float64 `json:"duration,omitempty"`
	} `json:"video"`
}

// Output converts the payload into a provider outcome.
func (p Payload) Output() (generator.Output, error) {
	switch strings.ToUpper(p.Status) {
	case "OK", "SUCCESS", "COMPLETED":
		if p.Payload == nil || p.Payload.Video.URL == "" {
			return generator.Output{Error: "provider returned no video"}, nil
		}
		return generator.Output{
			VideoURL:        p.Payload.Video.URL,
			DurationSeconds: p.Payload.Video.DurationSeconds,
		}, nil
	case "ERROR", "FAILED", "FAILURE":
		msg := p.Error
		if msg == "" {
			msg = "provider reported failure"
		}
		return generator.Output{Error: msg}, nil
	default:
		return generator.Output{}, fmt.Errorf("%w: %q", ErrUnknownStatus, p.Status)
	}
}

// Handler applies a provider outcome to the job it belongs to.
type Handler interface {
	HandleProviderResult(ctx context.Context, jobID, requestID string, out generator.Output) error
}

// Ingestor verifies callbacks and processes accepted ones on a worker pool.
type Ingestor struct {
	verifier       *Verifier
	handler        Handler
	logger         *slog.Logger
	workers        int
	processTimeout time.Duration

	queue    chan RequestContext
	mu       sync.Mutex
	baseCtx  context.Context
	started  bool
	stopped  bool
	workerWG sync.WaitGroup
	spillWG  sync.WaitGroup
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithWorkers sets the number of worker goroutines.
func WithWorkers(n int) IngestorOption {
	return func(i *Ingestor) {
		if n > 0 {
			i.workers = n
		}
	}
}

// WithQueueSize sets the queue capacity.
func WithQueueSize(n int) IngestorOption {
	return func(i *Ingestor) {
		if n > 0 {
			i.queue = make(chan RequestContext, n)
		}
	}
}

// WithProcessTimeout bounds the processing of one callback.
func WithProcessTimeout(d time.Duration) IngestorOption {
	return func(i *Ingestor) {
		if d > 0 {
			i.processTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) IngestorOption {
	return func(i *Ingestor) {
		if l != nil {
			i.logger = l
		}
	}
}

// NewIngestor creates an Ingestor. Call Start before accepting traffic.
func NewIngestor(verifier *Verifier, handler Handler, opts ...IngestorOption) *Ingestor {
	i := &Ingestor{
		verifier:       verifier,
		handler:        handler,
		logger:         slog.Default(),
		workers:        4,
		processTimeout: 2 * time.Minute,
		queue:          make(chan RequestContext, 256),
		baseCtx:        context.Background(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Start launches the workers. Processing contexts derive from ctx without
// its cancellation, so shutdown drains instead of aborting.
func (i *Ingestor) Start(ctx context.Context) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.started {
		return
	}
	i.started = true
	i.baseCtx = context.WithoutCancel(ctx)
	base := i.baseCtx

	for w := 0; w < i.workers; w++ {
		i.workerWG.Add(1)
		go func() {
			defer i.workerWG.Done()
			for rc := range i.queue {
				i.run(base, rc)
			}
		}()
	}
}

// Stop stops accepting callbacks and waits for queued ones to finish or ctx to expire.
func (i *Ingestor) Stop(ctx context.Context) error {
	i.mu.Lock()
	if !i.stopped {
		i.stopped = true
		close(i.queue)
	}
	i.mu.Unlock()

	done := make(chan struct{})
	go func() {
		i.workerWG.Wait()
		i.spillWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("webhook: drain interrupted: %w", ctx.Err())
	}
}

// Ingest verifies rc and, when authentic, schedules it for processing.
// It returns the verification decision; the caller still answers 200.
func (i *Ingestor) Ingest(rc RequestContext) int {
	status, err := i.verifier.Verify(rc)
	if err != nil {
		attrs := []any{
			slog.Int("status", status),
			slog.String("request_id", rc.Headers.RequestID),
			slog.String("job_id", rc.JobID),
			slog.String("error", err.Error()),
		}
		if status == http.StatusUnauthorized {
			i.logger.Error("webhook rejected: authentication failed", attrs...)
		} else {
			i.logger.Warn("webhook rejected: malformed delivery", attrs...)
		}
		return status
	}

	i.Enqueue(rc)
	return status
}

// Enqueue schedules rc without verifying it. When the queue is full the
// callback is processed on its own goroutine rather than dropped.
func (i *Ingestor) Enqueue(rc RequestContext) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.stopped {
		i.logger.Warn("webhook dropped: ingestor stopped",
			slog.String("request_id", rc.Headers.RequestID),
			slog.String("job_id", rc.JobID),
		)
		return
	}

	select {
	case i.queue <- rc:
	default:
		i.logger.Warn("webhook queue full, spilling to goroutine",
			slog.String("request_id", rc.Headers.RequestID),
		)
		base := i.baseCtx
		i.spillWG.Add(1)
		go func() {
			defer i.spillWG.Done()
			i.run(base, rc)
		}()
	}
}

// run processes one callback and swallows its error after logging it.
func (i *Ingestor) run(base context.Context, rc RequestContext) {
	ctx, cancel := context.WithTimeout(base, i.processTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("panic processing webhook",
				slog.Any("panic", r),
				slog.String("request_id", rc.Headers.RequestID),
				slog.String("job_id", rc.JobID),
			)
		}
	}()

	if err := i.Process(ctx, rc); err != nil {
		i.logger.Error("webhook processing failed",
			slog.String("request_id", rc.Headers.RequestID),
			slog.String("job_id", rc.JobID),
			slog.String("error", err.Error()),
		)
	}
}

// Process parses a verified callback and hands its outcome to the handler.
func (i *Ingestor) Process(ctx context.Context, rc RequestContext) error {
	var p Payload
	if err := json.Unmarshal(rc.RawBody, &p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p.RequestID == "" && rc.JobID == "" {
		return fmt.Errorf("%w: no request_id or job_id", ErrInvalidPayload)
	}

	out, err := p.Output()
	if err != nil {
		return err
	}

	return i.handler.HandleProviderResult(ctx, rc.JobID, p.RequestID, out)
}
