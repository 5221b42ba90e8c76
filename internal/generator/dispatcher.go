package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DefaultMaxRetries is the number of retries per strategy before falling through.
const DefaultMaxRetries = 1

var (
	// ErrAllStrategiesFailed matches any DispatchError.
	ErrAllStrategiesFailed = errors.New("generator: all provider strategies failed")
	// ErrNoEligibleStrategy is returned when no strategy can handle the request.
	ErrNoEligibleStrategy = errors.New("generator: no eligible provider strategy")
	// ErrCancelUnsupported is returned when the provider cannot cancel jobs.
	ErrCancelUnsupported = errors.New("generator: provider does not support cancellation")
)

// StrategyFailure records why one strategy was abandoned.
type StrategyFailure struct {
	Provider string
	Attempts int
	Err      error
}

// DispatchError is returned when every eligible strategy exhausted its retries.
type DispatchError struct {
	Failures []StrategyFailure
}

func (e *DispatchError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s (%d attempts): %v", f.Provider, f.Attempts, f.Err))
	}
	return fmt.Sprintf("%s: %s", ErrAllStrategiesFailed, strings.Join(parts, "; "))
}

// Is makes errors.Is(err, ErrAllStrategiesFailed) true.
func (e *DispatchError) Is(target error) bool {
	return target == ErrAllStrategiesFailed
}

// Unwrap exposes the per-strategy errors.
func (e *DispatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// Dispatcher tries strategies in order and returns the first success.
type Dispatcher struct {
	strategies []Strategy
	maxRetries int
	metrics    *Metrics
	logger     *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithMaxRetries sets the retries per strategy. Negative values are ignored.
func WithMaxRetries(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n >= 0 {
			d.maxRetries = n
		}
	}
}

// WithMetrics records every attempt into m.
func WithMetrics(m *Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDispatcher creates a dispatcher over strategies in priority order.
func NewDispatcher(strategies []Strategy, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		strategies: strategies,
		maxRetries: DefaultMaxRetries,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Strategies returns the provider names in priority order.
func (d *Dispatcher) Strategies() []string {
	names := make([]string, 0, len(d.strategies))
	for _, s := range d.strategies {
		names = append(names, s.Name())
	}
	return names
}

// Dispatch submits req to the first eligible strategy that accepts it.
// Strategies are tried sequentially, never raced.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Result, error) {
	var failures []StrategyFailure

	for _, s := range d.strategies {
		if !s.CanHandle(req) {
			continue
		}

		result, attempts, err := d.try(ctx, s, req)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("generator: dispatch cancelled: %w", ctx.Err())
		}

		d.logger.Warn("provider strategy exhausted, falling through",
			slog.String("provider", s.Name()),
			slog.String("job_id", req.JobID),
			slog.Int("attempts", attempts),
			slog.String("error", err.Error()),
		)
		failures = append(failures, StrategyFailure{Provider: s.Name(), Attempts: attempts, Err: err})
	}

	if len(failures) == 0 {
		return Result{}, ErrNoEligibleStrategy
	}
	return Result{}, &DispatchError{Failures: failures}
}

// try runs s up to maxRetries+1 times.
func (d *Dispatcher) try(ctx context.Context, s Strategy, req Request) (Result, int, error) {
	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return Result{}, attempts, ctx.Err()
		}
		attempts++

		start := time.Now()
		result, err := s.Dispatch(ctx, req)
		d.metrics.Record(s.Name(), time.Since(start), err)

		if err == nil {
			if result.Provider == "" {
				result.Provider = s.Name()
			}
			d.logger.Info("job dispatched",
				slog.String("provider", result.Provider),
				slog.String("job_id", req.JobID),
				slog.String("request_id", result.RequestID),
				slog.Int("attempt", attempts),
			)
			return result, attempts, nil
		}
		lastErr = err
	}

	return Result{}, attempts, lastErr
}

// CancelRequest asks the named provider to stop a submitted job.
func (d *Dispatcher) CancelRequest(ctx context.Context, provider, requestID string) error {
	for _, s := range d.strategies {
		if s.Name() != provider {
			continue
		}
		c, ok := s.(Canceler)
		if !ok {
			break
		}
		return c.CancelRequest(ctx, requestID)
	}
	return fmt.Errorf("%w: %q", ErrCancelUnsupported, provider)
}
