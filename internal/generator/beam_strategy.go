package generator

import (
	"context"
	"fmt"
	"time"

	"github.com/maauso/listingvideo-api/internal/beam"
)

// ProviderBeam is the provider name of the Beam strategy.
const ProviderBeam = "beam"

// BeamStrategy dispatches jobs to a Beam task queue.
type BeamStrategy struct {
	client       beam.Client
	models       []string
	sync         bool
	pollInterval time.Duration
}

// BeamOption configures a BeamStrategy.
type BeamOption func(*BeamStrategy)

// WithBeamModels sets the supported models; the first is the default.
func WithBeamModels(models ...string) BeamOption {
	return func(s *BeamStrategy) {
		s.models = models
	}
}

// WithBeamSync makes the strategy poll the task instead of waiting for the callback.
func WithBeamSync(sync bool) BeamOption {
	return func(s *BeamStrategy) {
		s.sync = sync
	}
}

// WithBeamPollInterval sets the poll interval used in sync mode.
func WithBeamPollInterval(d time.Duration) BeamOption {
	return func(s *BeamStrategy) {
		s.pollInterval = d
	}
}

// NewBeamStrategy creates a Beam strategy.
func NewBeamStrategy(client beam.Client, opts ...BeamOption) *BeamStrategy {
	s := &BeamStrategy{
		client:       client,
		pollInterval: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns "beam".
func (s *BeamStrategy) Name() string { return ProviderBeam }

// CanHandle reports whether the request targets Beam or any provider.
func (s *BeamStrategy) CanHandle(req Request) bool {
	return canHandle(ProviderBeam, s.models, req)
}

// Dispatch enqueues the job on Beam.
func (s *BeamStrategy) Dispatch(ctx context.Context, req Request) (Result, error) {
	width, height := Dimensions(req.Orientation)

	opts := beam.SubmitOptions{
		ImageURL:        req.ImageURL,
		Prompt:          req.Prompt,
		Width:           width,
		Height:          height,
		DurationSeconds: req.DurationSeconds,
	}
	if !s.sync {
		opts.CallbackURL = req.WebhookURL
	}

	taskID, err := s.client.Submit(ctx, opts)
	if err != nil {
		return Result{}, fmt.Errorf("beam strategy submit: %w", err)
	}

	result := Result{Provider: ProviderBeam, Model: resolveModel(s.models, req), RequestID: taskID}
	if s.sync {
		result.WaitForOutput = func(ctx context.Context) (Output, error) {
			return s.wait(ctx, taskID)
		}
	}
	return result, nil
}

// wait polls Beam until the task reaches a terminal status.
func (s *BeamStrategy) wait(ctx context.Context, taskID string) (Output, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		res, err := s.client.Poll(ctx, taskID)
		if err != nil {
			return Output{}, fmt.Errorf("beam strategy poll: %w", err)
		}
		if res.Status.IsTerminal() {
			if res.Status == beam.StatusCompleted {
				return Output{VideoURL: res.OutputURL}, nil
			}
			msg := res.Error
			if msg == "" {
				msg = fmt.Sprintf("beam task %s", res.Status)
			}
			return Output{Error: msg}, nil
		}

		select {
		case <-ctx.Done():
			return Output{}, fmt.Errorf("beam strategy wait: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// CancelRequest cancels the Beam task.
func (s *BeamStrategy) CancelRequest(ctx context.Context, taskID string) error {
	if err := s.client.Cancel(ctx, taskID); err != nil {
		return fmt.Errorf("beam strategy cancel: %w", err)
	}
	return nil
}

var (
	_ Strategy = (*BeamStrategy)(nil)
	_ Canceler = (*BeamStrategy)(nil)
)
