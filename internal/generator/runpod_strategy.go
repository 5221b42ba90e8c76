package generator

import (
	"context"
	"fmt"
	"time"

	"github.com/maauso/listingvideo-api/internal/runpod"
)

// ProviderRunPod is the provider name of the RunPod strategy.
const ProviderRunPod = "runpod"

// RunPodStrategy dispatches jobs to a RunPod serverless endpoint.
// In webhook mode the worker receives the job's webhook URL as its
// callback_url input and posts the signed result there; in sync mode the result carries WaitForOutput, which polls the endpoint.
type RunPodStrategy struct {
	client       runpod.Client
	models       []string
	sync         bool
	pollInterval time.Duration
}

// RunPodOption configures a RunPodStrategy.
type RunPodOption func(*RunPodStrategy)

// WithRunPodModels sets the supported models; the first is the default.
func WithRunPodModels(models ...string) RunPodOption {
	return func(s *RunPodStrategy) {
		s.models = models
	}
}

// WithRunPodSync switches the strategy to polling instead of webhooks.
func WithRunPodSync(sync bool) RunPodOption {
	return func(s *RunPodStrategy) {
		s.sync = sync
	}
}

// WithRunPodPollInterval sets the poll interval used in sync mode.
func WithRunPodPollInterval(d time.Duration) RunPodOption {
	return func(s *RunPodStrategy) {
		s.pollInterval = d
	}
}

// NewRunPodStrategy creates a RunPod strategy.
func NewRunPodStrategy(client runpod.Client, opts ...RunPodOption) *RunPodStrategy {
	s := &RunPodStrategy{
		client:       client,
		pollInterval: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns "runpod".
func (s *RunPodStrategy) Name() string { return ProviderRunPod }

// CanHandle reports whether the request targets RunPod or any provider.
func (s *RunPodStrategy) CanHandle(req Request) bool {
	return canHandle(ProviderRunPod, s.models, req)
}

// Dispatch submits the job to RunPod.
func (s *RunPodStrategy) Dispatch(ctx context.Context, req Request) (Result, error) {
	width, height := Dimensions(req.Orientation)
	model := resolveModel(s.models, req)

	opts := runpod.SubmitOptions{
		ImageURL:        req.ImageURL,
		Prompt:          req.Prompt,
		Model:           model,
		Width:           width,
		Height:          height,
		DurationSeconds: req.DurationSeconds,
	}
	if !s.sync {
		opts.CallbackURL = req.WebhookURL
	}

	requestID, err := s.client.Submit(ctx, opts)
	if err != nil {
		return Result{}, fmt.Errorf("runpod strategy submit: %w", err)
	}

	result := Result{Provider: ProviderRunPod, Model: model, RequestID: requestID}
	if s.sync {
		result.WaitForOutput = func(ctx context.Context) (Output, error) {
			return s.wait(ctx, requestID)
		}
	}
	return result, nil
}

// wait polls RunPod until the job reaches a terminal status.
func (s *RunPodStrategy) wait(ctx context.Context, requestID string) (Output, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		res, err := s.client.Poll(ctx, requestID)
		if err != nil {
			return Output{}, fmt.Errorf("runpod strategy poll: %w", err)
		}
		if res.Status.IsTerminal() {
			if res.Status == runpod.StatusCompleted {
				return Output{VideoURL: res.VideoURL, DurationSeconds: res.DurationSeconds}, nil
			}
			msg := res.Error
			if msg == "" {
				msg = fmt.Sprintf("runpod job %s", res.Status)
			}
			return Output{Error: msg}, nil
		}

		select {
		case <-ctx.Done():
			return Output{}, fmt.Errorf("runpod strategy wait: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// CancelRequest cancels the RunPod job.
func (s *RunPodStrategy) CancelRequest(ctx context.Context, requestID string) error {
	if err := s.client.Cancel(ctx, requestID); err != nil {
		return fmt.Errorf("runpod strategy cancel: %w", err)
	}
	return nil
}

var (
	_ Strategy = (*RunPodStrategy)(nil)
	_ Canceler = (*RunPodStrategy)(nil)
)
