package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/maauso/listingvideo-api/internal/generator"
	"github.com/maauso/listingvideo-api/internal/job"
	"github.com/maauso/listingvideo-api/internal/notify"
	"golang.org/x/sync/errgroup"
)

// MsgAllDispatchesFailed is stamped on a batch none of whose jobs reached a provider.
const MsgAllDispatchesFailed = "All provider dispatches failed"

// ErrDispatchFailed is returned when no job of a batch could be dispatched.
var ErrDispatchFailed = errors.New("pipeline: no job could be dispatched")

// ClipInput describes one photo to animate.
type ClipInput struct {
	ImageURL        string
	Prompt          string
	Provider        string
	Model           string
	DurationSeconds *float64
	TextOverlay     *job.TextOverlay
}

// CreateBatchInput is a generation request for one listing.
type CreateBatchInput struct {
	ListingID   string
	UserID      string
	CallbackURL string
	// Orientation is stamped on every job of the batch.
	Orientation job.Orientation
	Clips       []ClipInput
}

// CreateBatch persists a batch with one job per clip and dispatches every
// job concurrently. It returns ErrDispatchFailed, together with the failed
// batch, when no provider accepted any job.
func (s *Service) CreateBatch(ctx context.Context, in CreateBatchInput) (*BatchView, error) {
	if len(in.Clips) == 0 {
		return nil, ErrNoClips
	}

	b := job.NewBatch(in.ListingID, in.UserID, in.CallbackURL)
	if err := s.repo.CreateBatch(ctx, b); err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}

	jobs := make([]*job.Job, 0, len(in.Clips))
	for i, clip := range in.Clips {
		j := job.NewJob(b.ID, job.GenerationSettings{
			SortOrder:       i,
			Orientation:     in.Orientation,
			TextOverlay:     clip.TextOverlay,
			DurationSeconds: clip.DurationSeconds,
			ImageURL:        clip.ImageURL,
			Prompt:          clip.Prompt,
		})
		j.Provider = clip.Provider
		j.Model = clip.Model
		if err := s.repo.CreateJob(ctx, j); err != nil {
			return nil, fmt.Errorf("create job: %w", err)
		}
		jobs = append(jobs, j)
	}

	logger := s.logger.With(slog.String("batch_id", b.ID), slog.String("listing_id", b.ListingID))
	logger.Info("batch created", slog.Int("jobs", len(jobs)))

	dispatched, firstErr := s.dispatchAll(ctx, jobs)

	if dispatched == 0 {
		applied, err := s.repo.TransitionBatch(ctx, b.ID, job.StatusFailed, MsgAllDispatchesFailed)
		if err != nil {
			return nil, fmt.Errorf("fail batch: %w", err)
		}
		if applied {
			s.notify(ctx, b, notify.Event{Type: notify.EventBatchFailed, Status: job.StatusFailed, Error: MsgAllDispatchesFailed})
		}
		logger.Error("no job dispatched", slog.String("error", errString(firstErr)))
		view, _ := s.GetBatch(ctx, b.ID)
		return view, fmt.Errorf("%w: %w", ErrDispatchFailed, firstErr)
	}

	if _, err := s.repo.TransitionBatch(ctx, b.ID, job.StatusProcessing, ""); err != nil {
		return nil, fmt.Errorf("start batch: %w", err)
	}

	// Jobs that failed at dispatch are terminal now; settle the batch in
	// case every webhook already arrived while dispatch was in flight.
	if dispatched < len(jobs) {
		s.finalize(ctx, b.ID)
	}

	return s.GetBatch(ctx, b.ID)
}

// dispatchAll submits every job, at most maxConcurrent at a time. One job's
// failure does not stop the others.
func (s *Service) dispatchAll(ctx context.Context, jobs []*job.Job) (int, error) {
	var (
		dispatched atomic.Int32
		mu         sync.Mutex
		firstErr   error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent)
	for _, j := range jobs {
		g.Go(func() error {
			if err := s.dispatchJob(gctx, j); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return nil
			}
			dispatched.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return int(dispatched.Load()), firstErr
}

// dispatchJob submits one job and records the provider's request ID.
func (s *Service) dispatchJob(ctx context.Context, j *job.Job) error {
	logger := s.logger.With(slog.String("job_id", j.ID), slog.String("batch_id", j.BatchID))

	res, err := s.dispatcher.Dispatch(ctx, generator.Request{
		JobID:           j.ID,
		BatchID:         j.BatchID,
		Provider:        j.Provider,
		Model:           j.Model,
		ImageURL:        j.Settings.ImageURL,
		Prompt:          j.Settings.Prompt,
		DurationSeconds: derefFloat(j.Settings.DurationSeconds),
		Orientation:     j.Settings.Orientation,
		WebhookURL:      s.jobWebhookURL(j.ID),
	})
	if err != nil {
		if _, terr := s.repo.TransitionJob(ctx, j.ID, job.StatusFailed, job.Patch{ErrorMessage: strPtr(err.Error())}); terr != nil {
			logger.Error("failed to record dispatch failure", slog.String("error", terr.Error()))
		}
		return err
	}

	patch := job.Patch{
		Provider:          strPtr(res.Provider),
		Model:             strPtr(res.Model),
		ProviderRequestID: strPtr(res.RequestID),
	}
	applied, err := s.repo.TransitionJob(ctx, j.ID, job.StatusProcessing, patch)
	if err != nil {
		return fmt.Errorf("record dispatch: %w", err)
	}
	if !applied {
		// A webhook or cancellation got there first; keep the provider details.
		if err := s.repo.UpdateJob(ctx, j.ID, patch); err != nil {
			logger.Error("failed to record provider details", slog.String("error", err.Error()))
		}
	}

	if res.WaitForOutput != nil {
		s.awaitOutput(j.ID, res)
	}
	return nil
}

// awaitOutput waits for a synchronous provider in the background and feeds
// its outcome through the same path as a webhook.
func (s *Service) awaitOutput(jobID string, res generator.Result) {
	s.waits.Add(1)
	go func() {
		defer s.waits.Done()
		ctx, cancel := context.WithTimeout(s.baseCtx, s.waitTimeout)
		defer cancel()

		out, err := res.WaitForOutput(ctx)
		if err != nil {
			out = generator.Output{Error: err.Error()}
		}
		if err := s.HandleProviderResult(ctx, jobID, res.RequestID, out); err != nil {
			s.logger.Error("failed to apply synchronous provider result",
				slog.String("job_id", jobID),
				slog.String("provider", res.Provider),
				slog.String("request_id", res.RequestID),
				slog.String("error", err.Error()),
			)
		}
	}()
}

func derefFloat(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
