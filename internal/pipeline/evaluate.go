package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/maauso/listingvideo-api/internal/job"
	"github.com/maauso/listingvideo-api/internal/notify"
	"github.com/maauso/listingvideo-api/internal/render"
)

// MsgAllJobsFailed is stamped on a batch whose every job failed.
const MsgAllJobsFailed = "All video jobs failed"

// Evaluation is the completion state of a batch.
type Evaluation struct {
	// AllCompleted is true when every job is terminal and at least one produced a clip.
	AllCompleted bool
	// CompletedJobs are the jobs with a clip, by sort order.
	CompletedJobs []*job.Job
	FailedJobs    int
}

// Evaluate inspects the jobs of a batch. When every job failed it marks the
// batch failed; it never marks a batch completed.
func (s *Service) Evaluate(ctx context.Context, batchID string) (Evaluation, error) {
	jobs, err := s.repo.FindJobsByBatchID(ctx, batchID)
	if err != nil {
		return Evaluation{}, fmt.Errorf("find jobs: %w", err)
	}
	if len(jobs) == 0 {
		return Evaluation{}, nil
	}

	var (
		completed   []*job.Job
		failed      int
		allTerminal = true
	)
	for _, j := range jobs {
		switch {
		case j.Status == job.StatusCompleted && j.VideoURL != "":
			completed = append(completed, j)
		case j.Status == job.StatusFailed:
			failed++
		}
		if !j.IsTerminal() {
			allTerminal = false
		}
	}
	sortBySortOrder(completed)

	if failed == len(jobs) {
		applied, err := s.repo.TransitionBatch(ctx, batchID, job.StatusFailed, MsgAllJobsFailed)
		if err != nil {
			return Evaluation{}, fmt.Errorf("fail batch: %w", err)
		}
		if applied {
			s.logger.Warn("batch failed", slog.String("batch_id", batchID), slog.String("reason", MsgAllJobsFailed))
			if b, err := s.repo.GetBatch(ctx, batchID); err == nil {
				s.notify(ctx, b, notify.Event{Type: notify.EventBatchFailed, Status: job.StatusFailed, Error: MsgAllJobsFailed})
			}
		}
		return Evaluation{FailedJobs: failed}, nil
	}

	return Evaluation{
		AllCompleted:  allTerminal && len(completed) > 0,
		CompletedJobs: completed,
		FailedJobs:    failed,
	}, nil
}

// finalize evaluates the batch and composes it once it is complete. Errors
// are logged; there is no caller left to report them to.
func (s *Service) finalize(ctx context.Context, batchID string) {
	eval, err := s.Evaluate(ctx, batchID)
	if err != nil {
		s.logger.Error("batch evaluation failed", slog.String("batch_id", batchID), slog.String("error", err.Error()))
		return
	}
	if !eval.AllCompleted {
		return
	}
	if err := s.compose(ctx, batchID, eval.CompletedJobs); err != nil {
		s.logger.Error("batch composition failed", slog.String("batch_id", batchID), slog.String("error", err.Error()))
	}
}

// compose claims the batch's render job and submits it. Only the evaluation
// that creates the render job record submits, so a batch renders once.
func (s *Service) compose(ctx context.Context, batchID string, completed []*job.Job) error {
	b, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("get batch: %w", err)
	}
	if b.Status.IsTerminal() {
		return nil
	}

	rj := job.NewRenderJob(batchID)
	created, err := s.repo.CreateRenderJob(ctx, rj)
	if err != nil {
		return fmt.Errorf("create render job: %w", err)
	}
	if !created {
		return nil
	}

	data := render.BuildJobData(rj.ID, b, completed, render.BuildOptions{
		Overlays:          overlays(completed),
		TransitionSeconds: s.transitionSeconds,
	})
	logger := s.logger.With(slog.String("batch_id", batchID), slog.String("render_job_id", rj.ID))

	if err := s.queue.Submit(ctx, data); err != nil {
		msg := "Render submission failed: " + err.Error()
		applied, terr := s.repo.TransitionBatch(ctx, batchID, job.StatusFailed, msg)
		if terr != nil {
			return fmt.Errorf("fail batch: %w", terr)
		}
		if applied {
			s.notify(ctx, b, notify.Event{Type: notify.EventBatchFailed, Status: job.StatusFailed, RenderJobID: rj.ID, Error: msg})
		}
		return fmt.Errorf("submit render: %w", err)
	}

	applied, err := s.repo.TransitionBatch(ctx, batchID, job.StatusCompleted, "")
	if err != nil {
		return fmt.Errorf("complete batch: %w", err)
	}
	if !applied {
		logger.Warn("render submitted but batch already settled")
		return nil
	}

	logger.Info("batch completed", slog.Int("clips", len(data.Clips)))
	s.notify(ctx, b, notify.Event{Type: notify.EventBatchCompleted, Status: job.StatusCompleted, RenderJobID: rj.ID})
	return nil
}

// overlays collects the captions of jobs keyed by job ID.
func overlays(jobs []*job.Job) map[string]job.TextOverlay {
	m := make(map[string]job.TextOverlay)
	for _, j := range jobs {
		if o := j.Settings.TextOverlay; o != nil && o.Text != "" {
			m[j.ID] = *o
		}
	}
	return m
}

func sortBySortOrder(jobs []*job.Job) {
	sort.SliceStable(jobs, func(a, b int) bool {
		return jobs[a].Settings.SortOrder < jobs[b].Settings.SortOrder
	})
}
