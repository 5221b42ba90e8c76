package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maauso/listingvideo-api/internal/download"
	"github.com/maauso/listingvideo-api/internal/generator"
	"github.com/maauso/listingvideo-api/internal/job"
	"github.com/maauso/listingvideo-api/internal/notify"
	"github.com/maauso/listingvideo-api/internal/storage"
)

// HandleProviderResult applies a provider outcome to its job, correlating by
// the provider request ID first and the job ID hint second. Unknown jobs and
// repeated deliveries are no-ops.
func (s *Service) HandleProviderResult(ctx context.Context, jobID, requestID string, out generator.Output) error {
	logger := s.logger.With(slog.String("request_id", requestID), slog.String("job_id", jobID))

	j, err := s.findJob(ctx, jobID, requestID)
	if errors.Is(err, job.ErrJobNotFound) {
		logger.Warn("provider result for unknown job dropped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("find job: %w", err)
	}
	logger = logger.With(slog.String("job_id", j.ID), slog.String("batch_id", j.BatchID))

	if j.IsTerminal() {
		logger.Debug("provider result for terminal job ignored", slog.String("status", string(j.Status)))
		return nil
	}

	b, err := s.repo.GetBatch(ctx, j.BatchID)
	if err != nil {
		return fmt.Errorf("get batch: %w", err)
	}

	// The callback can beat the dispatcher's own pending -> processing write.
	if j.Status == job.StatusPending {
		patch := job.Patch{}
		if requestID != "" {
			patch.ProviderRequestID = strPtr(requestID)
		}
		if _, err := s.repo.TransitionJob(ctx, j.ID, job.StatusProcessing, patch); err != nil {
			return fmt.Errorf("start job: %w", err)
		}
	}

	if out.Failed() {
		msg := out.Error
		if msg == "" {
			msg = "provider returned no video"
		}
		applied, err := s.repo.TransitionJob(ctx, j.ID, job.StatusFailed, job.Patch{ErrorMessage: strPtr(msg)})
		if err != nil {
			return fmt.Errorf("fail job: %w", err)
		}
		if applied {
			logger.Warn("job failed", slog.String("error", msg))
			s.notify(ctx, b, notify.Event{Type: notify.EventJobFailed, JobID: j.ID, Status: job.StatusFailed, Error: msg})
		}
		s.finalize(ctx, b.ID)
		return nil
	}

	patch := job.Patch{
		VideoURL:        strPtr(out.VideoURL),
		DurationSeconds: out.DurationSeconds,
	}
	if s.store != nil && s.downloader != nil {
		s.archive(ctx, b, j, &patch)
	}

	applied, err := s.repo.TransitionJob(ctx, j.ID, job.StatusCompleted, patch)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if applied {
		logger.Info("job completed")
		s.notify(ctx, b, notify.Event{Type: notify.EventJobCompleted, JobID: j.ID, Status: job.StatusCompleted, VideoURL: *patch.VideoURL})
	}
	s.finalize(ctx, b.ID)
	return nil
}

func (s *Service) findJob(ctx context.Context, jobID, requestID string) (*job.Job, error) {
	if requestID != "" {
		j, err := s.repo.FindJobByProviderRequestID(ctx, requestID)
		if err == nil {
			return j, nil
		}
		if !errors.Is(err, job.ErrJobNotFound) {
			return nil, err
		}
	}
	if jobID != "" {
		return s.repo.GetJob(ctx, jobID)
	}
	return nil, job.ErrJobNotFound
}

// archive copies the clip into storage and points the patch at the copy.
// Failures keep the provider URL.
func (s *Service) archive(ctx context.Context, b *job.Batch, j *job.Job, patch *job.Patch) {
	logger := s.logger.With(slog.String("job_id", j.ID), slog.String("batch_id", b.ID))

	res, err := s.downloader.Download(ctx, *patch.VideoURL, download.DefaultOptions())
	if err != nil {
		logger.Error("archive download failed, keeping provider URL", slog.String("error", err.Error()))
		return
	}

	contentType := res.ContentType
	if contentType == "" {
		contentType = "video/mp4"
	}
	archived, err := s.store.Store(ctx, storage.ClipKey(b.ListingID, b.ID, j.ID), bytes.NewReader(res.Data), contentType)
	if err != nil {
		logger.Error("archive upload failed, keeping provider URL", slog.String("error", err.Error()))
		return
	}

	patch.VideoURL = strPtr(archived)
	if res.ChecksumSHA256 != "" {
		patch.ChecksumSHA256 = strPtr(res.ChecksumSHA256)
	}
	logger.Info("clip archived", slog.String("url", archived), slog.Int("bytes", len(res.Data)))
}
