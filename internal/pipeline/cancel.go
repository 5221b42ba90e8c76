package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/listingvideo-api/internal/generator"
	"github.com/maauso/listingvideo-api/internal/job"
)

// ProviderCanceler stops jobs already submitted to a provider.
type ProviderCanceler interface {
	CancelRequest(ctx context.Context, provider, requestID string) error
}

var _ ProviderCanceler = (*generator.Dispatcher)(nil)

const providerCancelTimeout = 30 * time.Second

// ErrCancelScopeRequired is returned when neither a listing nor batch IDs are given.
var ErrCancelScopeRequired = errors.New("pipeline: listing ID or batch IDs required")

// CancelInput selects what to cancel.
type CancelInput struct {
	ListingID string
	BatchIDs  []string
	Reason    string
}

// CancelResult counts the records moved to canceled.
type CancelResult struct {
	Batches int `json:"batches"`
	Jobs    int `json:"jobs"`
}

// Cancel moves pending and processing batches and jobs to canceled.
// Explicit batch IDs take precedence over the listing for batches; jobs of
// the listing are canceled whenever a listing is given, since a listing can
// span several batches. Terminal records are never touched. When the
// dispatcher can cancel at the provider, the submitted requests of the jobs
// canceled here are stopped in the background.
func (s *Service) Cancel(ctx context.Context, in CancelInput) (CancelResult, error) {
	if in.ListingID == "" && len(in.BatchIDs) == 0 {
		return CancelResult{}, ErrCancelScopeRequired
	}
	reason := in.Reason
	if reason == "" {
		reason = job.DefaultCancelReason
	}

	canceler, _ := s.dispatcher.(ProviderCanceler)
	var submitted []*job.Job
	if canceler != nil {
		jobs, err := s.repo.FindCancelableJobs(ctx, in.ListingID, in.BatchIDs)
		if err != nil {
			return CancelResult{}, fmt.Errorf("find cancelable jobs: %w", err)
		}
		for _, j := range jobs {
			if j.ProviderRequestID != "" && j.Provider != "" {
				submitted = append(submitted, j)
			}
		}
	}

	var res CancelResult
	if len(in.BatchIDs) > 0 {
		n, err := s.repo.CancelBatchesByIDs(ctx, in.BatchIDs, reason)
		if err != nil {
			return res, fmt.Errorf("cancel batches: %w", err)
		}
		res.Batches = n

		n, err = s.repo.CancelJobsByBatchIDs(ctx, in.BatchIDs, reason)
		if err != nil {
			return res, fmt.Errorf("cancel jobs: %w", err)
		}
		res.Jobs = n
	} else {
		n, err := s.repo.CancelBatchesByListing(ctx, in.ListingID, reason)
		if err != nil {
			return res, fmt.Errorf("cancel batches: %w", err)
		}
		res.Batches = n
	}

	if in.ListingID != "" {
		n, err := s.repo.CancelJobsByListing(ctx, in.ListingID, reason)
		if err != nil {
			return res, fmt.Errorf("cancel listing jobs: %w", err)
		}
		res.Jobs += n
	}

	s.logger.Info("generation canceled",
		slog.String("listing_id", in.ListingID),
		slog.Int("batch_ids", len(in.BatchIDs)),
		slog.Int("batches", res.Batches),
		slog.Int("jobs", res.Jobs),
	)

	if len(submitted) > 0 {
		s.cancelAtProviders(canceler, submitted)
	}
	return res, nil
}

// cancelAtProviders stops the provider requests of jobs that ended up
// canceled. A job that reached another terminal status first is skipped.
func (s *Service) cancelAtProviders(canceler ProviderCanceler, jobs []*job.Job) {
	s.waits.Add(1)
	go func() {
		defer s.waits.Done()
		ctx, cancel := context.WithTimeout(s.baseCtx, providerCancelTimeout)
		defer cancel()

		for _, j := range jobs {
			current, err := s.repo.GetJob(ctx, j.ID)
			if err != nil || current.Status != job.StatusCanceled {
				continue
			}
			err = canceler.CancelRequest(ctx, j.Provider, j.ProviderRequestID)
			switch {
			case err == nil:
				s.logger.Debug("provider request canceled",
					slog.String("job_id", j.ID),
					slog.String("provider", j.Provider),
					slog.String("request_id", j.ProviderRequestID),
				)
			case errors.Is(err, generator.ErrCancelUnsupported):
			default:
				s.logger.Warn("provider cancel failed",
					slog.String("job_id", j.ID),
					slog.String("provider", j.Provider),
					slog.String("request_id", j.ProviderRequestID),
					slog.String("error", err.Error()),
				)
			}
		}
	}()
}
