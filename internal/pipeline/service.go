// Package pipeline orchestrates video generation for a listing: it creates a
// batch of jobs, dispatches them to providers, applies provider outcomes,
// evaluates batch completion, hands finished batches to the render engine,
// and cascades cancellations.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/maauso/listingvideo-api/internal/download"
	"github.com/maauso/listingvideo-api/internal/generator"
	"github.com/maauso/listingvideo-api/internal/job"
	"github.com/maauso/listingvideo-api/internal/notify"
	"github.com/maauso/listingvideo-api/internal/render"
	"github.com/maauso/listingvideo-api/internal/storage"
)

// Dispatcher submits a generation request to a provider.
type Dispatcher interface {
	Dispatch(ctx context.Context, req generator.Request) (generator.Result, error)
}

var _ Dispatcher = (*generator.Dispatcher)(nil)

// Downloader fetches a remote asset.
type Downloader interface {
	Download(ctx context.Context, url string, opts download.Options) (*download.Result, error)
}

// ErrNoClips is returned when a batch is requested without clips.
var ErrNoClips = errors.New("pipeline: at least one clip is required")

// Service is the orchestration entry point used by the HTTP layer and the
// webhook ingestor.
type Service struct {
	repo       job.Repository
	dispatcher Dispatcher
	queue      render.Queue
	notifier   notify.Sender
	store      storage.Storage
	downloader Downloader
	logger     *slog.Logger

	webhookURL        string
	maxConcurrent     int
	transitionSeconds float64
	waitTimeout       time.Duration

	baseCtx context.Context
	waits   sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets the outbound event sender.
func WithNotifier(n notify.Sender) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithArchive enables re-uploading completed clips to store.
func WithArchive(store storage.Storage, d Downloader) Option {
	return func(s *Service) {
		s.store = store
		s.downloader = d
	}
}

// WithWebhookURL sets the inbound webhook endpoint handed to providers.
func WithWebhookURL(u string) Option {
	return func(s *Service) {
		s.webhookURL = u
	}
}

// WithMaxConcurrentDispatch bounds concurrent provider submissions per batch.
func WithMaxConcurrentDispatch(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxConcurrent = n
		}
	}
}

// WithTransitionSeconds sets the transition between clips of a render.
func WithTransitionSeconds(sec float64) Option {
	return func(s *Service) {
		s.transitionSeconds = sec
	}
}

// WithWaitTimeout bounds how long a synchronous provider is waited on.
func WithWaitTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.waitTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBaseContext sets the context background work derives from; its values
// are kept and its cancellation ignored.
func WithBaseContext(ctx context.Context) Option {
	return func(s *Service) {
		s.baseCtx = context.WithoutCancel(ctx)
	}
}

// New creates a Service.
func New(repo job.Repository, dispatcher Dispatcher, queue render.Queue, opts ...Option) *Service {
	s := &Service{
		repo:              repo,
		dispatcher:        dispatcher,
		queue:             queue,
		logger:            slog.Default(),
		maxConcurrent:     4,
		transitionSeconds: render.DefaultTransitionSeconds,
		waitTimeout:       15 * time.Minute,
		baseCtx:           context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Wait blocks until background work, such as waits on synchronous providers
// and provider-side cancels, finishes or ctx expires.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.waits.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BatchView is a batch with its jobs in display order.
type BatchView struct {
	Batch *job.Batch
	Jobs  []*job.Job
}

// GetBatch returns the batch and its jobs.
func (s *Service) GetBatch(ctx context.Context, id string) (*BatchView, error) {
	b, err := s.repo.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	jobs, err := s.repo.FindJobsByBatchID(ctx, id)
	if err != nil {
		return nil, err
	}
	sortBySortOrder(jobs)
	return &BatchView{Batch: b, Jobs: jobs}, nil
}

// jobWebhookURL is the callback URL for one job, carrying its ID as a
// correlation hint for providers that omit the request ID.
func (s *Service) jobWebhookURL(jobID string) string {
	if s.webhookURL == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(s.webhookURL, "?") {
		sep = "&"
	}
	return s.webhookURL + sep + "job_id=" + url.QueryEscape(jobID)
}

// notify sends ev and logs delivery failures.
func (s *Service) notify(ctx context.Context, b *job.Batch, ev notify.Event) {
	if s.notifier == nil || b.CallbackURL == "" {
		return
	}
	ev.BatchID = b.ID
	ev.ListingID = b.ListingID
	if err := s.notifier.Send(ctx, b.CallbackURL, ev); err != nil {
		s.logger.Error("outbound webhook failed",
			slog.String("event", string(ev.Type)),
			slog.String("batch_id", b.ID),
			slog.String("job_id", ev.JobID),
			slog.String("error", err.Error()),
		)
	}
}

func strPtr(v string) *string { return &v }
