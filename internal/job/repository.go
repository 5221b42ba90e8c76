package job

import (
	"context"
	"errors"
)

var (
	// ErrJobNotFound is returned when a job cannot be found.
	ErrJobNotFound = errors.New("job not found")
	// ErrBatchNotFound is returned when a batch cannot be found.
	ErrBatchNotFound = errors.New("batch not found")
)

// Repository defines the interface for batch, job and render-job persistence.
// It acts as a port in the hexagonal architecture pattern.
//
// Every Transition* method is a single conditional write: the new status is
// stored only if the current status is in the allowed-from set for the target
// (see JobAllowedFrom / BatchAllowedFrom). The returned bool reports whether
// the write was applied; a refused transition is not an error.
type Repository interface {
	// CreateBatch persists a new batch.
	CreateBatch(ctx context.Context, b *Batch) error

	// GetBatch retrieves a batch by ID.
	// Returns ErrBatchNotFound if the batch does not exist.
	GetBatch(ctx context.Context, id string) (*Batch, error)

	// TransitionBatch moves a batch to status to, stamping errMsg when non-empty.
	TransitionBatch(ctx context.Context, id string, to Status, errMsg string) (bool, error)

	// CreateJob persists a new job.
	CreateJob(ctx context.Context, j *Job) error

	// GetJob retrieves a job by ID.
	// Returns ErrJobNotFound if the job does not exist.
	GetJob(ctx context.Context, id string) (*Job, error)

	// FindJobsByBatchID returns all jobs of a batch, oldest first.
	FindJobsByBatchID(ctx context.Context, batchID string) ([]*Job, error)

	// FindJobByProviderRequestID returns the job correlated with a provider
	// request ID. Returns ErrJobNotFound when none matches.
	FindJobByProviderRequestID(ctx context.Context, requestID string) (*Job, error)

	// TransitionJob moves a job to status to and applies patch in the same write.
	TransitionJob(ctx context.Context, id string, to Status, patch Patch) (bool, error)

	// UpdateJob applies patch without touching the status.
	UpdateJob(ctx context.Context, id string, patch Patch) error

	// CancelBatchesByListing cancels every cancelable batch of a listing.
	CancelBatchesByListing(ctx context.Context, listingID, reason string) (int, error)

	// CancelBatchesByIDs cancels every cancelable batch in ids.
	CancelBatchesByIDs(ctx context.Context, ids []string, reason string) (int, error)

	// CancelJobsByListing cancels every cancelable job whose batch belongs to the listing.
	CancelJobsByListing(ctx context.Context, listingID, reason string) (int, error)

	// CancelJobsByBatchIDs cancels every cancelable job of the given batches.
	CancelJobsByBatchIDs(ctx context.Context, batchIDs []string, reason string) (int, error)

	// FindCancelableJobs returns pending and processing jobs that belong to
	// one of batchIDs or to a batch of listingID. Empty scopes match nothing.
	FindCancelableJobs(ctx context.Context, listingID string, batchIDs []string) ([]*Job, error)

	// CreateRenderJob inserts rj unless a render job already exists for its
	// batch. Returns true when this call created it.
	CreateRenderJob(ctx context.Context, rj *RenderJob) (bool, error)

	// Ping checks that the backing store is reachable.
	Ping(ctx context.Context) error
}
