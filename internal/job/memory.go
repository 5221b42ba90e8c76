package job

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"
)

// Compile-time check that MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository is an in-memory implementation of Repository.
// A single mutex makes each guarded transition atomic, mirroring the
// conditional UPDATE used by the Postgres repository.
// Suitable for development and testing; swap for persistent storage in production.
type MemoryRepository struct {
	mu         sync.RWMutex
	batches    map[string]*Batch
	jobs       map[string]*Job
	renderJobs map[string]*RenderJob // keyed by batch ID
}

// NewMemoryRepository creates a new in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		batches:    make(map[string]*Batch),
		jobs:       make(map[string]*Job),
		renderJobs: make(map[string]*RenderJob),
	}
}

// CreateBatch stores a clone of b.
func (r *MemoryRepository) CreateBatch(_ context.Context, b *Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches[b.ID] = b.Clone()
	return nil
}

// GetBatch returns a clone of the stored batch.
func (r *MemoryRepository) GetBatch(_ context.Context, id string) (*Batch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.batches[id]
	if !ok {
		return nil, ErrBatchNotFound
	}
	return b.Clone(), nil
}

// TransitionBatch applies the transition if the current status allows it.
func (r *MemoryRepository) TransitionBatch(_ context.Context, id string, to Status, errMsg string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return false, ErrBatchNotFound
	}
	if err := b.TransitionTo(to); err != nil {
		return false, nil
	}
	if errMsg != "" {
		b.ErrorMessage = errMsg
	}
	return true, nil
}

// CreateJob stores a clone of j.
func (r *MemoryRepository) CreateJob(_ context.Context, j *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[j.ID] = j.Clone()
	return nil
}

// GetJob returns a clone of the stored job.
func (r *MemoryRepository) GetJob(_ context.Context, id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return j.Clone(), nil
}

// FindJobsByBatchID returns clones of the batch's jobs ordered by creation time.
func (r *MemoryRepository) FindJobsByBatchID(_ context.Context, batchID string) ([]*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Job, 0)
	for _, j := range r.jobs {
		if j.BatchID == batchID {
			result = append(result, j.Clone())
		}
	}
	sort.SliceStable(result, func(a, b int) bool {
		if !result[a].CreatedAt.Equal(result[b].CreatedAt) {
			return result[a].CreatedAt.Before(result[b].CreatedAt)
		}
		return result[a].Settings.SortOrder < result[b].Settings.SortOrder
	})
	return result, nil
}

// FindJobByProviderRequestID scans for the job carrying requestID.
func (r *MemoryRepository) FindJobByProviderRequestID(_ context.Context, requestID string) (*Job, error) {
	if requestID == "" {
		return nil, ErrJobNotFound
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, j := range r.jobs {
		if j.ProviderRequestID == requestID {
			return j.Clone(), nil
		}
	}
	return nil, ErrJobNotFound
}

// TransitionJob applies the transition and patch if the current status allows it.
func (r *MemoryRepository) TransitionJob(_ context.Context, id string, to Status, patch Patch) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return false, ErrJobNotFound
	}
	if err := j.TransitionTo(to); err != nil {
		return false, nil
	}
	j.Apply(patch)
	return true, nil
}

// UpdateJob applies patch without changing status.
func (r *MemoryRepository) UpdateJob(_ context.Context, id string, patch Patch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	j.Apply(patch)
	return nil
}

// CancelBatchesByListing cancels the listing's cancelable batches.
func (r *MemoryRepository) CancelBatchesByListing(_ context.Context, listingID, reason string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelBatchesLocked(func(b *Batch) bool { return b.ListingID == listingID }, reason), nil
}

// CancelBatchesByIDs cancels the cancelable batches in ids.
func (r *MemoryRepository) CancelBatchesByIDs(_ context.Context, ids []string, reason string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelBatchesLocked(func(b *Batch) bool { return slices.Contains(ids, b.ID) }, reason), nil
}

// CancelJobsByListing cancels cancelable jobs whose batch belongs to listingID.
func (r *MemoryRepository) CancelJobsByListing(_ context.Context, listingID, reason string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelJobsLocked(func(j *Job) bool {
		b, ok := r.batches[j.BatchID]
		return ok && b.ListingID == listingID
	}, reason), nil
}

// CancelJobsByBatchIDs cancels cancelable jobs of the given batches.
func (r *MemoryRepository) CancelJobsByBatchIDs(_ context.Context, batchIDs []string, reason string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelJobsLocked(func(j *Job) bool { return slices.Contains(batchIDs, j.BatchID) }, reason), nil
}

// FindCancelableJobs returns clones of the pending and processing jobs in scope.
func (r *MemoryRepository) FindCancelableJobs(_ context.Context, listingID string, batchIDs []string) ([]*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Job, 0)
	for _, j := range r.jobs {
		if !slices.Contains(CancelableStatuses, j.Status) {
			continue
		}
		inScope := slices.Contains(batchIDs, j.BatchID)
		if !inScope && listingID != "" {
			b, ok := r.batches[j.BatchID]
			inScope = ok && b.ListingID == listingID
		}
		if inScope {
			result = append(result, j.Clone())
		}
	}
	return result, nil
}

func (r *MemoryRepository) cancelBatchesLocked(match func(*Batch) bool, reason string) int {
	n := 0
	for _, b := range r.batches {
		if !match(b) || !slices.Contains(CancelableStatuses, b.Status) {
			continue
		}
		if b.TransitionTo(StatusCanceled) == nil {
			b.ErrorMessage = reason
			n++
		}
	}
	return n
}

func (r *MemoryRepository) cancelJobsLocked(match func(*Job) bool, reason string) int {
	n := 0
	for _, j := range r.jobs {
		if !match(j) || !slices.Contains(CancelableStatuses, j.Status) {
			continue
		}
		if j.TransitionTo(StatusCanceled) == nil {
			j.ErrorMessage = reason
			n++
		}
	}
	return n
}

// CreateRenderJob stores rj unless its batch already has one.
func (r *MemoryRepository) CreateRenderJob(_ context.Context, rj *RenderJob) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.renderJobs[rj.BatchID]; exists {
		return false, nil
	}
	c := *rj
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	r.renderJobs[rj.BatchID] = &c
	return true, nil
}

// RenderJobForBatch returns the render job recorded for batchID, if any.
func (r *MemoryRepository) RenderJobForBatch(batchID string) (*RenderJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rj, ok := r.renderJobs[batchID]
	if !ok {
		return nil, false
	}
	c := *rj
	return &c, true
}

// Ping always succeeds.
func (r *MemoryRepository) Ping(_ context.Context) error {
	return nil
}
