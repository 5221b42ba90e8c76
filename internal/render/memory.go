package render

import (
	"context"
	"log/slog"
	"sync"
)

// MemoryQueue records render jobs in memory. It backs local development,
// where no render engine is attached, and tests.
type MemoryQueue struct {
	mu     sync.Mutex
	jobs   []JobData
	err    error
	logger *slog.Logger
}

// NewMemoryQueue creates an empty queue. logger may be nil.
func NewMemoryQueue(logger *slog.Logger) *MemoryQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryQueue{logger: logger}
}

// FailWith makes every following Submit return err. Pass nil to recover.
func (q *MemoryQueue) FailWith(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.err = err
}

// Submit stores data.
func (q *MemoryQueue) Submit(_ context.Context, data JobData) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, data)
	q.logger.Info("render job queued",
		slog.String("video_id", data.VideoID),
		slog.String("listing_id", data.ListingID),
		slog.Int("clips", len(data.Clips)),
	)
	return nil
}

// Submitted returns a copy of every stored job in submission order.
func (q *MemoryQueue) Submitted() []JobData {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]JobData, len(q.jobs))
	copy(out, q.jobs)
	return out
}

// Compile-time check that MemoryQueue implements Queue.
var _ Queue = (*MemoryQueue)(nil)
