// Package id provides unique identifier generation for batches, jobs and
// render jobs.
package id

import "github.com/google/uuid"

const (
	batchPrefix  = "batch_"
	jobPrefix    = "job_"
	renderPrefix = "render_"
)

// NewBatchID returns a new batch identifier, e.g. batch_5f0c...
func NewBatchID() string {
	return batchPrefix + uuid.NewString()
}

// NewJobID returns a new job identifier, e.g. job_5f0c...
func NewJobID() string {
	return jobPrefix + uuid.NewString()
}

// NewRenderJobID returns a new render job identifier.
func NewRenderJobID() string {
	return renderPrefix + uuid.NewString()
}
