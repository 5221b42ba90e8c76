// Package job provides the generation Batch and Job aggregates, the status
// state machine shared by both, and the repository port used to persist them.
//
// Status changes are guarded: a transition is only applied when the stored
// status is in the set returned by AllowedFrom. Repositories enforce the guard
// in a single conditional write so webhook deliveries, cancellations and the
// completion evaluator can race without resurrecting a terminal record.
package job

import (
	"errors"
	"slices"
	"time"

	"github.com/maauso/listingvideo-api/internal/job/id"
)

// Status is the lifecycle state of a Batch or a Job.
type Status string

const (
	// StatusPending indicates the record was created but not yet dispatched.
	StatusPending Status = "pending"
	// StatusProcessing indicates the provider accepted the work.
	StatusProcessing Status = "processing"
	// StatusCompleted indicates the work finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the work finished with an error.
	StatusFailed Status = "failed"
	// StatusCanceled indicates the work was canceled by the user.
	StatusCanceled Status = "canceled"
)

// DefaultCancelReason is stamped on records canceled without a reason.
const DefaultCancelReason = "Canceled by user request"

// IsTerminal returns true if no further transition is possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// IsValid returns true for known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// CancelableStatuses are the statuses a cancellation may move out of.
var CancelableStatuses = []Status{StatusPending, StatusProcessing}

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// jobTransitions defines which job state transitions are allowed.
// pending -> failed covers a job whose dispatch exhausted every provider.
var jobTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusFailed, StatusCanceled},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusCanceled},
	StatusCompleted:  {},
	StatusFailed:     {},
	StatusCanceled:   {},
}

// batchTransitions defines which batch state transitions are allowed.
// A batch may settle straight from pending when every webhook lands before
// the dispatcher marks it processing.
var batchTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCompleted, StatusFailed, StatusCanceled},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusCanceled},
	StatusCompleted:  {},
	StatusFailed:     {},
	StatusCanceled:   {},
}

func canTransition(table map[Status][]Status, from, to Status) bool {
	allowed, ok := table[from]
	if !ok {
		return false
	}
	return slices.Contains(allowed, to)
}

func allowedFrom(table map[Status][]Status, to Status) []Status {
	var from []Status
	for _, s := range []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCanceled} {
		if canTransition(table, s, to) {
			from = append(from, s)
		}
	}
	return from
}

// JobAllowedFrom returns the job statuses from which to is reachable.
func JobAllowedFrom(to Status) []Status {
	return allowedFrom(jobTransitions, to)
}

// BatchAllowedFrom returns the batch statuses from which to is reachable.
func BatchAllowedFrom(to Status) []Status {
	return allowedFrom(batchTransitions, to)
}

// Orientation of the rendered composition.
type Orientation string

const (
	// OrientationVertical is 9:16, the default for social posts.
	OrientationVertical Orientation = "vertical"
	// OrientationHorizontal is 16:9.
	OrientationHorizontal Orientation = "horizontal"
	// OrientationSquare is 1:1.
	OrientationSquare Orientation = "square"
)

// TextOverlay is caption text burned onto a clip by the render engine.
type TextOverlay struct {
	Text     string `json:"text"`
	Position string `json:"position,omitempty"`
}

// GenerationSettings holds per-job inputs that the pipeline reads back at
// composition time.
type GenerationSettings struct {
	SortOrder       int          `json:"sort_order"`
	Orientation     Orientation  `json:"orientation,omitempty"`
	TextOverlay     *TextOverlay `json:"text_overlay,omitempty"`
	DurationSeconds *float64     `json:"duration_seconds,omitempty"`
	ImageURL        string       `json:"image_url"`
	Prompt          string       `json:"prompt,omitempty"`
}

// Batch is one user-initiated generation request.
type Batch struct {
	ID           string
	ListingID    string
	UserID       string
	CallbackURL  string
	Status       Status
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewBatch creates a pending batch with a generated ID.
func NewBatch(listingID, userID, callbackURL string) *Batch {
	now := time.Now()
	return &Batch{
		ID:          id.NewBatchID(),
		ListingID:   listingID,
		UserID:      userID,
		CallbackURL: callbackURL,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// TransitionTo changes the batch status if the transition is allowed.
func (b *Batch) TransitionTo(to Status) error {
	if !canTransition(batchTransitions, b.Status, to) {
		return ErrInvalidTransition
	}
	b.Status = to
	b.UpdatedAt = time.Now()
	return nil
}

// Clone returns a copy of the batch.
func (b *Batch) Clone() *Batch {
	c := *b
	return &c
}

// Job is a single dispatch to one provider within a batch.
type Job struct {
	ID                string
	BatchID           string
	Provider          string
	Model             string
	ProviderRequestID string
	Status            Status
	VideoURL          string
	// DurationSeconds is the clip length reported by the provider.
	DurationSeconds *float64
	ChecksumSHA256  string
	Settings        GenerationSettings
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     time.Time
}

// NewJob creates a pending job for batchID with a generated ID.
func NewJob(batchID string, settings GenerationSettings) *Job {
	now := time.Now()
	return &Job{
		ID:        id.NewJobID(),
		BatchID:   batchID,
		Status:    StatusPending,
		Settings:  settings,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo changes the job status if the transition is allowed.
func (j *Job) TransitionTo(to Status) error {
	if !canTransition(jobTransitions, j.Status, to) {
		return ErrInvalidTransition
	}
	j.Status = to
	j.UpdatedAt = time.Now()
	if to.IsTerminal() {
		j.CompletedAt = j.UpdatedAt
	}
	return nil
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// Apply copies the non-nil fields of p onto the job.
func (j *Job) Apply(p Patch) {
	if p.Provider != nil {
		j.Provider = *p.Provider
	}
	if p.Model != nil {
		j.Model = *p.Model
	}
	if p.ProviderRequestID != nil {
		j.ProviderRequestID = *p.ProviderRequestID
	}
	if p.VideoURL != nil {
		j.VideoURL = *p.VideoURL
	}
	if p.DurationSeconds != nil {
		d := *p.DurationSeconds
		j.DurationSeconds = &d
	}
	if p.ChecksumSHA256 != nil {
		j.ChecksumSHA256 = *p.ChecksumSHA256
	}
	if p.ErrorMessage != nil {
		j.ErrorMessage = *p.ErrorMessage
	}
	j.UpdatedAt = time.Now()
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	c := *j
	if j.DurationSeconds != nil {
		d := *j.DurationSeconds
		c.DurationSeconds = &d
	}
	if j.Settings.DurationSeconds != nil {
		d := *j.Settings.DurationSeconds
		c.Settings.DurationSeconds = &d
	}
	if j.Settings.TextOverlay != nil {
		o := *j.Settings.TextOverlay
		c.Settings.TextOverlay = &o
	}
	return &c
}

// Patch lists job fields to overwrite alongside (or without) a transition.
// Nil fields are left untouched.
type Patch struct {
	Provider          *string
	Model             *string
	ProviderRequestID *string
	VideoURL          *string
	DurationSeconds   *float64
	ChecksumSHA256    *string
	ErrorMessage      *string
}

// RenderJob records that a batch's composition was handed to the render
// engine. At most one exists per batch.
type RenderJob struct {
	ID        string
	BatchID   string
	CreatedAt time.Time
}

// NewRenderJob creates a render job record for batchID.
func NewRenderJob(batchID string) *RenderJob {
	return &RenderJob{
		ID:        id.NewRenderJobID(),
		BatchID:   batchID,
		CreatedAt: time.Now(),
	}
}
