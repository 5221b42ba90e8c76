// Package generator provides the provider dispatch facade: an ordered chain of
// video-generation strategies tried in priority order, each with a bounded
// retry budget, plus the RunPod and Beam strategies and per-provider metrics.
package generator

import (
	"context"
	"slices"

	"github.com/maauso/listingvideo-api/internal/job"
)

// Request is one image-to-video generation to hand to a provider.
type Request struct {
	JobID           string
	BatchID         string
	Provider        string // Preferred provider; empty lets any strategy take it
	Model           string // Preferred model; empty uses the strategy default
	ImageURL        string
	Prompt          string
	DurationSeconds float64
	Orientation     job.Orientation
	// WebhookURL is passed to the provider worker, which posts the signed
	// result document there.
	WebhookURL string
}

// Output is the final outcome of a provider job.
type Output struct {
	VideoURL        string
	DurationSeconds *float64
	Error           string // Set when the provider reported a failure
}

// Failed reports whether the provider reported an error or returned no clip.
func (o Output) Failed() bool {
	return o.Error != "" || o.VideoURL == ""
}

// Result is returned by a strategy once the provider accepted the job.
type Result struct {
	Provider  string
	Model     string
	RequestID string
	// WaitForOutput is set by providers that produce output synchronously
	// instead of calling the webhook. It blocks until the job is terminal.
	WaitForOutput func(ctx context.Context) (Output, error)
}

// Strategy is one video-generation provider.
type Strategy interface {
	// Name is the provider identifier stored on jobs and used for routing.
	Name() string
	// CanHandle reports whether the strategy is eligible for req.
	CanHandle(req Request) bool
	// Dispatch submits req to the provider.
	Dispatch(ctx context.Context, req Request) (Result, error)
}

// Canceler is implemented by strategies whose provider can stop a submitted job.
type Canceler interface {
	CancelRequest(ctx context.Context, requestID string) error
}

// canHandle is the shared eligibility rule: the requested provider must be
// empty or match, and the requested model must be empty or supported.
func canHandle(name string, models []string, req Request) bool {
	if req.ImageURL == "" {
		return false
	}
	if req.Provider != "" && req.Provider != name {
		return false
	}
	if req.Model == "" || len(models) == 0 {
		return true
	}
	return slices.Contains(models, req.Model)
}

// resolveModel picks the requested model or the strategy default.
func resolveModel(models []string, req Request) string {
	if req.Model != "" {
		return req.Model
	}
	if len(models) > 0 {
		return models[0]
	}
	return ""
}

// Dimensions returns the output size in pixels for an orientation.
// Unknown or empty orientations are treated as vertical.
func Dimensions(o job.Orientation) (width, height int) {
	switch o {
	case job.OrientationHorizontal:
		return 1280, 720
	case job.OrientationSquare:
		return 1024, 1024
	default:
		return 720, 1280
	}
}
