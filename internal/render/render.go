// Package render builds the composition request for a finished batch and
// hands it to the external render engine through a Queue.
package render

import (
	"context"

	"github.com/maauso/listingvideo-api/internal/job"
)

const (
	// DefaultClipDurationSeconds is used when neither the provider nor the
	// generation settings report a clip length.
	DefaultClipDurationSeconds = 5.0
	// DefaultTransitionSeconds is the cross-fade between consecutive clips.
	DefaultTransitionSeconds = 0.5
)

// Clip is one source video in the composition.
type Clip struct {
	Src             string           `json:"src"`
	DurationSeconds float64          `json:"duration_seconds"`
	TextOverlay     *job.TextOverlay `json:"text_overlay,omitempty"`
}

// JobData is the input of one render: the clips of a batch in order.
type JobData struct {
	VideoID                   string          `json:"video_id"`
	ListingID                 string          `json:"listing_id"`
	UserID                    string          `json:"user_id"`
	Orientation               job.Orientation `json:"orientation"`
	Clips                     []Clip          `json:"clips"`
	TransitionDurationSeconds float64         `json:"transition_duration_seconds"`
}

// Queue hands render jobs to the render engine.
type Queue interface {
	Submit(ctx context.Context, data JobData) error
}

// BuildOptions carries the caller-supplied parts of a composition.
type BuildOptions struct {
	// Overlays maps job ID to the caption shown on that clip.
	Overlays map[string]job.TextOverlay
	// TransitionSeconds overrides DefaultTransitionSeconds when positive.
	TransitionSeconds float64
}

// BuildJobData composes the render input for batch from its completed jobs,
// which must already be in display order.
//
// A clip's duration is the provider-reported length, else the requested
// length, else DefaultClipDurationSeconds. The first job's orientation applies
// to the whole composition and defaults to vertical.
func BuildJobData(videoID string, batch *job.Batch, jobs []*job.Job, opts BuildOptions) JobData {
	data := JobData{
		VideoID:                   videoID,
		ListingID:                 batch.ListingID,
		UserID:                    batch.UserID,
		Orientation:               job.OrientationVertical,
		Clips:                     make([]Clip, 0, len(jobs)),
		TransitionDurationSeconds: DefaultTransitionSeconds,
	}
	if opts.TransitionSeconds > 0 {
		data.TransitionDurationSeconds = opts.TransitionSeconds
	}
	if len(jobs) > 0 && jobs[0].Settings.Orientation != "" {
		data.Orientation = jobs[0].Settings.Orientation
	}

	for _, j := range jobs {
		clip := Clip{
			Src:             j.VideoURL,
			DurationSeconds: clipDuration(j),
		}
		if o, ok := opts.Overlays[j.ID]; ok {
			clip.TextOverlay = &o
		}
		data.Clips = append(data.Clips, clip)
	}
	return data
}

func clipDuration(j *job.Job) float64 {
	switch {
	case j.DurationSeconds != nil && *j.DurationSeconds > 0:
		return *j.DurationSeconds
	case j.Settings.DurationSeconds != nil && *j.Settings.DurationSeconds > 0:
		return *j.Settings.DurationSeconds
	default:
		return DefaultClipDurationSeconds
	}
}

// TotalDurationSeconds is the length of the rendered video, accounting for
// the overlap of each transition.
func (d JobData) TotalDurationSeconds() float64 {
	var total float64
	for _, c := range d.Clips {
		total += c.DurationSeconds
	}
	if n := len(d.Clips); n > 1 {
		total -= float64(n-1) * d.TransitionDurationSeconds
	}
	return total
}
