// Package server provides the HTTP server for the listing video API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/maauso/listingvideo-api/internal/generator"
	"github.com/maauso/listingvideo-api/internal/job"
)

// TextOverlayRequest is caption text for one clip.
type TextOverlayRequest struct {
	Text     string `json:"text" validate:"required,max=200"`
	Position string `json:"position,omitempty" validate:"omitempty,oneof=top center bottom"`
}

// ClipRequest is one photo to animate.
type ClipRequest struct {
	// ImageURL is the publicly reachable listing photo.
	ImageURL string `json:"image_url" validate:"required,url"`
	// Prompt describes the camera move; the provider default applies when empty.
	Prompt string `json:"prompt,omitempty" validate:"max=1000"`
	// Provider pins the clip to one provider.
	Provider string `json:"provider,omitempty" validate:"omitempty,oneof=runpod beam"`
	// Model selects a provider model.
	Model string `json:"model,omitempty"`
	// DurationSeconds is the requested clip length.
	DurationSeconds *float64 `json:"duration_seconds,omitempty" validate:"omitempty,gt=0,lte=30"`
	TextOverlay *TextOverlayRequest `json:"text_overlay,omitempty"`
}

// CreateBatchRequest is the HTTP request body for creating a generation batch.
type CreateBatchRequest struct {
	ListingID   string        `json:"listing_id" validate:"required"`
	UserID      string        `json:"user_id" validate:"required"`
	CallbackURL string        `json:"callback_url,omitempty" validate:"omitempty,url"`
	// Orientation applies to every clip; one render cannot mix orientations.
	Orientation string        `json:"orientation,omitempty" validate:"omitempty,oneof=vertical horizontal square"`
	Clips       []ClipRequest `json:"clips" validate:"required,min=1,max=30,dive"`
}

// CancelRequest is the HTTP request body for cancelling generation.
type CancelRequest struct {
	ListingID string   `json:"listing_id,omitempty" validate:"required_without=BatchIDs"`
	BatchIDs  []string `json:"batch_ids,omitempty" validate:"omitempty,max=100,dive,required"`
	Reason    string   `json:"reason,omitempty" validate:"max=500"`
}

// CancelResponse reports how many records were canceled.
type CancelResponse struct {
	Batches int `json:"batches"`
	Jobs    int `json:"jobs"`
}

// JobResponse is one job of a batch.
type JobResponse struct {
	ID                string   `json:"id"`
	Status            string   `json:"status"`
	SortOrder         int      `json:"sort_order"`
	Provider          string   `json:"provider,omitempty"`
	Model             string   `json:"model,omitempty"`
	ProviderRequestID string   `json:"provider_request_id,omitempty"`
	ImageURL          string   `json:"image_url"`
	VideoURL          string   `json:"video_url,omitempty"`
	DurationSeconds   *float64 `json:"duration_seconds,omitempty"`
	ChecksumSHA256    string   `json:"checksum_sha256,omitempty"`
	Error             string   `json:"error,omitempty"`
}

// BatchResponse is the HTTP representation of a batch and its jobs.
type BatchResponse struct {
	ID        string        `json:"id"`
	ListingID string        `json:"listing_id"`
	UserID    string        `json:"user_id"`
	Status    string        `json:"status"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Jobs      []JobResponse `json:"jobs"`
}

// WebhookResponse is the fixed acknowledgement sent to providers.
type WebhookResponse struct {
	Success bool `json:"success"`
}

// ProviderMetricsResponse lists recent dispatch stats per provider.
type ProviderMetricsResponse struct {
	Providers []generator.ProviderStats `json:"providers"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is "ok" or "degraded".
	Status string `json:"status"`
	// Database is the repository reachability.
	Database string `json:"database"`
	// CheckedAt is when the checks last ran.
	CheckedAt time.Time `json:"checked_at"`
}

func toJobResponse(j *job.Job) JobResponse {
	return JobResponse{
		ID:                j.ID,
		Status:            string(j.Status),
		SortOrder:         j.Settings.SortOrder,
		Provider:          j.Provider,
		Model:             j.Model,
		ProviderRequestID: j.ProviderRequestID,
		ImageURL:          j.Settings.ImageURL,
		VideoURL:          j.VideoURL,
		DurationSeconds:   j.DurationSeconds,
		ChecksumSHA256:    j.ChecksumSHA256,
		Error:             j.ErrorMessage,
	}
}

func toBatchResponse(b *job.Batch, jobs []*job.Job) BatchResponse {
	resp := BatchResponse{
		ID:        b.ID,
		ListingID: b.ListingID,
		UserID:    b.UserID,
		Status:    string(b.Status),
		Error:     b.ErrorMessage,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
		Jobs:      make([]JobResponse, 0, len(jobs)),
	}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, toJobResponse(j))
	}
	return resp
}
