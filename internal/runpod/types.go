// Package runpod provides an HTTP client for image-to-video generation on a
// RunPod serverless endpoint.
package runpod

// Status represents the status of a RunPod job.
type Status string

// RunPod job statuses aligned with the RunPod API.
const (
	StatusInQueue    Status = "IN_QUEUE"
	StatusRunning    Status = "RUNNING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
	StatusTimedOut   Status = "TIMED_OUT"
)

// IsTerminal returns true if the status is a terminal state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		return true
	default:
		return false
	}
}

// SubmitOptions contains the parameters of one image-to-video job.
type SubmitOptions struct {
	ImageURL        string  // Source photo URL
	Prompt          string  // Motion prompt (default: "slow cinematic camera move")
	Model           string  // Endpoint-side model name, optional
	Width           int     // Video width in pixels
	Height          int     // Video height in pixels
	DurationSeconds float64 // Requested clip length, 0 = endpoint default
	// CallbackURL is handed to the worker, which posts the signed result
	// document there when the job finishes. Empty means the caller polls.
	CallbackURL string
}

// DefaultPrompt is used when SubmitOptions.Prompt is empty.
const DefaultPrompt = "slow cinematic camera move"

// runRequest represents the request body for RunPod's /run endpoint.
// RunPod's own "webhook" field is never set: it delivers an unsigned status
// document that the ingestion endpoint rejects.
type runRequest struct {
	Input runInput `json:"input"`
}

// runInput represents the input field in a RunPod run request.
type runInput struct {
	ImageURL        string  `json:"image_url"`
	Prompt          string  `json:"prompt"`
	Model           string  `json:"model,omitempty"`
	Width           int     `json:"width,omitempty"`
	Height          int     `json:"height,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	CallbackURL     string  `json:"callback_url,omitempty"`
}

// runResponse represents the response from RunPod's /run endpoint.
type runResponse struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// statusResponse represents the response from RunPod's /status endpoint.
type statusResponse struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Output statusOutput `json:"output,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// statusOutput represents the output field in a status response.
type statusOutput struct {
	VideoURL        string   `json:"video_url,omitempty"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
}

// PollResult contains the result of polling a job's status.
type PollResult struct {
	Status          Status
	VideoURL        string   // Only set when Status is StatusCompleted
	DurationSeconds *float64 // Clip length reported by the worker, if any
	Error           string   // Only set when Status is StatusFailed
}
