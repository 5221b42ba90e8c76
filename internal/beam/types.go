// Package beam provides an HTTP client for the Beam.cloud Task Queue API
// running an image-to-video worker.
package beam

// Status represents the status of a Beam task.
type Status string

// Beam task statuses aligned with the Beam API.
const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusComplete  Status = "COMPLETE" // Beam sometimes returns "COMPLETE" instead of "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusError     Status = "ERROR"
	StatusCanceled  Status = "CANCELED"
)

// IsTerminal returns true if the status is a terminal state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusComplete, StatusFailed, StatusError, StatusCanceled:
		return true
	default:
		return false
	}
}

// SubmitOptions contains the parameters of one image-to-video task.
type SubmitOptions struct {
	ImageURL        string
	Prompt          string
	Width           int
	Height          int
	DurationSeconds float64
	// CallbackURL is passed to the worker as an argument. The worker posts
	// the signed result document there; empty means the caller polls.
	CallbackURL string
}

// taskRequest represents the request body for Beam's task queue endpoint.
// Beam hands the body to the worker function as its arguments.
type taskRequest struct {
	ImageURL        string  `json:"image_url"`
	Prompt          string  `json:"prompt,omitempty"`
	Width           int     `json:"width,omitempty"`
	Height          int     `json:"height,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	CallbackURL     string  `json:"callback_url,omitempty"`
}

// taskResponse represents the response from Beam's task submission endpoint.
type taskResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// cancelRequest represents the body of Beam's task cancel endpoint.
type cancelRequest struct {
	TaskIDs []string `json:"task_ids"`
}

// statusResponse represents the response from Beam's task status endpoint.
type statusResponse struct {
	TaskID  string       `json:"task_id"`
	Status  string       `json:"status"`
	Outputs []taskOutput `json:"outputs,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// taskOutput represents a single output file from a Beam task.
type taskOutput struct {
	Name string `json:"name,omitempty"`
	URL  string `json:"url,omitempty"`
}

// PollResult contains the result of polling a task's status.
type PollResult struct {
	Status    Status
	OutputURL string // URL of the generated clip
	Error     string // Only set when the task failed
}
