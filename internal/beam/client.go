package beam

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/maauso/listingvideo-api/internal/apiclient"
)

// Static errors for Beam client operations.
var (
	// ErrQueueURLRequired is returned when the queue URL is not provided.
	ErrQueueURLRequired = errors.New("beam: queue URL is required")
	// ErrTokenNotSet is returned when the BEAM_TOKEN is not provided.
	ErrTokenNotSet = errors.New("beam: token is required")
	// ErrImageURLRequired is returned when a task has no source image.
	ErrImageURLRequired = errors.New("beam: image URL is required")
	// ErrTaskIDRequired is returned when the task ID is not provided.
	ErrTaskIDRequired = errors.New("beam: task ID is required")
	// ErrNoTaskIDReturned is returned when the submit response contains no task ID.
	ErrNoTaskIDReturned = errors.New("beam: submit failed: no task ID returned")
	// ErrSubmitFailed is returned when the submit operation fails.
	ErrSubmitFailed = errors.New("beam: submit failed")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = apiclient.ErrServerError
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = apiclient.ErrRateLimited
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = apiclient.ErrRequestFailed
)

// Client defines the interface for interacting with the Beam Task Queue API.
type Client interface {
	// Submit enqueues an image-to-video task and returns the task ID.
	Submit(ctx context.Context, opts SubmitOptions) (taskID string, err error)

	// Poll checks the status of a task and returns the result.
	Poll(ctx context.Context, taskID string) (PollResult, error)

	// Cancel stops a pending or running task.
	Cancel(ctx context.Context, taskID string) error
}

// HTTPClient is the HTTP implementation of the Beam Client interface.
type HTTPClient struct {
	token       string
	queueURL    string
	apiBaseURL  string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration

	api *apiclient.Caller
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithToken sets the API token for authentication.
func WithToken(token string) ClientOption {
	return func(hc *HTTPClient) {
		hc.token = token
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithAPIBaseURL overrides the base URL used for task status lookups.
func WithAPIBaseURL(url string) ClientOption {
	return func(hc *HTTPClient) {
		hc.apiBaseURL = strings.TrimRight(url, "/")
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) ClientOption {
	return func(hc *HTTPClient) {
		hc.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseBackoff = d
	}
}

// NewClient creates a new Beam HTTP client for the task queue at queueURL.
// The token falls back to BEAM_TOKEN when WithToken is not given.
func NewClient(queueURL string, opts ...ClientOption) (*HTTPClient, error) {
	if queueURL == "" {
		return nil, ErrQueueURLRequired
	}

	c := &HTTPClient{
		queueURL:    queueURL,
		apiBaseURL:  "https://api.beam.cloud/v2",
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		maxRetries:  3,
		baseBackoff: 1 * time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.token == "" {
		c.token = os.Getenv("BEAM_TOKEN")
	}
	if c.token == "" {
		return nil, ErrTokenNotSet
	}

	c.api = &apiclient.Caller{
		HTTPClient:  c.httpClient,
		Token:       c.token,
		MaxRetries:  c.maxRetries,
		BaseBackoff: c.baseBackoff,
	}
	return c, nil
}

// Submit enqueues an image-to-video task and returns the task ID.
func (c *HTTPClient) Submit(ctx context.Context, opts SubmitOptions) (string, error) {
	if opts.ImageURL == "" {
		return "", ErrImageURLRequired
	}

	req := taskRequest{
		ImageURL:        opts.ImageURL,
		Prompt:          opts.Prompt,
		Width:           opts.Width,
		Height:          opts.Height,
		DurationSeconds: opts.DurationSeconds,
		CallbackURL:     opts.CallbackURL,
	}

	var resp taskResponse
	if err := c.call(ctx, http.MethodPost, c.queueURL, req, &resp); err != nil {
		return "", err
	}

	if resp.TaskID == "" {
		if resp.Error != "" {
			return "", fmt.Errorf("%w: %s", ErrSubmitFailed, resp.Error)
		}
		return "", ErrNoTaskIDReturned
	}

	return resp.TaskID, nil
}

// Poll checks the status of a task and returns the result.
func (c *HTTPClient) Poll(ctx context.Context, taskID string) (PollResult, error) {
	if taskID == "" {
		return PollResult{}, ErrTaskIDRequired
	}

	var resp statusResponse
	if err := c.call(ctx, http.MethodGet, fmt.Sprintf("%s/task/%s/", c.apiBaseURL, taskID), nil, &resp); err != nil {
		return PollResult{}, err
	}

	result := PollResult{Status: normalizeStatus(resp.Status)}
	switch result.Status {
	case StatusCompleted:
		if len(resp.Outputs) > 0 && resp.Outputs[0].URL != "" {
			result.OutputURL = resp.Outputs[0].URL
		} else {
			result.Status = StatusFailed
			result.Error = "no output URL available"
		}
	case StatusFailed, StatusCanceled:
		result.Error = resp.Error
	}

	return result, nil
}

// normalizeStatus folds Beam's status spellings onto the ones callers switch on.
func normalizeStatus(s string) Status {
	switch Status(s) {
	case StatusCompleted, StatusComplete:
		return StatusCompleted
	case StatusFailed, StatusError:
		return StatusFailed
	default:
		return Status(s)
	}
}

// Cancel stops a pending or running task.
func (c *HTTPClient) Cancel(ctx context.Context, taskID string) error {
	if taskID == "" {
		return ErrTaskIDRequired
	}
	req := cancelRequest{TaskIDs: []string{taskID}}
	return c.call(ctx, http.MethodDelete, c.apiBaseURL+"/task/cancel/", req, nil)
}

func (c *HTTPClient) call(ctx context.Context, method, url string, in, out any) error {
	if err := c.api.Call(ctx, method, url, in, out); err != nil {
		return fmt.Errorf("beam: %w", err)
	}
	return nil
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
