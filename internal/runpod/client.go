package runpod

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/maauso/listingvideo-api/internal/apiclient"
)

// Static errors for RunPod client operations.
var (
	// ErrEndpointIDRequired is returned when the endpoint ID is not provided.
	ErrEndpointIDRequired = errors.New("runpod: endpoint ID is required")
	// ErrAPIKeyNotSet is returned when no API key is configured.
	ErrAPIKeyNotSet = errors.New("runpod: RUNPOD_API_KEY is not set")
	// ErrImageURLRequired is returned when a job has no source image.
	ErrImageURLRequired = errors.New("runpod: image URL is required")
	// ErrJobIDRequired is returned when the job ID is not provided.
	ErrJobIDRequired = errors.New("runpod: job ID is required")
	// ErrNoJobIDReturned is returned when the submit response contains no job ID.
	ErrNoJobIDReturned = errors.New("runpod: submit failed: no job ID returned")
	// ErrSubmitFailed is returned when the submit operation fails.
	ErrSubmitFailed = errors.New("runpod: submit failed")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = apiclient.ErrServerError
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = apiclient.ErrRateLimited
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = apiclient.ErrRequestFailed
)

// Client defines the interface for interacting with the RunPod API.
type Client interface {
	// Submit starts an image-to-video job and returns the RunPod job ID.
	Submit(ctx context.Context, opts SubmitOptions) (jobID string, err error)

	// Poll checks the status of a job and returns the result.
	Poll(ctx context.Context, jobID string) (PollResult, error)

	// Cancel stops a queued or running job. Canceling a finished job is not an error.
	Cancel(ctx context.Context, jobID string) error
}

// HTTPClient is the HTTP implementation of the RunPod Client interface.
type HTTPClient struct {
	apiKey      string
	endpointID  string
	baseURL     string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration

	api *apiclient.Caller
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithAPIKey sets the API key for authentication.
func WithAPIKey(key string) ClientOption {
	return func(hc *HTTPClient) {
		hc.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithBaseURL sets a custom base URL for the RunPod API.
func WithBaseURL(url string) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseURL = url
	}
}

// WithMaxRetries sets the maximum number of retries for transient HTTP failures.
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

// NewClient creates a new RunPod HTTP client.
// The API key can be set via WithAPIKey; otherwise RUNPOD_API_KEY is read.
func NewClient(endpointID string, opts ...ClientOption) (*HTTPClient, error) {
	if endpointID == "" {
		return nil, ErrEndpointIDRequired
	}

	c := &HTTPClient{
		endpointID:  endpointID,
		baseURL:     "https://api.runpod.ai/v2",
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		maxRetries:  2,
		baseBackoff: 500 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.apiKey == "" {
		c.apiKey = os.Getenv("RUNPOD_API_KEY")
	}
	if c.apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	c.api = &apiclient.Caller{
		HTTPClient:  c.httpClient,
		Token:       c.apiKey,
		MaxRetries:  c.maxRetries,
		BaseBackoff: c.baseBackoff,
	}
	return c, nil
}

// Submit starts an image-to-video job and returns the RunPod job ID.
// When opts.CallbackURL is set the worker reports the outcome there.
func (c *HTTPClient) Submit(ctx context.Context, opts SubmitOptions) (string, error) {
	if opts.ImageURL == "" {
		return "", ErrImageURLRequired
	}
	if opts.Prompt == "" {
		opts.Prompt = DefaultPrompt
	}

	reqBody := runRequest{
		Input: runInput{
			ImageURL:        opts.ImageURL,
			Prompt:          opts.Prompt,
			Model:           opts.Model,
			Width:           opts.Width,
			Height:          opts.Height,
			DurationSeconds: opts.DurationSeconds,
			CallbackURL:     opts.CallbackURL,
		},
	}

	var resp runResponse
	if err := c.call(ctx, http.MethodPost, c.endpointURL("run"), reqBody, &resp); err != nil {
		return "", err
	}

	if resp.ID == "" {
		if resp.Error != "" {
			return "", fmt.Errorf("%w: %s", ErrSubmitFailed, resp.Error)
		}
		return "", ErrNoJobIDReturned
	}

	return resp.ID, nil
}

// Poll checks the status of a job and returns the result.
func (c *HTTPClient) Poll(ctx context.Context, jobID string) (PollResult, error) {
	if jobID == "" {
		return PollResult{}, ErrJobIDRequired
	}

	var resp statusResponse
	if err := c.call(ctx, http.MethodGet, c.endpointURL("status", jobID), nil, &resp); err != nil {
		return PollResult{}, err
	}

	result := PollResult{Status: Status(resp.Status)}
	switch result.Status {
	case StatusCompleted:
		result.VideoURL = resp.Output.VideoURL
		result.DurationSeconds = resp.Output.DurationSeconds
	case StatusFailed, StatusCancelled, StatusTimedOut:
		result.Error = resp.Error
	}

	return result, nil
}

// Cancel stops a queued or running job.
func (c *HTTPClient) Cancel(ctx context.Context, jobID string) error {
	if jobID == "" {
		return ErrJobIDRequired
	}

	var resp runResponse
	if err := c.call(ctx, http.MethodPost, c.endpointURL("cancel", jobID), nil, &resp); err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("runpod: cancel %s: %s", jobID, resp.Error)
	}
	return nil
}

func (c *HTTPClient) endpointURL(op string, id ...string) string {
	u := fmt.Sprintf("%s/%s/%s", c.baseURL, c.endpointID, op)
	for _, part := range id {
		u += "/" + part
	}
	return u
}

func (c *HTTPClient) call(ctx context.Context, method, url string, in, out any) error {
	if err := c.api.Call(ctx, method, url, in, out); err != nil {
		return fmt.Errorf("runpod: %w", err)
	}
	return nil
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
