package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/listingvideo-api/internal/cache"
	"github.com/maauso/listingvideo-api/internal/generator"
	"github.com/maauso/listingvideo-api/internal/job"
	"github.com/maauso/listingvideo-api/internal/pipeline"
	"github.com/maauso/listingvideo-api/internal/webhook"
)

// maxWebhookBody bounds inbound provider callbacks.
const maxWebhookBody = 1 << 20

// DefaultHealthTTL is how long a health result is served from cache.
const DefaultHealthTTL = 10 * time.Second

// Ingestor accepts verified provider callbacks.
type Ingestor interface {
	Ingest(rc webhook.RequestContext) int
}

// Pinger checks a dependency's reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service   *pipeline.Service
	ingestor  Ingestor
	metrics   *generator.Metrics
	db        Pinger
	health    *cache.TTLCache[string, HealthResponse]
	validator *validator.Validate
	logger    *slog.Logger
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithMetrics exposes provider stats on GET /metrics/providers.
func WithMetrics(m *generator.Metrics) HandlerOption {
	return func(h *Handlers) {
		h.metrics = m
	}
}

// WithHealthCheck makes GET /health ping p.
func WithHealthCheck(p Pinger) HandlerOption {
	return func(h *Handlers) {
		h.db = p
	}
}

// WithHealthTTL sets how long a health result is reused.
func WithHealthTTL(d time.Duration) HandlerOption {
	return func(h *Handlers) {
		h.health = cache.New[string, HealthResponse](cache.WithDefaultTTL(d), cache.WithMaxSize(1))
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *pipeline.Service, ingestor Ingestor, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:   service,
		ingestor:  ingestor,
		validator: validator.New(),
		logger:    logger,
		health:    cache.New[string, HealthResponse](cache.WithDefaultTTL(DefaultHealthTTL), cache.WithMaxSize(1)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if resp, ok := h.health.Get("health"); ok {
		writeHealth(w, resp)
		return
	}

	resp := HealthResponse{Status: "ok", Database: "ok", CheckedAt: time.Now().UTC()}
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.logger.Warn("health check: database unreachable", slog.String("error", err.Error()))
			resp.Status = "degraded"
			resp.Database = "unreachable"
		}
	}
	h.health.Set("health", resp)
	writeHealth(w, resp)
}

func writeHealth(w http.ResponseWriter, resp HealthResponse) {
	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// CreateBatch handles POST /batches requests.
func (h *Handlers) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req CreateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	// Validate request
	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	input := pipeline.CreateBatchInput{
		ListingID:   req.ListingID,
		UserID:      req.UserID,
		CallbackURL: req.CallbackURL,
		Orientation: job.Orientation(req.Orientation),
		Clips:       make([]pipeline.ClipInput, 0, len(req.Clips)),
	}
	for _, c := range req.Clips {
		clip := pipeline.ClipInput{
			ImageURL:        c.ImageURL,
			Prompt:          c.Prompt,
			Provider:        c.Provider,
			Model:           c.Model,
			DurationSeconds: c.DurationSeconds,
		}
		if c.TextOverlay != nil {
			clip.TextOverlay = &job.TextOverlay{Text: c.TextOverlay.Text, Position: c.TextOverlay.Position}
		}
		input.Clips = append(input.Clips, clip)
	}

	// Dispatch outlives the request: a client disconnect must not cancel
	// provider submissions already under way.
	view, err := h.service.CreateBatch(context.WithoutCancel(r.Context()), input)
	if err != nil {
		if errors.Is(err, pipeline.ErrDispatchFailed) && view != nil {
			h.logger.Error("batch dispatch failed",
				slog.String("batch_id", view.Batch.ID),
				slog.String("error", err.Error()),
			)
			writeJSON(w, http.StatusBadGateway, struct {
				ErrorResponse
				Batch BatchResponse `json:"batch"`
			}{
				ErrorResponse: ErrorResponse{Error: err.Error(), Code: "DISPATCH_FAILED"},
				Batch:         toBatchResponse(view.Batch, view.Jobs),
			})
			return
		}
		if errors.Is(err, pipeline.ErrNoClips) {
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
			return
		}
		h.logger.Error("failed to create batch",
			slog.String("listing_id", req.ListingID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create batch", "BATCH_CREATION_FAILED")
		return
	}

	h.logger.Info("batch accepted",
		slog.String("batch_id", view.Batch.ID),
		slog.String("listing_id", view.Batch.ListingID),
		slog.Int("clips", len(view.Jobs)),
	)

	writeJSON(w, http.StatusAccepted, toBatchResponse(view.Batch, view.Jobs))
}

// GetBatch handles GET /batches/{id} requests.
func (h *Handlers) GetBatch(w http.ResponseWriter, r *http.Request) {
	batchID := r.PathValue("id")
	if batchID == "" {
		writeError(w, http.StatusBadRequest, "batch ID is required", "MISSING_BATCH_ID")
		return
	}

	view, err := h.service.GetBatch(r.Context(), batchID)
	if err != nil {
		if errors.Is(err, job.ErrBatchNotFound) {
			writeError(w, http.StatusNotFound, "batch not found", "BATCH_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get batch",
			slog.String("batch_id", batchID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get batch", "BATCH_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, toBatchResponse(view.Batch, view.Jobs))
}

// CancelBatches handles POST /batches/cancel requests.
func (h *Handlers) CancelBatches(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	res, err := h.service.Cancel(r.Context(), pipeline.CancelInput{
		ListingID: req.ListingID,
		BatchIDs:  req.BatchIDs,
		Reason:    req.Reason,
	})
	if err != nil {
		if errors.Is(err, pipeline.ErrCancelScopeRequired) {
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
			return
		}
		h.logger.Error("failed to cancel",
			slog.String("listing_id", req.ListingID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to cancel", "CANCEL_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, CancelResponse{Batches: res.Batches, Jobs: res.Jobs})
}

// ProviderWebhook handles POST /webhooks/provider requests. Providers always
// get 200: rejected deliveries are logged, never retried.
func (h *Handlers) ProviderWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Warn("failed to read webhook body",
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusOK, WebhookResponse{Success: true})
		return
	}

	h.ingestor.Ingest(webhook.RequestContext{
		JobID:   r.URL.Query().Get("job_id"),
		RawBody: body,
		Headers: webhook.HeadersFrom(r.Header),
	})

	writeJSON(w, http.StatusOK, WebhookResponse{Success: true})
}

// ProviderMetrics handles GET /metrics/providers requests.
func (h *Handlers) ProviderMetrics(w http.ResponseWriter, r *http.Request) {
	stats := h.metrics.Snapshot()
	if stats == nil {
		stats = []generator.ProviderStats{}
	}
	writeJSON(w, http.StatusOK, ProviderMetricsResponse{Providers: stats})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
