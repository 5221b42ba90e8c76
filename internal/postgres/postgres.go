// Package postgres implements job.Repository on PostgreSQL through pgx.
// Every status change is a single conditional UPDATE so concurrent webhook
// deliveries cannot overwrite a terminal state.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maauso/listingvideo-api/internal/job"
)

// Compile-time check that Repository implements job.Repository.
var _ job.Repository = (*Repository)(nil)

// DBTX is the subset of pgxpool.Pool the repository uses.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// NewPool opens a connection pool for databaseURL.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return pool, nil
}

// Schema creates the tables if they do not exist.
const Schema = `
CREATE TABLE IF NOT EXISTS video_batches (
	id            TEXT PRIMARY KEY,
	listing_id    TEXT NOT NULL,
	user_id       TEXT NOT NULL DEFAULT '',
	callback_url  TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS video_batches_listing_idx ON video_batches (listing_id);

CREATE TABLE IF NOT EXISTS video_jobs (
	id                  TEXT PRIMARY KEY,
	batch_id            TEXT NOT NULL REFERENCES video_batches (id) ON DELETE CASCADE,
	provider            TEXT NOT NULL DEFAULT '',
	model               TEXT NOT NULL DEFAULT '',
	provider_request_id TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL,
	video_url           TEXT NOT NULL DEFAULT '',
	duration_seconds    DOUBLE PRECISION,
	checksum_sha256     TEXT NOT NULL DEFAULT '',
	settings            JSONB NOT NULL DEFAULT '{}',
	error_message       TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at        TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS video_jobs_batch_idx ON video_jobs (batch_id);
CREATE INDEX IF NOT EXISTS video_jobs_request_idx ON video_jobs (provider_request_id) WHERE provider_request_id <> '';

CREATE TABLE IF NOT EXISTS render_jobs (
	id         TEXT PRIMARY KEY,
	batch_id   TEXT NOT NULL UNIQUE REFERENCES video_batches (id) ON DELETE CASCADE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Repository stores batches, jobs and render jobs in PostgreSQL.
type Repository struct {
	db DBTX
}

// New creates a Repository on db.
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// Migrate applies Schema.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// CreateBatch inserts a new batch row.
func (r *Repository) CreateBatch(ctx context.Context, b *job.Batch) error {
	_, err := r.db.Exec(ctx, `
INSERT INTO video_batches (id, listing_id, user_id, callback_url, status, error_message, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, b.ID, b.ListingID, b.UserID, b.CallbackURL, string(b.Status), b.ErrorMessage, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

const batchColumns = `id, listing_id, user_id, callback_url, status, error_message, created_at, updated_at`

// GetBatch returns the batch or job.ErrBatchNotFound.
func (r *Repository) GetBatch(ctx context.Context, id string) (*job.Batch, error) {
	row := r.db.QueryRow(ctx, `SELECT `+batchColumns+` FROM video_batches WHERE id = $1`, id)
	b, err := scanBatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, job.ErrBatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select batch: %w", err)
	}
	return b, nil
}

// TransitionBatch sets the batch status only if the current status allows it.
// It reports whether the row changed.
func (r *Repository) TransitionBatch(ctx context.Context, id string, to job.Status, errMsg string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
UPDATE video_batches
SET status = $2,
    error_message = CASE WHEN $3 <> '' THEN $3 ELSE error_message END,
    updated_at = now()
WHERE id = $1 AND status = ANY($4)
`, id, string(to), errMsg, statusStrings(job.BatchAllowedFrom(to)))
	if err != nil {
		return false, fmt.Errorf("transition batch: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, r.batchExists(ctx, id)
}

// CreateJob inserts a new job row.
func (r *Repository) CreateJob(ctx context.Context, j *job.Job) error {
	settings, err := json.Marshal(j.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = r.db.Exec(ctx, `
INSERT INTO video_jobs (id, batch_id, provider, model, provider_request_id, status, video_url,
                        duration_seconds, checksum_sha256, settings, error_message, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
`, j.ID, j.BatchID, j.Provider, j.Model, j.ProviderRequestID, string(j.Status), j.VideoURL,
		j.DurationSeconds, j.ChecksumSHA256, settings, j.ErrorMessage, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

const jobColumns = `id, batch_id, provider, model, provider_request_id, status, video_url,
duration_seconds, checksum_sha256, settings, error_message, created_at, updated_at, completed_at`

// GetJob returns the job or job.ErrJobNotFound.
func (r *Repository) GetJob(ctx context.Context, id string) (*job.Job, error) {
	return r.queryJob(ctx, `SELECT `+jobColumns+` FROM video_jobs WHERE id = $1`, id)
}

// FindJobByProviderRequestID looks a job up by the ID its provider returned.
func (r *Repository) FindJobByProviderRequestID(ctx context.Context, requestID string) (*job.Job, error) {
	if requestID == "" {
		return nil, job.ErrJobNotFound
	}
	return r.queryJob(ctx, `SELECT `+jobColumns+` FROM video_jobs WHERE provider_request_id = $1 LIMIT 1`, requestID)
}

func (r *Repository) queryJob(ctx context.Context, sql string, arg string) (*job.Job, error) {
	j, err := scanJob(r.db.QueryRow(ctx, sql, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, job.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select job: %w", err)
	}
	return j, nil
}

// FindJobsByBatchID returns the batch's jobs in creation order.
func (r *Repository) FindJobsByBatchID(ctx context.Context, batchID string) ([]*job.Job, error) {
	return r.queryJobs(ctx, `SELECT `+jobColumns+` FROM video_jobs WHERE batch_id = $1 ORDER BY created_at, id`, batchID)
}

// FindCancelableJobs returns pending and processing jobs of the listing or
// of the given batches.
func (r *Repository) FindCancelableJobs(ctx context.Context, listingID string, batchIDs []string) ([]*job.Job, error) {
	if batchIDs == nil {
		batchIDs = []string{}
	}
	return r.queryJobs(ctx, `
SELECT `+jobColumns+` FROM video_jobs
WHERE status = ANY($1)
  AND (batch_id = ANY($2)
       OR ($3 <> '' AND batch_id IN (SELECT id FROM video_batches WHERE listing_id = $3)))
ORDER BY created_at, id
`, statusStrings(job.CancelableStatuses), batchIDs, listingID)
}

func (r *Repository) queryJobs(ctx context.Context, sql string, args ...any) ([]*job.Job, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// TransitionJob sets the job status and applies patch in one guarded UPDATE.
// It reports whether the row changed.
func (r *Repository) TransitionJob(ctx context.Context, id string, to job.Status, patch job.Patch) (bool, error) {
	tag, err := r.db.Exec(ctx, `
UPDATE video_jobs
SET status = $2,
    provider = COALESCE($3, provider),
    model = COALESCE($4, model),
    provider_request_id = COALESCE($5, provider_request_id),
    video_url = COALESCE($6, video_url),
    duration_seconds = COALESCE($7, duration_seconds),
    checksum_sha256 = COALESCE($8, checksum_sha256),
    error_message = COALESCE($9, error_message),
    updated_at = now(),
    completed_at = CASE WHEN $10 THEN now() ELSE completed_at END
WHERE id = $1 AND status = ANY($11)
`, id, string(to), patch.Provider, patch.Model, patch.ProviderRequestID, patch.VideoURL,
		patch.DurationSeconds, patch.ChecksumSHA256, patch.ErrorMessage, to.IsTerminal(),
		statusStrings(job.JobAllowedFrom(to)))
	if err != nil {
		return false, fmt.Errorf("transition job: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, r.jobExists(ctx, id)
}

// UpdateJob applies patch without touching the status.
func (r *Repository) UpdateJob(ctx context.Context, id string, patch job.Patch) error {
	tag, err := r.db.Exec(ctx, `
UPDATE video_jobs
SET provider = COALESCE($2, provider),
    model = COALESCE($3, model),
    provider_request_id = COALESCE($4, provider_request_id),
    video_url = COALESCE($5, video_url),
    duration_seconds = COALESCE($6, duration_seconds),
    checksum_sha256 = COALESCE($7, checksum_sha256),
    error_message = COALESCE($8, error_message),
    updated_at = now()
WHERE id = $1
`, id, patch.Provider, patch.Model, patch.ProviderRequestID, patch.VideoURL,
		patch.DurationSeconds, patch.ChecksumSHA256, patch.ErrorMessage)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return job.ErrJobNotFound
	}
	return nil
}

// CancelBatchesByListing cancels the listing's non-terminal batches.
func (r *Repository) CancelBatchesByListing(ctx context.Context, listingID, reason string) (int, error) {
	return r.exec(ctx, "cancel batches", `
UPDATE video_batches
SET status = $1, error_message = $2, updated_at = now()
WHERE listing_id = $3 AND status = ANY($4)
`, string(job.StatusCanceled), reason, listingID, statusStrings(job.CancelableStatuses))
}

// CancelBatchesByIDs cancels the given batches that are not yet terminal.
func (r *Repository) CancelBatchesByIDs(ctx context.Context, ids []string, reason string) (int, error) {
	return r.exec(ctx, "cancel batches", `
UPDATE video_batches
SET status = $1, error_message = $2, updated_at = now()
WHERE id = ANY($3) AND status = ANY($4)
`, string(job.StatusCanceled), reason, ids, statusStrings(job.CancelableStatuses))
}

// CancelJobsByListing cancels pending and processing jobs of the listing.
func (r *Repository) CancelJobsByListing(ctx context.Context, listingID, reason string) (int, error) {
	return r.exec(ctx, "cancel jobs", `
UPDATE video_jobs
SET status = $1, error_message = $2, updated_at = now(), completed_at = now()
WHERE status = ANY($4)
  AND batch_id IN (SELECT id FROM video_batches WHERE listing_id = $3)
`, string(job.StatusCanceled), reason, listingID, statusStrings(job.CancelableStatuses))
}

// CancelJobsByBatchIDs cancels pending and processing jobs of the batches.
func (r *Repository) CancelJobsByBatchIDs(ctx context.Context, batchIDs []string, reason string) (int, error) {
	return r.exec(ctx, "cancel jobs", `
UPDATE video_jobs
SET status = $1, error_message = $2, updated_at = now(), completed_at = now()
WHERE batch_id = ANY($3) AND status = ANY($4)
`, string(job.StatusCanceled), reason, batchIDs, statusStrings(job.CancelableStatuses))
}

// CreateRenderJob claims the batch's single render job. It reports false
// when one already exists.
func (r *Repository) CreateRenderJob(ctx context.Context, rj *job.RenderJob) (bool, error) {
	n, err := r.exec(ctx, "insert render job", `
INSERT INTO render_jobs (id, batch_id, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (batch_id) DO NOTHING
`, rj.ID, rj.BatchID, rj.CreatedAt)
	return n == 1, err
}

func (r *Repository) exec(ctx context.Context, op, sql string, args ...any) (int, error) {
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *Repository) batchExists(ctx context.Context, id string) error {
	var one int
	err := r.db.QueryRow(ctx, `SELECT 1 FROM video_batches WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return job.ErrBatchNotFound
	}
	return err
}

func (r *Repository) jobExists(ctx context.Context, id string) error {
	var one int
	err := r.db.QueryRow(ctx, `SELECT 1 FROM video_jobs WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return job.ErrJobNotFound
	}
	return err
}

func scanBatch(row pgx.Row) (*job.Batch, error) {
	var (
		b      job.Batch
		status string
	)
	if err := row.Scan(&b.ID, &b.ListingID, &b.UserID, &b.CallbackURL, &status, &b.ErrorMessage, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.Status = job.Status(status)
	return &b, nil
}

func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j           job.Job
		status      string
		settings    []byte
		completedAt *time.Time
	)
	err := row.Scan(&j.ID, &j.BatchID, &j.Provider, &j.Model, &j.ProviderRequestID, &status, &j.VideoURL,
		&j.DurationSeconds, &j.ChecksumSHA256, &settings, &j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	j.Status = job.Status(status)
	if completedAt != nil {
		j.CompletedAt = *completedAt
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &j.Settings); err != nil {
			return nil, fmt.Errorf("decode settings: %w", err)
		}
	}
	return &j, nil
}

func statusStrings(statuses []job.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
