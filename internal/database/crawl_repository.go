package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/apperrors"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/domain"
)

const crawlSelectColumns = `id, site_id, status,
	total_pages, succeeded_pages, failed_pages,
	upload_total_bytes, uploaded_bytes, upload_current_file,
	output_path, output_size_bytes, error_message,
	created_at, started_at, completed_at,
	current_attempt, max_attempts`

// CrawlRepository persists Crawl rows and drives their state-machine
// transitions (spec §3 "Crawl", §4.5).
type CrawlRepository struct {
	db *sqlx.DB
}

// NewCrawlRepository builds a CrawlRepository.
func NewCrawlRepository(db *sqlx.DB) *CrawlRepository {
	return &CrawlRepository{db: db}
}

// Create inserts a new Crawl in the pending state.
func (r *CrawlRepository) Create(ctx context.Context, crawl *domain.Crawl) error {
	query := `INSERT INTO crawls (id, site_id, status, max_attempts, current_attempt)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, query, crawl.ID, crawl.SiteID, crawl.Status, crawl.MaxAttempts, crawl.CurrentAttempt)
	if err != nil {
		return fmt.Errorf("create crawl %s: %w", crawl.ID, err)
	}
	return nil
}

// GetByID loads a single Crawl, returning apperrors.ErrCrawlNotFound when
// absent (or deleted out from under an in-flight job, per spec §4.5's
// "shouldAbort ... or if the row was deleted").
func (r *CrawlRepository) GetByID(ctx context.Context, id string) (*domain.Crawl, error) {
	var crawl domain.Crawl
	query := `SELECT ` + crawlSelectColumns + ` FROM crawls WHERE id = $1`

	if err := r.db.GetContext(ctx, &crawl, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrCrawlNotFound
		}
		return nil, fmt.Errorf("get crawl %s: %w", id, err)
	}
	return &crawl, nil
}

// GetStatus is a narrow read used by the cancellation predicate (spec §4.5
// "shouldAbort"); it avoids loading the full row every poll interval.
func (r *CrawlRepository) GetStatus(ctx context.Context, id string) (domain.CrawlStatus, bool, error) {
	var status domain.CrawlStatus
	err := r.db.GetContext(ctx, &status, `SELECT status FROM crawls WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get crawl status %s: %w", id, err)
	}
	return status, true, nil
}

// TransitionRunning moves a Crawl to running, setting started_at only if it
// isn't already set (spec §4.5 step 2 "preserving any existing value for
// retries").
func (r *CrawlRepository) TransitionRunning(ctx context.Context, id string) error {
	query := `UPDATE crawls SET
		status = $1,
		started_at = COALESCE(started_at, NOW()),
		error_message = NULL
		WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, domain.CrawlRunning, id)
	return execRequireRows(result, err, apperrors.ErrCrawlNotFound)
}

// UpdateProgress persists the running page counters (spec §4.5 step 5
// on_progress, throttled by the caller).
func (r *CrawlRepository) UpdateProgress(ctx context.Context, id string, p domain.Progress) error {
	query := `UPDATE crawls SET total_pages = $1, succeeded_pages = $2, failed_pages = $3 WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, p.Total, p.Succeeded, p.Failed, id)
	return execRequireRows(result, err, apperrors.ErrCrawlNotFound)
}

// UpdateUploadProgress persists byte-level upload counters (spec §4.5 step
// 7, throttled to ≥1/second by the caller).
func (r *CrawlRepository) UpdateUploadProgress(ctx context.Context, id string, p domain.UploadProgress) error {
	query := `UPDATE crawls SET
		upload_total_bytes = $1, uploaded_bytes = $2, upload_current_file = $3
		WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, p.TotalBytes, p.UploadedBytes, p.CurrentFile, id)
	return execRequireRows(result, err, apperrors.ErrCrawlNotFound)
}

// TransitionUploading moves a Crawl to uploading.
func (r *CrawlRepository) TransitionUploading(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE crawls SET status = $1 WHERE id = $2`, domain.CrawlUploading, id)
	return execRequireRows(result, err, apperrors.ErrCrawlNotFound)
}

// Complete marks a Crawl completed with its final archive location and
// counts (spec §4.5 step 8).
func (r *CrawlRepository) Complete(ctx context.Context, id, outputPath string, outputSize int64, p domain.Progress) error {
	query := `UPDATE crawls SET
		status = $1, output_path = $2, output_size_bytes = $3,
		total_pages = $4, succeeded_pages = $5, failed_pages = $6,
		error_message = NULL, completed_at = NOW()
		WHERE id = $7`
	result, err := r.db.ExecContext(ctx, query,
		domain.CrawlCompleted, outputPath, outputSize, p.Total, p.Succeeded, p.Failed, id)
	return execRequireRows(result, err, apperrors.ErrCrawlNotFound)
}

// TimedOut marks a Crawl timed_out with whatever partial archive was
// uploaded (spec §4.5 step 9).
func (r *CrawlRepository) TimedOut(ctx context.Context, id, outputPath string, outputSize int64, message string) error {
	query := `UPDATE crawls SET
		status = $1, output_path = $2, output_size_bytes = $3,
		error_message = $4, completed_at = NOW()
		WHERE id = $5`
	result, err := r.db.ExecContext(ctx, query, domain.CrawlTimedOut, outputPath, outputSize, message, id)
	return execRequireRows(result, err, apperrors.ErrCrawlNotFound)
}

// Cancel marks a Crawl cancelled (spec §4.5 step 10). started_at is
// backfilled with COALESCE because the cancel endpoint can cancel a crawl
// that is still pending; a terminal row must always carry both timestamps.
func (r *CrawlRepository) Cancel(ctx context.Context, id string) error {
	query := `UPDATE crawls SET status = $1, started_at = COALESCE(started_at, NOW()), completed_at = NOW() WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, domain.CrawlCancelled, id)
	return execRequireRows(result, err, apperrors.ErrCrawlNotFound)
}

// Fail marks a Crawl failed with a diagnostic message (spec §4.5 step 11,
// §4.5 orphan reconciliation's terminal-queue-state branch). started_at is
// backfilled with COALESCE because Fail can terminate a crawl that never
// reached TransitionRunning (e.g. its site vanished before the crawl could
// start); a terminal row must always carry both timestamps (spec §8
// "Terminal Exclusivity").
func (r *CrawlRepository) Fail(ctx context.Context, id, message string) error {
	query := `UPDATE crawls SET
		status = $1, error_message = $2,
		started_at = COALESCE(started_at, NOW()), completed_at = NOW()
		WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, domain.CrawlFailed, message, id)
	return execRequireRows(result, err, apperrors.ErrCrawlNotFound)
}

// ListCompletedForSite returns a site's terminal crawls that have an
// archive, most-recently-completed first — the input to retention pruning
// (spec §4.5 step 8, §8 "Retention bound").
func (r *CrawlRepository) ListCompletedForSite(ctx context.Context, siteID string) ([]*domain.Crawl, error) {
	var crawls []*domain.Crawl
	query := `SELECT ` + crawlSelectColumns + ` FROM crawls
		WHERE site_id = $1
		  AND status IN ($2, $3)
		  AND output_path IS NOT NULL
		ORDER BY completed_at DESC NULLS LAST`

	err := r.db.SelectContext(ctx, &crawls, query, siteID, domain.CrawlCompleted, domain.CrawlTimedOut)
	if err != nil {
		return nil, fmt.Errorf("list completed crawls for site %s: %w", siteID, err)
	}
	return crawls, nil
}

// ClearOutput nulls a pruned crawl's output pointers (spec §4.5 step 8
// "clear their outputPath / outputSizeBytes").
func (r *CrawlRepository) ClearOutput(ctx context.Context, id string) error {
	query := `UPDATE crawls SET output_path = NULL, output_size_bytes = NULL WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	return execRequireRows(result, err, apperrors.ErrCrawlNotFound)
}

// ListOrphanCandidates returns active-state crawls older than cutoff — the
// input to orphan reconciliation (spec §4.5).
func (r *CrawlRepository) ListOrphanCandidates(ctx context.Context, cutoff time.Time) ([]*domain.Crawl, error) {
	var crawls []*domain.Crawl
	query := `SELECT ` + crawlSelectColumns + ` FROM crawls
		WHERE status IN ($1, $2, $3) AND created_at < $4`

	err := r.db.SelectContext(ctx, &crawls, query,
		domain.CrawlPending, domain.CrawlRunning, domain.CrawlUploading, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list orphan candidates: %w", err)
	}
	return crawls, nil
}
