package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/domain"
)

// CrawlLogRepository persists append-only Crawl Log Entries (spec §3
// "Crawl Log Entry").
type CrawlLogRepository struct {
	db *sqlx.DB
}

// NewCrawlLogRepository builds a CrawlLogRepository.
func NewCrawlLogRepository(db *sqlx.DB) *CrawlLogRepository {
	return &CrawlLogRepository{db: db}
}

// Append inserts one log line. debug-level entries are never persisted
// (spec §3 "debug is never persisted") — callers are expected to filter
// before calling Append, but it's enforced here too as a second line of
// defense.
func (r *CrawlLogRepository) Append(ctx context.Context, entry domain.CrawlLogEntry) error {
	if entry.Level == domain.LogDebug {
		return nil
	}

	query := `INSERT INTO crawl_logs (crawl_id, timestamp, level, message, url)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, query, entry.CrawlID, entry.Timestamp, entry.Level, entry.Message, entry.URL)
	if err != nil {
		return fmt.Errorf("append log for crawl %s: %w", entry.CrawlID, err)
	}
	return nil
}

// ListForCrawl returns a crawl's log entries in chronological order.
func (r *CrawlLogRepository) ListForCrawl(ctx context.Context, crawlID string) ([]*domain.CrawlLogEntry, error) {
	var entries []*domain.CrawlLogEntry
	query := `SELECT id, crawl_id, timestamp, level, message, url
		FROM crawl_logs WHERE crawl_id = $1 ORDER BY timestamp ASC`

	if err := r.db.SelectContext(ctx, &entries, query, crawlID); err != nil {
		return nil, fmt.Errorf("list logs for crawl %s: %w", crawlID, err)
	}
	if entries == nil {
		entries = []*domain.CrawlLogEntry{}
	}
	return entries, nil
}

// DeleteForCrawl removes every log line belonging to crawlID, matching the
// Crawl's own deletion (spec §3 "pruned with the owning Crawl").
func (r *CrawlLogRepository) DeleteForCrawl(ctx context.Context, crawlID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM crawl_logs WHERE crawl_id = $1`, crawlID)
	if err != nil {
		return fmt.Errorf("delete logs for crawl %s: %w", crawlID, err)
	}
	return nil
}
