package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/apperrors"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/domain"
)

const siteSelectColumns = `id, name, base_url, concurrency, max_pages,
	exclude_patterns, download_blocklist, remove_badge,
	canonical_redirects, schedule_expression, max_archives_to_keep`

// SiteRepository persists Site rows (spec §3 "Site").
type SiteRepository struct {
	db *sqlx.DB
}

// NewSiteRepository builds a SiteRepository.
func NewSiteRepository(db *sqlx.DB) *SiteRepository {
	return &SiteRepository{db: db}
}

// GetByID loads a single Site, returning apperrors.ErrSiteNotFound when
// absent.
func (r *SiteRepository) GetByID(ctx context.Context, id string) (*domain.Site, error) {
	var site domain.Site
	query := `SELECT ` + siteSelectColumns + ` FROM sites WHERE id = $1`

	if err := r.db.GetContext(ctx, &site, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrSiteNotFound
		}
		return nil, fmt.Errorf("get site %s: %w", id, err)
	}

	return &site, nil
}

// List returns every Site, ordered by name.
func (r *SiteRepository) List(ctx context.Context) ([]*domain.Site, error) {
	var sites []*domain.Site
	query := `SELECT ` + siteSelectColumns + ` FROM sites ORDER BY name`

	if err := r.db.SelectContext(ctx, &sites, query); err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	if sites == nil {
		sites = []*domain.Site{}
	}
	return sites, nil
}

// Create inserts a new Site.
func (r *SiteRepository) Create(ctx context.Context, site *domain.Site) error {
	query := `INSERT INTO sites (` + siteSelectColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.ExecContext(ctx, query,
		site.ID, site.Name, site.BaseURL, site.Concurrency, site.MaxPages,
		site.ExcludePatterns, site.DownloadBlocklist, site.RemoveBadge,
		site.CanonicalRedirects, site.ScheduleExpression, site.MaxArchivesToKeep,
	)
	if err != nil {
		return fmt.Errorf("create site %s: %w", site.ID, err)
	}
	return nil
}

// Update replaces an existing Site's mutable fields.
func (r *SiteRepository) Update(ctx context.Context, site *domain.Site) error {
	query := `UPDATE sites SET
		name = $1, base_url = $2, concurrency = $3, max_pages = $4,
		exclude_patterns = $5, download_blocklist = $6, remove_badge = $7,
		canonical_redirects = $8, schedule_expression = $9, max_archives_to_keep = $10
		WHERE id = $11`

	result, err := r.db.ExecContext(ctx, query,
		site.Name, site.BaseURL, site.Concurrency, site.MaxPages,
		site.ExcludePatterns, site.DownloadBlocklist, site.RemoveBadge,
		site.CanonicalRedirects, site.ScheduleExpression, site.MaxArchivesToKeep,
		site.ID,
	)
	return execRequireRows(result, err, apperrors.ErrSiteNotFound)
}

// Delete removes a Site.
func (r *SiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sites WHERE id = $1`, id)
	return execRequireRows(result, err, apperrors.ErrSiteNotFound)
}
