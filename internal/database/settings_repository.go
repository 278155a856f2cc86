package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/domain"
)

// SettingsRepository persists key/value global settings (spec §3 "Global
// Setting: download-blocklist"), stored as one jsonb row per key (spec
// §12/SPEC_FULL.md supplement: `settings(key text primary key, value
// jsonb)`).
type SettingsRepository struct {
	db *sqlx.DB
}

// NewSettingsRepository builds a SettingsRepository.
func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// DownloadBlocklistKey is the settings key holding the global
// download-blocklist (spec §3, §4.5 step 3).
const DownloadBlocklistKey = "download_blocklist"

// GetDownloadBlocklist returns the global blocklist, or an empty slice if
// unset.
func (r *SettingsRepository) GetDownloadBlocklist(ctx context.Context) (domain.StringSlice, error) {
	var value domain.StringSlice
	err := r.db.GetContext(ctx, &value, `SELECT value FROM settings WHERE key = $1`, DownloadBlocklistKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.StringSlice{}, nil
		}
		return nil, fmt.Errorf("get global download blocklist: %w", err)
	}
	return value, nil
}

// SetDownloadBlocklist upserts the global blocklist.
func (r *SettingsRepository) SetDownloadBlocklist(ctx context.Context, entries domain.StringSlice) error {
	query := `INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`

	if _, err := r.db.ExecContext(ctx, query, DownloadBlocklistKey, entries); err != nil {
		return fmt.Errorf("set global download blocklist: %w", err)
	}
	return nil
}
