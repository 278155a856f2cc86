package database_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/apperrors"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/database"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return sqlx.NewDb(mockDB, "postgres"), mock
}

func TestSiteRepository_GetByID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewSiteRepository(db)

	mock.ExpectQuery("SELECT .* FROM sites WHERE id = \\$1").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(nil))

	_, err := repo.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, apperrors.ErrSiteNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSiteRepository_GetByID_Found(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewSiteRepository(db)

	rows := sqlmock.NewRows([]string{
		"id", "name", "base_url", "concurrency", "max_pages",
		"exclude_patterns", "download_blocklist", "remove_badge",
		"canonical_redirects", "schedule_expression", "max_archives_to_keep",
	}).AddRow("site-1", "Example", "https://example.com", 5, nil, nil, nil, false, nil, nil, nil)

	mock.ExpectQuery("SELECT .* FROM sites WHERE id = \\$1").
		WithArgs("site-1").
		WillReturnRows(rows)

	site, err := repo.GetByID(context.Background(), "site-1")
	require.NoError(t, err)
	require.Equal(t, "Example", site.Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSiteRepository_Delete_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewSiteRepository(db)

	mock.ExpectExec("DELETE FROM sites WHERE id = \\$1").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "missing")
	require.ErrorIs(t, err, apperrors.ErrSiteNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
