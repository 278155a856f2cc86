package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/apperrors"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/database"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/domain"
)

func TestCrawlRepository_TransitionRunning(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewCrawlRepository(db)

	mock.ExpectExec("UPDATE crawls SET").
		WithArgs(domain.CrawlRunning, "crawl-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.TransitionRunning(context.Background(), "crawl-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCrawlRepository_TransitionRunning_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewCrawlRepository(db)

	mock.ExpectExec("UPDATE crawls SET").
		WithArgs(domain.CrawlRunning, "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.TransitionRunning(context.Background(), "missing")
	require.ErrorIs(t, err, apperrors.ErrCrawlNotFound)
}

func TestCrawlRepository_GetStatus_Missing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewCrawlRepository(db)

	mock.ExpectQuery("SELECT status FROM crawls WHERE id = \\$1").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(nil))

	_, ok, err := repo.GetStatus(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCrawlRepository_Complete(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewCrawlRepository(db)

	mock.ExpectExec("UPDATE crawls SET").
		WithArgs(domain.CrawlCompleted, "archives/crawl-1.zip", int64(1024), 3, 3, 0, "crawl-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Complete(context.Background(), "crawl-1", "archives/crawl-1.zip", 1024, domain.Progress{Total: 3, Succeeded: 3})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCrawlRepository_ListOrphanCandidates(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewCrawlRepository(db)

	rows := sqlmock.NewRows([]string{
		"id", "site_id", "status", "total_pages", "succeeded_pages", "failed_pages",
		"upload_total_bytes", "uploaded_bytes", "upload_current_file",
		"output_path", "output_size_bytes", "error_message",
		"created_at", "started_at", "completed_at",
		"current_attempt", "max_attempts",
	})

	mock.ExpectQuery("SELECT .* FROM crawls").
		WillReturnRows(rows)

	crawls, err := repo.ListOrphanCandidates(context.Background(), time.Now())
	require.NoError(t, err)
	require.Empty(t, crawls)
}
