package api

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/database"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/eventbus"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/logger"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/queue"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return sqlx.NewDb(mockDB, "postgres"), mock
}

type fakeBus struct {
	events chan eventbus.Event
}

func newFakeBus() *fakeBus { return &fakeBus{events: make(chan eventbus.Event, 4)} }

func (f *fakeBus) Publish(_ context.Context, _ string, _ eventbus.Event) error { return nil }

func (f *fakeBus) Subscribe(_ context.Context, _ string) (<-chan eventbus.Event, func(), error) {
	return f.events, func() {}, nil
}

func (f *fakeBus) Replay(_ context.Context, _ string, _ int64) ([]eventbus.Event, error) {
	return nil, nil
}

// fakeQueue implements queue.Queue; api only ever calls Add.
type fakeQueue struct {
	added []string
}

func (q *fakeQueue) Add(_ context.Context, crawlID string) error {
	q.added = append(q.added, crawlID)
	return nil
}
func (q *fakeQueue) GetJob(_ context.Context, _ string) (*queue.Job, error) { return nil, nil }
func (q *fakeQueue) GetState(_ context.Context, _ string) (queue.State, bool, error) {
	return "", false, nil
}
func (q *fakeQueue) Consume(_ context.Context) (*queue.ConsumedJob, error) { return nil, nil }
func (q *fakeQueue) Ack(_ context.Context, _ *queue.ConsumedJob) error     { return nil }
func (q *fakeQueue) Fail(_ context.Context, _ *queue.ConsumedJob) error    { return nil }

func TestSSEHandlerEmitsConnectedThenBusEvents(t *testing.T) {
	bus := newFakeBus()
	bus.events <- eventbus.NewLogEvent(eventbus.LogInfo, "hello", "")
	close(bus.events)

	h := NewSSEHandler(bus, PathCrawlID, logger.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/sse/crawls/crawl-1", nil)
	req.SetPathValue("id", "crawl-1")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.Contains(t, body, `"type":"connected"`)
	assert.Contains(t, body, `"message":"hello"`)
	assert.Equal(t, "text/event-stream", rec.Header().Get(headerContentType))
}

func TestSSEHandlerRejectsMissingCrawlID(t *testing.T) {
	h := NewSSEHandler(newFakeBus(), PathCrawlID, logger.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/sse/crawls/", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelHandlerMarksCrawlCancelled(t *testing.T) {
	db, mock := newMockDB(t)
	crawls := database.NewCrawlRepository(db)
	mock.ExpectExec("UPDATE crawls SET status").WillReturnResult(sqlmock.NewResult(0, 1))

	h := NewCancelHandler(crawls, PathCrawlID, logger.NewNop())
	req := httptest.NewRequest(http.MethodPost, "/crawls/crawl-1/cancel", nil)
	req.SetPathValue("id", "crawl-1")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelHandlerReturns404WhenCrawlMissing(t *testing.T) {
	db, mock := newMockDB(t)
	crawls := database.NewCrawlRepository(db)
	mock.ExpectExec("UPDATE crawls SET status").WillReturnResult(sqlmock.NewResult(0, 0))

	h := NewCancelHandler(crawls, PathCrawlID, logger.NewNop())
	req := httptest.NewRequest(http.MethodPost, "/crawls/missing/cancel", nil)
	req.SetPathValue("id", "missing")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEnqueueReturns400WithoutSiteID(t *testing.T) {
	db, _ := newMockDB(t)
	h := NewCrawlsHandler(database.NewSiteRepository(db), database.NewCrawlRepository(db), nil, logger.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/crawls", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	h.Enqueue(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnqueueReturns404WhenSiteMissing(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT (.+) FROM sites").WithArgs("site-missing").WillReturnError(sql.ErrNoRows)

	h := NewCrawlsHandler(database.NewSiteRepository(db), database.NewCrawlRepository(db), nil, logger.NewNop())
	req := httptest.NewRequest(http.MethodPost, "/crawls", strings.NewReader(`{"site_id":"site-missing"}`))
	rec := httptest.NewRecorder()

	h.Enqueue(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnqueueCreatesCrawlAndAddsQueueJob(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT (.+) FROM sites").WithArgs("site-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "base_url", "concurrency", "max_pages",
			"exclude_patterns", "download_blocklist", "remove_badge",
			"canonical_redirects", "schedule_expression", "max_archives_to_keep",
		}).AddRow("site-1", "example", "https://example.com", 5, nil, nil, nil, false, nil, nil, nil))
	mock.ExpectExec("INSERT INTO crawls").WillReturnResult(sqlmock.NewResult(0, 1))

	q := &fakeQueue{}
	h := NewCrawlsHandler(database.NewSiteRepository(db), database.NewCrawlRepository(db), q, logger.NewNop())
	req := httptest.NewRequest(http.MethodPost, "/crawls", strings.NewReader(`{"site_id":"site-1"}`))
	rec := httptest.NewRecorder()

	h.Enqueue(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, q.added, 1)
	assert.Contains(t, rec.Body.String(), q.added[0])
	require.NoError(t, mock.ExpectationsWereMet())
}
