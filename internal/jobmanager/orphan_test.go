package jobmanager

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/database"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/domain"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/logger"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/queue"
)

type fakeQueue struct {
	jobs      map[string]*queue.Job
	states    map[string]queue.State
	addedJobs []string
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{jobs: map[string]*queue.Job{}, states: map[string]queue.State{}}
}

func (q *fakeQueue) Add(_ context.Context, crawlID string) error {
	q.addedJobs = append(q.addedJobs, crawlID)
	q.jobs[crawlID] = &queue.Job{CrawlID: crawlID}
	q.states[crawlID] = queue.StateQueued
	return nil
}

func (q *fakeQueue) GetJob(_ context.Context, crawlID string) (*queue.Job, error) {
	return q.jobs[crawlID], nil
}

func (q *fakeQueue) GetState(_ context.Context, crawlID string) (queue.State, bool, error) {
	state, ok := q.states[crawlID]
	return state, ok, nil
}

func (q *fakeQueue) Consume(_ context.Context) (*queue.ConsumedJob, error) { return nil, nil }
func (q *fakeQueue) Ack(_ context.Context, _ *queue.ConsumedJob) error     { return nil }
func (q *fakeQueue) Fail(_ context.Context, _ *queue.ConsumedJob) error    { return nil }

func orphanCandidateRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "site_id", "status", "total_pages", "succeeded_pages", "failed_pages",
		"upload_total_bytes", "uploaded_bytes", "upload_current_file",
		"output_path", "output_size_bytes", "error_message",
		"created_at", "started_at", "completed_at", "current_attempt", "max_attempts",
	})
}

func TestReconcilerReenqueuesCrawlWithNoQueueJob(t *testing.T) {
	db, mock := newMockDB(t)
	crawls := database.NewCrawlRepository(db)
	q := newFakeQueue()

	rows := orphanCandidateRows().AddRow(
		"crawl-orphan", "site-1", string(domain.CrawlRunning), 1, 1, 0, 0, 0, "", nil, nil, nil,
		time.Now(), nil, nil, 1, 1)
	mock.ExpectQuery("SELECT (.+) FROM crawls").WillReturnRows(rows)

	r := NewReconciler(crawls, q, time.Hour, logger.NewNop(), nil)
	require.NoError(t, r.Sweep(context.Background()))

	assert.Equal(t, []string{"crawl-orphan"}, q.addedJobs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcilerLeavesActiveQueueJobAlone(t *testing.T) {
	db, mock := newMockDB(t)
	crawls := database.NewCrawlRepository(db)
	q := newFakeQueue()
	q.jobs["crawl-active"] = &queue.Job{CrawlID: "crawl-active"}
	q.states["crawl-active"] = queue.StateActive

	rows := orphanCandidateRows().AddRow(
		"crawl-active", "site-1", string(domain.CrawlRunning), 1, 1, 0, 0, 0, "", nil, nil, nil,
		time.Now(), nil, nil, 1, 1)
	mock.ExpectQuery("SELECT (.+) FROM crawls").WillReturnRows(rows)

	r := NewReconciler(crawls, q, time.Hour, logger.NewNop(), nil)
	require.NoError(t, r.Sweep(context.Background()))

	assert.Empty(t, q.addedJobs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcilerFailsCrawlWhoseQueueJobIsDone(t *testing.T) {
	db, mock := newMockDB(t)
	crawls := database.NewCrawlRepository(db)
	q := newFakeQueue()
	q.jobs["crawl-done"] = &queue.Job{CrawlID: "crawl-done"}
	q.states["crawl-done"] = queue.StateDone

	rows := orphanCandidateRows().AddRow(
		"crawl-done", "site-1", string(domain.CrawlRunning), 1, 1, 0, 0, 0, "", nil, nil, nil,
		time.Now(), nil, nil, 1, 1)
	mock.ExpectQuery("SELECT (.+) FROM crawls").WillReturnRows(rows)
	mock.ExpectExec("UPDATE crawls SET status").WithArgs(domain.CrawlFailed, sqlmock.AnyArg(), "crawl-done").
		WillReturnResult(sqlmock.NewResult(0, 1))

	r := NewReconciler(crawls, q, time.Hour, logger.NewNop(), nil)
	require.NoError(t, r.Sweep(context.Background()))

	assert.Empty(t, q.addedJobs)
	require.NoError(t, mock.ExpectationsWereMet())
}
