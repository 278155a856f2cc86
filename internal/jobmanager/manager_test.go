package jobmanager

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/logger"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/queue"
)

type fakeRunner struct {
	mu   sync.Mutex
	runs []string
	err  error
}

func (f *fakeRunner) Run(_ context.Context, crawlID string) error {
	f.mu.Lock()
	f.runs = append(f.runs, crawlID)
	f.mu.Unlock()
	return f.err
}

type fakeSweeper struct {
	sweeps atomic.Int32
}

func (f *fakeSweeper) Sweep(_ context.Context) error {
	f.sweeps.Add(1)
	return nil
}

// queueingFakeQueue hands out exactly the jobs enqueued via Add, once each,
// then blocks (Consume returns nil, nil) like a real timed-out poll.
type queueingFakeQueue struct {
	*fakeQueue
	pending []string
	mu      sync.Mutex
	acked   []string
	failed  []string
}

func newQueueingFakeQueue() *queueingFakeQueue {
	return &queueingFakeQueue{fakeQueue: newFakeQueue()}
}

func (q *queueingFakeQueue) Add(ctx context.Context, crawlID string) error {
	if err := q.fakeQueue.Add(ctx, crawlID); err != nil {
		return err
	}
	q.mu.Lock()
	q.pending = append(q.pending, crawlID)
	q.mu.Unlock()
	return nil
}

func (q *queueingFakeQueue) Consume(_ context.Context) (*queue.ConsumedJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, nil
	}
	id := q.pending[0]
	q.pending = q.pending[1:]
	return &queue.ConsumedJob{Job: queue.Job{CrawlID: id}}, nil
}

func (q *queueingFakeQueue) Ack(_ context.Context, job *queue.ConsumedJob) error {
	q.mu.Lock()
	q.acked = append(q.acked, job.CrawlID)
	q.mu.Unlock()
	return nil
}

func (q *queueingFakeQueue) Fail(_ context.Context, job *queue.ConsumedJob) error {
	q.mu.Lock()
	q.failed = append(q.failed, job.CrawlID)
	q.mu.Unlock()
	return nil
}

func TestManagerRunsQueuedJobsThroughTheDriver(t *testing.T) {
	q := newQueueingFakeQueue()
	require.NoError(t, q.Add(context.Background(), "crawl-1"))

	runner := &fakeRunner{}
	sweeper := &fakeSweeper{}
	m := NewManager(ManagerConfig{CrawlConcurrency: 2}, q, runner, sweeper, logger.NewNop())

	require.NoError(t, m.Start(context.Background()))
	assert.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.acked) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Stop(context.Background()))

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, []string{"crawl-1"}, runner.runs)
	assert.GreaterOrEqual(t, sweeper.sweeps.Load(), int32(1))
}

func TestManagerFailsJobWhenDriverErrors(t *testing.T) {
	q := newQueueingFakeQueue()
	require.NoError(t, q.Add(context.Background(), "crawl-err"))

	runner := &fakeRunner{err: assertErrBoom}
	sweeper := &fakeSweeper{}
	m := NewManager(ManagerConfig{CrawlConcurrency: 1}, q, runner, sweeper, logger.NewNop())

	require.NoError(t, m.Start(context.Background()))
	assert.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.failed) == 1
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, m.Stop(context.Background()))

	q.mu.Lock()
	defer q.mu.Unlock()
	assert.Equal(t, []string{"crawl-err"}, q.failed)
	assert.Empty(t, q.acked)
}

func TestManagerStartTwiceReturnsError(t *testing.T) {
	q := newQueueingFakeQueue()
	m := NewManager(ManagerConfig{}, q, &fakeRunner{}, &fakeSweeper{}, logger.NewNop())
	require.NoError(t, m.Start(context.Background()))
	assert.Error(t, m.Start(context.Background()))
	require.NoError(t, m.Stop(context.Background()))
}

var assertErrBoom = &simpleError{"driver boom"}
