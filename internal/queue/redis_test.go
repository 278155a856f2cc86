package queue

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T, consumer string) Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	q, err := NewRedis(context.Background(), client, Config{Consumer: consumer}, nil)
	require.NoError(t, err)
	return q
}

func TestAddThenGetJobAndState(t *testing.T) {
	q := newTestQueue(t, "worker-1")
	ctx := context.Background()

	require.NoError(t, q.Add(ctx, "crawl-1"))

	job, err := q.GetJob(ctx, "crawl-1")
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, "crawl-1", job.CrawlID)

	state, ok, err := q.GetState(ctx, "crawl-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StateQueued, state)
}

func TestGetJobMissingReturnsNil(t *testing.T) {
	q := newTestQueue(t, "worker-1")
	job, err := q.GetJob(context.Background(), "does-not-exist")
	require.NoError(t, err)
	require.Nil(t, job)

	_, ok, err := q.GetState(context.Background(), "does-not-exist")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestConsumeAckMovesToDone(t *testing.T) {
	q := newTestQueue(t, "worker-1")
	ctx := context.Background()

	require.NoError(t, q.Add(ctx, "crawl-2"))

	job, err := q.Consume(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, "crawl-2", job.CrawlID)

	state, ok, err := q.GetState(ctx, "crawl-2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StateActive, state)

	require.NoError(t, q.Ack(ctx, job))

	state, ok, err = q.GetState(ctx, "crawl-2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StateDone, state)
}

func TestReAddAfterDoneCreatesFreshJob(t *testing.T) {
	q := newTestQueue(t, "worker-1")
	ctx := context.Background()

	require.NoError(t, q.Add(ctx, "crawl-3"))
	job, err := q.Consume(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, job))

	require.NoError(t, q.Add(ctx, "crawl-3"))
	state, ok, err := q.GetState(ctx, "crawl-3")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StateQueued, state)
}
