package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) (Bus, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedis(client, nil), client
}

func TestPublishSubscribeDelivers(t *testing.T) {
	bus, _ := newTestBus(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, cleanup, err := bus.Subscribe(ctx, "crawl-1")
	require.NoError(t, err)
	defer cleanup()

	// Give the subscription goroutine a moment to attach before publishing.
	time.Sleep(50 * time.Millisecond)

	want := NewLogEvent(LogInfo, "starting crawl", "")
	require.NoError(t, bus.Publish(ctx, "crawl-1", want))

	select {
	case got := <-events:
		require.Equal(t, want.Type, got.Type)
		require.Equal(t, want.Message, got.Message)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishAppendsToReplayStream(t *testing.T) {
	bus, _ := newTestBus(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(ctx, "crawl-2", NewProgressEvent(i, i, 0, "", "", nil)))
	}

	replayed, err := bus.Replay(ctx, "crawl-2", 10)
	require.NoError(t, err)
	require.Len(t, replayed, 5)
	for i, e := range replayed {
		require.Equal(t, i, e.Total)
	}
}

func TestPingAndConnectedNotReplayed(t *testing.T) {
	bus, _ := newTestBus(t)
	ctx := context.Background()

	require.NoError(t, bus.Publish(ctx, "crawl-3", NewConnectedEvent("crawl-3")))
	require.NoError(t, bus.Publish(ctx, "crawl-3", NewPingEvent()))
	require.NoError(t, bus.Publish(ctx, "crawl-3", NewLogEvent(LogWarn, "partial results saved", "")))

	replayed, err := bus.Replay(ctx, "crawl-3", 10)
	require.NoError(t, err)
	require.Len(t, replayed, 1)
	require.Equal(t, TypeLog, replayed[0].Type)
}

func TestCleanupStopsDelivery(t *testing.T) {
	bus, _ := newTestBus(t)
	ctx := context.Background()

	events, cleanup, err := bus.Subscribe(ctx, "crawl-4")
	require.NoError(t, err)
	cleanup()

	_, ok := <-events
	require.False(t, ok, "channel should be closed after cleanup")
}
