package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/logger"
)

// StreamCap is the approximate number of entries retained per crawl's
// replay stream (spec §4.2 "retaining approximately the last 1000
// entries").
const StreamCap = 1000

const (
	channelPrefix = "crawl:"
	streamPrefix  = "crawl-events:"
)

// redisBus is the Redis-backed Bus implementation: PUBLISH for live
// delivery, a capped XADD stream for replay. Grounded on the teacher's
// infrastructure/sse broker's publish/subscribe split, re-targeted at Redis
// so a subscriber in the admin process receives events published by a
// worker process.
type redisBus struct {
	client *redis.Client
	logger logger.Logger
}

// NewRedis builds a Bus backed by an existing Redis client.
func NewRedis(client *redis.Client, log logger.Logger) Bus {
	if log == nil {
		log = logger.NewNop()
	}
	return &redisBus{client: client, logger: log}
}

func channelName(crawlID string) string { return channelPrefix + crawlID }
func streamName(crawlID string) string  { return streamPrefix + crawlID }

// Publish pushes event onto crawlID's pub/sub channel and appends it to the
// capped replay stream. Connected and ping events are never appended to the stream (spec
// §4.2: "emitted by subscribers only").
func (b *redisBus) Publish(ctx context.Context, crawlID string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := b.client.Publish(ctx, channelName(crawlID), payload).Err(); err != nil {
		return fmt.Errorf("publish event for crawl %s: %w", crawlID, err)
	}

	if event.Type == TypeConnected || event.Type == TypePing {
		return nil
	}

	err = b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamName(crawlID),
		MaxLen: StreamCap,
		Approx: true,
		Values: map[string]any{"event": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("append event to replay stream for crawl %s: %w", crawlID, err)
	}

	return nil
}

// Subscribe opens a dedicated Redis connection for crawlID's channel. The
// subscriber is responsible for calling cleanup on disconnect (spec §5
// "subscribers each open a dedicated connection and are responsible for
// cleaning it up").
func (b *redisBus) Subscribe(ctx context.Context, crawlID string) (<-chan Event, func(), error) {
	pubsub := b.client.Subscribe(ctx, channelName(crawlID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe to crawl %s: %w", crawlID, err)
	}

	out := make(chan Event, 64)
	done := make(chan struct{})

	go func() {
		defer close(out)
		raw := pubsub.Channel()
		for {
			select {
			case msg, ok := <-raw:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.logger.Warn("dropping malformed event", logger.String("crawl_id", crawlID), logger.Error(err))
					continue
				}
				select {
				case out <- event:
				case <-done:
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	var closed bool
	cleanup := func() {
		if closed {
			return
		}
		closed = true
		close(done)
		_ = pubsub.Close()
	}

	return out, cleanup, nil
}

// Replay reads up to limit of the most recent entries from crawlID's capped
// stream, oldest first.
func (b *redisBus) Replay(ctx context.Context, crawlID string, limit int64) ([]Event, error) {
	if limit <= 0 {
		limit = StreamCap
	}

	entries, err := b.client.XRevRangeN(ctx, streamName(crawlID), "+", "-", limit).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("read replay stream for crawl %s: %w", crawlID, err)
	}

	events := make([]Event, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		raw, ok := entries[i].Values["event"]
		if !ok {
			continue
		}
		var payload string
		switch v := raw.(type) {
		case string:
			payload = v
		default:
			payload = fmt.Sprint(v)
		}

		var event Event
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			b.logger.Warn("dropping malformed replay entry",
				logger.String("crawl_id", crawlID), logger.String("entry_id", entries[i].ID), logger.Error(err))
			continue
		}
		events = append(events, event)
	}

	return events, nil
}

// StreamLen reports the current approximate length of a crawl's replay
// stream.
func StreamLen(ctx context.Context, client *redis.Client, crawlID string) (int64, error) {
	return client.XLen(ctx, streamName(crawlID)).Result()
}
