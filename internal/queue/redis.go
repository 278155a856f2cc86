package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/logger"
)

const (
	streamKey   = "archivist:crawl-jobs"
	stateHash   = "archivist:crawl-jobs:state"
	msgIDHash   = "archivist:crawl-jobs:msgid"
	enqueueHash = "archivist:crawl-jobs:enqueued-at"

	crawlIDField = "crawl_id"

	defaultGroup        = "archivist-workers"
	defaultBlockTimeout = 5 * time.Second
	defaultClaimMinIdle = 15 * time.Minute
)

// Config configures the Redis-backed Queue.
type Config struct {
	Group        string
	Consumer     string
	BlockTimeout time.Duration
	ClaimMinIdle time.Duration
}

type redisQueue struct {
	client *redis.Client
	cfg    Config
	logger logger.Logger
}

// NewRedis builds a Queue backed by an existing Redis client. It eagerly
// creates the consumer group if it doesn't already exist.
func NewRedis(ctx context.Context, client *redis.Client, cfg Config, log logger.Logger) (Queue, error) {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.Group == "" {
		cfg.Group = defaultGroup
	}
	if cfg.Consumer == "" {
		return nil, errors.New("queue: consumer name is required")
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = defaultBlockTimeout
	}
	if cfg.ClaimMinIdle <= 0 {
		cfg.ClaimMinIdle = defaultClaimMinIdle
	}

	err := client.XGroupCreateMkStream(ctx, streamKey, cfg.Group, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}

	return &redisQueue{client: client, cfg: cfg, logger: log}, nil
}

func (q *redisQueue) Add(ctx context.Context, crawlID string) error {
	now := time.Now().UTC()
	msgID, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]any{crawlIDField: crawlID, "enqueued_at": now.Format(time.RFC3339)},
	}).Result()
	if err != nil {
		return fmt.Errorf("enqueue crawl %s: %w", crawlID, err)
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, stateHash, crawlID, string(StateQueued))
	pipe.HSet(ctx, msgIDHash, crawlID, msgID)
	pipe.HSet(ctx, enqueueHash, crawlID, now.Format(time.RFC3339))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record queue metadata for crawl %s: %w", crawlID, err)
	}

	return nil
}

func (q *redisQueue) GetJob(ctx context.Context, crawlID string) (*Job, error) {
	msgID, err := q.client.HGet(ctx, msgIDHash, crawlID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up message id for crawl %s: %w", crawlID, err)
	}

	enqueuedAt := time.Time{}
	if raw, err := q.client.HGet(ctx, enqueueHash, crawlID).Result(); err == nil {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			enqueuedAt = t
		}
	}

	return &Job{CrawlID: crawlID, MessageID: msgID, EnqueuedAt: enqueuedAt}, nil
}

func (q *redisQueue) GetState(ctx context.Context, crawlID string) (State, bool, error) {
	raw, err := q.client.HGet(ctx, stateHash, crawlID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("look up queue state for crawl %s: %w", crawlID, err)
	}
	return State(raw), true, nil
}

func (q *redisQueue) Consume(ctx context.Context) (*ConsumedJob, error) {
	if job := q.reclaimOne(ctx); job != nil {
		return job, nil
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.cfg.Group,
		Consumer: q.cfg.Consumer,
		Streams:  []string{streamKey, ">"},
		Count:    1,
		Block:    q.cfg.BlockTimeout,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("read job stream: %w", err)
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			job, err := q.parse(msg)
			if err != nil {
				q.logger.Warn("dropping malformed queue message", logger.String("message_id", msg.ID), logger.Error(err))
				_ = q.client.XAck(ctx, streamKey, q.cfg.Group, msg.ID).Err()
				continue
			}
			q.client.HSet(ctx, stateHash, job.CrawlID, string(StateActive))
			return job, nil
		}
	}

	return nil, nil
}

// reclaimOne claims one message that's been pending longer than
// ClaimMinIdle, handing it back to this consumer. This covers a worker
// process dying mid-job; the longer-horizon "is the owning Crawl itself
// stale" decision still belongs to orphan reconciliation (spec §4.5), not
// to the queue.
func (q *redisQueue) reclaimOne(ctx context.Context) *ConsumedJob {
	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: streamKey,
		Group:  q.cfg.Group,
		Start:  "-",
		End:    "+",
		Count:  1,
		Idle:   q.cfg.ClaimMinIdle,
	}).Result()
	if err != nil || len(pending) == 0 {
		return nil
	}

	claimed, err := q.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   streamKey,
		Group:    q.cfg.Group,
		Consumer: q.cfg.Consumer,
		MinIdle:  q.cfg.ClaimMinIdle,
		Messages: []string{pending[0].ID},
	}).Result()
	if err != nil || len(claimed) == 0 {
		return nil
	}

	job, err := q.parse(claimed[0])
	if err != nil {
		return nil
	}
	q.client.HSet(ctx, stateHash, job.CrawlID, string(StateActive))
	return job
}

func (q *redisQueue) parse(msg redis.XMessage) (*ConsumedJob, error) {
	crawlID, ok := msg.Values[crawlIDField].(string)
	if !ok || crawlID == "" {
		return nil, errors.New("missing crawl_id field")
	}

	enqueuedAt := time.Time{}
	if raw, ok := msg.Values["enqueued_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			enqueuedAt = t
		}
	}

	return &ConsumedJob{Job{CrawlID: crawlID, MessageID: msg.ID, EnqueuedAt: enqueuedAt}}, nil
}

func (q *redisQueue) Ack(ctx context.Context, job *ConsumedJob) error {
	return q.finish(ctx, job)
}

func (q *redisQueue) Fail(ctx context.Context, job *ConsumedJob) error {
	return q.finish(ctx, job)
}

func (q *redisQueue) finish(ctx context.Context, job *ConsumedJob) error {
	if job == nil {
		return errors.New("job cannot be nil")
	}
	if err := q.client.XAck(ctx, streamKey, q.cfg.Group, job.MessageID).Err(); err != nil {
		return fmt.Errorf("ack job %s: %w", job.MessageID, err)
	}
	if err := q.client.HSet(ctx, stateHash, job.CrawlID, string(StateDone)).Err(); err != nil {
		return fmt.Errorf("record terminal state for crawl %s: %w", job.CrawlID, err)
	}
	return nil
}
