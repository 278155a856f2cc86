// Package queue implements the durable job queue (spec §6): a single Redis
// Streams queue with attempts=1 and job ID equal to crawl ID. Grounded on
// the teacher's internal/queue package (StreamsClient wrapping go-redis'
// stream commands, Producer/Consumer split) but collapsed from the
// teacher's three-priority-stream model to the single stream this spec's
// simpler queue calls for (spec §6 lists exactly `add`, `getJob(id)`,
// `getState(id)` with no priority concept) — see DESIGN.md for the
// priority-model trim.
package queue

import (
	"context"
	"time"
)

// State is the lifecycle state of a queued job, independent of the owning
// Crawl's own state machine (spec §4.5's orphan reconciliation reads this
// to decide whether to re-enqueue, leave alone, or mark failed).
type State string

const (
	// StateQueued means the job has been added but not yet claimed by a
	// consumer.
	StateQueued State = "queued"
	// StateActive means a consumer currently holds the job.
	StateActive State = "active"
	// StateDone is terminal: the job was acknowledged (success or
	// unrecoverable failure) and will not be redelivered. The queue itself
	// never retries; a fresh Add under the same crawl ID is how retries
	// happen (spec §4.5 "No automatic retries").
	StateDone State = "done"
)

// Job is the durable queue's record of one crawl job.
type Job struct {
	CrawlID    string
	MessageID  string
	EnqueuedAt time.Time
}

// ConsumedJob is a Job handed to a consumer, carrying the handle needed to
// acknowledge it.
type ConsumedJob struct {
	Job
}

// Queue is the durable job queue interface (spec §6: add, getJob,
// getState).
type Queue interface {
	// Add enqueues a fresh job for crawlID. Re-adding an existing crawl ID
	// (a manual retry or an orphan re-enqueue) is allowed and creates a new
	// stream entry.
	Add(ctx context.Context, crawlID string) error

	// GetJob returns the durable record for crawlID, or (nil, nil) if no
	// job was ever added for it.
	GetJob(ctx context.Context, crawlID string) (*Job, error)

	// GetState returns crawlID's current queue state, or ok=false if no
	// job was ever added for it.
	GetState(ctx context.Context, crawlID string) (state State, ok bool, err error)

	// Consume blocks up to the configured block timeout for the next
	// available job, returning (nil, nil) on timeout.
	Consume(ctx context.Context) (*ConsumedJob, error)

	// Ack acknowledges successful processing; the job moves to StateDone
	// and is never redelivered.
	Ack(ctx context.Context, job *ConsumedJob) error

	// Fail acknowledges unsuccessful, unrecoverable processing; the job
	// still moves to StateDone since the queue's own auto-retry is
	// disabled (spec §7 "the queue's auto-stalled-retry is disabled").
	Fail(ctx context.Context, job *ConsumedJob) error
}
