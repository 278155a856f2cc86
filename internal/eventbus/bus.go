package eventbus

import "context"

// Bus is the Event Bus interface (spec §4.2, §9 "Event fan-out": a
// two-method interface so pub/sub and in-memory transports are
// interchangeable). The capped-stream append is a side effect of Publish,
// not a separate operation.
type Bus interface {
	// Publish pushes event to crawlID's live channel and appends it to the
	// capped replay stream in the same call.
	Publish(ctx context.Context, crawlID string, event Event) error

	// Subscribe delivers every future event published for crawlID until
	// the returned cleanup func is called or ctx is cancelled. The
	// returned channel is closed once delivery stops.
	Subscribe(ctx context.Context, crawlID string) (events <-chan Event, cleanup func(), err error)

	// Replay reads up to limit of the most recent entries from crawlID's
	// capped stream, oldest first. Used for explicit replay requests, not
	// by Subscribe (spec §4.2: "newly-attached subscribers do NOT receive
	// pre-existing events... by default").
	Replay(ctx context.Context, crawlID string, limit int64) ([]Event, error)
}
