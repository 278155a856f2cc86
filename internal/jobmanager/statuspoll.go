package jobmanager

import (
	"context"
	"sync"
	"time"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/database"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/domain"
)

// abortReason distinguishes why shouldAbort returned true, so the driver
// can route to the right terminal branch (spec §4.5 step 5 "shouldAbort").
type abortReason int

const (
	abortNone abortReason = iota
	abortCancelled
	abortDeleted
)

// aborter is the cached-polling "still active?" check the Executor's
// ShouldAbort predicate calls on every iteration boundary (spec §4.5 step 5,
// §5 "Cancellation semantics"). It re-reads the Crawl row's status at most
// once per interval rather than on every call.
type aborter struct {
	crawls   *database.CrawlRepository
	crawlID  string
	interval time.Duration

	mu     sync.Mutex
	last   time.Time
	reason abortReason
}

func newAborter(crawls *database.CrawlRepository, crawlID string, interval time.Duration) *aborter {
	return &aborter{crawls: crawls, crawlID: crawlID, interval: interval}
}

// shouldAbort implements crawlexec.CancellationPredicate.
func (a *aborter) shouldAbort() bool {
	a.mu.Lock()
	if a.reason != abortNone || time.Since(a.last) < a.interval {
		r := a.reason
		a.mu.Unlock()
		return r != abortNone
	}
	a.mu.Unlock()

	status, ok, err := a.crawls.GetStatus(context.Background(), a.crawlID)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.last = time.Now()
	switch {
	case err != nil:
		// Transient read failure: don't abort on a DB blip.
	case !ok:
		a.reason = abortDeleted
	case status == domain.CrawlCancelled:
		a.reason = abortCancelled
	}
	return a.reason != abortNone
}

// reasonOf reports the cached reason the last poll observed, for the
// driver to branch on once the crawl phase has exited.
func (a *aborter) reasonOf() abortReason {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reason
}

// progressPersister throttles DB persistence of running page counters to
// at most once per interval, always writing through on the final progress
// call (spec §4.5 step 5 "at most every CRAWL_PROGRESS_PERSIST_INTERVAL_MS
// ... OR on final progress").
type progressPersister struct {
	crawls   *database.CrawlRepository
	crawlID  string
	interval time.Duration

	mu   sync.Mutex
	last time.Time
}

func newProgressPersister(crawls *database.CrawlRepository, crawlID string, interval time.Duration) *progressPersister {
	return &progressPersister{crawls: crawls, crawlID: crawlID, interval: interval}
}

func (p *progressPersister) record(ctx context.Context, progress domain.Progress) {
	final := progress.CurrentURL == ""

	p.mu.Lock()
	due := final || time.Since(p.last) >= p.interval
	if due {
		p.last = time.Now()
	}
	p.mu.Unlock()

	if !due {
		return
	}
	_ = p.crawls.UpdateProgress(ctx, p.crawlID, progress)
}
