package jobmanager

import (
	"context"
	"fmt"
	"time"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/database"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/logger"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/metrics"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/queue"
)

// Reconciler periodically sweeps Crawls that look abandoned by a dead
// worker and either re-enqueues, leaves alone, or fails them (spec §4.5
// "Orphan reconciliation").
type Reconciler struct {
	crawls  *database.CrawlRepository
	queue   queue.Queue
	grace   time.Duration
	log     logger.Logger
	metrics *metrics.Registry
}

// NewReconciler builds a Reconciler. m is optional; pass the same Registry
// given to the worker's Driver to get one combined counter snapshot (spec
// §12 "Metrics").
func NewReconciler(crawls *database.CrawlRepository, q queue.Queue, grace time.Duration, log logger.Logger, m *metrics.Registry) *Reconciler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Reconciler{crawls: crawls, queue: q, grace: grace, log: log, metrics: m}
}

// Sweep runs one reconciliation pass (spec §4.5 "runs on worker startup and
// every ORPHAN_CRAWL_RECONCILE_INTERVAL_MS").
func (r *Reconciler) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-r.grace)

	candidates, err := r.crawls.ListOrphanCandidates(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list orphan candidates: %w", err)
	}

	for _, c := range candidates {
		r.reconcileOne(ctx, c.ID)
	}
	return nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, crawlID string) {
	job, err := r.queue.GetJob(ctx, crawlID)
	if err != nil {
		r.log.Warn("orphan reconciliation: failed to look up queue job", logger.String("crawl_id", crawlID), logger.Error(err))
		return
	}

	if job == nil {
		r.reenqueue(ctx, crawlID)
		return
	}

	state, ok, err := r.queue.GetState(ctx, crawlID)
	if err != nil {
		r.log.Warn("orphan reconciliation: failed to read queue state", logger.String("crawl_id", crawlID), logger.Error(err))
		return
	}
	if !ok {
		r.reenqueue(ctx, crawlID)
		return
	}

	switch state {
	case queue.StateQueued, queue.StateActive:
		// An active/queued queue state means some worker still owns this
		// job; leave it alone (spec §4.5 "If the job is in an active queue
		// state, leave it alone").
		return
	case queue.StateDone:
		message := fmt.Sprintf("crawl abandoned: queue job %s reached a terminal state without completing", crawlID)
		if err := r.crawls.Fail(ctx, crawlID, message); err != nil {
			r.log.Warn("orphan reconciliation: failed to mark crawl failed", logger.String("crawl_id", crawlID), logger.Error(err))
			return
		}
		if r.metrics != nil {
			r.metrics.OrphansFailed.Inc()
		}
		r.log.Warn("orphan reconciliation: marked abandoned crawl failed", logger.String("crawl_id", crawlID))
	}
}

// reenqueue adds a fresh queue job for a crawl whose prior job vanished
// entirely (spec §4.5 "re-enqueue a fresh queue job with the same crawl ID
// (resume will be picked up from the on-disk state file if present)").
func (r *Reconciler) reenqueue(ctx context.Context, crawlID string) {
	if err := r.queue.Add(ctx, crawlID); err != nil {
		r.log.Warn("orphan reconciliation: failed to re-enqueue crawl", logger.String("crawl_id", crawlID), logger.Error(err))
		return
	}
	if r.metrics != nil {
		r.metrics.OrphansReenqueued.Inc()
	}
	r.log.Warn("orphan reconciliation: re-enqueued crawl with no queue job", logger.String("crawl_id", crawlID))
}
