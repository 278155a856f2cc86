package jobmanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/logger"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/queue"
)

// managerState mirrors the teacher's worker pool's start/stop/draining
// states (spec §5 "Scheduling model").
type managerState int32

const (
	managerStopped managerState = iota
	managerRunning
	managerDraining
)

// ManagerConfig bounds how many crawls one worker process runs at once and
// how often orphan reconciliation sweeps (spec §5, §4.5, §6).
type ManagerConfig struct {
	CrawlConcurrency     int
	OrphanReconcileEvery time.Duration
	DrainTimeout         time.Duration
}

// crawlRunner is a Manager's dependency on the per-job driver. Implemented
// by *Driver; an interface here so the consume loop is testable without a
// database.
type crawlRunner interface {
	Run(ctx context.Context, crawlID string) error
}

// orphanSweeper is a Manager's dependency on orphan reconciliation.
// Implemented by *Reconciler.
type orphanSweeper interface {
	Sweep(ctx context.Context) error
}

// Manager is the worker-process entry point: it consumes jobs from the
// durable queue, bounds how many crawls run concurrently, and runs orphan
// reconciliation on a timer (spec §4.5, §5). Grounded on the teacher's
// internal/worker.Pool (bounded semaphore, atomic state, WaitGroup drain).
type Manager struct {
	cfg        ManagerConfig
	queue      queue.Queue
	driver     crawlRunner
	reconciler orphanSweeper
	log        logger.Logger
	cron       *cron.Cron

	state  atomic.Int32
	sem    chan struct{}
	wg     sync.WaitGroup
	stopCh chan struct{}
}

// NewManager builds a Manager. Orphan reconciliation runs on the same
// "@every <duration>" cron descriptor the teacher's job scheduler uses for
// its calendar schedules (here applied to a fixed interval rather than a
// calendar expression, per spec §4.5 "every ORPHAN_CRAWL_RECONCILE_INTERVAL_MS").
func NewManager(cfg ManagerConfig, q queue.Queue, driver crawlRunner, reconciler orphanSweeper, log logger.Logger) *Manager {
	if cfg.CrawlConcurrency < 1 {
		cfg.CrawlConcurrency = 1
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 30 * time.Second
	}
	if cfg.OrphanReconcileEvery <= 0 {
		cfg.OrphanReconcileEvery = 2 * time.Minute
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Manager{
		cfg:        cfg,
		queue:      q,
		driver:     driver,
		reconciler: reconciler,
		log:        log,
		cron:       cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		sem:        make(chan struct{}, cfg.CrawlConcurrency),
		stopCh:     make(chan struct{}),
	}
}

// Start runs an initial orphan sweep, then launches the consume loop and
// schedules the periodic reconciliation sweep in the background (spec §4.5
// "runs on worker startup and every ORPHAN_CRAWL_RECONCILE_INTERVAL_MS").
func (m *Manager) Start(ctx context.Context) error {
	if !m.state.CompareAndSwap(int32(managerStopped), int32(managerRunning)) {
		return errors.New("jobmanager: already running")
	}

	if err := m.reconciler.Sweep(ctx); err != nil {
		m.log.Warn("initial orphan sweep failed", logger.Error(err))
	}

	spec := fmt.Sprintf("@every %s", m.cfg.OrphanReconcileEvery)
	if _, err := m.cron.AddFunc(spec, func() {
		if err := m.reconciler.Sweep(ctx); err != nil {
			m.log.Warn("orphan sweep failed", logger.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule orphan reconciliation: %w", err)
	}
	m.cron.Start()

	m.wg.Add(1)
	go m.consumeLoop(ctx)

	m.log.Info("job manager started", logger.Int("crawl_concurrency", m.cfg.CrawlConcurrency))
	return nil
}

// Stop signals the consume loop to exit, stops the reconciliation
// schedule, and waits for in-flight crawls to finish, up to DrainTimeout.
func (m *Manager) Stop(ctx context.Context) error {
	if !m.state.CompareAndSwap(int32(managerRunning), int32(managerDraining)) {
		return errors.New("jobmanager: not running")
	}
	close(m.stopCh)
	cronDone := m.cron.Stop()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		<-cronDone.Done()
		close(done)
	}()

	select {
	case <-done:
		m.log.Info("job manager stopped gracefully")
	case <-ctx.Done():
		m.log.Warn("job manager stop timed out waiting for context")
	case <-time.After(m.cfg.DrainTimeout):
		m.log.Warn("job manager drain timeout exceeded")
	}

	m.state.Store(int32(managerStopped))
	return nil
}

func (m *Manager) consumeLoop(ctx context.Context) {
	defer m.wg.Done()

	var inFlight sync.WaitGroup
	for {
		select {
		case <-m.stopCh:
			inFlight.Wait()
			return
		case <-ctx.Done():
			inFlight.Wait()
			return
		default:
		}

		job, err := m.queue.Consume(ctx)
		if err != nil {
			m.log.Warn("queue consume failed", logger.Error(err))
			continue
		}
		if job == nil {
			continue // blocking-read timeout; loop and check stopCh again
		}

		select {
		case m.sem <- struct{}{}:
		case <-m.stopCh:
			inFlight.Wait()
			return
		}

		inFlight.Add(1)
		go func() {
			defer func() {
				<-m.sem
				inFlight.Done()
			}()
			m.process(ctx, job)
		}()
	}
}

func (m *Manager) process(ctx context.Context, job *queue.ConsumedJob) {
	if err := m.driver.Run(ctx, job.CrawlID); err != nil {
		m.log.Error("crawl job finished with error", logger.String("crawl_id", job.CrawlID), logger.Error(err))
		if ackErr := m.queue.Fail(ctx, job); ackErr != nil {
			m.log.Warn("failed to record queue failure", logger.String("crawl_id", job.CrawlID), logger.Error(ackErr))
		}
		return
	}
	if err := m.queue.Ack(ctx, job); err != nil {
		m.log.Warn("failed to ack completed queue job", logger.String("crawl_id", job.CrawlID), logger.Error(err))
	}
}

