// Package jobmanager implements the Job Lifecycle Manager (spec §4.5): it
// consumes jobs from the durable queue, drives one Crawl through its state
// machine end to end (lease, run, upload, terminate), and reconciles
// orphaned crawls a dead worker left behind. Grounded on the teacher's
// internal/worker package (bounded pool, start/stop/drain) and
// internal/scheduler/state_machine.go (transition validation), adapted from
// a generic job-pool shape to this spec's specific eleven-step per-job
// driver.
package jobmanager

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"time"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/crawlexec"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/database"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/domain"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/eventbus"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/logger"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/metrics"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/storage"
)

// ProcessorFactory builds the Page Processor for one crawl attempt, wiring
// an asset downloader shared between the rewrite pipeline and the browser
// path (spec §4.3, §4.4 "Asset Downloader contract").
type ProcessorFactory func(site *domain.Site, outputDir string, downloader *crawlexec.Downloader) crawlexec.PageProcessor

// Config configures every Driver's timing knobs (spec §6's environment
// table).
type Config struct {
	MaxDuration             time.Duration
	ProgressPersistInterval time.Duration
	StatusCheckInterval     time.Duration
	PageMaxRetries          int
	PageRetryDelay          time.Duration
	MaxSiteConcurrency      int
}

// Driver runs one crawl job to a terminal state (spec §4.5 "Per-job
// driver").
type Driver struct {
	cfg       Config
	sites     *database.SiteRepository
	crawls    *database.CrawlRepository
	crawlLogs *database.CrawlLogRepository
	settings  *database.SettingsRepository
	store     storage.Adapter
	bus       eventbus.Bus
	processor ProcessorFactory
	log       logger.Logger
	metrics   *metrics.Registry
}

// Dependencies collects a Driver's collaborators. Metrics is optional; a
// worker can share one Registry between its Driver and Reconciler to get a
// single snapshot of the whole process (spec §12 "Metrics").
type Dependencies struct {
	Sites     *database.SiteRepository
	Crawls    *database.CrawlRepository
	CrawlLogs *database.CrawlLogRepository
	Settings  *database.SettingsRepository
	Storage   storage.Adapter
	Bus       eventbus.Bus
	Processor ProcessorFactory
	Log       logger.Logger
	Metrics   *metrics.Registry
}

// NewDriver builds a Driver.
func NewDriver(cfg Config, deps Dependencies) *Driver {
	log := deps.Log
	if log == nil {
		log = logger.NewNop()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.NewRegistry()
	}
	return &Driver{
		cfg:       cfg,
		sites:     deps.Sites,
		crawls:    deps.Crawls,
		crawlLogs: deps.CrawlLogs,
		settings:  deps.Settings,
		store:     deps.Storage,
		bus:       deps.Bus,
		processor: deps.Processor,
		log:       log,
		metrics:   m,
	}
}

// Run drives crawlID from pending through to a terminal state (spec §4.5
// steps 1-11). The returned error is what the queue consumer reports back
// to the job queue (spec §4.5 step 11 "re-throw to the queue").
func (d *Driver) Run(ctx context.Context, crawlID string) error {
	crawl, err := d.crawls.GetByID(ctx, crawlID)
	if err != nil {
		return fmt.Errorf("load crawl %s: %w", crawlID, err)
	}
	if !schedulable(crawl.Status) {
		d.log.Info("skipping leased job, crawl is no longer active",
			logger.String("crawl_id", crawlID), logger.String("status", string(crawl.Status)))
		return nil
	}

	site, err := d.sites.GetByID(ctx, crawl.SiteID)
	if err != nil {
		d.guardTransition(crawlID, crawl.Status, domain.CrawlFailed)
		d.incMetric(&d.metrics.CrawlsFailed)
		_ = d.crawls.Fail(ctx, crawlID, "site no longer exists")
		return fmt.Errorf("load site %s for crawl %s: %w", crawl.SiteID, crawlID, err)
	}

	// TransitionRunning alone is idempotent by design (COALESCE'd started_at)
	// to tolerate a redelivered job that is already running; it is not put
	// through guardTransition since crawl.Status == running is itself a
	// legal redelivery, not a state-machine violation.
	if err := d.crawls.TransitionRunning(ctx, crawlID); err != nil {
		return fmt.Errorf("transition crawl %s to running: %w", crawlID, err)
	}
	d.incMetric(&d.metrics.CrawlsStarted)
	d.logEvent(ctx, crawlID, domain.LogInfo, fmt.Sprintf("starting crawl of %s", site.BaseURL), "")

	blocklist, err := d.mergedBlocklist(ctx, site)
	if err != nil {
		return fmt.Errorf("resolve download blocklist for crawl %s: %w", crawlID, err)
	}

	concurrency, clamped := site.EffectiveConcurrency(d.cfg.MaxSiteConcurrency)
	if clamped {
		d.logEvent(ctx, crawlID, domain.LogWarn,
			fmt.Sprintf("site concurrency clamped to %d (MAX_SITE_CONCURRENCY)", concurrency), "")
	}

	tempDir, err := d.store.MakeTempDir(crawlID)
	if err != nil {
		d.guardTransition(crawlID, domain.CrawlRunning, domain.CrawlFailed)
		d.incMetric(&d.metrics.CrawlsFailed)
		_ = d.crawls.Fail(ctx, crawlID, "failed to allocate temp directory")
		return fmt.Errorf("allocate temp dir for crawl %s: %w", crawlID, err)
	}

	resume := d.decideResume(ctx, crawlID, tempDir)

	downloader := crawlexec.NewDownloader(tempDir, blocklist, d.log)
	pageProcessor := d.processor(site, tempDir, downloader)

	aborter := newAborter(d.crawls, crawlID, d.cfg.StatusCheckInterval)
	progressTracker := newProgressPersister(d.crawls, crawlID, d.cfg.ProgressPersistInterval)

	var maxPages int
	if site.MaxPages != nil {
		maxPages = *site.MaxPages
	}

	execCfg := crawlexec.Config{
		BaseURL:         site.BaseURL,
		Concurrency:     concurrency,
		MaxPages:        maxPages,
		ExcludePatterns: compileExcludes(site.ExcludePatterns),
		OutputDir:       tempDir,
		Resume:          resume,
		PageMaxRetries:  d.cfg.PageMaxRetries,
		PageRetryDelay:  d.cfg.PageRetryDelay,
		Processor:       pageProcessor,
		ShouldAbort:     aborter.shouldAbort,
		OnProgress: func(p domain.Progress) {
			d.publishProgress(ctx, crawlID, p, "")
			progressTracker.record(ctx, p)
		},
		OnLog: func(level domain.LogLevel, message, url string) {
			d.logEvent(ctx, crawlID, level, message, url)
		},
	}
	executor := crawlexec.New(execCfg, d.log)

	crawlCtx, cancelCrawlPhase := context.WithTimeout(ctx, d.cfg.MaxDuration)
	result, runErr := executor.Run(crawlCtx)
	timedOut := crawlCtx.Err() == context.DeadlineExceeded
	cancelCrawlPhase()

	switch {
	case aborter.reasonOf() == abortCancelled:
		return d.finishCancelled(ctx, crawlID, tempDir)
	case aborter.reasonOf() == abortDeleted:
		d.log.Warn("crawl row disappeared mid-run, abandoning", logger.String("crawl_id", crawlID))
		return nil
	case timedOut:
		return d.finishTimedOut(ctx, crawlID, site, tempDir, result)
	case runErr != nil:
		return d.finishFailed(ctx, crawlID, crawl, tempDir, runErr)
	default:
		return d.finishCompleted(ctx, crawlID, site, tempDir, result)
	}
}

// guardTransition logs a state-machine violation without aborting the
// crawl: by the time a driver step calls this, the repository UPDATE it
// guards is about to run regardless, so this is a correctness assertion
// over the code's own control flow (spec §4.5 "State machine"), not a
// gate a caller can fail to pass.
func (d *Driver) guardTransition(crawlID string, from, to domain.CrawlStatus) {
	if err := validateTransition(from, to); err != nil {
		d.log.Error("state machine violation", logger.String("crawl_id", crawlID), logger.Error(err))
	}
}

// incMetric increments a counter if this Driver was built with a Registry;
// struct literals in tests that skip NewDriver leave metrics nil, and
// counting is best-effort observability, not load-bearing behavior.
func (d *Driver) incMetric(c *metrics.Counter) {
	if d.metrics == nil {
		return
	}
	c.Inc()
}

// mergedBlocklist computes the global ∪ site download blocklist, deduped
// (spec §4.5 step 3).
func (d *Driver) mergedBlocklist(ctx context.Context, site *domain.Site) (domain.StringSlice, error) {
	global, err := d.settings.GetDownloadBlocklist(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(global)+len(site.DownloadBlocklist))
	merged := make(domain.StringSlice, 0, len(global)+len(site.DownloadBlocklist))
	for _, entry := range append(append(domain.StringSlice{}, global...), site.DownloadBlocklist...) {
		if _, ok := seen[entry]; ok {
			continue
		}
		seen[entry] = struct{}{}
		merged = append(merged, entry)
	}
	return merged, nil
}

// decideResume inspects the temp dir's resume state file and logs the
// reasoning spec §4.5 step 4 calls for ("fresh / resumed with counts /
// expected but missing on retry / invalid format").
func (d *Driver) decideResume(ctx context.Context, crawlID, tempDir string) bool {
	data, err := os.ReadFile(crawlexec.StateFilePath(tempDir))
	if os.IsNotExist(err) {
		d.logEvent(ctx, crawlID, domain.LogInfo, "fresh crawl, no resume state found", "")
		return false
	}
	if err != nil {
		d.logEvent(ctx, crawlID, domain.LogWarn, "resume state expected but unreadable, starting fresh", "")
		return false
	}

	state, ok := crawlexec.ParseState(data)
	if !ok {
		d.logEvent(ctx, crawlID, domain.LogWarn, "resume state file is malformed, starting fresh", "")
		return false
	}
	d.logEvent(ctx, crawlID, domain.LogInfo,
		fmt.Sprintf("resuming: %d succeeded, %d failed already recorded", len(state.Succeeded), len(state.Failed)), "")
	return true
}

func (d *Driver) finishCompleted(ctx context.Context, crawlID string, site *domain.Site, tempDir string, result crawlexec.Result) error {
	d.guardTransition(crawlID, domain.CrawlRunning, domain.CrawlUploading)
	if err := d.crawls.TransitionUploading(ctx, crawlID); err != nil {
		return fmt.Errorf("transition crawl %s to uploading: %w", crawlID, err)
	}

	outputPath, outputSize, err := d.buildAndUpload(ctx, crawlID, tempDir)
	if err != nil {
		d.guardTransition(crawlID, domain.CrawlUploading, domain.CrawlFailed)
		d.incMetric(&d.metrics.CrawlsFailed)
		_ = d.crawls.Fail(ctx, crawlID, fmt.Sprintf("archive upload failed: %v", err))
		d.logEvent(ctx, crawlID, domain.LogError, "archive upload failed", "")
		return d.finalizeTempDir(crawlID, tempDir, err)
	}

	progress := domain.Progress{Total: result.Total, Succeeded: result.Succeeded, Failed: result.Failed}
	d.guardTransition(crawlID, domain.CrawlUploading, domain.CrawlCompleted)
	if err := d.crawls.Complete(ctx, crawlID, outputPath, outputSize, progress); err != nil {
		return fmt.Errorf("mark crawl %s completed: %w", crawlID, err)
	}
	d.incMetric(&d.metrics.CrawlsCompleted)
	d.logEvent(ctx, crawlID, domain.LogInfo, "crawl completed", "")

	d.pruneOldArchives(ctx, site)
	_ = d.store.RemoveTempDir(tempDir)
	return nil
}

func (d *Driver) finishTimedOut(ctx context.Context, crawlID string, site *domain.Site, tempDir string, result crawlexec.Result) error {
	d.guardTransition(crawlID, domain.CrawlRunning, domain.CrawlUploading)
	if err := d.crawls.TransitionUploading(ctx, crawlID); err != nil {
		return fmt.Errorf("transition crawl %s to uploading: %w", crawlID, err)
	}
	d.logEvent(ctx, crawlID, domain.LogWarn, "crawl exceeded max duration, uploading partial archive", "")

	outputPath, outputSize, err := d.buildAndUpload(ctx, crawlID, tempDir)
	if err != nil {
		d.guardTransition(crawlID, domain.CrawlUploading, domain.CrawlFailed)
		d.incMetric(&d.metrics.CrawlsFailed)
		_ = d.crawls.Fail(ctx, crawlID, fmt.Sprintf("partial archive upload failed: %v", err))
		return d.finalizeTempDir(crawlID, tempDir, err)
	}

	_ = result
	d.guardTransition(crawlID, domain.CrawlUploading, domain.CrawlTimedOut)
	if err := d.crawls.TimedOut(ctx, crawlID, outputPath, outputSize, "crawl exceeded max duration"); err != nil {
		return fmt.Errorf("mark crawl %s timed out: %w", crawlID, err)
	}
	d.incMetric(&d.metrics.CrawlsTimedOut)
	d.pruneOldArchives(ctx, site)
	_ = d.store.RemoveTempDir(tempDir)
	return nil
}

func (d *Driver) finishCancelled(ctx context.Context, crawlID, tempDir string) error {
	d.guardTransition(crawlID, domain.CrawlRunning, domain.CrawlCancelled)
	if err := d.crawls.Cancel(ctx, crawlID); err != nil {
		d.log.Warn("failed to persist cancelled status", logger.String("crawl_id", crawlID), logger.Error(err))
	}
	d.incMetric(&d.metrics.CrawlsCancelled)
	d.logEvent(ctx, crawlID, domain.LogWarn, "crawl cancelled", "")
	_ = d.store.RemoveTempDir(tempDir)
	return nil
}

func (d *Driver) finishFailed(ctx context.Context, crawlID string, crawl *domain.Crawl, tempDir string, cause error) error {
	d.guardTransition(crawlID, domain.CrawlRunning, domain.CrawlFailed)
	if err := d.crawls.Fail(ctx, crawlID, cause.Error()); err != nil {
		d.log.Error("failed to persist failed status", logger.String("crawl_id", crawlID), logger.Error(err))
	}
	d.incMetric(&d.metrics.CrawlsFailed)
	d.logEvent(ctx, crawlID, domain.LogError, fmt.Sprintf("crawl failed: %v", cause), "")

	if crawl.CurrentAttempt < crawl.MaxAttempts {
		d.log.Info("retaining temp dir for future retry", logger.String("crawl_id", crawlID))
	} else {
		_ = d.store.RemoveTempDir(tempDir)
	}
	return cause
}

// finalizeTempDir removes the temp dir after an upload failure in the
// completed/timed-out branches and returns cause. The removal is
// unconditional: unlike finishFailed, it does not keep the temp dir when
// crawl attempts remain.
func (d *Driver) finalizeTempDir(crawlID, tempDir string, cause error) error {
	_ = d.store.RemoveTempDir(tempDir)
	return cause
}

// buildAndUpload builds the deflate ZIP and streams it to storage, throttling
// upload-progress persistence to at most once per second (spec §4.5 step 7).
func (d *Driver) buildAndUpload(ctx context.Context, crawlID, tempDir string) (string, int64, error) {
	zipPath, size, err := buildArchive(tempDir)
	if err != nil {
		return "", 0, fmt.Errorf("build archive: %w", err)
	}

	lastPersist := time.Time{}
	err = uploadArchive(ctx, d.store, crawlID, zipPath, func(totalBytes, uploadedBytes int64) {
		up := domain.UploadProgress{TotalBytes: totalBytes, UploadedBytes: uploadedBytes}
		d.publishUploadProgress(ctx, crawlID, up)

		if time.Since(lastPersist) < time.Second {
			return
		}
		lastPersist = time.Now()
		if err := d.crawls.UpdateUploadProgress(ctx, crawlID, up); err != nil {
			d.log.Warn("failed to persist upload progress", logger.String("crawl_id", crawlID), logger.Error(err))
		}
	})
	if err != nil {
		return "", 0, err
	}
	return archiveKey(crawlID), size, nil
}

// pruneOldArchives keeps the site's most recent MaxArchivesToKeep archives,
// deleting the rest from storage and clearing their DB output pointers
// (spec §4.5 step 8).
func (d *Driver) pruneOldArchives(ctx context.Context, site *domain.Site) {
	if site.Unbounded() {
		return
	}

	crawls, err := d.crawls.ListCompletedForSite(ctx, site.ID)
	if err != nil {
		d.log.Warn("failed to list completed crawls for pruning", logger.String("site_id", site.ID), logger.Error(err))
		return
	}
	sort.SliceStable(crawls, func(i, j int) bool {
		return crawlCompletedAt(crawls[i]).After(crawlCompletedAt(crawls[j]))
	})

	keep := *site.MaxArchivesToKeep
	for i, c := range crawls {
		if i < keep {
			continue
		}
		if c.OutputPath == nil {
			continue
		}
		if err := d.store.DeletePrefix(ctx, *c.OutputPath); err != nil {
			d.log.Warn("failed to delete pruned archive", logger.String("crawl_id", c.ID), logger.Error(err))
			continue
		}
		if err := d.crawls.ClearOutput(ctx, c.ID); err != nil {
			d.log.Warn("failed to clear pruned crawl output pointer", logger.String("crawl_id", c.ID), logger.Error(err))
		}
	}
}

func crawlCompletedAt(c *domain.Crawl) time.Time {
	if c.CompletedAt == nil {
		return time.Time{}
	}
	return *c.CompletedAt
}

func (d *Driver) logEvent(ctx context.Context, crawlID string, level domain.LogLevel, message, url string) {
	if level == domain.LogDebug {
		return
	}

	var urlPtr *string
	if url != "" {
		urlPtr = &url
	}
	entry := domain.CrawlLogEntry{CrawlID: crawlID, Timestamp: time.Now().UTC(), Level: level, Message: message, URL: urlPtr}
	if err := d.crawlLogs.Append(ctx, entry); err != nil {
		d.log.Warn("failed to persist crawl log entry", logger.String("crawl_id", crawlID), logger.Error(err))
	}

	if err := d.bus.Publish(ctx, crawlID, eventbus.NewLogEvent(toEventLevel(level), message, url)); err != nil {
		d.log.Warn("failed to publish log event", logger.String("crawl_id", crawlID), logger.Error(err))
	}
}

func (d *Driver) publishProgress(ctx context.Context, crawlID string, p domain.Progress, phase string) {
	event := eventbus.NewProgressEvent(p.Total, p.Succeeded, p.Failed, p.CurrentURL, phase, nil)
	if err := d.bus.Publish(ctx, crawlID, event); err != nil {
		d.log.Warn("failed to publish progress event", logger.String("crawl_id", crawlID), logger.Error(err))
	}
}

func (d *Driver) publishUploadProgress(ctx context.Context, crawlID string, up domain.UploadProgress) {
	payload := &eventbus.UploadProgress{TotalBytes: up.TotalBytes, UploadedBytes: up.UploadedBytes, CurrentFile: up.CurrentFile}
	event := eventbus.NewProgressEvent(0, 0, 0, "", "uploading", payload)
	if err := d.bus.Publish(ctx, crawlID, event); err != nil {
		d.log.Warn("failed to publish upload progress event", logger.String("crawl_id", crawlID), logger.Error(err))
	}
}

func toEventLevel(level domain.LogLevel) eventbus.LogLevel {
	switch level {
	case domain.LogWarn:
		return eventbus.LogWarn
	case domain.LogError:
		return eventbus.LogError
	default:
		return eventbus.LogInfo
	}
}

// compileExcludes compiles a Site's exclude-pattern strings, silently
// dropping any that fail to compile rather than failing the whole crawl
// over one bad regex (a bad pattern is a site-config mistake, not a crawl
// failure).
func compileExcludes(patterns domain.StringSlice) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		compiled = append(compiled, re)
	}
	return compiled
}
