// Package crawlexec implements the Crawl Executor: frontier seeding,
// a bounded worker pool that drives the Page Processor across one site,
// and the on-disk resume state it produces.
package crawlexec

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/domain"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/logger"
)

// desktopUserAgent is used for every plain HTTP fetch the executor and its
// helpers make (sitemap/robots discovery, asset downloads).
const desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// PageProcessor renders one URL to a rewritten HTML file on disk and
// returns the original HTML for link discovery (spec §4.3).
type PageProcessor interface {
	Process(ctx context.Context, pageURL string) (rawHTML string, err error)
}

// CancellationPredicate reports whether the current crawl attempt should
// abort (spec §4.4 step 2a, driven by the Job Lifecycle Manager's status
// poll).
type CancellationPredicate func() bool

// ProgressFunc is invoked after every page outcome (spec §4.4 step 3).
type ProgressFunc func(domain.Progress)

// LogFunc is invoked for executor-level log events (spec §4.4's "emit an
// info log", "emit a warn log").
type LogFunc func(level domain.LogLevel, message, url string)

// Config configures one Executor run.
type Config struct {
	BaseURL           string
	Concurrency       int
	MaxPages          int // 0 means unbounded
	ExcludePatterns   []*regexp.Regexp
	OutputDir         string
	Resume            bool
	PageMaxRetries    int
	PageRetryDelay    time.Duration
	Processor         PageProcessor
	ShouldAbort       CancellationPredicate
	OnProgress        ProgressFunc
	OnLog             LogFunc
	HonorRobotsPolicy bool
}

// Result is the crawl attempt's final tally (spec §4.4 Output).
type Result struct {
	Total       int
	Succeeded   int
	Failed      int
	DurationMS  int64
}

// Executor drives one crawl attempt's frontier to completion.
type Executor struct {
	cfg    Config
	log    logger.Logger
	state  *stateStore
	seeder *seeder
	robots *robotsChecker

	mu         sync.Mutex
	doneSet    map[string]struct{}
	discovered int
	succeeded  int
	failed     int

	// enqueueFn is bound at the start of Run; handle/recordSuccess reach it
	// to feed newly discovered links back into the frontier.
	enqueueFn func(string)
}

// New builds an Executor for one crawl attempt.
func New(cfg Config, log logger.Logger) *Executor {
	client := &http.Client{Timeout: 10 * time.Second}
	robots := newRobotsChecker(client, desktopUserAgent, log)

	return &Executor{
		cfg:     cfg,
		log:     log,
		state:   newStateStore(cfg.OutputDir),
		seeder:  newSeeder(client, robots, log),
		robots:  robots,
		doneSet: make(map[string]struct{}),
	}
}

type frontierJob struct {
	url   string
	retry int
}

// Run seeds the frontier and drives the bounded worker pool to completion
// (spec §4.4).
func (e *Executor) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	e.logEvent(domain.LogInfo, fmt.Sprintf("Starting crawl of %s", e.cfg.BaseURL), "")

	origin, err := originOf(e.cfg.BaseURL)
	if err != nil {
		return Result{}, fmt.Errorf("invalid base URL %q: %w", e.cfg.BaseURL, err)
	}

	if e.cfg.Resume {
		if state, ok := e.state.load(); ok {
			e.mu.Lock()
			for _, u := range state.Succeeded {
				e.doneSet[normalizeURL(u)] = struct{}{}
			}
			for _, u := range state.Failed {
				e.doneSet[normalizeURL(u)] = struct{}{}
			}
			e.succeeded = len(state.Succeeded)
			e.failed = len(state.Failed)
			e.mu.Unlock()
		}
	}

	seeds := e.seeder.seed(ctx, e.cfg.BaseURL)

	concurrency := e.cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	jobs := make(chan frontierJob, concurrency*4)
	var pending sync.WaitGroup

	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		group.Go(func() error {
			e.worker(groupCtx, origin, jobs, &pending)
			return nil
		})
	}

	enqueued := make(map[string]struct{})
	var enqMu sync.Mutex
	enqueue := func(u string) {
		n := normalizeURL(u)
		enqMu.Lock()
		if _, ok := enqueued[n]; ok {
			enqMu.Unlock()
			return
		}
		if e.cfg.MaxPages > 0 && len(enqueued) >= e.cfg.MaxPages {
			enqMu.Unlock()
			return
		}
		enqueued[n] = struct{}{}
		enqMu.Unlock()

		e.mu.Lock()
		e.discovered++
		e.mu.Unlock()

		// The send runs on its own goroutine so a worker feeding discovered
		// links back into a full jobs buffer never blocks the pool.
		pending.Add(1)
		go func() {
			select {
			case jobs <- frontierJob{url: u}:
			case <-groupCtx.Done():
				pending.Done()
			}
		}()
	}

	e.enqueueFn = enqueue
	for _, s := range seeds {
		enqueue(s)
	}

	go func() {
		pending.Wait()
		close(jobs)
	}()

	_ = group.Wait()

	e.mu.Lock()
	result := Result{
		Total:      e.discovered,
		Succeeded:  e.succeeded,
		Failed:     e.failed,
		DurationMS: time.Since(start).Milliseconds(),
	}
	e.mu.Unlock()

	if e.cfg.OnProgress != nil {
		e.cfg.OnProgress(domain.Progress{Total: result.Total, Succeeded: result.Succeeded, Failed: result.Failed})
	}
	return result, nil
}

func (e *Executor) worker(ctx context.Context, origin string, jobs <-chan frontierJob, pending *sync.WaitGroup) {
	for {
		select {
		case <-ctx.Done():
			e.drain(jobs, pending)
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			e.handle(ctx, origin, job)
			pending.Done()
		}
	}
}

// drain unblocks pending.Wait() for jobs left in the channel once the
// context is cancelled, without processing them.
func (e *Executor) drain(jobs <-chan frontierJob, pending *sync.WaitGroup) {
	for {
		select {
		case _, ok := <-jobs:
			if !ok {
				return
			}
			pending.Done()
		default:
			return
		}
	}
}

func (e *Executor) handle(ctx context.Context, origin string, job frontierJob) {
	if e.cfg.ShouldAbort != nil && e.cfg.ShouldAbort() {
		return
	}
	if e.skip(ctx, job.url, origin) {
		return
	}

	html, err := e.processWithRetry(ctx, job.url, job.retry)
	if err != nil {
		e.recordFailure(job.url, err)
		return
	}
	e.recordSuccess(job.url, html, origin)
}

func (e *Executor) skip(ctx context.Context, rawURL, origin string) bool {
	n := normalizeURL(rawURL)

	e.mu.Lock()
	_, done := e.doneSet[n]
	e.mu.Unlock()
	if done {
		return true
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return true
	}
	if o, err := originOf(rawURL); err != nil || o != origin {
		return true
	}
	for _, re := range e.cfg.ExcludePatterns {
		if re.MatchString(rawURL) {
			return true
		}
	}
	if e.cfg.HonorRobotsPolicy && !e.robots.allowed(ctx, rawURL) {
		return true
	}
	return false
}

func (e *Executor) processWithRetry(ctx context.Context, pageURL string, attempt int) (string, error) {
	maxRetries := e.cfg.PageMaxRetries
	baseDelay := e.cfg.PageRetryDelay

	var lastErr error
	for try := 0; try <= maxRetries; try++ {
		if try > 0 {
			select {
			case <-time.After(baseDelay * time.Duration(try)):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		html, err := e.cfg.Processor.Process(ctx, pageURL)
		if err == nil {
			return html, nil
		}
		lastErr = err
	}
	return "", lastErr
}

func (e *Executor) recordSuccess(pageURL, html, origin string) {
	if err := e.state.recordSuccess(pageURL); err != nil {
		e.logEvent(domain.LogWarn, "failed to persist crawl state", pageURL)
	}

	e.mu.Lock()
	e.doneSet[normalizeURL(pageURL)] = struct{}{}
	e.succeeded++
	total, succeeded, failed := e.discovered, e.succeeded, e.failed
	e.mu.Unlock()

	if e.cfg.OnProgress != nil {
		e.cfg.OnProgress(domain.Progress{Total: total, Succeeded: succeeded, Failed: failed, CurrentURL: pageURL})
	}

	for _, link := range extractLinks(html, pageURL, origin) {
		e.enqueueFn(link)
	}
}

func (e *Executor) recordFailure(pageURL string, cause error) {
	if err := e.state.recordFailure(pageURL); err != nil {
		e.logEvent(domain.LogWarn, "failed to persist crawl state", pageURL)
	}

	e.mu.Lock()
	e.doneSet[normalizeURL(pageURL)] = struct{}{}
	e.failed++
	total, succeeded, failed := e.discovered, e.succeeded, e.failed
	e.mu.Unlock()

	e.logEvent(domain.LogWarn, fmt.Sprintf("page failed: %v", cause), pageURL)

	if e.cfg.OnProgress != nil {
		e.cfg.OnProgress(domain.Progress{Total: total, Succeeded: succeeded, Failed: failed, CurrentURL: pageURL})
	}
}

func (e *Executor) logEvent(level domain.LogLevel, message, url string) {
	if e.cfg.OnLog != nil {
		e.cfg.OnLog(level, message, url)
	}
}
