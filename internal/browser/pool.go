// Package browser implements the headless-browser rendering path of the
// Page Processor (spec §4.3 "Browser path"), pooling chromedp browser
// contexts across crawls so a crawl's pages share one browser instance.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/logger"
)

// Config configures the pool's browser instances.
type Config struct {
	Instances          int
	Headless           bool
	DisableGPU         bool
	NoSandbox          bool
	UserAgent          string
	StartupTimeout     time.Duration
	SitemapOnly        bool
}

func (c Config) withDefaults() Config {
	if c.Instances <= 0 {
		c.Instances = 1
	}
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = 30 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = desktopUserAgent
	}
	return c
}

// instance is one long-lived browser process backing the pool (spec §4.3
// step 1 "one context shared across the whole crawl").
type instance struct {
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
}

// Pool round-robins crawls across a fixed number of browser instances.
// Grounded on ternarybob-quaero's `ChromeDPPool`
// (internal/services/crawler/chromedp_pool.go): exec-allocator options,
// a startup smoke test per instance, and round-robin `Acquire`.
type Pool struct {
	cfg  Config
	log  logger.Logger
	mu   sync.Mutex
	next int
	pool []*instance
}

// NewPool launches cfg.Instances browser processes and smoke-tests each
// with a blank-page navigation before returning.
func NewPool(cfg Config, log logger.Logger) (*Pool, error) {
	cfg = cfg.withDefaults()
	p := &Pool{cfg: cfg, log: log}

	for i := 0; i < cfg.Instances; i++ {
		inst, err := newInstance(cfg)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("create browser instance %d: %w", i, err)
		}
		p.pool = append(p.pool, inst)
	}

	if len(p.pool) == 0 {
		return nil, fmt.Errorf("browser pool: no instances created")
	}
	return p, nil
}

func newInstance(cfg Config) (*instance, error) {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", cfg.DisableGPU),
		chromedp.Flag("no-sandbox", cfg.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(cfg.UserAgent),
	)

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	testCtx, testCancel := context.WithTimeout(browserCtx, cfg.StartupTimeout)
	defer testCancel()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("startup smoke test: %w", err)
	}

	return &instance{allocatorCancel: allocatorCancel, browserCtx: browserCtx, browserCancel: browserCancel}, nil
}

// Acquire returns a Session bound to the next browser instance in
// round-robin order. The browser instance is shared by every page the
// caller renders through the returned Session.
func (p *Pool) Acquire() *Session {
	p.mu.Lock()
	inst := p.pool[p.next%len(p.pool)]
	p.next++
	p.mu.Unlock()

	return &Session{browserCtx: inst.browserCtx, log: p.log, sitemapOnly: p.cfg.SitemapOnly}
}

// Close shuts down every browser instance in the pool.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, inst := range p.pool {
		inst.browserCancel()
		inst.allocatorCancel()
	}
	p.pool = nil
}
