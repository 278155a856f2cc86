package pageproc

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/logger"
)

// manifestFetchTimeout bounds federated-manifest and federated-asset
// fetches, kept short since these run inline in the rewrite pipeline.
const manifestFetchTimeout = 15 * time.Second

// BrowserRenderer is the Page Processor's dependency on the headless
// browser path (spec §4.3 "Browser path"). Implemented by internal/browser.
type BrowserRenderer interface {
	Render(ctx context.Context, pageURL string) (html string, err error)
}

// Processor implements crawlexec.PageProcessor: it decides between the
// static and browser fetch paths, runs the shared HTML rewrite pipeline,
// and writes the rewritten page to disk (spec §4.3).
type Processor struct {
	outputDir   string
	removeBadge bool
	fetcher     *staticFetcher
	downloader  AssetDownloader
	browser     BrowserRenderer
	log         logger.Logger
}

// New builds a Page Processor. browser may be nil, in which case pages
// that would otherwise fall back to the browser path are returned as
// fetched statically (or fail, if the static fetch itself failed).
func New(outputDir string, removeBadge bool, downloader AssetDownloader, browser BrowserRenderer, log logger.Logger) *Processor {
	return &Processor{
		outputDir:   outputDir,
		removeBadge: removeBadge,
		fetcher:     newStaticFetcher(),
		downloader:  downloader,
		browser:     browser,
		log:         log,
	}
}

// Process fetches pageURL via the static-then-browser decision (spec §4.3
// steps 1-4), runs the rewrite pipeline, writes the archived HTML to disk,
// and returns the original (pre-rewrite) HTML for the caller's own link
// discovery.
func (p *Processor) Process(ctx context.Context, pageURL string) (string, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse page URL %q: %w", pageURL, err)
	}

	rawHTML, err := p.fetchRaw(ctx, pageURL)
	if err != nil {
		return "", err
	}

	mirror := newFederatedMirror(&http.Client{Timeout: manifestFetchTimeout}, p.outputDir, p.log)
	rw := newRewriter(parsed, p.removeBadge, p.downloader, mirror)

	rewritten, err := rw.rewrite(ctx, rawHTML)
	if err != nil {
		p.log.Warn("HTML rewrite failed, archiving raw page", logger.String("url", pageURL), logger.Error(err))
		rewritten = rawHTML
	}

	if err := p.writePage(parsed, rewritten); err != nil {
		return "", fmt.Errorf("write rewritten page for %s: %w", pageURL, err)
	}

	return rawHTML, nil
}

// fetchRaw runs the static fetch and, if it fails or the page's signals
// require it, falls back to the headless browser (spec §4.3 step 4).
func (p *Processor) fetchRaw(ctx context.Context, pageURL string) (string, error) {
	staticHTML, staticErr := p.fetcher.fetch(ctx, pageURL)
	if staticErr == nil && !needsBrowser(detectSignals(staticHTML)) {
		return staticHTML, nil
	}

	if p.browser == nil {
		if staticErr != nil {
			return "", staticErr
		}
		return staticHTML, nil
	}

	html, err := p.browser.Render(ctx, pageURL)
	if err != nil {
		if staticErr == nil {
			p.log.Warn("browser render failed, falling back to static HTML", logger.String("url", pageURL), logger.Error(err))
			return staticHTML, nil
		}
		return "", fmt.Errorf("render %s: %w", pageURL, err)
	}
	return html, nil
}

// writePage writes the rewritten HTML to a deterministic path under the
// output directory, mirroring the URL's path with an implicit index.html
// for directory-like URLs.
func (p *Processor) writePage(pageURL *url.URL, html string) error {
	rel := htmlOutputPath(pageURL)
	full := filepath.Join(p.outputDir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", rel, err)
	}
	return os.WriteFile(full, []byte(html), 0o644)
}

func htmlOutputPath(pageURL *url.URL) string {
	path := strings.TrimPrefix(pageURL.Path, "/")
	if path == "" || strings.HasSuffix(path, "/") {
		path += "index.html"
	} else if filepath.Ext(path) == "" {
		path += "/index.html"
	}
	return filepath.FromSlash(path)
}
