package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/domain"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/logger"
)

// desktopUserAgent matches the Page Processor's static-path UA so a site
// sees a consistent browser fingerprint across both paths.
const desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// AssetDownloader is the browser path's dependency on the Crawl
// Executor's Asset Downloader (spec §4.4 "Asset Downloader contract").
type AssetDownloader interface {
	Download(ctx context.Context, rawURL string, category domain.AssetCategory) (string, error)
}

// Session renders one page at a time against a pooled browser instance,
// implementing pageproc.BrowserRenderer (spec §4.3 "Browser path").
type Session struct {
	browserCtx  context.Context
	log         logger.Logger
	sitemapOnly bool
	downloader  AssetDownloader
}

// WithDownloader returns a copy of the session wired to download assets
// recorded during rendering (spec §4.3 step 5).
func (s *Session) WithDownloader(d AssetDownloader) *Session {
	clone := *s
	clone.downloader = d
	return &clone
}

// Render opens a new page in the session's shared browser context,
// navigates, triggers dynamic chunk loading, downloads recorded assets,
// and returns the final serialized HTML (spec §4.3 "Browser path" steps
// 1-6).
func (s *Session) Render(ctx context.Context, pageURL string) (string, error) {
	pageCtx, cancel := chromedp.NewContext(s.browserCtx)
	defer cancel()

	if err := chromedp.Run(pageCtx, network.Enable()); err != nil {
		return "", fmt.Errorf("enable network domain: %w", err)
	}

	listener := newAssetListener(pageURL)
	chromedp.ListenTarget(pageCtx, listener.handle)

	if err := s.navigate(pageCtx, pageURL); err != nil {
		return "", fmt.Errorf("navigate %s: %w", pageURL, err)
	}

	runTriggers(pageCtx, pageURL, s.sitemapOnly, listener)

	if s.downloader != nil {
		s.downloadAssets(ctx, listener.assetsSnapshot())
	}

	var html string
	if err := chromedp.Run(pageCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("extract HTML for %s: %w", pageURL, err)
	}
	return html, nil
}

// downloadAssets fetches every asset the response listener and chunk
// triggers recorded, logging failures as warnings rather than failing the
// page (spec §4.3 step 5 "failures are logged as warnings, not errors").
func (s *Session) downloadAssets(ctx context.Context, assets []recordedAsset) {
	for _, asset := range assets {
		if _, err := s.downloader.Download(ctx, asset.url, asset.category); err != nil {
			s.log.Warn("browser asset download failed",
				logger.String("url", asset.url), logger.String("category", string(asset.category)), logger.Error(err))
		}
	}
}
