package browser

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/domain"
)

// chunkHrefPattern matches *.chunk.<hex>.js hrefs (spec §4.3 step 4a).
var chunkHrefPattern = regexp.MustCompile(`\.chunk\.[0-9a-f]+\.js`)

// inlineChunkPattern matches the chunk-literal shapes spec §4.3 step 4d
// calls out: `.chunk.<hex>.js`, `.achunk.<hex>.js`, `/js/*.js`.
var inlineChunkPattern = regexp.MustCompile(`["'](?:[\w./-]*\.a?chunk\.[0-9a-f]+\.js|/js/[\w.-]+\.js)["']`)

const maxWebpackChunkProbe = 100
const maxMouseoverTargets = 20

// runTriggers runs the six dynamic chunk-loading triggers spec §4.3 step 4
// describes, adding every same-origin asset URL they discover to listener.
func runTriggers(ctx context.Context, pageURL string, sitemapOnly bool, listener *assetListener) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return
	}

	hrefChunks := scanChunkHrefs(ctx)
	webpackChunks := probeWebpackRuntime(ctx)
	globalChunks := scanChunkGlobals(ctx)
	inlineChunks := scanInlineChunkLiterals(ctx)

	for _, ref := range hrefChunks {
		addResolved(listener, base, ref)
	}
	for _, ref := range webpackChunks {
		addResolved(listener, base, ref)
	}
	for _, ref := range globalChunks {
		addResolved(listener, base, ref)
	}
	for _, ref := range inlineChunks {
		addResolved(listener, base, ref)
	}

	scrollPage(ctx, sitemapOnly)
	dispatchMouseovers(ctx, sitemapOnly)

	settle := settleDelay
	if sitemapOnly {
		settle = sitemapOnlySettle
	}
	_ = chromedp.Run(ctx, chromedp.Sleep(settle))
}

func addResolved(listener *assetListener, base *url.URL, ref string) {
	resolved, err := base.Parse(ref)
	if err != nil {
		return
	}
	listener.addAs(resolved.String(), domain.AssetJS)
}

// scanChunkHrefs implements spec §4.3 step 4a.
func scanChunkHrefs(ctx context.Context) []string {
	const js = `(() => {
		const out = [];
		document.querySelectorAll('script[src]').forEach(el => out.push(el.getAttribute('src')));
		document.querySelectorAll('link[rel=preload],link[rel=prefetch]').forEach(el => out.push(el.getAttribute('href')));
		return out.filter(Boolean);
	})()`
	var hrefs []string
	if err := chromedp.Run(ctx, chromedp.Evaluate(js, &hrefs)); err != nil {
		return nil
	}
	var matched []string
	for _, h := range hrefs {
		if chunkHrefPattern.MatchString(h) {
			matched = append(matched, h)
		}
	}
	return matched
}

// probeWebpackRuntime implements spec §4.3 step 4b: if a webpack runtime
// is present, call __webpack_require__.u(i) for i in [0,100) and collect
// the non-error results.
func probeWebpackRuntime(ctx context.Context) []string {
	const js = `(() => {
		if (typeof __webpack_require__ === 'undefined' || typeof __webpack_require__.u !== 'function') {
			return [];
		}
		const out = [];
		for (let i = 0; i < ` + strconv.Itoa(maxWebpackChunkProbe) + `; i++) {
			try {
				const chunk = __webpack_require__.u(i);
				if (chunk) out.push(chunk);
			} catch (e) {
				// not a valid chunk id, skip
			}
		}
		return out;
	})()`
	var chunks []string
	_ = chromedp.Run(ctx, chromedp.Evaluate(js, &chunks))
	return chunks
}

// scanChunkGlobals implements spec §4.3 step 4c: walk globals prefixed
// webpackChunk*/rspackChunk* and extract their chunk ID strings.
func scanChunkGlobals(ctx context.Context) []string {
	const js = `(() => {
		const out = [];
		for (const key of Object.keys(window)) {
			if (!/^(webpackChunk|rspackChunk)/.test(key)) continue;
			const val = window[key];
			if (!Array.isArray(val)) continue;
			for (const entry of val) {
				if (Array.isArray(entry) && Array.isArray(entry[0])) {
					entry[0].forEach(id => out.push(String(id)));
				}
			}
		}
		return out;
	})()`
	var ids []string
	_ = chromedp.Run(ctx, chromedp.Evaluate(js, &ids))
	return ids
}

// scanInlineChunkLiterals implements spec §4.3 step 4d: regex-scan inline
// scripts for chunk-file literals.
func scanInlineChunkLiterals(ctx context.Context) []string {
	var html string
	if err := chromedp.Run(ctx, chromedp.InnerHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil
	}
	var out []string
	for _, m := range inlineChunkPattern.FindAllString(html, -1) {
		out = append(out, m[1:len(m)-1])
	}
	return out
}

// scrollPage implements spec §4.3 step 4f: scroll top-to-bottom in
// viewport-height steps, doubled in sitemap-only mode, 100ms between
// steps.
func scrollPage(ctx context.Context, sitemapOnly bool) {
	const js = `(() => {
		const height = document.body ? document.body.scrollHeight : 0;
		const viewport = window.innerHeight || 800;
		return Math.max(1, Math.ceil(height / viewport));
	})()`
	var steps int
	if err := chromedp.Run(ctx, chromedp.Evaluate(js, &steps)); err != nil {
		return
	}
	if sitemapOnly {
		steps *= 2
	}

	for i := 1; i <= steps; i++ {
		scrollJS := `window.scrollTo(0, window.innerHeight * ` + strconv.Itoa(i) + `)`
		if err := chromedp.Run(ctx, chromedp.Evaluate(scrollJS, nil)); err != nil {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// dispatchMouseovers implements spec §4.3 step 4g: dispatch mouseover on
// up to 20 interactive elements, halved in sitemap-only mode.
func dispatchMouseovers(ctx context.Context, sitemapOnly bool) {
	limit := maxMouseoverTargets
	if sitemapOnly {
		limit /= 2
	}
	js := `(() => {
		const els = Array.from(document.querySelectorAll('a,button,[role=button],[onmouseover]')).slice(0, ` + strconv.Itoa(limit) + `);
		els.forEach(el => el.dispatchEvent(new MouseEvent('mouseover', {bubbles: true})));
		return els.length;
	})()`
	var count int
	_ = chromedp.Run(ctx, chromedp.Evaluate(js, &count))
}
