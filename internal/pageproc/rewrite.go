package pageproc

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/domain"
)

// AssetDownloader is the Page Processor's dependency on the Crawl
// Executor's Asset Downloader (spec §4.4 "Asset Downloader contract").
type AssetDownloader interface {
	Download(ctx context.Context, rawURL string, category domain.AssetCategory) (string, error)
}

// rocketLoaderScriptPattern matches Cloudflare Rocket Loader's bundled
// script file (spec §4.3 "drop rocket-loader.min.js scripts").
var rocketLoaderScriptPattern = regexp.MustCompile(`rocket-loader(?:\.min)?\.js`)

// cssURLPattern extracts url(...) references from CSS text (inline
// <style> blocks and style="" attributes).
var cssURLPattern = regexp.MustCompile(`url\(\s*['"]?([^'")]+)['"]?\s*\)`)

// rewriter runs the shared HTML rewrite pipeline across the static and
// browser paths (spec §4.3 "HTML rewrite pipeline").
type rewriter struct {
	pageURL     *url.URL
	removeBadge bool
	downloader  AssetDownloader
	mirror      *federatedMirror
}

func newRewriter(pageURL *url.URL, removeBadge bool, downloader AssetDownloader, mirror *federatedMirror) *rewriter {
	return &rewriter{pageURL: pageURL, removeBadge: removeBadge, downloader: downloader, mirror: mirror}
}

// rewrite transforms raw HTML into its archived form and returns the
// serialized result.
func (r *rewriter) rewrite(ctx context.Context, html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse HTML for rewrite: %w", err)
	}

	if r.removeBadge {
		doc.Find(".w-webflow-badge").Remove()
	}

	r.normalizeRocketLoader(doc)
	r.normalizeLazyMedia(doc)

	if r.mirror != nil {
		r.mirror.rewriteCodeIslands(ctx, doc, r.pageURL)
	}

	r.rewriteAssets(ctx, doc)

	out, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("serialize rewritten HTML: %w", err)
	}
	return out, nil
}

// normalizeRocketLoader drops the Rocket Loader bundle and un-defers the
// scripts it deferred (spec §4.3 "Normalize Cloudflare Rocket Loader").
func (r *rewriter) normalizeRocketLoader(doc *goquery.Document) {
	doc.Find("script[src]").Each(func(_ int, sel *goquery.Selection) {
		src, _ := sel.Attr("src")
		if rocketLoaderScriptPattern.MatchString(src) {
			sel.Remove()
		}
	})

	doc.Find("script[data-cfasync]").RemoveAttr("data-cfasync")

	doc.Find(`script[type="text/rocketscript"]`).Each(func(_ int, sel *goquery.Selection) {
		sel.SetAttr("type", "text/javascript")
	})
}

// normalizeLazyMedia promotes Webflow's lazy-loading data attributes to
// their real counterparts (spec §4.3 "Normalize lazy media").
func (r *rewriter) normalizeLazyMedia(doc *goquery.Document) {
	doc.Find("[data-src]").Each(func(_ int, sel *goquery.Selection) {
		if v, ok := sel.Attr("data-src"); ok {
			sel.SetAttr("src", v)
		}
	})
	doc.Find("[data-srcset]").Each(func(_ int, sel *goquery.Selection) {
		if v, ok := sel.Attr("data-srcset"); ok {
			sel.SetAttr("srcset", v)
		}
	})
	doc.Find("[data-bg]").Each(func(_ int, sel *goquery.Selection) {
		v, ok := sel.Attr("data-bg")
		if !ok {
			return
		}
		existing, _ := sel.Attr("style")
		appended := fmt.Sprintf("background-image:url(%s)", v)
		if existing != "" {
			existing = strings.TrimSuffix(strings.TrimSpace(existing), ";") + "; " + appended
		} else {
			existing = appended
		}
		sel.SetAttr("style", existing)
	})
}

// rewriteAssets resolves, downloads, and rewrites every asset reference
// the rewrite pipeline is responsible for (spec §4.3's long enumeration).
func (r *rewriter) rewriteAssets(ctx context.Context, doc *goquery.Document) {
	r.rewriteAttr(ctx, doc, `link[rel="stylesheet"]`, "href", domain.AssetCSS)
	r.rewriteAttr(ctx, doc, `script[src]`, "src", domain.AssetJS)
	r.rewriteAttr(ctx, doc, `img[src]`, "src", domain.AssetImage)
	r.rewriteSrcset(ctx, doc, `img[srcset]`)
	r.rewriteSrcset(ctx, doc, `source[srcset]`)
	r.rewriteAttr(ctx, doc, `source[src]`, "src", domain.AssetMedia)
	r.rewriteAttr(ctx, doc, `video[src]`, "src", domain.AssetMedia)
	r.rewriteAttr(ctx, doc, `video[poster]`, "poster", domain.AssetImage)
	r.rewriteAttr(ctx, doc, `audio[src]`, "src", domain.AssetMedia)
	r.rewriteAttr(ctx, doc, `link[rel~="icon"]`, "href", domain.AssetImage)
	r.rewriteAttr(ctx, doc, `link[rel="image_src"]`, "href", domain.AssetImage)
	r.rewriteAttr(ctx, doc, `meta[property="og:image"]`, "content", domain.AssetImage)
	r.rewriteAttr(ctx, doc, `meta[name="twitter:image"]`, "content", domain.AssetImage)
	r.rewriteAttr(ctx, doc, `[itemprop="image"]`, "content", domain.AssetImage)
	r.rewriteAttr(ctx, doc, `iframe[src]`, "src", domain.AssetMedia)

	r.rewriteInlineCSS(ctx, doc, "style")
	r.rewriteStyleAttrs(ctx, doc)

	doc.Find("[integrity]").RemoveAttr("integrity")
}

func (r *rewriter) rewriteAttr(ctx context.Context, doc *goquery.Document, selector, attr string, category domain.AssetCategory) {
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		val, ok := sel.Attr(attr)
		if !ok || val == "" {
			return
		}
		if local, ok := r.download(ctx, val, category); ok {
			sel.SetAttr(attr, local)
		}
	})
}

func (r *rewriter) rewriteSrcset(ctx context.Context, doc *goquery.Document, selector string) {
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		val, ok := sel.Attr("srcset")
		if !ok || val == "" {
			return
		}
		sel.SetAttr("srcset", r.rewriteSrcsetValue(ctx, val))
	})
}

// rewriteSrcsetValue rewrites each "<url> <descriptor>" candidate in a
// srcset attribute independently.
func (r *rewriter) rewriteSrcsetValue(ctx context.Context, value string) string {
	candidates := strings.Split(value, ",")
	for i, candidate := range candidates {
		fields := strings.Fields(strings.TrimSpace(candidate))
		if len(fields) == 0 {
			continue
		}
		if local, ok := r.download(ctx, fields[0], domain.AssetImage); ok {
			fields[0] = local
		}
		candidates[i] = strings.Join(fields, " ")
	}
	return strings.Join(candidates, ", ")
}

func (r *rewriter) rewriteInlineCSS(ctx context.Context, doc *goquery.Document, selector string) {
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		sel.SetHtml(r.rewriteCSSText(ctx, sel.Text()))
	})
}

func (r *rewriter) rewriteStyleAttrs(ctx context.Context, doc *goquery.Document) {
	doc.Find("[style]").Each(func(_ int, sel *goquery.Selection) {
		val, ok := sel.Attr("style")
		if !ok || val == "" {
			return
		}
		sel.SetAttr("style", r.rewriteCSSText(ctx, val))
	})
}

func (r *rewriter) rewriteCSSText(ctx context.Context, css string) string {
	return cssURLPattern.ReplaceAllStringFunc(css, func(match string) string {
		sub := cssURLPattern.FindStringSubmatch(match)
		if len(sub) < 2 {
			return match
		}
		ref := strings.TrimSpace(sub[1])
		category := categoryByExtension(ref)
		if local, ok := r.download(ctx, ref, category); ok {
			return fmt.Sprintf("url(%s)", local)
		}
		return match
	})
}

// download resolves ref against the page URL and delegates to the asset
// downloader, skipping data:, javascript:, and bare anchor references
// (spec §4.3 "if non-data/non-js/non-anchor").
func (r *rewriter) download(ctx context.Context, ref string, category domain.AssetCategory) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return "", false
	}
	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "data:") || strings.HasPrefix(lower, "javascript:") {
		return "", false
	}

	resolved, err := r.pageURL.Parse(ref)
	if err != nil {
		return "", false
	}

	local, err := r.downloader.Download(ctx, resolved.String(), category)
	if err != nil {
		return "", false
	}
	return local, true
}

// categoryByExtension guesses an asset's category from its file extension,
// used for CSS url(...) references that don't carry tag-level context.
func categoryByExtension(ref string) domain.AssetCategory {
	path := ref
	if u, err := url.Parse(ref); err == nil {
		path = u.Path
	}
	lower := strings.ToLower(path)

	switch {
	case strings.HasSuffix(lower, ".woff"), strings.HasSuffix(lower, ".woff2"),
		strings.HasSuffix(lower, ".ttf"), strings.HasSuffix(lower, ".otf"), strings.HasSuffix(lower, ".eot"):
		return domain.AssetFont
	case strings.HasSuffix(lower, ".css"):
		return domain.AssetCSS
	case strings.HasSuffix(lower, ".js"):
		return domain.AssetJS
	case strings.HasSuffix(lower, ".mp4"), strings.HasSuffix(lower, ".webm"), strings.HasSuffix(lower, ".mp3"), strings.HasSuffix(lower, ".ogg"):
		return domain.AssetMedia
	default:
		return domain.AssetImage
	}
}
