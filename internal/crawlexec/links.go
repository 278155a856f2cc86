package crawlexec

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ignoredSchemes are anchor hrefs that are never page links (spec §4.4
// step 2d "ignoring javascript:, mailto:, tel:, data:").
var ignoredSchemes = []string{"javascript:", "mailto:", "tel:", "data:"}

// assetExtensionPattern matches hrefs pointing at asset files rather than
// pages, so they're never queued as page fetches (spec §4.4 step 2d "URLs
// pointing at asset file extensions").
var assetExtensionPattern = regexp.MustCompile(
	`(?i)\.(css|js|mjs|json|png|jpe?g|gif|webp|svg|ico|bmp|avif|woff2?|ttf|eot|otf|mp4|webm|mov|mp3|wav|ogg|pdf|zip|xml)$`,
)

// extractLinks returns every same-origin anchor href in html, normalized
// and deduplicated (spec §4.4 step 2d).
func extractLinks(html, pageURL, origin string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || hasIgnoredScheme(href) {
			return
		}

		resolved, err := base.Parse(href)
		if err != nil {
			return
		}
		if o, err := originOf(resolved.String()); err != nil || o != origin {
			return
		}
		if assetExtensionPattern.MatchString(resolved.Path) {
			return
		}

		links = append(links, normalizeURL(resolved.String()))
	})

	return dedupe(links)
}

func hasIgnoredScheme(href string) bool {
	lower := strings.ToLower(href)
	for _, scheme := range ignoredSchemes {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}
