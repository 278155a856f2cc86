package crawlexec

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/logger"
)

// sitemapMaxIndexDepth bounds sitemap_index.xml following to one level
// (spec §4.4 step 1 "Sitemap indexes are followed one level deep").
const sitemapMaxIndexDepth = 1

// conventional sitemap paths tried once robots.txt offers nothing (spec
// §4.4 step 1's final fallback).
var conventionalSitemapPaths = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
}

type urlset struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

type sitemapIndex struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// seeder discovers the initial frontier for a crawl (spec §4.4 step 1).
type seeder struct {
	client *http.Client
	robots *robotsChecker
	log    logger.Logger
}

func newSeeder(client *http.Client, robots *robotsChecker, log logger.Logger) *seeder {
	return &seeder{client: client, robots: robots, log: log}
}

// seed returns the base-origin URLs discovered for base, trying
// sitemap.xml, then robots.txt's Sitemap: directives, then
// sitemap_index.xml, then the base URL itself as a single-page fallback.
func (s *seeder) seed(ctx context.Context, base string) []string {
	origin, err := originOf(base)
	if err != nil {
		s.log.Warn("invalid base URL, seeding base only", logger.String("base", base), logger.Error(err))
		return []string{base}
	}

	if urls := s.fetchSitemapTree(ctx, origin+"/sitemap.xml", origin, 0); len(urls) > 0 {
		return dedupe(append(urls, base))
	}

	for _, sitemapURL := range s.robots.sitemaps(ctx, base) {
		if urls := s.fetchSitemapTree(ctx, sitemapURL, origin, 0); len(urls) > 0 {
			return dedupe(append(urls, base))
		}
	}

	for _, path := range conventionalSitemapPaths {
		if urls := s.fetchSitemapTree(ctx, origin+path, origin, 0); len(urls) > 0 {
			return dedupe(append(urls, base))
		}
	}

	s.log.Info("no sitemap discovered, seeding base URL only", logger.String("base", base))
	return []string{base}
}

// fetchSitemapTree fetches one sitemap document, following one level of
// sitemap_index.xml nesting and dropping any URL outside origin.
func (s *seeder) fetchSitemapTree(ctx context.Context, sitemapURL, origin string, depth int) []string {
	body, err := s.fetch(ctx, sitemapURL)
	if err != nil {
		return nil
	}

	var set urlset
	if err := xml.Unmarshal(body, &set); err == nil && len(set.URLs) > 0 {
		return filterOrigin(locsOf(set.URLs), origin)
	}

	if depth >= sitemapMaxIndexDepth {
		return nil
	}

	var index sitemapIndex
	if err := xml.Unmarshal(body, &index); err != nil || len(index.Sitemaps) == 0 {
		return nil
	}

	var urls []string
	for _, entry := range index.Sitemaps {
		select {
		case <-ctx.Done():
			return urls
		default:
		}
		urls = append(urls, s.fetchSitemapTree(ctx, entry.Loc, origin, depth+1)...)
	}
	return urls
}

func (s *seeder) fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", desktopUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", target, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 32<<20))
}

func locsOf(entries []struct {
	Loc string `xml:"loc"`
}) []string {
	locs := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Loc != "" {
			locs = append(locs, e.Loc)
		}
	}
	return locs
}

func filterOrigin(urls []string, origin string) []string {
	filtered := make([]string, 0, len(urls))
	for _, u := range urls {
		o, err := originOf(u)
		if err != nil || o != origin {
			continue
		}
		filtered = append(filtered, u)
	}
	return filtered
}

func originOf(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("%q is not absolute", rawURL)
	}
	return parsed.Scheme + "://" + parsed.Host, nil
}

func dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		n := normalizeURL(u)
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, u)
	}
	return out
}

// normalizeURL drops the fragment and any trailing slash (spec §4.4 step
// 2d "normalize (drop hash, drop trailing slash)").
func normalizeURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	parsed.Fragment = ""
	parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	return parsed.String()
}
