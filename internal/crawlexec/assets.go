package crawlexec

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/domain"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/logger"
)

// Downloader implements the Asset Downloader contract (spec §4.4 "Asset
// Downloader contract"): download one URL at most once, honor the merged
// download-blocklist, and return a path relative to the crawl's output
// directory.
type Downloader struct {
	client    *http.Client
	outputDir string
	blocklist []blocklistEntry
	log       logger.Logger

	mu    sync.Mutex
	cache map[string]string
}

type blocklistEntry struct {
	prefix string // set when the original entry ended in "*"
	exact  string
}

// NewDownloader builds a Downloader rooted at outputDir, honoring the
// site+global merged blocklist.
func NewDownloader(outputDir string, blocklist domain.StringSlice, log logger.Logger) *Downloader {
	entries := make([]blocklistEntry, 0, len(blocklist))
	for _, raw := range blocklist {
		if strings.HasSuffix(raw, "*") {
			entries = append(entries, blocklistEntry{prefix: strings.TrimSuffix(raw, "*")})
		} else {
			entries = append(entries, blocklistEntry{exact: raw})
		}
	}

	return &Downloader{
		client:    &http.Client{Timeout: 10 * time.Second},
		outputDir: outputDir,
		blocklist: entries,
		log:       log,
		cache:     make(map[string]string),
	}
}

// Blocked reports whether rawURL matches the merged download-blocklist by
// exact match or prefix match (spec §4.4 "Honors the merged
// download-blocklist").
func (d *Downloader) Blocked(rawURL string) bool {
	for _, entry := range d.blocklist {
		if entry.exact != "" && entry.exact == rawURL {
			return true
		}
		if entry.prefix != "" && strings.HasPrefix(rawURL, entry.prefix) {
			return true
		}
	}
	return false
}

// Download fetches rawURL once per crawl and returns its path relative to
// outputDir, rooted at category's directory. A blocked URL returns an
// error the caller is expected to treat as "leave the reference as-is"
// (spec §4.4 "Blocked URLs are not downloaded").
func (d *Downloader) Download(ctx context.Context, rawURL string, category domain.AssetCategory) (string, error) {
	norm := normalizeURL(rawURL)

	d.mu.Lock()
	if existing, ok := d.cache[norm]; ok {
		d.mu.Unlock()
		return existing, nil
	}
	d.mu.Unlock()

	if d.Blocked(rawURL) {
		return "", fmt.Errorf("asset %s is blocked by the download blocklist", rawURL)
	}

	relPath, err := d.fetch(ctx, rawURL, category)
	if err != nil {
		return "", err
	}

	d.mu.Lock()
	d.cache[norm] = relPath
	d.mu.Unlock()
	return relPath, nil
}

func (d *Downloader) fetch(ctx context.Context, rawURL string, category domain.AssetCategory) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build asset request for %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", desktopUserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch asset %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch asset %s: status %d", rawURL, resp.StatusCode)
	}

	filename := assetFilename(rawURL)
	relPath := path.Join(category.Dir(), filename)
	absPath := filepath.Join(d.outputDir, filepath.FromSlash(relPath))

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return "", fmt.Errorf("create asset dir for %s: %w", rawURL, err)
	}

	f, err := os.Create(absPath)
	if err != nil {
		return "", fmt.Errorf("create asset file for %s: %w", rawURL, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return "", fmt.Errorf("write asset file for %s: %w", rawURL, err)
	}

	return relPath, nil
}

// assetFilename derives a stable hash-based filename that preserves the
// source URL's extension (spec §4.4 "<hash-based-filename><ext>").
func assetFilename(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	hash := hex.EncodeToString(sum[:])[:20]

	ext := ""
	if parsed, err := url.Parse(rawURL); err == nil {
		ext = path.Ext(parsed.Path)
	}
	if ext == "" || len(ext) > 10 {
		ext = ""
	}
	return hash + ext
}
