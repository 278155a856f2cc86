package browser

import (
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/network"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/domain"
)

// recordedAsset is one same-origin asset URL the session decided to
// download, tagged with the category its extension implies.
type recordedAsset struct {
	url      string
	category domain.AssetCategory
}

// assetListener records same-origin successful (2xx) asset responses by
// extension category during page load (spec §4.3 step 3), and collects
// additional candidate URLs surfaced by the dynamic chunk-loading
// triggers (spec §4.3 step 4).
type assetListener struct {
	origin string

	mu     sync.Mutex
	seen   map[string]struct{}
	assets []recordedAsset
}

func newAssetListener(pageURL string) *assetListener {
	origin := ""
	if u, err := url.Parse(pageURL); err == nil {
		origin = u.Scheme + "://" + u.Host
	}
	return &assetListener{origin: origin, seen: make(map[string]struct{})}
}

// handle is installed via chromedp.ListenTarget and inspects every
// network response the page triggers.
func (l *assetListener) handle(ev interface{}) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok {
		return
	}
	if resp.Response == nil {
		return
	}
	if resp.Response.Status < 200 || resp.Response.Status >= 300 {
		return
	}
	l.add(resp.Response.URL)
}

// add records candidateURL if it is same-origin, http(s), and not already
// seen, categorizing it by file extension (spec §4.3 step 3 "js/css/image/
// font/media").
func (l *assetListener) add(candidateURL string) {
	if !l.acceptable(candidateURL) {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seen[candidateURL]; ok {
		return
	}
	l.seen[candidateURL] = struct{}{}
	l.assets = append(l.assets, recordedAsset{url: candidateURL, category: categoryByExtension(candidateURL)})
}

// addAs records candidateURL under an explicit category, used by the
// chunk-loading triggers which already know their finds are JS (spec §4.3
// step 4e "added to the request set as js").
func (l *assetListener) addAs(candidateURL string, category domain.AssetCategory) {
	if !l.acceptable(candidateURL) {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seen[candidateURL]; ok {
		return
	}
	l.seen[candidateURL] = struct{}{}
	l.assets = append(l.assets, recordedAsset{url: candidateURL, category: category})
}

func (l *assetListener) acceptable(candidateURL string) bool {
	lower := strings.ToLower(candidateURL)
	if strings.HasPrefix(lower, "data:") || strings.HasPrefix(lower, "blob:") {
		return false
	}
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return false
	}
	u, err := url.Parse(candidateURL)
	if err != nil {
		return false
	}
	if u.Scheme+"://"+u.Host != l.origin {
		return false
	}
	return true
}

// assetsSnapshot returns a copy of every asset recorded so far.
func (l *assetListener) assetsSnapshot() []recordedAsset {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]recordedAsset, len(l.assets))
	copy(out, l.assets)
	return out
}

func categoryByExtension(rawURL string) domain.AssetCategory {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	ext := strings.ToLower(path.Ext(p))
	switch ext {
	case ".js", ".mjs":
		return domain.AssetJS
	case ".css":
		return domain.AssetCSS
	case ".woff", ".woff2", ".ttf", ".otf", ".eot":
		return domain.AssetFont
	case ".mp4", ".webm", ".mp3", ".wav", ".ogg", ".mov":
		return domain.AssetMedia
	default:
		return domain.AssetImage
	}
}
