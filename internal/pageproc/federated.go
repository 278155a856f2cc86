package pageproc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/logger"
)

// defaultMFManifestName is the module-federation manifest filename assumed
// when a WF manifest's "entry" field is absent (spec §4.3.1 step 2).
const defaultMFManifestName = "mf-manifest.json"

// federatedMirror mirrors `<code-island>` federated-module manifests and
// their assets to a local, self-contained layout (spec §4.3.1).
type federatedMirror struct {
	client    *http.Client
	outputDir string
	log       logger.Logger

	mu       sync.Mutex
	mirrored map[string]string // source clientModuleUrl -> rewritten local ref, cached per crawl
}

func newFederatedMirror(client *http.Client, outputDir string, log logger.Logger) *federatedMirror {
	return &federatedMirror{
		client:    client,
		outputDir: outputDir,
		log:       log,
		mirrored:  make(map[string]string),
	}
}

// rewriteCodeIslands finds every `<code-island data-loader>` federation
// reference in doc, mirrors it, and rewrites the element's data-loader
// attribute to point at the local copy.
func (m *federatedMirror) rewriteCodeIslands(ctx context.Context, doc *goquery.Document, pageURL *url.URL) {
	doc.Find("code-island[data-loader]").Each(func(_ int, sel *goquery.Selection) {
		raw, ok := sel.Attr("data-loader")
		if !ok || raw == "" {
			return
		}

		var loader map[string]any
		if err := json.Unmarshal([]byte(raw), &loader); err != nil {
			return
		}

		if tag, _ := loader["tag"].(string); tag != "FEDERATION" {
			return
		}
		val, ok := loader["val"].(map[string]any)
		if !ok {
			return
		}
		clientModuleURL, _ := val["clientModuleUrl"].(string)
		if clientModuleURL == "" {
			return
		}

		local, err := m.mirror(ctx, clientModuleURL, pageURL)
		if err != nil {
			m.log.Warn("federated module mirror failed", logger.String("url", clientModuleURL), logger.Error(err))
			return
		}

		val["clientModuleUrl"] = local
		loader["val"] = val
		rewritten, err := json.Marshal(loader)
		if err != nil {
			return
		}
		sel.SetAttr("data-loader", string(rewritten))
	})
}

// mirror performs the full WF-manifest / MF-manifest mirror described by
// spec §4.3.1 steps 1-5, caching on rawURL so a repeated clientModuleUrl
// within one crawl is mirrored at most once (step 6).
func (m *federatedMirror) mirror(ctx context.Context, rawURL string, pageURL *url.URL) (string, error) {
	m.mu.Lock()
	if local, ok := m.mirrored[rawURL]; ok {
		m.mu.Unlock()
		return local, nil
	}
	m.mu.Unlock()

	wfURL, err := pageURL.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("resolve WF manifest URL %q: %w", rawURL, err)
	}

	wfBody, err := m.fetch(ctx, wfURL.String())
	if err != nil {
		return "", fmt.Errorf("fetch WF manifest: %w", err)
	}

	wfLocalRel := mirroredPath(wfURL)
	if err := m.writeLocal(wfLocalRel, wfBody); err != nil {
		return "", fmt.Errorf("write WF manifest: %w", err)
	}

	var wfManifest map[string]any
	entryName := defaultMFManifestName
	if err := json.Unmarshal(wfBody, &wfManifest); err == nil {
		if entry, ok := wfManifest["entry"].(string); ok && entry != "" {
			entryName = entry
		}
	}

	mfURL, err := wfURL.Parse(entryName)
	if err != nil {
		return "", fmt.Errorf("resolve MF manifest URL %q: %w", entryName, err)
	}

	mfBody, err := m.fetch(ctx, mfURL.String())
	if err != nil {
		return "", fmt.Errorf("fetch MF manifest: %w", err)
	}

	var mfManifest map[string]any
	if err := json.Unmarshal(mfBody, &mfManifest); err != nil {
		return "", fmt.Errorf("parse MF manifest: %w", err)
	}

	publicPathBase := mfURL
	if metaData, ok := mfManifest["metaData"].(map[string]any); ok {
		if pp, ok := metaData["publicPath"].(string); ok && pp != "" {
			if resolved, err := mfURL.Parse(pp); err == nil {
				publicPathBase = resolved
			}
		}
	}

	resolve := func(ref string) string {
		local, err := m.mirrorAsset(ctx, ref, publicPathBase)
		if err != nil {
			m.log.Warn("federated asset mirror failed", logger.String("ref", ref), logger.Error(err))
			return ref
		}
		return local
	}

	m.rewriteManifestAssets(mfManifest, resolve)

	if metaData, ok := mfManifest["metaData"].(map[string]any); ok {
		metaData["publicPath"] = "/" + filepath.Dir(wfLocalRel) + "/"
	}

	rewrittenMF, err := json.Marshal(mfManifest)
	if err == nil {
		mfLocalRel := filepath.Join(filepath.Dir(wfLocalRel), filepath.Base(mfURL.Path))
		if mfURL.Path == "" || filepath.Base(mfURL.Path) == "." {
			mfLocalRel = filepath.Join(filepath.Dir(wfLocalRel), defaultMFManifestName)
		}
		_ = m.writeLocal(mfLocalRel, rewrittenMF)
	}

	local := "/" + wfLocalRel
	m.mu.Lock()
	m.mirrored[rawURL] = local
	m.mu.Unlock()
	return local, nil
}

// rewriteManifestAssets walks the known asset-bearing paths in an MF
// manifest (spec §4.3.1 step 3) and rewrites every leaf string via
// resolve, mutating the parsed tree in place.
func (m *federatedMirror) rewriteManifestAssets(manifest map[string]any, resolve func(string) string) {
	if metaData, ok := manifest["metaData"].(map[string]any); ok {
		if remoteEntry, ok := metaData["remoteEntry"]; ok {
			metaData["remoteEntry"] = rewriteAssetTree(remoteEntry, resolve)
		}
	}

	if exposes, ok := manifest["exposes"].([]any); ok {
		for _, item := range exposes {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			assets, ok := entry["assets"].(map[string]any)
			if !ok {
				continue
			}
			for _, kind := range []string{"js", "css"} {
				bucket, ok := assets[kind].(map[string]any)
				if !ok {
					continue
				}
				for _, mode := range []string{"sync", "async"} {
					if v, ok := bucket[mode]; ok {
						bucket[mode] = rewriteAssetTree(v, resolve)
					}
				}
			}
		}
	}

	for _, key := range []string{"shared", "remotes"} {
		items, ok := manifest[key].([]any)
		if !ok {
			continue
		}
		for _, item := range items {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if assets, ok := entry["assets"]; ok {
				entry["assets"] = rewriteAssetTree(assets, resolve)
			}
		}
	}
}

// rewriteAssetTree recursively applies resolve to every string leaf of an
// arbitrarily-shaped JSON value (arrays/objects of paths are both valid MF
// manifest shapes for a given assets bucket).
func rewriteAssetTree(v any, resolve func(string) string) any {
	switch val := v.(type) {
	case string:
		return resolve(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = rewriteAssetTree(e, resolve)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = rewriteAssetTree(e, resolve)
		}
		return out
	default:
		return v
	}
}

// mirrorAsset downloads a single manifest-referenced asset and writes it
// under the same code-components layout as its manifest (spec §4.3.1
// step 4 "download to the mirrored layout").
func (m *federatedMirror) mirrorAsset(ctx context.Context, ref string, base *url.URL) (string, error) {
	resolved, err := base.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("resolve asset ref %q: %w", ref, err)
	}

	body, err := m.fetch(ctx, resolved.String())
	if err != nil {
		return "", err
	}

	rel := mirroredPath(resolved)
	if err := m.writeLocal(rel, body); err != nil {
		return "", err
	}
	return "/" + rel, nil
}

// mirroredPath computes the deterministic local path for a mirrored
// federation resource (spec §4.3.1 step 1 "code-components/{host}/{decoded-path}").
func mirroredPath(u *url.URL) string {
	decoded, err := url.PathUnescape(u.Path)
	if err != nil {
		decoded = u.Path
	}
	decoded = strings.TrimPrefix(decoded, "/")
	if decoded == "" {
		decoded = "index"
	}
	return filepath.Join("code-components", u.Hostname(), filepath.FromSlash(decoded))
}

func (m *federatedMirror) fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", target, err)
	}
	req.Header.Set("User-Agent", desktopUserAgent)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: status %d", target, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 32<<20))
}

func (m *federatedMirror) writeLocal(relPath string, data []byte) error {
	full := filepath.Join(m.outputDir, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", relPath, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", relPath, err)
	}
	return nil
}
