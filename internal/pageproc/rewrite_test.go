package pageproc

import (
	"context"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/domain"
)

type fakeDownloader struct {
	calls []string
}

func (d *fakeDownloader) Download(_ context.Context, rawURL string, category domain.AssetCategory) (string, error) {
	d.calls = append(d.calls, rawURL)
	return fmt.Sprintf("/%s/mirrored", category.Dir()), nil
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestRewriterRemovesBadge(t *testing.T) {
	d := &fakeDownloader{}
	r := newRewriter(mustParse(t, "https://example.com/page"), true, d, nil)
	out, err := r.rewrite(context.Background(), `<html><body><div class="w-webflow-badge">badge</div><p>kept</p></body></html>`)
	require.NoError(t, err)
	assert.NotContains(t, out, "w-webflow-badge")
	assert.Contains(t, out, "kept")
}

func TestRewriterNormalizesRocketLoader(t *testing.T) {
	d := &fakeDownloader{}
	r := newRewriter(mustParse(t, "https://example.com/page"), false, d, nil)
	html := `<html><head>
<script src="/cdn-cgi/rocket-loader.min.js" data-cfasync="false"></script>
<script type="text/rocketscript" data-cfasync="false" src="/app.js"></script>
</head><body></body></html>`
	out, err := r.rewrite(context.Background(), html)
	require.NoError(t, err)
	assert.NotContains(t, out, "rocket-loader.min.js")
	assert.NotContains(t, out, "data-cfasync")
	assert.NotContains(t, out, "text/rocketscript")
}

func TestRewriterNormalizesLazyMedia(t *testing.T) {
	d := &fakeDownloader{}
	r := newRewriter(mustParse(t, "https://example.com/page"), false, d, nil)
	html := `<html><body><img data-src="/a.png" data-srcset="/a.png 1x"><div data-bg="/bg.png"></div></body></html>`
	out, err := r.rewrite(context.Background(), html)
	require.NoError(t, err)
	// The promoted attributes then go through asset rewriting, so they end
	// up pointing at the downloader's local paths.
	assert.Contains(t, out, `src="/images/mirrored"`)
	assert.Contains(t, out, `srcset="/images/mirrored 1x"`)
	assert.Contains(t, out, "background-image:url(/images/mirrored)")
}

func TestRewriterRewritesAssetsAndStripsIntegrity(t *testing.T) {
	d := &fakeDownloader{}
	r := newRewriter(mustParse(t, "https://example.com/sub/page"), false, d, nil)
	html := `<html><head>
<link rel="stylesheet" href="/styles.css" integrity="sha256-abc">
<script src="/app.js"></script>
</head><body>
<img src="/hero.png" srcset="/hero.png 1x, /hero2x.png 2x">
</body></html>`
	out, err := r.rewrite(context.Background(), html)
	require.NoError(t, err)
	assert.Contains(t, out, "/css/mirrored")
	assert.Contains(t, out, "/js/mirrored")
	assert.Contains(t, out, "/images/mirrored")
	assert.NotContains(t, out, "integrity")
	assert.Len(t, d.calls, 5)
	assert.Contains(t, d.calls, "https://example.com/styles.css")
}

func TestRewriterIgnoresDataAndAnchorRefs(t *testing.T) {
	d := &fakeDownloader{}
	r := newRewriter(mustParse(t, "https://example.com/page"), false, d, nil)
	html := `<html><body><img src="data:image/png;base64,abc"><a href="#section">jump</a><img src="#frag"></body></html>`
	_, err := r.rewrite(context.Background(), html)
	require.NoError(t, err)
	assert.Empty(t, d.calls)
}

func TestRewriterRewritesInlineStyleURL(t *testing.T) {
	d := &fakeDownloader{}
	r := newRewriter(mustParse(t, "https://example.com/page"), false, d, nil)
	html := `<html><head><style>.hero{background:url('/hero-bg.jpg')}</style></head><body style="background-image:url(/body-bg.png)"></body></html>`
	out, err := r.rewrite(context.Background(), html)
	require.NoError(t, err)
	assert.Contains(t, out, "/images/mirrored")
	assert.Len(t, d.calls, 2)
}
