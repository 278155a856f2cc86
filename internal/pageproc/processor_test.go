package pageproc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/logger"
)

type fakeBrowser struct {
	html   string
	err    error
	called bool
}

func (b *fakeBrowser) Render(_ context.Context, _ string) (string, error) {
	b.called = true
	return b.html, b.err
}

func TestProcessorStaticPathWritesRewrittenFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><p>static</p></body></html>`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	browser := &fakeBrowser{}
	p := New(dir, false, &fakeDownloader{}, browser, logger.NewNop())

	raw, err := p.Process(context.Background(), srv.URL+"/section/")
	require.NoError(t, err)
	assert.Contains(t, raw, "static")
	assert.False(t, browser.called)

	out, err := os.ReadFile(filepath.Join(dir, "section", "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "static")
}

func TestProcessorFallsBackToBrowserOnDynamicSignal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><script>webpackChunkapp=window.webpackChunkapp||[]</script></body></html>`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	browser := &fakeBrowser{html: `<html><body><p>rendered</p></body></html>`}
	p := New(dir, false, &fakeDownloader{}, browser, logger.NewNop())

	_, err := p.Process(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.True(t, browser.called)

	out, err := os.ReadFile(filepath.Join(dir, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "rendered")
}

func TestProcessorStaticFetchFailureWithoutBrowserReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dir := t.TempDir()
	p := New(dir, false, &fakeDownloader{}, nil, logger.NewNop())

	_, err := p.Process(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestHTMLOutputPathDerivation(t *testing.T) {
	assert.Equal(t, "index.html", htmlOutputPath(mustParse(t, "https://example.com/")))
	assert.Equal(t, filepath.FromSlash("blog/index.html"), htmlOutputPath(mustParse(t, "https://example.com/blog/")))
	assert.Equal(t, filepath.FromSlash("blog/post/index.html"), htmlOutputPath(mustParse(t, "https://example.com/blog/post")))
	assert.Equal(t, "sitemap.xml", htmlOutputPath(mustParse(t, "https://example.com/sitemap.xml")))
}
