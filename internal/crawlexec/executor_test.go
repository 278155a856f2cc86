package crawlexec

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/logger"
)

// fakeProcessor simulates the Page Processor by returning canned HTML per
// URL and failing a configurable set of URLs a fixed number of times.
type fakeProcessor struct {
	pages map[string]string

	mu        sync.Mutex
	failUntil map[string]int
	calls     map[string]int
}

func (f *fakeProcessor) Process(_ context.Context, pageURL string) (string, error) {
	f.mu.Lock()
	f.calls[pageURL]++
	attempts := f.calls[pageURL]
	f.mu.Unlock()

	if need, ok := f.failUntil[pageURL]; ok && attempts <= need {
		return "", fmt.Errorf("simulated failure for %s", pageURL)
	}

	html, ok := f.pages[pageURL]
	if !ok {
		return "", fmt.Errorf("no fixture for %s", pageURL)
	}
	return html, nil
}

// noSitemapServer starts an httptest server whose every path 404s, so the
// seeder falls back to seeding the base URL alone.
func noSitemapServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)
	return srv
}

func TestExecutorCrawlsReachableGraph(t *testing.T) {
	srv := noSitemapServer(t)
	base := srv.URL

	processor := &fakeProcessor{
		calls: make(map[string]int),
		pages: map[string]string{
			base + "/":  `<a href="/a">a</a> <a href="/b">b</a>`,
			base + "/a": `<a href="/c">c</a>`,
			base + "/b": `no links here`,
			base + "/c": `<a href="` + base + `/">home</a>`,
		},
	}

	executor := New(Config{
		BaseURL:     base + "/",
		Concurrency: 3,
		OutputDir:   t.TempDir(),
		Processor:   processor,
	}, logger.NewNop())

	result, err := executor.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, result.Succeeded)
	require.Equal(t, 0, result.Failed)
}

func TestExecutorRetriesFailedPageThenSucceeds(t *testing.T) {
	srv := noSitemapServer(t)
	base := srv.URL

	processor := &fakeProcessor{
		calls:     make(map[string]int),
		failUntil: map[string]int{base + "/": 2},
		pages:     map[string]string{base + "/": `no links`},
	}

	executor := New(Config{
		BaseURL:        base + "/",
		Concurrency:    1,
		OutputDir:      t.TempDir(),
		Processor:      processor,
		PageMaxRetries: 2,
	}, logger.NewNop())

	result, err := executor.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Succeeded)
	require.Equal(t, 0, result.Failed)
}

func TestExecutorRecordsPermanentFailure(t *testing.T) {
	srv := noSitemapServer(t)
	base := srv.URL

	processor := &fakeProcessor{
		calls:     make(map[string]int),
		failUntil: map[string]int{base + "/": 99},
		pages:     map[string]string{},
	}

	executor := New(Config{
		BaseURL:        base + "/",
		Concurrency:    1,
		OutputDir:      t.TempDir(),
		Processor:      processor,
		PageMaxRetries: 1,
	}, logger.NewNop())

	result, err := executor.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.Succeeded)
	require.Equal(t, 1, result.Failed)
}

func TestExecutorHonorsMaxPages(t *testing.T) {
	srv := noSitemapServer(t)
	base := srv.URL

	processor := &fakeProcessor{
		calls: make(map[string]int),
		pages: map[string]string{
			base + "/":  `<a href="/a">a</a> <a href="/b">b</a> <a href="/c">c</a>`,
			base + "/a": ``,
			base + "/b": ``,
			base + "/c": ``,
		},
	}

	executor := New(Config{
		BaseURL:     base + "/",
		Concurrency: 2,
		OutputDir:   t.TempDir(),
		Processor:   processor,
		MaxPages:    2,
	}, logger.NewNop())

	result, err := executor.Run(context.Background())
	require.NoError(t, err)
	require.LessOrEqual(t, result.Total, 2)
}
