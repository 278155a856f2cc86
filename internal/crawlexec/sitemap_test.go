package crawlexec

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/logger"
)

func TestSeederFollowsSitemapIndexOneLevel(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<?xml version="1.0"?>
		<sitemapindex><sitemap><loc>` + testServerURL + `/sitemap-pages.xml</loc></sitemap></sitemapindex>`))
	})
	mux.HandleFunc("/sitemap-pages.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<?xml version="1.0"?>
		<urlset><url><loc>` + testServerURL + `/page-1</loc></url><url><loc>` + testServerURL + `/page-2</loc></url></urlset>`))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()
	testServerURL = srv.URL

	seeder := newSeeder(srv.Client(), newRobotsChecker(srv.Client(), "test-agent", logger.NewNop()), logger.NewNop())
	urls := seeder.seed(t.Context(), srv.URL+"/")

	require.Contains(t, urls, srv.URL+"/page-1")
	require.Contains(t, urls, srv.URL+"/page-2")
}

func TestSeederFallsBackToBaseWhenNoSitemap(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	seeder := newSeeder(srv.Client(), newRobotsChecker(srv.Client(), "test-agent", logger.NewNop()), logger.NewNop())
	urls := seeder.seed(t.Context(), srv.URL+"/")

	require.Equal(t, []string{srv.URL + "/"}, urls)
}

// testServerURL is filled in by TestSeederFollowsSitemapIndexOneLevel before
// the sitemap bodies are served, since the server's URL (and thus its
// dynamic port) isn't known until httptest.NewServer returns.
var testServerURL string
