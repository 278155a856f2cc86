package api

import "net/http"

// NewRouter wires the core's HTTP surface (spec §6) onto a ServeMux: enqueue,
// cancel, and the SSE stream. The admin app owning the outer HTTP server
// (spec §1 non-goal) is expected to mount this under its own prefix rather
// than serve it directly; the returned *http.ServeMux lets callers do either.
func NewRouter(crawls *CrawlsHandler, cancel *CancelHandler, sse *SSEHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /crawls", crawls.Enqueue)
	mux.Handle("POST /crawls/{id}/cancel", cancel)
	mux.Handle("GET /sse/crawls/{id}", sse)
	return mux
}

// PathCrawlID extracts the `{id}` path segment from a request routed
// through NewRouter's mux, for use as the crawlID func CancelHandler and
// SSEHandler both take.
func PathCrawlID(r *http.Request) string {
	return r.PathValue("id")
}
