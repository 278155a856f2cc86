// Package api implements the HTTP handlers the core owns (spec §6): the
// core supplies handlers, the admin app owns the server and mux. Grounded
// on the teacher's infrastructure/sse package (header set, connected event,
// heartbeat loop, flush-per-write) collapsed from a filtered multi-topic
// gin.HandlerFunc broker onto a single per-crawl net/http handler, since
// spec §6 places the web framework and dashboard out of scope and asks for
// exactly one stream: `GET /sse/crawls/{id}`.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/eventbus"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/logger"
)

const (
	headerContentType     = "Content-Type"
	headerCacheControl    = "Cache-Control"
	headerConnection      = "Connection"
	headerXAccelBuffering = "X-Accel-Buffering"

	sseContentType = "text/event-stream"

	// pingInterval is the subscriber keep-alive cadence (spec §6).
	pingInterval = 30 * time.Second
)

// SSEHandler streams one crawl's Event Bus subscription to an HTTP client
// (spec §6 "Live-events subscription"). CrawlID extracts the crawl ID from
// the request; callers wire it to their router's path-parameter mechanism.
type SSEHandler struct {
	bus     eventbus.Bus
	crawlID func(*http.Request) string
	log     logger.Logger
}

// NewSSEHandler builds an SSEHandler. crawlID extracts the `{id}` path
// segment from the request using whatever router the caller mounts this
// handler under.
func NewSSEHandler(bus eventbus.Bus, crawlID func(*http.Request) string, log logger.Logger) *SSEHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &SSEHandler{bus: bus, crawlID: crawlID, log: log}
}

// ServeHTTP opens a fresh subscription on the Event Bus, emits a
// "connected" frame immediately, forwards every bus message as an
// `event: message` frame, and emits a ping every 30s. The stream closes
// when the client disconnects (spec §6).
func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	crawlID := h.crawlID(r)
	if crawlID == "" {
		http.Error(w, "missing crawl id", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, cleanup, err := h.bus.Subscribe(r.Context(), crawlID)
	if err != nil {
		http.Error(w, "subscribe failed", http.StatusInternalServerError)
		return
	}
	defer cleanup()

	setSSEHeaders(w)
	flusher.Flush()

	if err := writeEvent(w, eventbus.NewConnectedEvent(crawlID)); err != nil {
		return
	}
	flusher.Flush()

	h.stream(r.Context(), w, flusher, events)
}

func (h *SSEHandler) stream(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, events <-chan eventbus.Event) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, event); err != nil {
				h.log.Debug("sse write failed, client likely disconnected", logger.Error(err))
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if err := writeEvent(w, eventbus.NewPingEvent()); err != nil {
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set(headerContentType, sseContentType)
	w.Header().Set(headerCacheControl, "no-cache")
	w.Header().Set(headerConnection, "keep-alive")
	w.Header().Set(headerXAccelBuffering, "no")
}

func writeEvent(w http.ResponseWriter, event eventbus.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal sse event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", data); err != nil {
		return fmt.Errorf("write sse event: %w", err)
	}
	return nil
}
