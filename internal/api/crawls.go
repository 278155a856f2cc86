package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/apperrors"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/database"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/domain"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/logger"
	"github.com/designxdevelop/dxd-webflow-scraper/internal/queue"
)

// defaultMaxAttempts is the crawl-level retry budget new crawls get;
// spec §4.5 step 11 notes retries are disabled by default, so a fresh
// crawl's first attempt is also its last.
const defaultMaxAttempts = 1

// CrawlsHandler implements the enqueue operation of the core's HTTP surface
// (spec §6); cancel is served by CancelHandler. The admin app mounts these
// under its own router; this handler only knows the site/crawl repositories
// and the queue.
type CrawlsHandler struct {
	sites  *database.SiteRepository
	crawls *database.CrawlRepository
	queue  queue.Queue
	log    logger.Logger
}

// NewCrawlsHandler builds a CrawlsHandler.
func NewCrawlsHandler(sites *database.SiteRepository, crawls *database.CrawlRepository, q queue.Queue, log logger.Logger) *CrawlsHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &CrawlsHandler{sites: sites, crawls: crawls, queue: q, log: log}
}

type enqueueRequest struct {
	SiteID string `json:"site_id"`
}

type enqueueResponse struct {
	CrawlID string `json:"crawl_id"`
}

// Enqueue creates a Crawl row in pending and adds a queue job with that ID,
// returning the Crawl ID (spec §6 "Enqueue a crawl").
func (h *CrawlsHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SiteID == "" {
		http.Error(w, "site_id is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if _, err := h.sites.GetByID(ctx, req.SiteID); err != nil {
		if apperrors.Classify(err) == apperrors.KindInputInvalid {
			http.Error(w, "site not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load site", http.StatusInternalServerError)
		return
	}

	crawl := &domain.Crawl{
		ID:             uuid.NewString(),
		SiteID:         req.SiteID,
		Status:         domain.CrawlPending,
		MaxAttempts:    defaultMaxAttempts,
		CurrentAttempt: 1,
	}
	if err := h.crawls.Create(ctx, crawl); err != nil {
		h.log.Error("create crawl failed", logger.String("site_id", req.SiteID), logger.Error(err))
		http.Error(w, "failed to create crawl", http.StatusInternalServerError)
		return
	}
	if err := h.queue.Add(ctx, crawl.ID); err != nil {
		h.log.Error("queue add failed", logger.String("crawl_id", crawl.ID), logger.Error(err))
		http.Error(w, "failed to enqueue crawl", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, enqueueResponse{CrawlID: crawl.ID})
}

// CancelHandler sets the DB status to cancelled; the executor notices
// within one status-check interval and unwinds (spec §6 "Cancel a crawl").
// crawlID extracts the `{id}` path segment the same way SSEHandler does.
type CancelHandler struct {
	crawls  *database.CrawlRepository
	crawlID func(*http.Request) string
	log     logger.Logger
}

// NewCancelHandler builds a CancelHandler.
func NewCancelHandler(crawls *database.CrawlRepository, crawlID func(*http.Request) string, log logger.Logger) *CancelHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &CancelHandler{crawls: crawls, crawlID: crawlID, log: log}
}

func (h *CancelHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	crawlID := h.crawlID(r)
	if crawlID == "" {
		http.Error(w, "missing crawl id", http.StatusBadRequest)
		return
	}
	if err := h.crawls.Cancel(r.Context(), crawlID); err != nil {
		if apperrors.Classify(err) == apperrors.KindInputInvalid {
			http.Error(w, "crawl not found", http.StatusNotFound)
			return
		}
		h.log.Error("cancel crawl failed", logger.String("crawl_id", crawlID), logger.Error(err))
		http.Error(w, "failed to cancel crawl", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(headerContentType, "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Fprintf(w, `{"error":%q}`, err.Error())
	}
}
