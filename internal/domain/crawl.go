package domain

import "time"

// CrawlStatus is one state in the crawl lifecycle state machine (spec §4.4).
type CrawlStatus string

// The full set of states a Crawl can occupy.
const (
	CrawlPending   CrawlStatus = "pending"
	CrawlRunning   CrawlStatus = "running"
	CrawlUploading CrawlStatus = "uploading"
	CrawlCompleted CrawlStatus = "completed"
	CrawlTimedOut  CrawlStatus = "timed_out"
	CrawlFailed    CrawlStatus = "failed"
	CrawlCancelled CrawlStatus = "cancelled"
)

// IsTerminal reports whether status is one of the four terminal states spec
// §3's invariant ties to started_at/completed_at both being set.
func (s CrawlStatus) IsTerminal() bool {
	switch s {
	case CrawlCompleted, CrawlTimedOut, CrawlFailed, CrawlCancelled:
		return true
	default:
		return false
	}
}

// IsActive reports whether status is one of the three states orphan
// reconciliation considers "in flight" (spec §4.5).
func (s CrawlStatus) IsActive() bool {
	switch s {
	case CrawlPending, CrawlRunning, CrawlUploading:
		return true
	default:
		return false
	}
}

// Crawl is one archiving attempt for a Site (spec §3 "Crawl"). Its ID also
// serves as the durable queue job ID.
type Crawl struct {
	ID       string      `db:"id"        json:"id"`
	SiteID   string      `db:"site_id"   json:"site_id"`
	Status   CrawlStatus `db:"status"    json:"status"`

	TotalPages     int `db:"total_pages"     json:"total_pages"`
	SucceededPages int `db:"succeeded_pages" json:"succeeded_pages"`
	FailedPages    int `db:"failed_pages"    json:"failed_pages"`

	UploadTotalBytes    int64  `db:"upload_total_bytes"    json:"upload_total_bytes"`
	UploadedBytes       int64  `db:"uploaded_bytes"        json:"uploaded_bytes"`
	UploadCurrentFile   string `db:"upload_current_file"   json:"upload_current_file,omitempty"`

	OutputPath       *string `db:"output_path"        json:"output_path,omitempty"`
	OutputSizeBytes  *int64  `db:"output_size_bytes"   json:"output_size_bytes,omitempty"`
	ErrorMessage     *string `db:"error_message"       json:"error_message,omitempty"`

	CreatedAt   time.Time  `db:"created_at"   json:"created_at"`
	StartedAt   *time.Time `db:"started_at"   json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`

	// CurrentAttempt tracks manual-retry re-enqueues (spec §4.5 step 11);
	// the queue itself never auto-retries (attempts=1).
	CurrentAttempt int `db:"current_attempt" json:"current_attempt"`
	MaxAttempts    int `db:"max_attempts"    json:"max_attempts"`
}

// Progress is the (total, succeeded, failed) counter triple reported on
// every on_progress call (spec §4.4 step 3). Monotonic within one attempt
// per spec §8's counters invariant.
type Progress struct {
	Total      int
	Succeeded  int
	Failed     int
	CurrentURL string
}

// UploadProgress is the byte-level progress reported during the multipart
// archive upload (spec §4.1, §4.5 step 7).
type UploadProgress struct {
	TotalBytes    int64
	UploadedBytes int64
	FilesTotal    int
	FilesUploaded int
	CurrentFile   string
}

// Percent returns the completion percentage, 0 when TotalBytes is 0.
func (p UploadProgress) Percent() float64 {
	if p.TotalBytes == 0 {
		return 0
	}
	return float64(p.UploadedBytes) / float64(p.TotalBytes) * 100
}

// LogLevel is the severity of a CrawlLogEntry. "debug" is accepted by the
// logger but is never persisted to crawl_logs nor published on the event
// bus (spec §3 "Crawl Log Entry").
type LogLevel string

// The three persisted log levels (info, warn, error), plus debug, which is
// never persisted.
const (
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
	LogDebug LogLevel = "debug"
)

// CrawlLogEntry is one append-only log line attached to a Crawl.
type CrawlLogEntry struct {
	ID        int64     `db:"id"         json:"id,omitempty"`
	CrawlID   string    `db:"crawl_id"   json:"crawl_id"`
	Timestamp time.Time `db:"timestamp"  json:"timestamp"`
	Level     LogLevel  `db:"level"      json:"level"`
	Message   string    `db:"message"    json:"message"`
	URL       *string   `db:"url"        json:"url,omitempty"`
}
