// Package eventbus implements the Event Bus (spec §4.2): per-crawl log and
// progress events fanned out to live subscribers over Redis pub/sub, with
// every publish also appended to a capped replay stream. Grounded on the
// teacher's infrastructure/sse broker (publish/subscribe split, per-client
// buffered delivery) adapted from an in-process broadcast loop to a
// Redis-backed transport so subscribers in a different process than the
// publishing worker still receive events.
package eventbus

import "time"

// Type identifies the shape of an Event's payload.
type Type string

const (
	// TypeLog carries a single crawl-log line.
	TypeLog Type = "log"
	// TypeProgress carries crawl and/or upload progress counters.
	TypeProgress Type = "progress"
	// TypeConnected is emitted by a subscriber (never the publisher) the
	// instant its subscription opens.
	TypeConnected Type = "connected"
	// TypePing is emitted by a subscriber as a keep-alive; never appended
	// to the replay stream.
	TypePing Type = "ping"
)

// LogLevel mirrors domain.LogLevel without importing the domain package,
// keeping the bus payload-agnostic about persistence concerns.
type LogLevel string

// The three levels ever published; "debug" is dropped before it reaches the
// bus (spec §4.5 step 5, on_log).
const (
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// UploadProgress is the upload-phase sub-payload of a progress event.
type UploadProgress struct {
	TotalBytes    int64   `json:"totalBytes"`
	UploadedBytes int64   `json:"uploadedBytes"`
	FilesTotal    int     `json:"filesTotal"`
	FilesUploaded int     `json:"filesUploaded"`
	CurrentFile   string  `json:"currentFile,omitempty"`
	Percent       float64 `json:"percent"`
}

// Event is the wire shape published on a crawl's channel and appended to its
// replay stream (spec §4.2 "Event shapes").
type Event struct {
	Type      Type            `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	CrawlID   string          `json:"crawlId,omitempty"`
	Level     LogLevel        `json:"level,omitempty"`
	Message   string          `json:"message,omitempty"`
	URL       string          `json:"url,omitempty"`
	Total     int             `json:"total,omitempty"`
	Succeeded int             `json:"succeeded,omitempty"`
	Failed    int             `json:"failed,omitempty"`
	Phase     string          `json:"phase,omitempty"`
	Upload    *UploadProgress `json:"upload,omitempty"`
}

// NewLogEvent builds a "log" event.
func NewLogEvent(level LogLevel, message, url string) Event {
	return Event{Type: TypeLog, Timestamp: time.Now().UTC(), Level: level, Message: message, URL: url}
}

// NewProgressEvent builds a "progress" event; phase and upload are optional
// and may be left zero-valued.
func NewProgressEvent(total, succeeded, failed int, currentURL, phase string, upload *UploadProgress) Event {
	return Event{
		Type:      TypeProgress,
		Timestamp: time.Now().UTC(),
		Total:     total,
		Succeeded: succeeded,
		Failed:    failed,
		URL:       currentURL,
		Phase:     phase,
		Upload:    upload,
	}
}

// NewConnectedEvent builds the event a subscriber emits to itself on
// connect.
func NewConnectedEvent(crawlID string) Event {
	return Event{Type: TypeConnected, Timestamp: time.Now().UTC(), CrawlID: crawlID}
}

// NewPingEvent builds a subscriber keep-alive.
func NewPingEvent() Event {
	return Event{Type: TypePing, Timestamp: time.Now().UTC()}
}

// ComputePercent computes the upload completion percentage, guarding
// against a zero total.
func (u UploadProgress) ComputePercent() float64 {
	if u.TotalBytes <= 0 {
		return 0
	}
	return float64(u.UploadedBytes) / float64(u.TotalBytes) * 100
}
