// Package apperrors provides shared error classification and wrapping used
// across the crawl/archive engine, matching the error kinds in spec §7.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors checked with errors.Is across the job lifecycle manager,
// the storage adapter, and the crawl executor.
var (
	// ErrSiteNotFound is an input-invalid error: the site row referenced by a
	// crawl job no longer exists.
	ErrSiteNotFound = errors.New("site not found")
	// ErrCrawlNotFound is an input-invalid error: the crawl row referenced by
	// a job no longer exists.
	ErrCrawlNotFound = errors.New("crawl not found")
	// ErrCrawlCancelled is raised by the cancellation predicate when the DB
	// row has been marked cancelled out of band.
	ErrCrawlCancelled = errors.New("crawl cancelled")
	// ErrCrawlTimedOut is raised when the whole-crawl duration budget is
	// exhausted during the crawl phase.
	ErrCrawlTimedOut = errors.New("crawl exceeded max duration")
	// ErrObjectNotFound maps storage 404s / NoSuchKey responses.
	ErrObjectNotFound = errors.New("object not found")
	// ErrUploadQueueFull is raised when an async upload path can't accept
	// more work and the caller asked not to fail silently.
	ErrUploadQueueFull = errors.New("upload queue full")
)

// WrapWithContext wraps err with a static context string, or returns nil if
// err is nil.
func WrapWithContext(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// WrapWithContextf wraps err with a formatted context string, or returns nil
// if err is nil.
func WrapWithContextf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Kind classifies an error into one of the categories spec §7 assigns
// terminal crawl states to.
type Kind int

const (
	// KindUnknown is the zero value; treated the same as KindTransient by
	// callers that don't special-case it.
	KindUnknown Kind = iota
	// KindInputInvalid covers unknown site/crawl rows.
	KindInputInvalid
	// KindCancelled covers user-initiated cancellation.
	KindCancelled
	// KindTimedOut covers whole-crawl duration exhaustion.
	KindTimedOut
	// KindTransient covers retryable network/storage/queue failures.
	KindTransient
	// KindNonRetryableStorage covers permission/signature failures that
	// survive the buffer-fallback path.
	KindNonRetryableStorage
)

// Classify maps a sentinel or wrapped error to its Kind.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrSiteNotFound), errors.Is(err, ErrCrawlNotFound):
		return KindInputInvalid
	case errors.Is(err, ErrCrawlCancelled):
		return KindCancelled
	case errors.Is(err, ErrCrawlTimedOut):
		return KindTimedOut
	default:
		return KindTransient
	}
}
