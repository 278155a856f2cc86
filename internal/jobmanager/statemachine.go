package jobmanager

import (
	"fmt"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/domain"
)

// allowedTransitions is the crawl lifecycle state machine (spec §4.5 "State
// machine"), re-keyed from the teacher's JobState enum to domain.CrawlStatus.
var allowedTransitions = map[domain.CrawlStatus][]domain.CrawlStatus{
	domain.CrawlPending: {
		domain.CrawlRunning,
		domain.CrawlCancelled,
		domain.CrawlFailed,
	},
	domain.CrawlRunning: {
		domain.CrawlUploading,
		domain.CrawlCancelled,
		domain.CrawlTimedOut,
		domain.CrawlFailed,
	},
	domain.CrawlUploading: {
		domain.CrawlCompleted,
		domain.CrawlTimedOut,
		domain.CrawlFailed,
	},
}

// validateTransition reports whether moving a Crawl from `from` to `to` is
// legal under the state machine diagrammed in spec §4.5.
func validateTransition(from, to domain.CrawlStatus) error {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("illegal crawl transition %s -> %s", from, to)
}

// schedulable reports whether a leased Crawl's current status is one this
// worker should actually process. Only {pending, running, uploading} are
// considered active; any other state on lease means skip the job (spec
// §4.5 "Only {pending, running, uploading} are considered 'active'; any
// other state on lease -> skip job").
func schedulable(status domain.CrawlStatus) bool {
	return status.IsActive()
}
