// Package metrics tracks worker-process crawl counts with simple atomic
// counters. Nothing in this repo exposes a /metrics scrape endpoint — that
// is the admin API's job (spec §1) — so there is no reason to pull in
// github.com/prometheus/client_golang; a Registry is just a point-in-time
// Snapshot logged at worker shutdown and after the one-shot reconcile
// command's sweep.
package metrics

import "sync/atomic"

// Counter is a monotonically increasing, concurrency-safe counter.
type Counter struct {
	value atomic.Int64
}

// Inc increments the counter by one.
func (c *Counter) Inc() { c.value.Add(1) }

// Value returns the counter's current total.
func (c *Counter) Value() int64 { return c.value.Load() }

// Registry groups the counters a worker process accumulates across the
// crawl lifecycle (spec §4.5) and orphan reconciliation (spec §4.5
// "Orphan reconciliation"). The zero value is ready to use.
type Registry struct {
	CrawlsStarted     Counter
	CrawlsCompleted   Counter
	CrawlsFailed      Counter
	CrawlsCancelled   Counter
	CrawlsTimedOut    Counter
	OrphansReenqueued Counter
	OrphansFailed     Counter
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Snapshot returns a point-in-time copy of every counter, keyed by name,
// suitable for a single structured log line.
func (r *Registry) Snapshot() map[string]int64 {
	if r == nil {
		return nil
	}
	return map[string]int64{
		"crawls_started":     r.CrawlsStarted.Value(),
		"crawls_completed":   r.CrawlsCompleted.Value(),
		"crawls_failed":      r.CrawlsFailed.Value(),
		"crawls_cancelled":   r.CrawlsCancelled.Value(),
		"crawls_timed_out":   r.CrawlsTimedOut.Value(),
		"orphans_reenqueued": r.OrphansReenqueued.Value(),
		"orphans_failed":     r.OrphansFailed.Value(),
	}
}
