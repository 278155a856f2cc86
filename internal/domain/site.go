package domain

// Site is the configuration for one target origin a Crawl archives (spec
// §3 "Site"). Sites are created/updated/deleted by the external admin API;
// the core only reads them.
type Site struct {
	ID                   string      `db:"id"                      json:"id"`
	Name                 string      `db:"name"                    json:"name"`
	BaseURL              string      `db:"base_url"                json:"base_url"`
	Concurrency          int         `db:"concurrency"              json:"concurrency"`
	MaxPages             *int        `db:"max_pages"                json:"max_pages,omitempty"`
	ExcludePatterns      StringSlice `db:"exclude_patterns"          json:"exclude_patterns,omitempty"`
	DownloadBlocklist    StringSlice `db:"download_blocklist"        json:"download_blocklist,omitempty"`
	RemoveBadge          bool        `db:"remove_badge"              json:"remove_badge"`
	CanonicalRedirects   *string     `db:"canonical_redirects"       json:"canonical_redirects,omitempty"`
	ScheduleExpression   *string     `db:"schedule_expression"       json:"schedule_expression,omitempty"`
	MaxArchivesToKeep    *int        `db:"max_archives_to_keep"      json:"max_archives_to_keep,omitempty"`
}

// EffectiveConcurrency raises Concurrency to at least 1 and lowers it to
// globalCap when it exceeds it, reporting clamped=true only when globalCap
// lowered it. It applies no upper bound of its own besides globalCap.
func (s *Site) EffectiveConcurrency(globalCap int) (value int, clamped bool) {
	c := s.Concurrency
	if c < 1 {
		c = 1
	}
	if c > globalCap {
		return globalCap, true
	}
	return c, false
}

// Unbounded reports whether the site keeps every archive (no retention
// pruning applies).
func (s *Site) Unbounded() bool {
	return s.MaxArchivesToKeep == nil || *s.MaxArchivesToKeep <= 0
}
