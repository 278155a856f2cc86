package jobmanager

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/domain"
)

func TestValidateTransitionAllowsDocumentedPaths(t *testing.T) {
	cases := []struct {
		from, to domain.CrawlStatus
	}{
		{domain.CrawlPending, domain.CrawlRunning},
		{domain.CrawlPending, domain.CrawlCancelled},
		{domain.CrawlRunning, domain.CrawlUploading},
		{domain.CrawlRunning, domain.CrawlTimedOut},
		{domain.CrawlRunning, domain.CrawlCancelled},
		{domain.CrawlRunning, domain.CrawlFailed},
		{domain.CrawlUploading, domain.CrawlCompleted},
		{domain.CrawlUploading, domain.CrawlTimedOut},
		{domain.CrawlUploading, domain.CrawlFailed},
	}
	for _, c := range cases {
		assert.NoError(t, validateTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestValidateTransitionRejectsIllegalPaths(t *testing.T) {
	cases := []struct {
		from, to domain.CrawlStatus
	}{
		{domain.CrawlCompleted, domain.CrawlRunning},
		{domain.CrawlCancelled, domain.CrawlCompleted},
		{domain.CrawlPending, domain.CrawlCompleted},
		{domain.CrawlPending, domain.CrawlUploading},
	}
	for _, c := range cases {
		assert.Error(t, validateTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestSchedulableOnlyActiveStates(t *testing.T) {
	assert.True(t, schedulable(domain.CrawlPending))
	assert.True(t, schedulable(domain.CrawlRunning))
	assert.True(t, schedulable(domain.CrawlUploading))
	assert.False(t, schedulable(domain.CrawlCompleted))
	assert.False(t, schedulable(domain.CrawlFailed))
	assert.False(t, schedulable(domain.CrawlCancelled))
	assert.False(t, schedulable(domain.CrawlTimedOut))
}
