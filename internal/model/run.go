package model

import "time"

// RunStatus represents the current state of a pipeline run.
// Terminal states (completed, failed) are never re-entered; a retried run
// gets a fresh Run id.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Run is one execution of a campaign's pipeline.
type Run struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaign_id"`
	RunNumber  int       `json:"run_number"`
	Status     RunStatus `json:"status"`
	Error      string    `json:"error,omitempty"`

	// PlatformStats is keyed by platform; each platform task owns only its
	// own sub-record, so concurrent writers never touch the same key.
	PlatformStats map[string]PlatformStats `json:"platform_stats"`

	// Totals are maintained by store-side atomic increments and are the
	// run-wide rollup of the platform sub-records.
	Totals RunTotals `json:"totals"`

	StartedAt   time.Time  `json:"started_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// PlatformStats counts one platform's contribution to a run.
type PlatformStats struct {
	URLsFound    int    `json:"urls_found"`
	PostsScraped int    `json:"posts_scraped"`
	NeedsFetch   bool   `json:"needs_fetch,omitempty"`
	Error        string `json:"error,omitempty"`
}

// RunTotals are run-wide counters across all platforms.
type RunTotals struct {
	URLsFound     int     `json:"urls_found"`
	PostsScraped  int     `json:"posts_scraped"`
	PostsAnalyzed int     `json:"posts_analyzed"`
	PostsFailed   int     `json:"posts_failed"`
	AvgSentiment  float64 `json:"avg_sentiment"`
}
