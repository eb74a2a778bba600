package model

import "time"

// CampaignStatus represents the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignStatusActive CampaignStatus = "active"
	CampaignStatusPaused CampaignStatus = "paused"
)

// Campaign is a persistent listening configuration: a query plus an ordered
// set of platforms, runnable any number of times.
type Campaign struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Query     string           `json:"query"`
	Platforms []string         `json:"platforms"`
	Settings  CampaignSettings `json:"settings"`
	Schedule  Schedule         `json:"schedule"`
	Status    CampaignStatus   `json:"status"`
	Stats     CampaignStats    `json:"stats"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// CampaignSettings holds per-campaign tuning knobs.
type CampaignSettings struct {
	// FetchLimits caps how many discovered URLs are fetched per platform.
	// Platforms absent from the map use the registry default.
	FetchLimits map[string]int `json:"fetch_limits,omitempty"`

	// DualSearch makes keyword-mode platforms run a second discovery job
	// with the hashtag form of the query and union the results.
	DualSearch bool `json:"dual_search"`

	// RelevanceFilter gates raw records on topical relevance to the query
	// before they reach dedup/storage.
	RelevanceFilter    bool    `json:"relevance_filter"`
	RelevanceThreshold float64 `json:"relevance_threshold,omitempty"`
}

// Schedule describes when the campaign should run automatically.
// A zero interval means manual triggering only.
type Schedule struct {
	IntervalMinutes int `json:"interval_minutes,omitempty"`
}

// Interval returns the schedule interval as a duration.
func (s Schedule) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// CampaignStats aggregates run outcomes across the campaign's lifetime.
// Bumped by run completion; read-only everywhere else.
type CampaignStats struct {
	TotalRuns  int        `json:"total_runs"`
	TotalPosts int        `json:"total_posts"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
}
