package store

import (
	"context"
	"time"

	"github.com/signalworks/listening-cli/internal/model"
)

// CampaignFilter specifies criteria for listing campaigns.
type CampaignFilter struct {
	Status model.CampaignStatus `json:"status,omitempty"`
	Limit  int                  `json:"limit,omitempty"`
	Offset int                  `json:"offset,omitempty"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	CampaignID string          `json:"campaign_id,omitempty"`
	Status     model.RunStatus `json:"status,omitempty"`
	Limit      int             `json:"limit,omitempty"`
	Offset     int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for campaigns, runs, posts and
// analytics. One logical document per entity; implementations translate the
// logical queries to their own dialect.
type Store interface {
	// Campaigns
	CreateCampaign(ctx context.Context, c *model.Campaign) error
	GetCampaign(ctx context.Context, id string) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, filter CampaignFilter) ([]model.Campaign, error)
	UpdateCampaignStatus(ctx context.Context, id string, status model.CampaignStatus) error
	// BumpCampaignStats atomically adds one run and the given post count to
	// the campaign's lifetime stats.
	BumpCampaignStats(ctx context.Context, id string, posts int, lastRunAt time.Time) error
	// DeleteCampaign removes the campaign and cascades to its runs, posts
	// and analytics.
	DeleteCampaign(ctx context.Context, id string) error

	// Runs
	// CreateRun inserts a new running Run, allocating the next run_number
	// for the campaign atomically.
	CreateRun(ctx context.Context, campaignID string) (*model.Run, error)
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	// SetPlatformStats overwrites one platform's stats sub-record. Each
	// platform task owns only its own key, so concurrent calls for
	// different platforms never conflict.
	SetPlatformStats(ctx context.Context, runID, platform string, stats model.PlatformStats) error
	// AddRunTotals applies store-side atomic increments to the run-wide
	// counters.
	AddRunTotals(ctx context.Context, runID string, delta model.RunTotals) error
	SetRunAvgSentiment(ctx context.Context, runID string, avg float64) error
	// CompleteRun and FailRun transition a running Run to its terminal
	// state. Terminal states are never re-entered; both are no-ops when
	// the Run is no longer running.
	CompleteRun(ctx context.Context, runID string) error
	FailRun(ctx context.Context, runID string, msg string) error
	// SweepStuckRuns force-fails running Runs not updated within the
	// cutoff and returns how many were transitioned.
	SweepStuckRuns(ctx context.Context, cutoff time.Duration) (int, error)

	// Posts
	GetPostByURL(ctx context.Context, campaignID, platform, platformURL string) (*model.Post, error)
	// InsertPost is insert-if-absent on (campaign, platform, platform_url);
	// it reports false when the key already exists.
	InsertPost(ctx context.Context, post *model.Post) (bool, error)
	UpdatePost(ctx context.Context, post *model.Post) error
	UpdatePostAnalysis(ctx context.Context, postID string, analysis model.Analysis) error
	// ListPostsSeenInRun returns posts whose last sighting was the given
	// run number, optionally filtered by analysis status.
	ListPostsSeenInRun(ctx context.Context, campaignID string, runNumber int, status model.AnalysisStatus) ([]model.Post, error)
	ListPostsByRun(ctx context.Context, runID string, limit, offset int) ([]model.Post, error)

	// Analytics
	InsertAnalytics(ctx context.Context, a *model.Analytics) error
	GetAnalyticsByRun(ctx context.Context, runID string) (*model.Analytics, error)
	ListAnalytics(ctx context.Context, campaignID string) ([]model.Analytics, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
