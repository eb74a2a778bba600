package model

import (
	"encoding/json"
	"time"
)

// AnalysisStatus represents the classification state of a post.
type AnalysisStatus string

const (
	AnalysisStatusPending  AnalysisStatus = "pending"
	AnalysisStatusAnalyzed AnalysisStatus = "analyzed"
	AnalysisStatusFailed   AnalysisStatus = "failed"
)

// Post is one piece of content deduplicated across runs. Exactly one Post
// exists per (campaign, platform, platform_url); later sightings extend its
// engagement history in place.
type Post struct {
	ID         string `json:"id"`
	CampaignID string `json:"campaign_id"`
	RunID      string `json:"run_id"` // run that first saw this post
	Platform   string `json:"platform"`

	// PlatformURL is the normalized dedup key, unique within the
	// campaign's platform collection.
	PlatformURL string `json:"platform_url"`

	Author   string     `json:"author,omitempty"`
	Content  string     `json:"content,omitempty"`
	PostedAt *time.Time `json:"posted_at,omitempty"`

	// Payload is the opaque provider record as downloaded.
	Payload json.RawMessage `json:"payload,omitempty"`

	Analysis Analysis `json:"analysis"`

	FirstSeenRun     int `json:"first_seen_run"`
	LastSeenRun      int `json:"last_seen_run"`
	TotalAppearances int `json:"total_appearances"`

	// Engagement holds the most recent figures; EngagementHistory holds one
	// snapshot per sighting, ordered by run number, with
	// len(EngagementHistory) == TotalAppearances.
	Engagement        EngagementSnapshot   `json:"engagement"`
	EngagementHistory []EngagementSnapshot `json:"engagement_history"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Analysis is the classifier output attached to a post.
type Analysis struct {
	Status         AnalysisStatus `json:"status"`
	SentimentScore float64        `json:"sentiment_score,omitempty"` // 1-10
	SentimentLabel string         `json:"sentiment_label,omitempty"`
	Topics         []string       `json:"topics,omitempty"`
	BrandMentioned bool           `json:"brand_mentioned,omitempty"`
	Summary        string         `json:"summary,omitempty"`
	Language       string         `json:"language,omitempty"` // BCP 47
	Embedding      []float64      `json:"embedding,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// EngagementSnapshot records a post's engagement figures as seen by one run.
type EngagementSnapshot struct {
	RunNumber int       `json:"run_number"`
	Timestamp time.Time `json:"timestamp"`
	Likes     int64     `json:"likes"`
	Comments  int64     `json:"comments"`
	Shares    int64     `json:"shares"`
	Views     int64     `json:"views"`
}

// Total returns the sum of all engagement counters, used for top-post ranking.
func (e EngagementSnapshot) Total() int64 {
	return e.Likes + e.Comments + e.Shares + e.Views
}

// RawRecord is the tagged platform variant of a downloaded provider record,
// normalized to the fields every platform shares. Payload retains the
// original provider document.
type RawRecord struct {
	Platform string          `json:"platform"`
	URL      string          `json:"url"`
	Author   string          `json:"author,omitempty"`
	Content  string          `json:"content,omitempty"`
	PostedAt *time.Time      `json:"posted_at,omitempty"`
	Likes    int64           `json:"likes"`
	Comments int64           `json:"comments"`
	Shares   int64           `json:"shares"`
	Views    int64           `json:"views"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Snapshot derives an engagement snapshot from the record for the given run.
func (r RawRecord) Snapshot(runNumber int, at time.Time) EngagementSnapshot {
	return EngagementSnapshot{
		RunNumber: runNumber,
		Timestamp: at,
		Likes:     r.Likes,
		Comments:  r.Comments,
		Shares:    r.Shares,
		Views:     r.Views,
	}
}
