package model

import "time"

// Analytics is the per-run aggregation snapshot written by the final
// pipeline stage. Exactly one record per completed run.
type Analytics struct {
	ID         string `json:"id"`
	CampaignID string `json:"campaign_id"`
	RunID      string `json:"run_id"`
	RunNumber  int    `json:"run_number"`

	PostsAnalyzed   int            `json:"posts_analyzed"`
	AvgSentiment    float64        `json:"avg_sentiment"`
	SentimentCounts map[string]int `json:"sentiment_counts"` // label -> count
	PlatformCounts  map[string]int `json:"platform_counts"`
	TopTopics       []TopicCount   `json:"top_topics"`
	TopPosts        []PostRef      `json:"top_posts"`
	SentimentTrend  []TrendPoint   `json:"sentiment_trend"`

	GeneratedAt time.Time `json:"generated_at"`
}

// TopicCount is one entry in the topic frequency ranking.
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// PostRef points at a post in the top-engagement ranking.
type PostRef struct {
	PostID      string `json:"post_id"`
	Platform    string `json:"platform"`
	PlatformURL string `json:"platform_url"`
	Engagement  int64  `json:"engagement"`
}

// TrendPoint is the average sentiment the classifier saw in one run,
// used to chart sentiment movement across the campaign's runs.
type TrendPoint struct {
	RunNumber    int     `json:"run_number"`
	AvgSentiment float64 `json:"avg_sentiment"`
	PostCount    int     `json:"post_count"`
}
