package pipeline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalworks/listening-cli/internal/model"
)

func analyzedPost(id, platformName string, score float64, label string, topics []string, engagement int64) model.Post {
	return model.Post{
		ID:       id,
		Platform: platformName,
		Analysis: model.Analysis{
			Status:         model.AnalysisStatusAnalyzed,
			SentimentScore: score,
			SentimentLabel: label,
			Topics:         topics,
		},
		Engagement: model.EngagementSnapshot{Likes: engagement},
	}
}

func TestBuildAnalytics(t *testing.T) {
	campaign := &model.Campaign{ID: "camp-1"}
	run := &model.Run{ID: "run-1", RunNumber: 3}

	posts := []model.Post{
		analyzedPost("p1", "instagram", 9, "positive", []string{"quality", "price"}, 500),
		analyzedPost("p2", "instagram", 7, "positive", []string{"quality"}, 100),
		analyzedPost("p3", "reddit", 2, "negative", []string{"price"}, 900),
		analyzedPost("p4", "reddit", 5, "neutral", nil, 0),
	}

	a := buildAnalytics(campaign, run, posts)

	assert.Equal(t, "camp-1", a.CampaignID)
	assert.Equal(t, "run-1", a.RunID)
	assert.Equal(t, 3, a.RunNumber)
	assert.Equal(t, 4, a.PostsAnalyzed)
	assert.InDelta(t, 5.75, a.AvgSentiment, 1e-9)
	assert.Equal(t, map[string]int{"positive": 2, "negative": 1, "neutral": 1}, a.SentimentCounts)
	assert.Equal(t, map[string]int{"instagram": 2, "reddit": 2}, a.PlatformCounts)

	// Topics tie at 2-2 and break alphabetically.
	require.Len(t, a.TopTopics, 2)
	assert.Equal(t, model.TopicCount{Topic: "price", Count: 2}, a.TopTopics[0])
	assert.Equal(t, model.TopicCount{Topic: "quality", Count: 2}, a.TopTopics[1])

	// Top posts rank by total engagement.
	require.Len(t, a.TopPosts, 4)
	assert.Equal(t, "p3", a.TopPosts[0].PostID)
	assert.Equal(t, "p1", a.TopPosts[1].PostID)
}

func TestBuildAnalytics_NoPosts(t *testing.T) {
	a := buildAnalytics(&model.Campaign{ID: "camp-1"}, &model.Run{ID: "run-1", RunNumber: 1}, nil)

	assert.Zero(t, a.PostsAnalyzed)
	assert.Zero(t, a.AvgSentiment)
	assert.Empty(t, a.TopTopics)
	assert.Empty(t, a.TopPosts)
}

func TestRankTopics_CapsAtLimit(t *testing.T) {
	counts := make(map[string]int)
	for i := 0; i < 15; i++ {
		counts[fmt.Sprintf("topic-%02d", i)] = i + 1
	}

	ranked := rankTopics(counts, 10)
	require.Len(t, ranked, 10)
	assert.Equal(t, "topic-14", ranked[0].Topic)
	assert.Equal(t, 15, ranked[0].Count)
	// Counts are strictly descending within the cap.
	for i := 1; i < len(ranked); i++ {
		assert.Less(t, ranked[i].Count, ranked[i-1].Count)
	}
}

func TestRankPosts_TieBreaksOnPostID(t *testing.T) {
	posts := []model.Post{
		analyzedPost("b", "x", 5, "neutral", nil, 10),
		analyzedPost("a", "x", 5, "neutral", nil, 10),
		analyzedPost("c", "x", 5, "neutral", nil, 99),
	}

	refs := rankPosts(posts, 5)
	require.Len(t, refs, 3)
	assert.Equal(t, "c", refs[0].PostID)
	assert.Equal(t, "a", refs[1].PostID)
	assert.Equal(t, "b", refs[2].PostID)
}
