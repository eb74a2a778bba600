package dedup

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalworks/listening-cli/internal/model"
)

// memPostStore is an in-memory PostStore keyed by (platform, platform_url).
type memPostStore struct {
	mu    sync.Mutex
	posts map[string]*model.Post

	// missFirstGet makes the first GetPostByURL report a miss even when
	// the row exists, simulating a concurrent writer landing between the
	// resolve and the insert.
	missFirstGet bool
}

func newMemPostStore() *memPostStore {
	return &memPostStore{posts: make(map[string]*model.Post)}
}

func (s *memPostStore) key(platform, platformURL string) string {
	return platform + "|" + platformURL
}

func (s *memPostStore) GetPostByURL(_ context.Context, _, platform, platformURL string) (*model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.missFirstGet {
		s.missFirstGet = false
		return nil, nil
	}
	p, ok := s.posts[s.key(platform, platformURL)]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *memPostStore) InsertPost(_ context.Context, post *model.Post) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.key(post.Platform, post.PlatformURL)
	if _, ok := s.posts[k]; ok {
		return false, nil
	}
	cp := *post
	s.posts[k] = &cp
	return true, nil
}

func (s *memPostStore) UpdatePost(_ context.Context, post *model.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *post
	s.posts[s.key(post.Platform, post.PlatformURL)] = &cp
	return nil
}

func testRecord(likes int64) model.RawRecord {
	return model.RawRecord{
		Platform: "instagram",
		URL:      "https://www.instagram.com/p/abc123/?utm_source=share",
		Author:   "someone",
		Content:  "loving my new shoes",
		Likes:    likes,
		Comments: 2,
	}
}

func TestEngine_Ingest_FirstSighting(t *testing.T) {
	store := newMemPostStore()
	eng := NewEngine(store).WithNow(func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	})
	run := &model.Run{ID: "run-1", RunNumber: 1}

	post, created, err := eng.Ingest(context.Background(), "camp-1", run, testRecord(10))
	require.NoError(t, err)
	require.True(t, created)

	assert.Equal(t, "https://www.instagram.com/p/abc123", post.PlatformURL)
	assert.Equal(t, model.AnalysisStatusPending, post.Analysis.Status)
	assert.Equal(t, 1, post.FirstSeenRun)
	assert.Equal(t, 1, post.LastSeenRun)
	assert.Equal(t, 1, post.TotalAppearances)
	require.Len(t, post.EngagementHistory, 1)
	assert.Equal(t, int64(10), post.Engagement.Likes)
}

func TestEngine_Ingest_RepeatSightingsMergeIntoOnePost(t *testing.T) {
	store := newMemPostStore()
	eng := NewEngine(store)
	ctx := context.Background()

	var postID string
	for i := 1; i <= 3; i++ {
		run := &model.Run{ID: "run", RunNumber: i}
		post, created, err := eng.Ingest(ctx, "camp-1", run, testRecord(int64(10*i)))
		require.NoError(t, err)
		assert.Equal(t, i == 1, created)
		if i == 1 {
			postID = post.ID
		} else {
			assert.Equal(t, postID, post.ID)
		}
	}

	stored, err := store.GetPostByURL(ctx, "camp-1", "instagram", "https://www.instagram.com/p/abc123")
	require.NoError(t, err)
	require.NotNil(t, stored)

	assert.Equal(t, 1, stored.FirstSeenRun)
	assert.Equal(t, 3, stored.LastSeenRun)
	assert.Equal(t, 3, stored.TotalAppearances)
	require.Len(t, stored.EngagementHistory, 3)
	for i, snap := range stored.EngagementHistory {
		assert.Equal(t, i+1, snap.RunNumber)
		assert.Equal(t, int64(10*(i+1)), snap.Likes)
	}
	assert.Equal(t, int64(30), stored.Engagement.Likes)
}

func TestEngine_Ingest_MergeLeavesAnalysisUntouched(t *testing.T) {
	store := newMemPostStore()
	eng := NewEngine(store)
	ctx := context.Background()

	run1 := &model.Run{ID: "run-1", RunNumber: 1}
	post, _, err := eng.Ingest(ctx, "camp-1", run1, testRecord(10))
	require.NoError(t, err)

	post.Analysis = model.Analysis{
		Status:         model.AnalysisStatusAnalyzed,
		SentimentScore: 8,
		SentimentLabel: "positive",
	}
	require.NoError(t, store.UpdatePost(ctx, post))

	run2 := &model.Run{ID: "run-2", RunNumber: 2}
	merged, created, err := eng.Ingest(ctx, "camp-1", run2, testRecord(50))
	require.NoError(t, err)
	assert.False(t, created)

	assert.Equal(t, model.AnalysisStatusAnalyzed, merged.Analysis.Status)
	assert.Equal(t, "positive", merged.Analysis.SentimentLabel)
	assert.Equal(t, 2, merged.LastSeenRun)
}

func TestEngine_Ingest_InsertRaceFallsBackToMerge(t *testing.T) {
	store := newMemPostStore()
	eng := NewEngine(store)
	ctx := context.Background()
	run := &model.Run{ID: "run-1", RunNumber: 1}

	// The winner's row exists but the loser's first lookup misses it, so
	// the loser attempts its own insert, loses, and must re-resolve.
	winner := eng.Materialize("camp-1", run, testRecord(5), "https://www.instagram.com/p/abc123")
	store.posts[store.key("instagram", winner.PlatformURL)] = winner
	store.missFirstGet = true

	post, created, err := eng.Ingest(ctx, "camp-1", run, testRecord(7))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, winner.ID, post.ID)
	assert.Equal(t, 2, post.TotalAppearances)
	require.Len(t, post.EngagementHistory, 2)
}

func TestEngine_Ingest_BadURL(t *testing.T) {
	store := newMemPostStore()
	eng := NewEngine(store)
	run := &model.Run{ID: "run-1", RunNumber: 1}

	rec := testRecord(1)
	rec.URL = "/relative/only"
	_, _, err := eng.Ingest(context.Background(), "camp-1", run, rec)
	require.Error(t, err)
	assert.Empty(t, store.posts)
}
