package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/mock"

	"github.com/signalworks/listening-cli/internal/config"
	"github.com/signalworks/listening-cli/internal/model"
	"github.com/signalworks/listening-cli/internal/platform"
	"github.com/signalworks/listening-cli/internal/store"
	"github.com/signalworks/listening-cli/pkg/anthropic"
	"github.com/signalworks/listening-cli/pkg/jina"
	"github.com/signalworks/listening-cli/pkg/provider"
)

// --- Provider mock ---

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) TriggerByURLs(ctx context.Context, dataset string, urls []string) (string, error) {
	args := m.Called(ctx, dataset, urls)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) TriggerByKeyword(ctx context.Context, dataset, keyword string, opts provider.KeywordOptions) (string, error) {
	args := m.Called(ctx, dataset, keyword, opts)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) PollStatus(ctx context.Context, jobID string) (*provider.JobState, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.JobState), args.Error(1)
}

func (m *mockProvider) Download(ctx context.Context, jobID string) ([]json.RawMessage, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]json.RawMessage), args.Error(1)
}

// readyJob registers a job that completes on the first poll and downloads
// the given records.
func (m *mockProvider) readyJob(jobID string, records ...json.RawMessage) {
	m.On("PollStatus", mock.Anything, jobID).
		Return(&provider.JobState{JobID: jobID, Status: provider.JobStatusReady}, nil)
	m.On("Download", mock.Anything, jobID).Return(records, nil)
}

// --- Anthropic mock ---

type mockAnthropic struct {
	mock.Mock
}

func (m *mockAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

// textResponse builds a single text-block model response.
func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 30},
	}
}

// --- Jina mock ---

type mockJina struct {
	mock.Mock
}

func (m *mockJina) Embed(ctx context.Context, texts []string, _ ...jina.EmbedOption) ([][]float64, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float64), args.Error(1)
}

// --- In-memory store ---

// memStore is a stateful in-memory store.Store used by pipeline tests.
// failOn injects an error for a single named operation.
type memStore struct {
	mu sync.Mutex

	campaigns map[string]*model.Campaign
	runs      map[string]*model.Run
	posts     map[string]*model.Post
	analytics map[string]*model.Analytics // by run id

	failOn map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		campaigns: make(map[string]*model.Campaign),
		runs:      make(map[string]*model.Run),
		posts:     make(map[string]*model.Post),
		analytics: make(map[string]*model.Analytics),
		failOn:    make(map[string]error),
	}
}

func (s *memStore) fail(op string) error {
	if err, ok := s.failOn[op]; ok {
		return err
	}
	return nil
}

func (s *memStore) postKey(campaignID, platformName, platformURL string) string {
	return campaignID + "|" + platformName + "|" + platformURL
}

func (s *memStore) CreateCampaign(_ context.Context, c *model.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = model.CampaignStatusActive
	}
	cp := *c
	s.campaigns[c.ID] = &cp
	return nil
}

func (s *memStore) GetCampaign(_ context.Context, id string) (*model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetCampaign"); err != nil {
		return nil, err
	}
	c, ok := s.campaigns[id]
	if !ok {
		return nil, eris.Errorf("campaign not found: %s", id)
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) ListCampaigns(_ context.Context, filter store.CampaignFilter) ([]model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Campaign
	for _, c := range s.campaigns {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (s *memStore) UpdateCampaignStatus(_ context.Context, id string, status model.CampaignStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return eris.Errorf("campaign not found: %s", id)
	}
	c.Status = status
	return nil
}

func (s *memStore) BumpCampaignStats(_ context.Context, id string, posts int, lastRunAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return eris.Errorf("campaign not found: %s", id)
	}
	c.Stats.TotalRuns++
	c.Stats.TotalPosts += posts
	c.Stats.LastRunAt = &lastRunAt
	return nil
}

func (s *memStore) DeleteCampaign(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.campaigns, id)
	return nil
}

func (s *memStore) CreateRun(_ context.Context, campaignID string) (*model.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateRun"); err != nil {
		return nil, err
	}
	next := 1
	for _, r := range s.runs {
		if r.CampaignID == campaignID && r.RunNumber >= next {
			next = r.RunNumber + 1
		}
	}
	now := time.Now().UTC()
	run := &model.Run{
		ID:            uuid.New().String(),
		CampaignID:    campaignID,
		RunNumber:     next,
		Status:        model.RunStatusRunning,
		PlatformStats: map[string]model.PlatformStats{},
		StartedAt:     now,
		UpdatedAt:     now,
	}
	s.runs[run.ID] = run
	cp := cloneRun(run)
	return cp, nil
}

func cloneRun(r *model.Run) *model.Run {
	cp := *r
	cp.PlatformStats = make(map[string]model.PlatformStats, len(r.PlatformStats))
	for k, v := range r.PlatformStats {
		cp.PlatformStats[k] = v
	}
	return &cp
}

func (s *memStore) GetRun(_ context.Context, runID string) (*model.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return nil, eris.Errorf("run not found: %s", runID)
	}
	return cloneRun(r), nil
}

func (s *memStore) ListRuns(_ context.Context, filter store.RunFilter) ([]model.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Run
	for _, r := range s.runs {
		if filter.CampaignID != "" && r.CampaignID != filter.CampaignID {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, *cloneRun(r))
	}
	return out, nil
}

func (s *memStore) SetPlatformStats(_ context.Context, runID, platformName string, stats model.PlatformStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return eris.Errorf("run not found: %s", runID)
	}
	r.PlatformStats[platformName] = stats
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memStore) AddRunTotals(_ context.Context, runID string, delta model.RunTotals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return eris.Errorf("run not found: %s", runID)
	}
	r.Totals.URLsFound += delta.URLsFound
	r.Totals.PostsScraped += delta.PostsScraped
	r.Totals.PostsAnalyzed += delta.PostsAnalyzed
	r.Totals.PostsFailed += delta.PostsFailed
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memStore) SetRunAvgSentiment(_ context.Context, runID string, avg float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return eris.Errorf("run not found: %s", runID)
	}
	r.Totals.AvgSentiment = avg
	return nil
}

func (s *memStore) CompleteRun(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return eris.Errorf("run not found: %s", runID)
	}
	if r.Status != model.RunStatusRunning {
		return nil
	}
	now := time.Now().UTC()
	r.Status = model.RunStatusCompleted
	r.CompletedAt = &now
	return nil
}

func (s *memStore) FailRun(_ context.Context, runID, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return eris.Errorf("run not found: %s", runID)
	}
	if r.Status != model.RunStatusRunning {
		return nil
	}
	now := time.Now().UTC()
	r.Status = model.RunStatusFailed
	r.Error = msg
	r.CompletedAt = &now
	return nil
}

func (s *memStore) SweepStuckRuns(_ context.Context, cutoff time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deadline := time.Now().UTC().Add(-cutoff)
	swept := 0
	for _, r := range s.runs {
		if r.Status == model.RunStatusRunning && r.UpdatedAt.Before(deadline) {
			r.Status = model.RunStatusFailed
			r.Error = "run exceeded cleanup cutoff without progress"
			swept++
		}
	}
	return swept, nil
}

func (s *memStore) GetPostByURL(_ context.Context, campaignID, platformName, platformURL string) (*model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[s.postKey(campaignID, platformName, platformURL)]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) InsertPost(_ context.Context, post *model.Post) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.postKey(post.CampaignID, post.Platform, post.PlatformURL)
	if _, ok := s.posts[k]; ok {
		return false, nil
	}
	cp := *post
	s.posts[k] = &cp
	return true, nil
}

func (s *memStore) UpdatePost(_ context.Context, post *model.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *post
	s.posts[s.postKey(post.CampaignID, post.Platform, post.PlatformURL)] = &cp
	return nil
}

func (s *memStore) UpdatePostAnalysis(_ context.Context, postID string, analysis model.Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.posts {
		if p.ID == postID {
			p.Analysis = analysis
			return nil
		}
	}
	return eris.Errorf("post not found: %s", postID)
}

func (s *memStore) ListPostsSeenInRun(_ context.Context, campaignID string, runNumber int, status model.AnalysisStatus) ([]model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListPostsSeenInRun"); err != nil {
		return nil, err
	}
	var out []model.Post
	for _, p := range s.posts {
		if p.CampaignID != campaignID || p.LastSeenRun != runNumber {
			continue
		}
		if status != "" && p.Analysis.Status != status {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (s *memStore) ListPostsByRun(_ context.Context, runID string, _, _ int) ([]model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Post
	for _, p := range s.posts {
		if p.RunID == runID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *memStore) InsertAnalytics(_ context.Context, a *model.Analytics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("InsertAnalytics"); err != nil {
		return err
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	cp := *a
	s.analytics[a.RunID] = &cp
	return nil
}

func (s *memStore) GetAnalyticsByRun(_ context.Context, runID string) (*model.Analytics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.analytics[runID]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) ListAnalytics(_ context.Context, campaignID string) ([]model.Analytics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Analytics
	for _, a := range s.analytics {
		if a.CampaignID == campaignID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *memStore) Migrate(context.Context) error { return nil }
func (s *memStore) Close() error                  { return nil }

// --- Test fixtures ---

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Provider.PollIntervalSecs = 0
	cfg.Provider.PollTimeoutMins = 1
	cfg.Provider.DownloadRetries = 1
	cfg.Anthropic.Model = "test-model"
	cfg.Anthropic.MaxTokens = 1024
	cfg.Pipeline.ClassifyBatchSize = 20
	cfg.Pipeline.RelevanceThreshold = 0.5
	return cfg
}

func testRegistry() *platform.Registry {
	return platform.NewRegistry(
		platform.Spec{Name: "instagram", Dataset: "gd_instagram", Mode: platform.ModeKeyword, FetchLimit: 50},
		platform.Spec{Name: "reddit", Dataset: "gd_reddit", Mode: platform.ModeSearch, FetchLimit: 50},
	)
}

func instagramRecord(id string, likes int64) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"url": "https://www.instagram.com/p/%s/", "user_posted": "u-%s", "description": "about the brand %s", "likes": %d}`,
		id, id, id, likes,
	))
}

func redditURLRecord(id string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"url": "https://www.reddit.com/r/brand/comments/%s/post/"}`, id))
}

func redditRecord(id string, upvotes int64) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"url": "https://www.reddit.com/r/brand/comments/%s/post/", "author": "a-%s", "title": "thread %s", "body": "thoughts", "upvotes": %d}`,
		id, id, id, upvotes,
	))
}

const classifyJSON = `{"sentiment_score": 8, "sentiment_label": "positive", "topics": ["quality"], "brand_mentioned": true, "summary": "Praise.", "language": "en"}`
