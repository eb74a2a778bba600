package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/signalworks/listening-cli/internal/db"
	"github.com/signalworks/listening-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS campaigns (
	id          TEXT PRIMARY KEY,
	doc         JSONB NOT NULL,
	status      TEXT NOT NULL DEFAULT 'active',
	total_runs  INTEGER NOT NULL DEFAULT 0,
	total_posts INTEGER NOT NULL DEFAULT 0,
	last_run_at TIMESTAMPTZ,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	campaign_id    TEXT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
	run_number     INTEGER NOT NULL,
	status         TEXT NOT NULL DEFAULT 'running',
	error          TEXT,
	platform_stats JSONB NOT NULL DEFAULT '{}',
	urls_found     INTEGER NOT NULL DEFAULT 0,
	posts_scraped  INTEGER NOT NULL DEFAULT 0,
	posts_analyzed INTEGER NOT NULL DEFAULT 0,
	posts_failed   INTEGER NOT NULL DEFAULT 0,
	avg_sentiment  DOUBLE PRECISION NOT NULL DEFAULT 0,
	started_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at   TIMESTAMPTZ,
	UNIQUE (campaign_id, run_number)
);

CREATE TABLE IF NOT EXISTS posts (
	id               TEXT PRIMARY KEY,
	campaign_id      TEXT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
	platform         TEXT NOT NULL,
	platform_url     TEXT NOT NULL,
	run_id           TEXT NOT NULL,
	last_seen_run    INTEGER NOT NULL,
	analysis_status  TEXT NOT NULL DEFAULT 'pending',
	doc              JSONB NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (campaign_id, platform, platform_url)
);

CREATE TABLE IF NOT EXISTS analytics (
	id           TEXT PRIMARY KEY,
	campaign_id  TEXT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
	run_id       TEXT NOT NULL UNIQUE,
	run_number   INTEGER NOT NULL,
	doc          JSONB NOT NULL,
	generated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns(status);
CREATE INDEX IF NOT EXISTS idx_runs_campaign_id ON runs(campaign_id);
CREATE INDEX IF NOT EXISTS idx_runs_status_updated ON runs(status, updated_at);
CREATE INDEX IF NOT EXISTS idx_posts_campaign_seen ON posts(campaign_id, last_seen_run, analysis_status);
CREATE INDEX IF NOT EXISTS idx_posts_run_id ON posts(run_id);
CREATE INDEX IF NOT EXISTS idx_analytics_campaign ON analytics(campaign_id, run_number);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Campaigns ---

func (s *PostgresStore) CreateCampaign(ctx context.Context, c *model.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = model.CampaignStatusActive
	}

	doc, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal campaign")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO campaigns (id, doc, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, doc, string(c.Status), now, now,
	)
	return eris.Wrap(err, "postgres: insert campaign")
}

func (s *PostgresStore) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT doc, status, total_runs, total_posts, last_run_at, updated_at FROM campaigns WHERE id = $1`,
		id,
	)
	c, err := scanCampaign(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get campaign %s", id)
	}
	return c, nil
}

func (s *PostgresStore) ListCampaigns(ctx context.Context, filter CampaignFilter) ([]model.Campaign, error) {
	query := `SELECT doc, status, total_runs, total_posts, last_run_at, updated_at FROM campaigns WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list campaigns")
	}
	defer rows.Close()

	var campaigns []model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan campaign")
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, eris.Wrap(rows.Err(), "postgres: list campaigns iterate")
}

func (s *PostgresStore) UpdateCampaignStatus(ctx context.Context, id string, status model.CampaignStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE campaigns SET status = $1, doc = jsonb_set(doc, '{status}', to_jsonb($1::text)), updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update campaign status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("campaign not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) BumpCampaignStats(ctx context.Context, id string, posts int, lastRunAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE campaigns
		 SET total_runs = total_runs + 1, total_posts = total_posts + $1, last_run_at = $2, updated_at = $2
		 WHERE id = $3`,
		posts, lastRunAt.UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: bump campaign stats %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("campaign not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) DeleteCampaign(ctx context.Context, id string) error {
	// Runs, posts and analytics cascade via foreign keys.
	tag, err := s.pool.Exec(ctx, `DELETE FROM campaigns WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete campaign %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("campaign not found: %s", id)
	}
	return nil
}

// --- Runs ---

func (s *PostgresStore) CreateRun(ctx context.Context, campaignID string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	var runNumber int
	err := s.pool.QueryRow(ctx,
		`INSERT INTO runs (id, campaign_id, run_number, status, started_at, updated_at)
		 SELECT $1, $2, COALESCE(MAX(run_number), 0) + 1, $3, $4, $4 FROM runs WHERE campaign_id = $2
		 RETURNING run_number`,
		id, campaignID, string(model.RunStatusRunning), now,
	).Scan(&runNumber)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert run for campaign %s", campaignID)
	}

	return &model.Run{
		ID:            id,
		CampaignID:    campaignID,
		RunNumber:     runNumber,
		Status:        model.RunStatusRunning,
		PlatformStats: map[string]model.PlatformStats{},
		StartedAt:     now,
		UpdatedAt:     now,
	}, nil
}

const runColumns = `id, campaign_id, run_number, status, error, platform_stats,
	urls_found, posts_scraped, posts_analyzed, posts_failed, avg_sentiment,
	started_at, updated_at, completed_at`

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanRun(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.CampaignID != "" {
		query += fmt.Sprintf(` AND campaign_id = $%d`, argIdx)
		args = append(args, filter.CampaignID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) SetPlatformStats(ctx context.Context, runID, platform string, stats model.PlatformStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal platform stats")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET platform_stats = jsonb_set(platform_stats, ARRAY[$1], $2::jsonb), updated_at = $3 WHERE id = $4`,
		platform, statsJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set platform stats %s/%s", runID, platform)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) AddRunTotals(ctx context.Context, runID string, delta model.RunTotals) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET
			urls_found = urls_found + $1,
			posts_scraped = posts_scraped + $2,
			posts_analyzed = posts_analyzed + $3,
			posts_failed = posts_failed + $4,
			updated_at = $5
		 WHERE id = $6`,
		delta.URLsFound, delta.PostsScraped, delta.PostsAnalyzed, delta.PostsFailed,
		time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: add run totals %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) SetRunAvgSentiment(ctx context.Context, runID string, avg float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET avg_sentiment = $1, updated_at = $2 WHERE id = $3`,
		avg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set run avg sentiment %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, completed_at = $2, updated_at = $2 WHERE id = $3 AND status = $4`,
		string(model.RunStatusCompleted), now, runID, string(model.RunStatusRunning),
	)
	return eris.Wrapf(err, "postgres: complete run %s", runID)
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, msg string) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, completed_at = $3, updated_at = $3 WHERE id = $4 AND status = $5`,
		string(model.RunStatusFailed), msg, now, runID, string(model.RunStatusRunning),
	)
	return eris.Wrapf(err, "postgres: fail run %s", runID)
}

func (s *PostgresStore) SweepStuckRuns(ctx context.Context, cutoff time.Duration) (int, error) {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, completed_at = $3, updated_at = $3
		 WHERE status = $4 AND updated_at < $5`,
		string(model.RunStatusFailed), "run exceeded cleanup cutoff without progress",
		now, string(model.RunStatusRunning), now.Add(-cutoff),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: sweep stuck runs")
	}
	return int(tag.RowsAffected()), nil
}

// --- Posts ---

func (s *PostgresStore) GetPostByURL(ctx context.Context, campaignID, platform, platformURL string) (*model.Post, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM posts WHERE campaign_id = $1 AND platform = $2 AND platform_url = $3`,
		campaignID, platform, platformURL,
	).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get post by url")
	}

	var p model.Post
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal post")
	}
	return &p, nil
}

func (s *PostgresStore) InsertPost(ctx context.Context, post *model.Post) (bool, error) {
	doc, err := json.Marshal(post)
	if err != nil {
		return false, eris.Wrap(err, "postgres: marshal post")
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO posts (id, campaign_id, platform, platform_url, run_id, last_seen_run, analysis_status, doc, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (campaign_id, platform, platform_url) DO NOTHING`,
		post.ID, post.CampaignID, post.Platform, post.PlatformURL, post.RunID,
		post.LastSeenRun, string(post.Analysis.Status), doc, post.CreatedAt, post.UpdatedAt,
	)
	if err != nil {
		return false, eris.Wrap(err, "postgres: insert post")
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) UpdatePost(ctx context.Context, post *model.Post) error {
	doc, err := json.Marshal(post)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal post")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE posts SET doc = $1, last_seen_run = $2, analysis_status = $3, updated_at = $4 WHERE id = $5`,
		doc, post.LastSeenRun, string(post.Analysis.Status), post.UpdatedAt, post.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update post %s", post.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("post not found: %s", post.ID)
	}
	return nil
}

func (s *PostgresStore) UpdatePostAnalysis(ctx context.Context, postID string, analysis model.Analysis) error {
	analysisJSON, err := json.Marshal(analysis)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal analysis")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE posts SET doc = jsonb_set(doc, '{analysis}', $1::jsonb), analysis_status = $2, updated_at = $3 WHERE id = $4`,
		analysisJSON, string(analysis.Status), time.Now().UTC(), postID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update post analysis %s", postID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("post not found: %s", postID)
	}
	return nil
}

func (s *PostgresStore) ListPostsSeenInRun(ctx context.Context, campaignID string, runNumber int, status model.AnalysisStatus) ([]model.Post, error) {
	query := `SELECT doc FROM posts WHERE campaign_id = $1 AND last_seen_run = $2`
	args := []any{campaignID, runNumber}
	if status != "" {
		query += ` AND analysis_status = $3`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list posts seen in run")
	}
	defer rows.Close()

	return scanPostDocs(rows)
}

func (s *PostgresStore) ListPostsByRun(ctx context.Context, runID string, limit, offset int) ([]model.Post, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT doc FROM posts WHERE run_id = $1 ORDER BY created_at ASC LIMIT $2 OFFSET $3`,
		runID, limit, offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list posts by run")
	}
	defer rows.Close()

	return scanPostDocs(rows)
}

// --- Analytics ---

func (s *PostgresStore) InsertAnalytics(ctx context.Context, a *model.Analytics) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	doc, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal analytics")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO analytics (id, campaign_id, run_id, run_number, doc, generated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (run_id) DO UPDATE SET doc = $5, generated_at = $6`,
		a.ID, a.CampaignID, a.RunID, a.RunNumber, doc, a.GeneratedAt,
	)
	return eris.Wrap(err, "postgres: insert analytics")
}

func (s *PostgresStore) GetAnalyticsByRun(ctx context.Context, runID string) (*model.Analytics, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM analytics WHERE run_id = $1`,
		runID,
	).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get analytics by run")
	}

	var a model.Analytics
	if err := json.Unmarshal(doc, &a); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal analytics")
	}
	return &a, nil
}

func (s *PostgresStore) ListAnalytics(ctx context.Context, campaignID string) ([]model.Analytics, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT doc FROM analytics WHERE campaign_id = $1 ORDER BY run_number ASC`,
		campaignID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list analytics")
	}
	defer rows.Close()

	var out []model.Analytics
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "postgres: scan analytics")
		}
		var a model.Analytics
		if err := json.Unmarshal(doc, &a); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal analytics")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list analytics iterate")
}

// --- scan helpers ---

func scanCampaign(row pgx.Row) (*model.Campaign, error) {
	var doc []byte
	var status string
	var totalRuns, totalPosts int
	var lastRunAt *time.Time
	var updatedAt time.Time

	if err := row.Scan(&doc, &status, &totalRuns, &totalPosts, &lastRunAt, &updatedAt); err != nil {
		return nil, err
	}

	var c model.Campaign
	if err := json.Unmarshal(doc, &c); err != nil {
		return nil, err
	}
	// Columns are authoritative for the mutable fields.
	c.Status = model.CampaignStatus(status)
	c.Stats = model.CampaignStats{TotalRuns: totalRuns, TotalPosts: totalPosts, LastRunAt: lastRunAt}
	c.UpdatedAt = updatedAt
	return &c, nil
}

func scanRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var errMsg *string
	var statsJSON []byte

	if err := row.Scan(
		&r.ID, &r.CampaignID, &r.RunNumber, &r.Status, &errMsg, &statsJSON,
		&r.Totals.URLsFound, &r.Totals.PostsScraped, &r.Totals.PostsAnalyzed,
		&r.Totals.PostsFailed, &r.Totals.AvgSentiment,
		&r.StartedAt, &r.UpdatedAt, &r.CompletedAt,
	); err != nil {
		return nil, err
	}

	if errMsg != nil {
		r.Error = *errMsg
	}
	r.PlatformStats = map[string]model.PlatformStats{}
	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &r.PlatformStats); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

func scanPostDocs(rows pgx.Rows) ([]model.Post, error) {
	var posts []model.Post
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "postgres: scan post")
		}
		var p model.Post
		if err := json.Unmarshal(doc, &p); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal post")
		}
		posts = append(posts, p)
	}
	return posts, eris.Wrap(rows.Err(), "postgres: iterate posts")
}
