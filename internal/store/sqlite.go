package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/signalworks/listening-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS campaigns (
	id          TEXT PRIMARY KEY,
	doc         TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'active',
	total_runs  INTEGER NOT NULL DEFAULT 0,
	total_posts INTEGER NOT NULL DEFAULT 0,
	last_run_at DATETIME,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	campaign_id    TEXT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
	run_number     INTEGER NOT NULL,
	status         TEXT NOT NULL DEFAULT 'running',
	error          TEXT,
	platform_stats TEXT NOT NULL DEFAULT '{}',
	urls_found     INTEGER NOT NULL DEFAULT 0,
	posts_scraped  INTEGER NOT NULL DEFAULT 0,
	posts_analyzed INTEGER NOT NULL DEFAULT 0,
	posts_failed   INTEGER NOT NULL DEFAULT 0,
	avg_sentiment  REAL NOT NULL DEFAULT 0,
	started_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at   DATETIME,
	UNIQUE (campaign_id, run_number)
);

CREATE TABLE IF NOT EXISTS posts (
	id              TEXT PRIMARY KEY,
	campaign_id     TEXT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
	platform        TEXT NOT NULL,
	platform_url    TEXT NOT NULL,
	run_id          TEXT NOT NULL,
	last_seen_run   INTEGER NOT NULL,
	analysis_status TEXT NOT NULL DEFAULT 'pending',
	doc             TEXT NOT NULL,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (campaign_id, platform, platform_url)
);

CREATE TABLE IF NOT EXISTS analytics (
	id           TEXT PRIMARY KEY,
	campaign_id  TEXT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
	run_id       TEXT NOT NULL UNIQUE,
	run_number   INTEGER NOT NULL,
	doc          TEXT NOT NULL,
	generated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns(status);
CREATE INDEX IF NOT EXISTS idx_runs_campaign_id ON runs(campaign_id);
CREATE INDEX IF NOT EXISTS idx_runs_status_updated ON runs(status, updated_at);
CREATE INDEX IF NOT EXISTS idx_posts_campaign_seen ON posts(campaign_id, last_seen_run, analysis_status);
CREATE INDEX IF NOT EXISTS idx_posts_run_id ON posts(run_id);
CREATE INDEX IF NOT EXISTS idx_analytics_campaign ON analytics(campaign_id, run_number);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Campaigns ---

func (s *SQLiteStore) CreateCampaign(ctx context.Context, c *model.Campaign) error {
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
		return eris.Wrap(err, "sqlite: marshal campaign")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO campaigns (id, doc, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, string(doc), string(c.Status), now, now,
	)
	return eris.Wrap(err, "sqlite: insert campaign")
}

func (s *SQLiteStore) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT doc, status, total_runs, total_posts, last_run_at, updated_at FROM campaigns WHERE id = ?`,
		id,
	)
	c, err := scanCampaignRow(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get campaign %s", id)
	}
	return c, nil
}

func (s *SQLiteStore) ListCampaigns(ctx context.Context, filter CampaignFilter) ([]model.Campaign, error) {
	query := `SELECT doc, status, total_runs, total_posts, last_run_at, updated_at FROM campaigns WHERE 1=1`
	args := []any{}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list campaigns")
	}
	defer rows.Close()

	var campaigns []model.Campaign
	for rows.Next() {
		c, err := scanCampaignRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan campaign")
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, eris.Wrap(rows.Err(), "sqlite: list campaigns iterate")
}

func (s *SQLiteStore) UpdateCampaignStatus(ctx context.Context, id string, status model.CampaignStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET status = ?, doc = json_set(doc, '$.status', ?), updated_at = ? WHERE id = ?`,
		string(status), string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update campaign status %s", id)
	}
	return requireAffected(res, "campaign not found: %s", id)
}

func (s *SQLiteStore) BumpCampaignStats(ctx context.Context, id string, posts int, lastRunAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE campaigns
		 SET total_runs = total_runs + 1, total_posts = total_posts + ?, last_run_at = ?, updated_at = ?
		 WHERE id = ?`,
		posts, lastRunAt.UTC(), lastRunAt.UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: bump campaign stats %s", id)
	}
	return requireAffected(res, "campaign not found: %s", id)
}

func (s *SQLiteStore) DeleteCampaign(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM campaigns WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete campaign %s", id)
	}
	return requireAffected(res, "campaign not found: %s", id)
}

// --- Runs ---

func (s *SQLiteStore) CreateRun(ctx context.Context, campaignID string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	var runNumber int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO runs (id, campaign_id, run_number, status, started_at, updated_at)
		 SELECT ?, ?, COALESCE(MAX(run_number), 0) + 1, ?, ?, ? FROM runs WHERE campaign_id = ?
		 RETURNING run_number`,
		id, campaignID, string(model.RunStatusRunning), now, now, campaignID,
	).Scan(&runNumber)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert run for campaign %s", campaignID)
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

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRunRow(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	args := []any{}

	if filter.CampaignID != "" {
		query += ` AND campaign_id = ?`
		args = append(args, filter.CampaignID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRunRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SetPlatformStats(ctx context.Context, runID, platform string, stats model.PlatformStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal platform stats")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET platform_stats = json_set(platform_stats, '$."' || ? || '"', json(?)), updated_at = ? WHERE id = ?`,
		platform, string(statsJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set platform stats %s/%s", runID, platform)
	}
	return requireAffected(res, "run not found: %s", runID)
}

func (s *SQLiteStore) AddRunTotals(ctx context.Context, runID string, delta model.RunTotals) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET
			urls_found = urls_found + ?,
			posts_scraped = posts_scraped + ?,
			posts_analyzed = posts_analyzed + ?,
			posts_failed = posts_failed + ?,
			updated_at = ?
		 WHERE id = ?`,
		delta.URLsFound, delta.PostsScraped, delta.PostsAnalyzed, delta.PostsFailed,
		time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: add run totals %s", runID)
	}
	return requireAffected(res, "run not found: %s", runID)
}

func (s *SQLiteStore) SetRunAvgSentiment(ctx context.Context, runID string, avg float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET avg_sentiment = ?, updated_at = ? WHERE id = ?`,
		avg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set run avg sentiment %s", runID)
	}
	return requireAffected(res, "run not found: %s", runID)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(model.RunStatusCompleted), now, now, runID, string(model.RunStatusRunning),
	)
	return eris.Wrapf(err, "sqlite: complete run %s", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, msg string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, completed_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(model.RunStatusFailed), msg, now, now, runID, string(model.RunStatusRunning),
	)
	return eris.Wrapf(err, "sqlite: fail run %s", runID)
}

func (s *SQLiteStore) SweepStuckRuns(ctx context.Context, cutoff time.Duration) (int, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, completed_at = ?, updated_at = ?
		 WHERE status = ? AND updated_at < ?`,
		string(model.RunStatusFailed), "run exceeded cleanup cutoff without progress",
		now, now, string(model.RunStatusRunning), now.Add(-cutoff),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: sweep stuck runs")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: sweep rows affected")
	}
	return int(n), nil
}

// --- Posts ---

func (s *SQLiteStore) GetPostByURL(ctx context.Context, campaignID, platform, platformURL string) (*model.Post, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM posts WHERE campaign_id = ? AND platform = ? AND platform_url = ?`,
		campaignID, platform, platformURL,
	).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get post by url")
	}

	var p model.Post
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal post")
	}
	return &p, nil
}

func (s *SQLiteStore) InsertPost(ctx context.Context, post *model.Post) (bool, error) {
	doc, err := json.Marshal(post)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: marshal post")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO posts (id, campaign_id, platform, platform_url, run_id, last_seen_run, analysis_status, doc, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (campaign_id, platform, platform_url) DO NOTHING`,
		post.ID, post.CampaignID, post.Platform, post.PlatformURL, post.RunID,
		post.LastSeenRun, string(post.Analysis.Status), string(doc), post.CreatedAt, post.UpdatedAt,
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: insert post")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: insert post rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) UpdatePost(ctx context.Context, post *model.Post) error {
	doc, err := json.Marshal(post)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal post")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE posts SET doc = ?, last_seen_run = ?, analysis_status = ?, updated_at = ? WHERE id = ?`,
		string(doc), post.LastSeenRun, string(post.Analysis.Status), post.UpdatedAt, post.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update post %s", post.ID)
	}
	return requireAffected(res, "post not found: %s", post.ID)
}

func (s *SQLiteStore) UpdatePostAnalysis(ctx context.Context, postID string, analysis model.Analysis) error {
	analysisJSON, err := json.Marshal(analysis)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal analysis")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE posts SET doc = json_set(doc, '$.analysis', json(?)), analysis_status = ?, updated_at = ? WHERE id = ?`,
		string(analysisJSON), string(analysis.Status), time.Now().UTC(), postID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update post analysis %s", postID)
	}
	return requireAffected(res, "post not found: %s", postID)
}

func (s *SQLiteStore) ListPostsSeenInRun(ctx context.Context, campaignID string, runNumber int, status model.AnalysisStatus) ([]model.Post, error) {
	query := `SELECT doc FROM posts WHERE campaign_id = ? AND last_seen_run = ?`
	args := []any{campaignID, runNumber}
	if status != "" {
		query += ` AND analysis_status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list posts seen in run")
	}
	defer rows.Close()

	return scanPostDocRows(rows)
}

func (s *SQLiteStore) ListPostsByRun(ctx context.Context, runID string, limit, offset int) ([]model.Post, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM posts WHERE run_id = ? ORDER BY created_at ASC LIMIT ? OFFSET ?`,
		runID, limit, offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list posts by run")
	}
	defer rows.Close()

	return scanPostDocRows(rows)
}

// --- Analytics ---

func (s *SQLiteStore) InsertAnalytics(ctx context.Context, a *model.Analytics) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	doc, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal analytics")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analytics (id, campaign_id, run_id, run_number, doc, generated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id) DO UPDATE SET doc = excluded.doc, generated_at = excluded.generated_at`,
		a.ID, a.CampaignID, a.RunID, a.RunNumber, string(doc), a.GeneratedAt,
	)
	return eris.Wrap(err, "sqlite: insert analytics")
}

func (s *SQLiteStore) GetAnalyticsByRun(ctx context.Context, runID string) (*model.Analytics, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM analytics WHERE run_id = ?`,
		runID,
	).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get analytics by run")
	}

	var a model.Analytics
	if err := json.Unmarshal([]byte(doc), &a); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal analytics")
	}
	return &a, nil
}

func (s *SQLiteStore) ListAnalytics(ctx context.Context, campaignID string) ([]model.Analytics, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM analytics WHERE campaign_id = ? ORDER BY run_number ASC`,
		campaignID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list analytics")
	}
	defer rows.Close()

	var out []model.Analytics
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan analytics")
		}
		var a model.Analytics
		if err := json.Unmarshal([]byte(doc), &a); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal analytics")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list analytics iterate")
}

// --- scan helpers ---

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaignRow(row rowScanner) (*model.Campaign, error) {
	var doc, status string
	var totalRuns, totalPosts int
	var lastRunAt *time.Time
	var updatedAt time.Time

	if err := row.Scan(&doc, &status, &totalRuns, &totalPosts, &lastRunAt, &updatedAt); err != nil {
		return nil, err
	}

	var c model.Campaign
	if err := json.Unmarshal([]byte(doc), &c); err != nil {
		return nil, err
	}
	c.Status = model.CampaignStatus(status)
	c.Stats = model.CampaignStats{TotalRuns: totalRuns, TotalPosts: totalPosts, LastRunAt: lastRunAt}
	c.UpdatedAt = updatedAt
	return &c, nil
}

func scanRunRow(row rowScanner) (*model.Run, error) {
	var r model.Run
	var errMsg *string
	var statsJSON string

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
	if statsJSON != "" {
		if err := json.Unmarshal([]byte(statsJSON), &r.PlatformStats); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

func scanPostDocRows(rows *sql.Rows) ([]model.Post, error) {
	var posts []model.Post
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan post")
		}
		var p model.Post
		if err := json.Unmarshal([]byte(doc), &p); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal post")
		}
		posts = append(posts, p)
	}
	return posts, eris.Wrap(rows.Err(), "sqlite: iterate posts")
}

func requireAffected(res sql.Result, format, arg string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.New(fmt.Sprintf(format, arg))
	}
	return nil
}
