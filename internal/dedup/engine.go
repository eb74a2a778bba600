package dedup

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/signalworks/listening-cli/internal/model"
)

// PostStore is the slice of the store the engine needs.
type PostStore interface {
	// GetPostByURL returns the post for a normalized platform URL, or
	// (nil, nil) when none exists.
	GetPostByURL(ctx context.Context, campaignID, platform, platformURL string) (*model.Post, error)

	// InsertPost inserts a post if no row exists for its dedup key and
	// reports whether the insert happened. A false return with nil error
	// means another writer created the post first.
	InsertPost(ctx context.Context, post *model.Post) (bool, error)

	// UpdatePost rewrites an existing post document.
	UpdatePost(ctx context.Context, post *model.Post) error
}

// Engine resolves incoming raw records against the campaign's post history
// and merges engagement snapshots. Ingesting the same URL any number of
// times yields exactly one post whose history grows by one per sighting.
type Engine struct {
	posts PostStore
	now   func() time.Time
}

// NewEngine creates a deduplication engine.
func NewEngine(posts PostStore) *Engine {
	return &Engine{posts: posts, now: time.Now}
}

// WithNow sets a fixed clock for testing.
func (e *Engine) WithNow(fn func() time.Time) *Engine {
	e.now = fn
	return e
}

// Ingest records one sighting of a raw record for the given run. It returns
// the resulting post and whether it was newly created. Insert races with a
// concurrent first sighting fall back to a merge.
func (e *Engine) Ingest(ctx context.Context, campaignID string, run *model.Run, rec model.RawRecord) (*model.Post, bool, error) {
	key, err := NormalizeURL(rec.Platform, rec.URL)
	if err != nil {
		return nil, false, err
	}

	existing, err := e.Resolve(ctx, campaignID, rec.Platform, key)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		if err := e.Merge(ctx, existing, rec, run); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	post := e.Materialize(campaignID, run, rec, key)
	inserted, err := e.posts.InsertPost(ctx, post)
	if err != nil {
		return nil, false, err
	}
	if inserted {
		return post, true, nil
	}

	// Lost the first-insert race: another task materialized this URL
	// between our resolve and insert. Merge into the winner's row.
	zap.L().Debug("dedup: insert conflict, merging",
		zap.String("platform", rec.Platform),
		zap.String("url", key),
	)
	existing, err = e.Resolve(ctx, campaignID, rec.Platform, key)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, eris.Errorf("dedup: post %s vanished after insert conflict", key)
	}
	if err := e.Merge(ctx, existing, rec, run); err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Resolve looks up the post for a normalized platform URL. Returns nil when
// no post exists yet.
func (e *Engine) Resolve(ctx context.Context, campaignID, platform, platformURL string) (*model.Post, error) {
	return e.posts.GetPostByURL(ctx, campaignID, platform, platformURL)
}

// Merge records a repeat sighting on an existing post: appends an
// engagement snapshot, advances last_seen_run, increments appearances and
// overwrites the current engagement figures. The analysis record is left
// untouched, so re-sighted posts are never re-classified.
func (e *Engine) Merge(ctx context.Context, existing *model.Post, rec model.RawRecord, run *model.Run) error {
	snap := rec.Snapshot(run.RunNumber, e.now().UTC())

	existing.EngagementHistory = append(existing.EngagementHistory, snap)
	existing.Engagement = snap
	existing.LastSeenRun = run.RunNumber
	existing.TotalAppearances++
	existing.UpdatedAt = snap.Timestamp

	if err := e.posts.UpdatePost(ctx, existing); err != nil {
		return eris.Wrapf(err, "dedup: merge post %s", existing.ID)
	}
	return nil
}

// Materialize builds a fresh post for a first sighting with analysis
// pending and a single-entry engagement history.
func (e *Engine) Materialize(campaignID string, run *model.Run, rec model.RawRecord, platformURL string) *model.Post {
	now := e.now().UTC()
	snap := rec.Snapshot(run.RunNumber, now)

	return &model.Post{
		ID:                uuid.New().String(),
		CampaignID:        campaignID,
		RunID:             run.ID,
		Platform:          rec.Platform,
		PlatformURL:       platformURL,
		Author:            rec.Author,
		Content:           rec.Content,
		PostedAt:          rec.PostedAt,
		Payload:           rec.Payload,
		Analysis:          model.Analysis{Status: model.AnalysisStatusPending},
		FirstSeenRun:      run.RunNumber,
		LastSeenRun:       run.RunNumber,
		TotalAppearances:  1,
		Engagement:        snap,
		EngagementHistory: []model.EngagementSnapshot{snap},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}
