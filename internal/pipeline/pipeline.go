// Package pipeline drives one campaign run through its four stages:
// discover, fetch, classify, aggregate.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/signalworks/listening-cli/internal/config"
	"github.com/signalworks/listening-cli/internal/dedup"
	"github.com/signalworks/listening-cli/internal/model"
	"github.com/signalworks/listening-cli/internal/platform"
	"github.com/signalworks/listening-cli/internal/store"
	"github.com/signalworks/listening-cli/pkg/anthropic"
	"github.com/signalworks/listening-cli/pkg/jina"
	"github.com/signalworks/listening-cli/pkg/provider"
)

// Pipeline orchestrates the four stages of a campaign run.
type Pipeline struct {
	cfg       *config.Config
	store     store.Store
	provider  provider.Client
	anthropic anthropic.Client
	jina      jina.Client
	registry  *platform.Registry
	dedup     *dedup.Engine
}

// New creates a Pipeline with all dependencies.
func New(
	cfg *config.Config,
	st store.Store,
	providerClient provider.Client,
	aiClient anthropic.Client,
	jinaClient jina.Client,
	registry *platform.Registry,
) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		store:     st,
		provider:  providerClient,
		anthropic: aiClient,
		jina:      jinaClient,
		registry:  registry,
		dedup:     dedup.NewEngine(st),
	}
}

// Execute runs the full pipeline for an already created Run. On a fatal
// error the Run is marked failed with the message attached and the error is
// returned. Per-platform and per-post failures are absorbed into the run's
// stats and never surface here.
func (p *Pipeline) Execute(ctx context.Context, campaignID, runID string) error {
	log := zap.L().With(zap.String("campaign_id", campaignID), zap.String("run_id", runID))

	campaign, err := p.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return p.fatal(ctx, runID, log, eris.Wrap(err, "pipeline: load campaign"))
	}
	run, err := p.store.GetRun(ctx, runID)
	if err != nil {
		return p.fatal(ctx, runID, log, eris.Wrap(err, "pipeline: load run"))
	}

	log = log.With(zap.Int("run_number", run.RunNumber))
	log.Info("pipeline: starting run", zap.Strings("platforms", campaign.Platforms))

	gate := newRelevanceGate(p.jina, campaign, p.cfg.Pipeline.RelevanceThreshold)

	// ===== Stage 1: Discover (all platforms concurrently, all-settle) =====
	needsFetch := p.discoverStage(ctx, campaign, run, gate, log)

	// ===== Stage 2: Fetch (only platforms flagged in stage 1) =====
	if len(needsFetch) > 0 {
		p.fetchStage(ctx, campaign, run, gate, needsFetch, log)
	}

	// ===== Stage 3: Classify (single shot, batched) =====
	classified, err := p.classifyStage(ctx, campaign, run, log)
	if err != nil {
		return p.fatal(ctx, runID, log, eris.Wrap(err, "pipeline: classify"))
	}

	// ===== Stage 4: Aggregate (single shot) =====
	if err := p.aggregateStage(ctx, campaign, run, classified, log); err != nil {
		return p.fatal(ctx, runID, log, eris.Wrap(err, "pipeline: aggregate"))
	}

	log.Info("pipeline: run completed")
	return nil
}

// trackStage logs a stage's duration and outcome around fn.
func trackStage(log *zap.Logger, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	duration := time.Since(start).Milliseconds()

	if err != nil {
		log.Error("pipeline: stage failed",
			zap.String("stage", name),
			zap.Int64("duration_ms", duration),
			zap.Error(err),
		)
		return err
	}
	log.Info("pipeline: stage complete",
		zap.String("stage", name),
		zap.Int64("duration_ms", duration),
	)
	return nil
}

// discoverStage fans out one discovery task per platform and waits for all
// of them to settle. It returns the platforms that produced URL lists and
// need the fetch stage. A platform task's failure is recorded in its stats
// sub-record and never aborts siblings.
func (p *Pipeline) discoverStage(ctx context.Context, campaign *model.Campaign, run *model.Run, gate *relevanceGate, log *zap.Logger) map[string][]string {
	var (
		pending = make(map[string][]string, len(campaign.Platforms))
		g       errgroup.Group
	)
	results := make([]discoverResult, len(campaign.Platforms))

	_ = trackStage(log, "discover", func() error {
		for i, name := range campaign.Platforms {
			g.Go(func() error {
				res, err := p.discoverPlatform(ctx, campaign, run, gate, name)
				if err != nil {
					log.Warn("pipeline: discover task failed",
						zap.String("platform", name),
						zap.Error(err),
					)
					p.recordPlatformFailure(ctx, run, name, err)
					return nil
				}
				results[i] = res
				return nil
			})
		}
		// Tasks always return nil: the stage barrier waits for every
		// platform to settle no matter the outcome.
		return g.Wait()
	})

	for i, name := range campaign.Platforms {
		if results[i].needsFetch && len(results[i].urls) > 0 {
			pending[name] = results[i].urls
		}
	}
	return pending
}

// fetchStage downloads final content for the platforms that only produced
// URL lists in stage 1. Same all-settle semantics as discover.
func (p *Pipeline) fetchStage(ctx context.Context, campaign *model.Campaign, run *model.Run, gate *relevanceGate, pending map[string][]string, log *zap.Logger) {
	var g errgroup.Group

	_ = trackStage(log, "fetch", func() error {
		for name, urls := range pending {
			g.Go(func() error {
				if err := p.fetchPlatform(ctx, campaign, run, gate, name, urls); err != nil {
					log.Warn("pipeline: fetch task failed",
						zap.String("platform", name),
						zap.Error(err),
					)
					p.recordPlatformFailure(ctx, run, name, err)
				}
				return nil
			})
		}
		return g.Wait()
	})
}

// recordPlatformFailure stamps the error onto the platform's stats
// sub-record, preserving any counts the task reported before failing.
func (p *Pipeline) recordPlatformFailure(ctx context.Context, run *model.Run, platformName string, taskErr error) {
	current, err := p.store.GetRun(ctx, run.ID)
	stats := model.PlatformStats{}
	if err == nil {
		stats = current.PlatformStats[platformName]
	}
	stats.Error = taskErr.Error()
	if err := p.store.SetPlatformStats(ctx, run.ID, platformName, stats); err != nil {
		zap.L().Warn("pipeline: failed to record platform failure",
			zap.String("run_id", run.ID),
			zap.String("platform", platformName),
			zap.Error(err),
		)
	}
}

// fatal marks the run failed, records the message, and returns the error
// for the caller. Results already written stay in place; only the run's
// terminal status reflects the failure.
func (p *Pipeline) fatal(ctx context.Context, runID string, log *zap.Logger, err error) error {
	log.Error("pipeline: fatal error", zap.Error(err))
	if failErr := p.store.FailRun(ctx, runID, err.Error()); failErr != nil {
		log.Warn("pipeline: failed to mark run failed", zap.Error(failErr))
	}
	return err
}
