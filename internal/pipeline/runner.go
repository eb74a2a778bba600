package pipeline

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/signalworks/listening-cli/internal/model"
	"github.com/signalworks/listening-cli/internal/store"
)

// Runner owns asynchronous run execution: TriggerRun persists a running Run
// and returns its id immediately; the pipeline executes on a bounded worker
// pool in the background. The persisted Run status is the only externally
// observable completion signal.
type Runner struct {
	pipeline *Pipeline
	store    store.Store
	sem      *semaphore.Weighted
	wg       sync.WaitGroup
}

// NewRunner creates a Runner allowing at most maxConcurrent simultaneous runs.
func NewRunner(p *Pipeline, st store.Store, maxConcurrent int) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Runner{
		pipeline: p,
		store:    st,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// TriggerRun starts a run for the campaign and returns the new run id
// without waiting for the pipeline. Paused campaigns are rejected.
func (r *Runner) TriggerRun(ctx context.Context, campaignID string) (string, error) {
	campaign, err := r.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return "", eris.Wrapf(err, "runner: load campaign %s", campaignID)
	}
	if campaign.Status != model.CampaignStatusActive {
		return "", eris.Errorf("runner: campaign %s is %s", campaignID, campaign.Status)
	}

	run, err := r.store.CreateRun(ctx, campaignID)
	if err != nil {
		return "", eris.Wrapf(err, "runner: create run for %s", campaignID)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		// Detached from the trigger's context: a dispatched run executes
		// to completion, error, or its own timeouts. The sweeper recovers
		// anything that dies without reaching its failure handler.
		runCtx := context.Background()

		if err := r.sem.Acquire(runCtx, 1); err != nil {
			if failErr := r.store.FailRun(runCtx, run.ID, "runner: worker pool unavailable"); failErr != nil {
				zap.L().Warn("runner: failed to mark run failed", zap.Error(failErr))
			}
			return
		}
		defer r.sem.Release(1)

		if err := r.pipeline.Execute(runCtx, campaignID, run.ID); err != nil {
			zap.L().Error("runner: run failed",
				zap.String("campaign_id", campaignID),
				zap.String("run_id", run.ID),
				zap.Error(err),
			)
		}
	}()

	return run.ID, nil
}

// Wait blocks until every in-flight run has finished. Used on shutdown.
func (r *Runner) Wait() {
	r.wg.Wait()
}
