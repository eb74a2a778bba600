package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/signalworks/listening-cli/internal/model"
)

// fetchPlatform runs stage 2 for one platform: fetch the discovered URLs as
// full records and ingest them.
func (p *Pipeline) fetchPlatform(ctx context.Context, campaign *model.Campaign, run *model.Run, gate *relevanceGate, name string, urls []string) error {
	jobID, err := p.provider.TriggerByURLs(ctx, p.fetchDataset(name), urls)
	if err != nil {
		return eris.Wrapf(err, "fetch: trigger %s", name)
	}
	if err := p.waitForJob(ctx, jobID, name); err != nil {
		return err
	}
	records, err := p.download(ctx, jobID, name)
	if err != nil {
		return err
	}

	scraped := p.ingestRecords(ctx, campaign, run, gate, name, records)

	// Discover already wrote this platform's sub-record; extend it rather
	// than overwrite the urls_found count.
	current, err := p.store.GetRun(ctx, run.ID)
	if err != nil {
		return eris.Wrap(err, "fetch: reload run")
	}
	stats := current.PlatformStats[name]
	stats.PostsScraped = scraped
	if err := p.store.SetPlatformStats(ctx, run.ID, name, stats); err != nil {
		return eris.Wrap(err, "fetch: record stats")
	}
	return eris.Wrap(
		p.store.AddRunTotals(ctx, run.ID, model.RunTotals{PostsScraped: scraped}),
		"fetch: add totals",
	)
}
