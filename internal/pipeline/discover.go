package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/signalworks/listening-cli/internal/model"
	"github.com/signalworks/listening-cli/internal/platform"
	"github.com/signalworks/listening-cli/internal/resilience"
	"github.com/signalworks/listening-cli/pkg/provider"
)

// discoverResult is one platform's stage-1 outcome.
type discoverResult struct {
	urls       []string
	needsFetch bool
}

// discoverPlatform runs stage 1 for a single platform. Keyword-mode
// platforms return final content which is ingested immediately; search-mode
// platforms return only a candidate URL list for stage 2.
func (p *Pipeline) discoverPlatform(ctx context.Context, campaign *model.Campaign, run *model.Run, gate *relevanceGate, name string) (discoverResult, error) {
	spec, ok := p.registry.Get(name)
	if !ok {
		return discoverResult{}, eris.Errorf("discover: unknown platform %q", name)
	}

	// Dual search only applies to keyword-mode platforms; search-mode
	// discovery already matches hashtag posts through the provider's index.
	keywords := []string{campaign.Query}
	if campaign.Settings.DualSearch && spec.Mode == platform.ModeKeyword {
		keywords = append(keywords, hashtagForm(campaign.Query))
	}

	limit := p.fetchLimit(campaign, spec)
	var records []json.RawMessage
	for _, kw := range keywords {
		jobID, err := p.provider.TriggerByKeyword(ctx, spec.Dataset, kw, provider.KeywordOptions{Limit: limit})
		if err != nil {
			return discoverResult{}, eris.Wrapf(err, "discover: trigger %s", name)
		}
		if err := p.waitForJob(ctx, jobID, name); err != nil {
			return discoverResult{}, err
		}
		batch, err := p.download(ctx, jobID, name)
		if err != nil {
			return discoverResult{}, err
		}
		records = append(records, batch...)
	}

	switch spec.Mode {
	case platform.ModeKeyword:
		// Final content: ingest now, no fetch stage.
		scraped := p.ingestRecords(ctx, campaign, run, gate, name, records)
		stats := model.PlatformStats{URLsFound: len(records), PostsScraped: scraped}
		if err := p.store.SetPlatformStats(ctx, run.ID, name, stats); err != nil {
			return discoverResult{}, eris.Wrap(err, "discover: record stats")
		}
		if err := p.store.AddRunTotals(ctx, run.ID, model.RunTotals{URLsFound: len(records), PostsScraped: scraped}); err != nil {
			return discoverResult{}, eris.Wrap(err, "discover: add totals")
		}
		return discoverResult{}, nil

	default:
		urls := extractURLs(records, limit)
		stats := model.PlatformStats{URLsFound: len(urls), NeedsFetch: true}
		if err := p.store.SetPlatformStats(ctx, run.ID, name, stats); err != nil {
			return discoverResult{}, eris.Wrap(err, "discover: record stats")
		}
		if err := p.store.AddRunTotals(ctx, run.ID, model.RunTotals{URLsFound: len(urls)}); err != nil {
			return discoverResult{}, eris.Wrap(err, "discover: add totals")
		}
		return discoverResult{urls: urls, needsFetch: true}, nil
	}
}

// ingestRecords normalizes, relevance-gates and deduplicates a batch of raw
// provider records. Returns how many records were ingested (new posts and
// merged re-sightings both count; gated or malformed records do not).
func (p *Pipeline) ingestRecords(ctx context.Context, campaign *model.Campaign, run *model.Run, gate *relevanceGate, name string, records []json.RawMessage) int {
	log := zap.L().With(zap.String("run_id", run.ID), zap.String("platform", name))

	scraped := 0
	for _, raw := range records {
		rec, err := platform.Normalize(name, raw)
		if err != nil {
			log.Warn("pipeline: dropping malformed record", zap.Error(err))
			continue
		}
		if campaign.Settings.RelevanceFilter && !gate.Allow(ctx, rec) {
			continue
		}
		_, created, err := p.dedup.Ingest(ctx, campaign.ID, run, rec)
		if err != nil {
			log.Warn("pipeline: ingest failed", zap.String("url", rec.URL), zap.Error(err))
			continue
		}
		scraped++
		if !created {
			log.Debug("pipeline: merged repeat sighting", zap.String("url", rec.URL))
		}
	}
	return scraped
}

// waitForJob blocks until the provider job completes, with the configured
// poll interval and timeout.
func (p *Pipeline) waitForJob(ctx context.Context, jobID, name string) error {
	err := provider.WaitForCompletion(ctx, p.provider, jobID,
		provider.WithPollInterval(time.Duration(p.cfg.Provider.PollIntervalSecs)*time.Second),
		provider.WithPollTimeout(time.Duration(p.cfg.Provider.PollTimeoutMins)*time.Minute),
	)
	return eris.Wrapf(err, "pipeline: job %s for %s", jobID, name)
}

// download retrieves a completed job's records with bounded fixed-backoff
// retries on transient errors.
func (p *Pipeline) download(ctx context.Context, jobID, name string) ([]json.RawMessage, error) {
	cfg := resilience.FromRetryConfig(p.cfg.Provider.DownloadRetries, p.cfg.Provider.DownloadBackoffMs)
	cfg.OnRetry = resilience.RetryLogger("provider", "download")
	records, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]json.RawMessage, error) {
		return p.provider.Download(ctx, jobID)
	})
	return records, eris.Wrapf(err, "pipeline: download job %s for %s", jobID, name)
}

// fetchLimit returns the per-platform URL cap: campaign override first,
// registry default otherwise.
func (p *Pipeline) fetchLimit(campaign *model.Campaign, spec platform.Spec) int {
	if limit, ok := campaign.Settings.FetchLimits[spec.Name]; ok && limit > 0 {
		return limit
	}
	return spec.FetchLimit
}

// fetchDataset names the provider dataset used for URL-based fetching of a
// platform's content.
func (p *Pipeline) fetchDataset(name string) string {
	if spec, ok := p.registry.Get(name); ok {
		return spec.Dataset
	}
	return name
}

// hashtagForm turns a free-text query into its hashtag equivalent for the
// dual-search second pass ("acme shoes" -> "#acmeshoes").
func hashtagForm(query string) string {
	compact := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(query)), " ", "")
	if compact == "" {
		return ""
	}
	return "#" + compact
}

// extractURLs pulls the candidate URL out of each search-mode record, up to
// the platform's fetch limit, skipping duplicates within the batch.
func extractURLs(records []json.RawMessage, limit int) []string {
	seen := make(map[string]struct{}, len(records))
	urls := make([]string, 0, len(records))
	for _, raw := range records {
		var hit struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(raw, &hit); err != nil || hit.URL == "" {
			continue
		}
		if _, dup := seen[hit.URL]; dup {
			continue
		}
		seen[hit.URL] = struct{}{}
		urls = append(urls, hit.URL)
		if limit > 0 && len(urls) >= limit {
			break
		}
	}
	return urls
}
