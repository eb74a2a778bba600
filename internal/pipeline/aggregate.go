package pipeline

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/signalworks/listening-cli/internal/model"
)

const (
	topTopicsLimit = 10
	topPostsLimit  = 5
)

// aggregateStage runs stage 4 once: read every analyzed post of the run,
// compute distribution/trend/top-N statistics, write one Analytics record
// and flip the run to completed. Any error here is fatal.
func (p *Pipeline) aggregateStage(ctx context.Context, campaign *model.Campaign, run *model.Run, classified int, log *zap.Logger) error {
	return trackStage(log, "aggregate", func() error {
		posts, err := p.store.ListPostsSeenInRun(ctx, campaign.ID, run.RunNumber, model.AnalysisStatusAnalyzed)
		if err != nil {
			return eris.Wrap(err, "aggregate: list analyzed posts")
		}

		analytics := buildAnalytics(campaign, run, posts)

		// Trend: one point per prior run's analytics, plus this run.
		history, err := p.store.ListAnalytics(ctx, campaign.ID)
		if err != nil {
			return eris.Wrap(err, "aggregate: list analytics history")
		}
		for _, prior := range history {
			if prior.RunNumber >= run.RunNumber {
				continue
			}
			analytics.SentimentTrend = append(analytics.SentimentTrend, model.TrendPoint{
				RunNumber:    prior.RunNumber,
				AvgSentiment: prior.AvgSentiment,
				PostCount:    prior.PostsAnalyzed,
			})
		}
		analytics.SentimentTrend = append(analytics.SentimentTrend, model.TrendPoint{
			RunNumber:    run.RunNumber,
			AvgSentiment: analytics.AvgSentiment,
			PostCount:    analytics.PostsAnalyzed,
		})

		if err := p.store.InsertAnalytics(ctx, analytics); err != nil {
			return eris.Wrap(err, "aggregate: insert analytics")
		}
		if err := p.store.SetRunAvgSentiment(ctx, run.ID, analytics.AvgSentiment); err != nil {
			return eris.Wrap(err, "aggregate: set avg sentiment")
		}
		if err := p.store.CompleteRun(ctx, run.ID); err != nil {
			return eris.Wrap(err, "aggregate: complete run")
		}

		// Lifetime campaign stats count what this run actually scraped.
		final, err := p.store.GetRun(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "aggregate: reload run")
		}
		if err := p.store.BumpCampaignStats(ctx, campaign.ID, final.Totals.PostsScraped, time.Now().UTC()); err != nil {
			return eris.Wrap(err, "aggregate: bump campaign stats")
		}

		log.Info("pipeline: analytics written",
			zap.Int("posts_analyzed", analytics.PostsAnalyzed),
			zap.Int("classified_this_run", classified),
			zap.Float64("avg_sentiment", analytics.AvgSentiment),
		)
		return nil
	})
}

// buildAnalytics computes the distribution and top-N statistics over the
// run's analyzed posts. Re-sighted posts analyzed in earlier runs count
// here too; their analysis carried over through the merge.
func buildAnalytics(campaign *model.Campaign, run *model.Run, posts []model.Post) *model.Analytics {
	analytics := &model.Analytics{
		CampaignID:      campaign.ID,
		RunID:           run.ID,
		RunNumber:       run.RunNumber,
		PostsAnalyzed:   len(posts),
		SentimentCounts: make(map[string]int),
		PlatformCounts:  make(map[string]int),
		GeneratedAt:     time.Now().UTC(),
	}

	var sentimentSum float64
	topicCounts := make(map[string]int)

	for _, post := range posts {
		sentimentSum += post.Analysis.SentimentScore
		analytics.SentimentCounts[post.Analysis.SentimentLabel]++
		analytics.PlatformCounts[post.Platform]++
		for _, topic := range post.Analysis.Topics {
			topicCounts[topic]++
		}
	}
	if len(posts) > 0 {
		analytics.AvgSentiment = sentimentSum / float64(len(posts))
	}

	analytics.TopTopics = rankTopics(topicCounts, topTopicsLimit)
	analytics.TopPosts = rankPosts(posts, topPostsLimit)
	return analytics
}

func rankTopics(counts map[string]int, limit int) []model.TopicCount {
	ranked := make([]model.TopicCount, 0, len(counts))
	for topic, count := range counts {
		ranked = append(ranked, model.TopicCount{Topic: topic, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Topic < ranked[j].Topic
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func rankPosts(posts []model.Post, limit int) []model.PostRef {
	refs := make([]model.PostRef, 0, len(posts))
	for _, post := range posts {
		refs = append(refs, model.PostRef{
			PostID:      post.ID,
			Platform:    post.Platform,
			PlatformURL: post.PlatformURL,
			Engagement:  post.Engagement.Total(),
		})
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Engagement != refs[j].Engagement {
			return refs[i].Engagement > refs[j].Engagement
		}
		return refs[i].PostID < refs[j].PostID
	})
	if len(refs) > limit {
		refs = refs[:limit]
	}
	return refs
}
