package pipeline

import (
	"context"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/signalworks/listening-cli/internal/model"
	"github.com/signalworks/listening-cli/pkg/jina"
)

// relevanceGate scores a record's topical relevance to the campaign query
// with embedding similarity. Records below the threshold are discarded
// before dedup/storage. The gate fails open: on any embedding error the
// record is treated as relevant so a transient provider outage never
// silently loses data.
type relevanceGate struct {
	jina      jina.Client
	query     string
	threshold float64

	once     sync.Once
	queryVec []float64
	queryErr error
}

func newRelevanceGate(jinaClient jina.Client, campaign *model.Campaign, defaultThreshold float64) *relevanceGate {
	threshold := campaign.Settings.RelevanceThreshold
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	return &relevanceGate{
		jina:      jinaClient,
		query:     campaign.Query,
		threshold: threshold,
	}
}

// Allow reports whether the record should proceed to ingestion.
func (g *relevanceGate) Allow(ctx context.Context, rec model.RawRecord) bool {
	if rec.Content == "" {
		return true
	}

	g.once.Do(func() {
		vecs, err := g.jina.Embed(ctx, []string{g.query})
		if err != nil {
			g.queryErr = err
			return
		}
		g.queryVec = vecs[0]
	})
	if g.queryErr != nil {
		zap.L().Warn("relevance: query embedding failed, gate open", zap.Error(g.queryErr))
		return true
	}

	vecs, err := g.jina.Embed(ctx, []string{rec.Content})
	if err != nil {
		zap.L().Warn("relevance: record embedding failed, gate open",
			zap.String("url", rec.URL),
			zap.Error(err),
		)
		return true
	}

	score := cosineSimilarity(g.queryVec, vecs[0])
	if score < g.threshold {
		zap.L().Debug("relevance: record gated",
			zap.String("url", rec.URL),
			zap.Float64("score", score),
			zap.Float64("threshold", g.threshold),
		)
		return false
	}
	return true
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
