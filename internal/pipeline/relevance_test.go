package pipeline

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/signalworks/listening-cli/internal/model"
)

func gateCampaign(threshold float64) *model.Campaign {
	return &model.Campaign{
		ID:    "camp-1",
		Query: "acme shoes",
		Settings: model.CampaignSettings{
			RelevanceFilter:    true,
			RelevanceThreshold: threshold,
		},
	}
}

func TestRelevanceGate_ScoresAgainstQuery(t *testing.T) {
	jn := &mockJina{}
	jn.On("Embed", mock.Anything, []string{"acme shoes"}).Return([][]float64{{1, 0}}, nil)
	jn.On("Embed", mock.Anything, []string{"review of acme shoes"}).Return([][]float64{{0.9, 0.1}}, nil)
	jn.On("Embed", mock.Anything, []string{"unrelated cooking video"}).Return([][]float64{{0, 1}}, nil)

	gate := newRelevanceGate(jn, gateCampaign(0.7), 0.5)
	ctx := context.Background()

	assert.True(t, gate.Allow(ctx, model.RawRecord{URL: "u1", Content: "review of acme shoes"}))
	assert.False(t, gate.Allow(ctx, model.RawRecord{URL: "u2", Content: "unrelated cooking video"}))

	// The query is embedded once, not per record.
	jn.AssertNumberOfCalls(t, "Embed", 3)
}

func TestRelevanceGate_EmptyContentPasses(t *testing.T) {
	jn := &mockJina{}
	gate := newRelevanceGate(jn, gateCampaign(0.7), 0.5)

	assert.True(t, gate.Allow(context.Background(), model.RawRecord{URL: "u1"}))
	jn.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
}

func TestRelevanceGate_FailsOpenOnQueryEmbedError(t *testing.T) {
	jn := &mockJina{}
	jn.On("Embed", mock.Anything, []string{"acme shoes"}).Return(nil, eris.New("embeddings down"))

	gate := newRelevanceGate(jn, gateCampaign(0.7), 0.5)
	ctx := context.Background()

	assert.True(t, gate.Allow(ctx, model.RawRecord{URL: "u1", Content: "anything"}))
	assert.True(t, gate.Allow(ctx, model.RawRecord{URL: "u2", Content: "anything else"}))
	// The failed query embedding is not retried per record.
	jn.AssertNumberOfCalls(t, "Embed", 1)
}

func TestRelevanceGate_FailsOpenOnRecordEmbedError(t *testing.T) {
	jn := &mockJina{}
	jn.On("Embed", mock.Anything, []string{"acme shoes"}).Return([][]float64{{1, 0}}, nil)
	jn.On("Embed", mock.Anything, []string{"some post"}).Return(nil, eris.New("timeout"))

	gate := newRelevanceGate(jn, gateCampaign(0.7), 0.5)
	assert.True(t, gate.Allow(context.Background(), model.RawRecord{URL: "u1", Content: "some post"}))
}

func TestRelevanceGate_DefaultThreshold(t *testing.T) {
	gate := newRelevanceGate(&mockJina{}, gateCampaign(0), 0.42)
	assert.InDelta(t, 0.42, gate.threshold, 1e-9)

	gate = newRelevanceGate(&mockJina{}, gateCampaign(0.8), 0.42)
	assert.InDelta(t, 0.8, gate.threshold, 1e-9)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float64{1, 2}, []float64{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity([]float64{1, 0}, []float64{-1, 0}), 1e-9)

	// Mismatched or degenerate inputs score zero.
	assert.Zero(t, cosineSimilarity([]float64{1}, []float64{1, 2}))
	assert.Zero(t, cosineSimilarity(nil, nil))
	assert.Zero(t, cosineSimilarity([]float64{0, 0}, []float64{1, 1}))
}
