package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/signalworks/listening-cli/internal/model"
	"github.com/signalworks/listening-cli/internal/platform"
)

func TestHashtagForm(t *testing.T) {
	assert.Equal(t, "#acmeshoes", hashtagForm("acme shoes"))
	assert.Equal(t, "#acmeshoes", hashtagForm("  Acme  Shoes "))
	assert.Equal(t, "#acme", hashtagForm("ACME"))
	assert.Equal(t, "", hashtagForm("   "))
}

func TestExtractURLs(t *testing.T) {
	records := []json.RawMessage{
		json.RawMessage(`{"url": "https://example.com/a"}`),
		json.RawMessage(`{"url": "https://example.com/b"}`),
		json.RawMessage(`{"url": "https://example.com/a"}`), // in-batch duplicate
		json.RawMessage(`{"title": "no url field"}`),
		json.RawMessage(`not even json`),
		json.RawMessage(`{"url": "https://example.com/c"}`),
	}

	urls := extractURLs(records, 0)
	assert.Equal(t, []string{
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/c",
	}, urls)
}

func TestExtractURLs_RespectsLimit(t *testing.T) {
	records := []json.RawMessage{
		json.RawMessage(`{"url": "https://example.com/a"}`),
		json.RawMessage(`{"url": "https://example.com/b"}`),
		json.RawMessage(`{"url": "https://example.com/c"}`),
	}

	urls := extractURLs(records, 2)
	assert.Equal(t, []string{"https://example.com/a", "https://example.com/b"}, urls)
}

func TestDownload_UsesConfiguredRetries(t *testing.T) {
	prov := &mockProvider{}
	p := newTestPipeline(newMemStore(), prov, &mockAnthropic{}, &mockJina{})
	p.cfg.Provider.DownloadRetries = 3
	p.cfg.Provider.DownloadBackoffMs = 1

	prov.On("Download", mock.Anything, "job-1").
		Return(nil, errors.New("read tcp: connection reset by peer")).Twice()
	prov.On("Download", mock.Anything, "job-1").
		Return([]json.RawMessage{redditURLRecord("ok")}, nil).Once()

	records, err := p.download(context.Background(), "job-1", "reddit")
	require.NoError(t, err)
	assert.Len(t, records, 1)
	prov.AssertExpectations(t)
}

func TestFetchLimit(t *testing.T) {
	p := &Pipeline{}
	spec := platform.Spec{Name: "reddit", FetchLimit: 50}

	campaign := &model.Campaign{}
	assert.Equal(t, 50, p.fetchLimit(campaign, spec))

	campaign.Settings.FetchLimits = map[string]int{"reddit": 25}
	assert.Equal(t, 25, p.fetchLimit(campaign, spec))

	// A zero override falls back to the registry default.
	campaign.Settings.FetchLimits = map[string]int{"reddit": 0}
	assert.Equal(t, 50, p.fetchLimit(campaign, spec))
}
