package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageResponse_Text(t *testing.T) {
	resp := &MessageResponse{Content: []ContentBlock{
		{Type: "text", Text: "hello "},
		{Type: "tool_use", Text: "ignored"},
		{Type: "text", Text: "world"},
	}}
	assert.Equal(t, "hello world", resp.Text())

	empty := &MessageResponse{}
	assert.Equal(t, "", empty.Text())
}

func TestTokenUsage_Add(t *testing.T) {
	u := TokenUsage{InputTokens: 100, OutputTokens: 20}
	u.Add(TokenUsage{InputTokens: 50, OutputTokens: 5, CacheReadInputTokens: 400})
	u.Add(TokenUsage{CacheCreationInputTokens: 300})

	assert.Equal(t, int64(150), u.InputTokens)
	assert.Equal(t, int64(25), u.OutputTokens)
	assert.Equal(t, int64(300), u.CacheCreationInputTokens)
	assert.Equal(t, int64(400), u.CacheReadInputTokens)
}

func TestBuildCachedSystemBlocks(t *testing.T) {
	blocks := BuildCachedSystemBlocks("system prompt")
	require.Len(t, blocks, 1)
	assert.Equal(t, "system prompt", blocks[0].Text)
	require.NotNil(t, blocks[0].CacheControl)
	assert.Equal(t, "1h", blocks[0].CacheControl.TTL)
}
