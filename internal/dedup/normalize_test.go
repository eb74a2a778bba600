package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name     string
		platform string
		raw      string
		want     string
	}{
		{
			name:     "strips utm tracking params",
			platform: "instagram",
			raw:      "https://www.instagram.com/p/abc123/?utm_source=share&utm_medium=web",
			want:     "https://www.instagram.com/p/abc123",
		},
		{
			name:     "strips instagram share token",
			platform: "instagram",
			raw:      "https://www.instagram.com/p/abc123/?igsh=MzRlODBiNWFlZA==",
			want:     "https://www.instagram.com/p/abc123",
		},
		{
			name:     "strips tiktok webapp params",
			platform: "tiktok",
			raw:      "https://www.tiktok.com/@user/video/7251?is_from_webapp=1&sender_device=pc",
			want:     "https://www.tiktok.com/@user/video/7251",
		},
		{
			name:     "keeps youtube video id but drops si token",
			platform: "youtube",
			raw:      "https://youtu.be/dQw4w9WgXcQ?si=xyz&t=0",
			want:     "https://youtu.be/dQw4w9WgXcQ?t=0",
		},
		{
			name:     "strips x share params",
			platform: "x",
			raw:      "https://x.com/user/status/17890?s=46&t=token&lang=en",
			want:     "https://x.com/user/status/17890",
		},
		{
			name:     "strips reddit share context",
			platform: "reddit",
			raw:      "https://www.reddit.com/r/shoes/comments/abc/title/?rdt=1&context=3",
			want:     "https://www.reddit.com/r/shoes/comments/abc/title",
		},
		{
			name:     "forces https",
			platform: "instagram",
			raw:      "http://www.instagram.com/p/abc123",
			want:     "https://www.instagram.com/p/abc123",
		},
		{
			name:     "lowercases host, preserves path case",
			platform: "tiktok",
			raw:      "https://WWW.TikTok.com/@User/video/7251",
			want:     "https://www.tiktok.com/@User/video/7251",
		},
		{
			name:     "drops fragment",
			platform: "reddit",
			raw:      "https://www.reddit.com/r/shoes/comments/abc/title#comment-1",
			want:     "https://www.reddit.com/r/shoes/comments/abc/title",
		},
		{
			name:     "sorts surviving query params",
			platform: "youtube",
			raw:      "https://www.youtube.com/watch?v=abc&list=xyz",
			want:     "https://www.youtube.com/watch?list=xyz&v=abc",
		},
		{
			name:     "trims surrounding whitespace",
			platform: "x",
			raw:      "  https://x.com/user/status/17890  ",
			want:     "https://x.com/user/status/17890",
		},
		{
			name:     "unknown platform still strips tracking params",
			platform: "mastodon",
			raw:      "https://example.social/@user/123?utm_campaign=launch",
			want:     "https://example.social/@user/123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.platform, tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeURL_Idempotent(t *testing.T) {
	raw := "HTTP://WWW.Instagram.com/p/abc/?utm_source=x&igsh=tok&b=2&a=1#frag"

	once, err := NormalizeURL("instagram", raw)
	require.NoError(t, err)
	twice, err := NormalizeURL("instagram", once)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestNormalizeURL_Errors(t *testing.T) {
	_, err := NormalizeURL("instagram", "not a url at all")
	require.Error(t, err)

	_, err = NormalizeURL("instagram", "/p/abc123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no host")
}
