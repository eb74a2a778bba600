package dedup

import (
	"net/url"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// trackingParams are dropped from every URL regardless of platform.
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"fbclid":       true,
	"gclid":        true,
	"ref":          true,
	"ref_src":      true,
	"ref_url":      true,
	"share_id":     true,
}

// platformParams are platform-specific parameters that vary between
// sightings of the same logical post (language markers, share tokens).
var platformParams = map[string]map[string]bool{
	"instagram": {"igsh": true, "img_index": true},
	"tiktok":    {"is_from_webapp": true, "sender_device": true, "q": true, "t": true},
	"youtube":   {"hl": true, "si": true, "feature": true, "ab_channel": true},
	"x":         {"lang": true, "s": true, "t": true},
	"reddit":    {"rdt": true, "share_id": true, "context": true},
}

// NormalizeURL produces the stable dedup key for a platform URL: scheme
// forced to https, host lowercased, tracking and platform-specific
// parameters stripped, remaining query sorted, trailing slash and fragment
// removed. The same logical URL always yields the same key.
func NormalizeURL(platform, rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", eris.Wrapf(err, "dedup: parse url %q", rawURL)
	}
	if u.Host == "" {
		return "", eris.Errorf("dedup: url %q has no host", rawURL)
	}

	u.Scheme = "https"
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	dropped := platformParams[platform]
	q := u.Query()
	for key := range q {
		lower := strings.ToLower(key)
		if trackingParams[lower] || (dropped != nil && dropped[lower]) {
			q.Del(key)
		}
	}
	u.RawQuery = encodeSorted(q)

	u.Path = strings.TrimRight(u.Path, "/")

	return u.String(), nil
}

// encodeSorted encodes query values with keys in sorted order so that
// parameter order never changes the key.
func encodeSorted(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range q[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
