package platform

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/signalworks/listening-cli/internal/model"
)

// Normalize converts one raw provider record into the tagged common shape.
// Each platform has its own payload layout; unknown platforms fall back to
// a generic field extraction. The original document is retained verbatim in
// RawRecord.Payload.
func Normalize(platform string, raw json.RawMessage) (model.RawRecord, error) {
	fn, ok := normalizers[platform]
	if !ok {
		fn = normalizeGeneric
	}
	rec, err := fn(raw)
	if err != nil {
		return model.RawRecord{}, eris.Wrapf(err, "platform: normalize %s record", platform)
	}
	rec.Platform = platform
	rec.Payload = raw
	return rec, nil
}

type normalizeFunc func(json.RawMessage) (model.RawRecord, error)

var normalizers = map[string]normalizeFunc{
	"instagram": normalizeInstagram,
	"tiktok":    normalizeTikTok,
	"youtube":   normalizeYouTube,
	"x":         normalizeX,
	"reddit":    normalizeReddit,
}

func normalizeInstagram(raw json.RawMessage) (model.RawRecord, error) {
	var p struct {
		URL         string     `json:"url"`
		UserPosted  string     `json:"user_posted"`
		Description string     `json:"description"`
		Likes       int64      `json:"likes"`
		NumComments int64      `json:"num_comments"`
		Views       int64      `json:"views"`
		DatePosted  *time.Time `json:"date_posted"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.RawRecord{}, err
	}
	return model.RawRecord{
		URL:      p.URL,
		Author:   p.UserPosted,
		Content:  p.Description,
		PostedAt: p.DatePosted,
		Likes:    p.Likes,
		Comments: p.NumComments,
		Views:    p.Views,
	}, nil
}

func normalizeTikTok(raw json.RawMessage) (model.RawRecord, error) {
	var p struct {
		PostURL        string     `json:"post_url"`
		AuthorUsername string     `json:"author_username"`
		Description    string     `json:"description"`
		DiggCount      int64      `json:"digg_count"`
		CommentCount   int64      `json:"comment_count"`
		ShareCount     int64      `json:"share_count"`
		PlayCount      int64      `json:"play_count"`
		CreateTime     *time.Time `json:"create_time"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.RawRecord{}, err
	}
	return model.RawRecord{
		URL:      p.PostURL,
		Author:   p.AuthorUsername,
		Content:  p.Description,
		PostedAt: p.CreateTime,
		Likes:    p.DiggCount,
		Comments: p.CommentCount,
		Shares:   p.ShareCount,
		Views:    p.PlayCount,
	}, nil
}

func normalizeYouTube(raw json.RawMessage) (model.RawRecord, error) {
	var p struct {
		URL         string     `json:"url"`
		Youtuber    string     `json:"youtuber"`
		Title       string     `json:"title"`
		Description string     `json:"description"`
		Likes       int64      `json:"likes"`
		NumComments int64      `json:"num_comments"`
		Views       int64      `json:"views"`
		DatePosted  *time.Time `json:"date_posted"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.RawRecord{}, err
	}
	content := p.Title
	if p.Description != "" {
		if content != "" {
			content += "\n\n"
		}
		content += p.Description
	}
	return model.RawRecord{
		URL:      p.URL,
		Author:   p.Youtuber,
		Content:  content,
		PostedAt: p.DatePosted,
		Likes:    p.Likes,
		Comments: p.NumComments,
		Views:    p.Views,
	}, nil
}

func normalizeX(raw json.RawMessage) (model.RawRecord, error) {
	var p struct {
		URL        string     `json:"url"`
		UserPosted string     `json:"user_posted"`
		Text       string     `json:"description"`
		Likes      int64      `json:"likes"`
		Replies    int64      `json:"replies"`
		Reposts    int64      `json:"reposts"`
		Views      int64      `json:"views"`
		DatePosted *time.Time `json:"date_posted"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.RawRecord{}, err
	}
	return model.RawRecord{
		URL:      p.URL,
		Author:   p.UserPosted,
		Content:  p.Text,
		PostedAt: p.DatePosted,
		Likes:    p.Likes,
		Comments: p.Replies,
		Shares:   p.Reposts,
		Views:    p.Views,
	}, nil
}

func normalizeReddit(raw json.RawMessage) (model.RawRecord, error) {
	var p struct {
		URL         string     `json:"url"`
		Author      string     `json:"author"`
		Title       string     `json:"title"`
		Body        string     `json:"body"`
		Upvotes     int64      `json:"upvotes"`
		NumComments int64      `json:"num_comments"`
		DatePosted  *time.Time `json:"date_posted"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.RawRecord{}, err
	}
	content := p.Title
	if p.Body != "" {
		if content != "" {
			content += "\n\n"
		}
		content += p.Body
	}
	return model.RawRecord{
		URL:      p.URL,
		Author:   p.Author,
		Content:  content,
		PostedAt: p.DatePosted,
		Likes:    p.Upvotes,
		Comments: p.NumComments,
	}, nil
}

// normalizeGeneric extracts the common field names most datasets share.
func normalizeGeneric(raw json.RawMessage) (model.RawRecord, error) {
	var p struct {
		URL         string     `json:"url"`
		PostURL     string     `json:"post_url"`
		Author      string     `json:"author"`
		Content     string     `json:"content"`
		Description string     `json:"description"`
		Likes       int64      `json:"likes"`
		Comments    int64      `json:"comments"`
		Shares      int64      `json:"shares"`
		Views       int64      `json:"views"`
		DatePosted  *time.Time `json:"date_posted"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.RawRecord{}, err
	}
	url := p.URL
	if url == "" {
		url = p.PostURL
	}
	content := p.Content
	if content == "" {
		content = p.Description
	}
	return model.RawRecord{
		URL:      url,
		Author:   p.Author,
		Content:  content,
		PostedAt: p.DatePosted,
		Likes:    p.Likes,
		Comments: p.Comments,
		Shares:   p.Shares,
		Views:    p.Views,
	}, nil
}
