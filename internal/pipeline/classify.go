package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"github.com/signalworks/listening-cli/internal/model"
	"github.com/signalworks/listening-cli/pkg/anthropic"
)

const classifySystemPrompt = `You analyze social media posts for a brand listening campaign. For each post, respond with a valid JSON object and nothing else:
{"sentiment_score": <1-10, 1 most negative, 10 most positive>, "sentiment_label": "<negative|neutral|positive>", "topics": ["<up to 5 short topic phrases>"], "brand_mentioned": <true|false>, "summary": "<one sentence>", "language": "<BCP 47 tag of the post's language>"}`

const classifyUserPrompt = `Campaign query: %s
Platform: %s
Author: %s

Post content:
%s`

// maxClassifyContentBytes caps the post content included in the prompt.
const maxClassifyContentBytes = 4000

// truncateContent cuts s to at most max bytes without splitting a UTF-8
// rune.
func truncateContent(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// classifyResult is the JSON shape the model is asked to produce.
type classifyResult struct {
	SentimentScore float64  `json:"sentiment_score"`
	SentimentLabel string   `json:"sentiment_label"`
	Topics         []string `json:"topics"`
	BrandMentioned bool     `json:"brand_mentioned"`
	Summary        string   `json:"summary"`
	Language       string   `json:"language"`
}

// classifyStage runs stage 3 once for the whole run: every pending post
// last seen in this run, across every platform, in fixed-width batches. A
// batch fully settles before the next starts; posts within a batch run
// concurrently. A single post's failure marks only that post failed.
// Returns the number of posts analyzed. Only the initial post query is
// fatal.
func (p *Pipeline) classifyStage(ctx context.Context, campaign *model.Campaign, run *model.Run, log *zap.Logger) (int, error) {
	var analyzed int

	err := trackStage(log, "classify", func() error {
		posts, err := p.store.ListPostsSeenInRun(ctx, campaign.ID, run.RunNumber, model.AnalysisStatusPending)
		if err != nil {
			return eris.Wrap(err, "classify: list pending posts")
		}
		if len(posts) == 0 {
			return nil
		}

		batchSize := p.cfg.Pipeline.ClassifyBatchSize
		if batchSize <= 0 {
			batchSize = 20
		}

		systemBlocks := anthropic.BuildCachedSystemBlocks(classifySystemPrompt)

		var (
			mu         sync.Mutex
			failed     int
			totalUsage anthropic.TokenUsage
		)

		for start := 0; start < len(posts); start += batchSize {
			end := min(start+batchSize, len(posts))
			batch := posts[start:end]

			var g errgroup.Group
			for i := range batch {
				post := &batch[i]
				g.Go(func() error {
					analysis, usage := p.classifyPost(ctx, campaign, systemBlocks, post)
					if err := p.store.UpdatePostAnalysis(ctx, post.ID, analysis); err != nil {
						log.Warn("classify: persist analysis failed",
							zap.String("post_id", post.ID),
							zap.Error(err),
						)
						return nil
					}
					mu.Lock()
					if analysis.Status == model.AnalysisStatusAnalyzed {
						analyzed++
					} else {
						failed++
					}
					if usage != nil {
						totalUsage.Add(*usage)
					}
					mu.Unlock()
					return nil
				})
			}
			// Per-post failures are absorbed above; Wait only marks the
			// batch boundary.
			_ = g.Wait()
		}

		totalUsage.LogUsage(p.cfg.Anthropic.Model, "classify")

		return eris.Wrap(
			p.store.AddRunTotals(ctx, run.ID, model.RunTotals{PostsAnalyzed: analyzed, PostsFailed: failed}),
			"classify: add totals",
		)
	})
	return analyzed, err
}

// classifyPost runs the model over one post and returns the analysis to
// persist. Failures come back as a failed analysis record, never an error.
func (p *Pipeline) classifyPost(ctx context.Context, campaign *model.Campaign, systemBlocks []anthropic.SystemBlock, post *model.Post) (model.Analysis, *anthropic.TokenUsage) {
	content := truncateContent(post.Content, maxClassifyContentBytes)
	prompt := fmt.Sprintf(classifyUserPrompt, campaign.Query, post.Platform, post.Author, content)

	resp, err := p.anthropic.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     p.cfg.Anthropic.Model,
		MaxTokens: int64(p.cfg.Anthropic.MaxTokens),
		System:    systemBlocks,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		zap.L().Warn("classify: model call failed",
			zap.String("post_id", post.ID),
			zap.Error(err),
		)
		return model.Analysis{Status: model.AnalysisStatusFailed, Error: err.Error()}, nil
	}

	result, err := parseClassifyResponse(resp.Text())
	if err != nil {
		zap.L().Warn("classify: unparseable response",
			zap.String("post_id", post.ID),
			zap.Error(err),
		)
		return model.Analysis{Status: model.AnalysisStatusFailed, Error: err.Error()}, &resp.Usage
	}

	analysis := model.Analysis{
		Status:         model.AnalysisStatusAnalyzed,
		SentimentScore: clampScore(result.SentimentScore),
		SentimentLabel: result.SentimentLabel,
		Topics:         result.Topics,
		BrandMentioned: result.BrandMentioned,
		Summary:        result.Summary,
		Language:       canonicalLanguage(result.Language),
	}

	if p.cfg.Pipeline.Embeddings && post.Content != "" {
		vecs, embedErr := p.jina.Embed(ctx, []string{post.Content})
		if embedErr != nil {
			// Embedding is enrichment; its failure does not fail the post.
			zap.L().Warn("classify: embed failed",
				zap.String("post_id", post.ID),
				zap.Error(embedErr),
			)
		} else {
			analysis.Embedding = vecs[0]
		}
	}

	return analysis, &resp.Usage
}

// parseClassifyResponse extracts the JSON object from a model response,
// tolerating markdown code fences.
func parseClassifyResponse(text string) (*classifyResult, error) {
	text = strings.TrimSpace(text)
	if after, ok := strings.CutPrefix(text, "```json"); ok {
		text = after
	} else if after, ok := strings.CutPrefix(text, "```"); ok {
		text = after
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	var result classifyResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &result); err != nil {
		return nil, eris.Wrap(err, "classify: parse response")
	}
	if result.SentimentLabel == "" {
		return nil, eris.New("classify: response missing sentiment_label")
	}
	return &result, nil
}

func clampScore(score float64) float64 {
	if score < 1 {
		return 1
	}
	if score > 10 {
		return 10
	}
	return score
}

// canonicalLanguage normalizes whatever language tag the model produced
// ("en_US", "English" variants like "en-us") to its canonical BCP 47 form.
// Unparseable tags fall back to the raw string.
func canonicalLanguage(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return raw
	}
	return tag.String()
}
