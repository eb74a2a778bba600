package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Default base URL for the collector v3 API.
const defaultBaseURL = "https://api.datacollector.dev/v3"

// JobStatus values reported by PollStatus. Any status outside this set is
// treated as still in progress.
const (
	JobStatusPending = "pending"
	JobStatusRunning = "running"
	JobStatusReady   = "ready"
	JobStatusFailed  = "failed"
	JobStatusError   = "error"
)

// Client defines the collector API operations. Every platform dataset
// speaks the same trigger/poll/download shape; platform specifics are
// confined to the dataset id and trigger options.
type Client interface {
	TriggerByURLs(ctx context.Context, dataset string, urls []string) (string, error)
	TriggerByKeyword(ctx context.Context, dataset, keyword string, opts KeywordOptions) (string, error)
	PollStatus(ctx context.Context, jobID string) (*JobState, error)
	Download(ctx context.Context, jobID string) ([]json.RawMessage, error)
}

// KeywordOptions tunes a keyword discovery job. Fields are optional and
// vary in meaning by platform.
type KeywordOptions struct {
	Limit   int    `json:"limit,omitempty"`
	Country string `json:"country,omitempty"`
	Period  string `json:"period,omitempty"`
}

// JobState is the response from GET /jobs/{id}.
type JobState struct {
	JobID    string  `json:"job_id"`
	Status   string  `json:"status"`
	Progress float64 `json:"progress,omitempty"`
	Message  string  `json:"message,omitempty"`
}

// triggerRequest is the body for POST /datasets/{id}/trigger.
type triggerRequest struct {
	URLs    []string        `json:"urls,omitempty"`
	Keyword string          `json:"keyword,omitempty"`
	Options *KeywordOptions `json:"options,omitempty"`
}

// triggerResponse is the response from POST /datasets/{id}/trigger.
type triggerResponse struct {
	JobID string `json:"job_id"`
}

// downloadResponse is the response from GET /jobs/{id}/download.
type downloadResponse struct {
	Records []json.RawMessage `json:"records"`
}

// APIError is returned when the collector responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit overrides the default request rate (5 req/s).
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new collector client. API calls are throttled to
// 5 req/s by default.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(5, 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) TriggerByURLs(ctx context.Context, dataset string, urls []string) (string, error) {
	var resp triggerResponse
	req := triggerRequest{URLs: urls}
	if err := c.post(ctx, fmt.Sprintf("/datasets/%s/trigger", dataset), req, &resp); err != nil {
		return "", eris.Wrapf(err, "provider: trigger urls on %s", dataset)
	}
	return resp.JobID, nil
}

func (c *httpClient) TriggerByKeyword(ctx context.Context, dataset, keyword string, opts KeywordOptions) (string, error) {
	var resp triggerResponse
	req := triggerRequest{Keyword: keyword, Options: &opts}
	if err := c.post(ctx, fmt.Sprintf("/datasets/%s/trigger", dataset), req, &resp); err != nil {
		return "", eris.Wrapf(err, "provider: trigger keyword on %s", dataset)
	}
	return resp.JobID, nil
}

func (c *httpClient) PollStatus(ctx context.Context, jobID string) (*JobState, error) {
	var resp JobState
	if err := c.get(ctx, fmt.Sprintf("/jobs/%s", jobID), &resp); err != nil {
		return nil, eris.Wrapf(err, "provider: poll job %s", jobID)
	}
	return &resp, nil
}

func (c *httpClient) Download(ctx context.Context, jobID string) ([]json.RawMessage, error) {
	var resp downloadResponse
	if err := c.get(ctx, fmt.Sprintf("/jobs/%s/download", jobID), &resp); err != nil {
		return nil, eris.Wrapf(err, "provider: download job %s", jobID)
	}
	return resp.Records, nil
}

func (c *httpClient) post(ctx context.Context, path string, body any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "rate limit")
	}

	buf, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(req, out)
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(req, out)
}

func (c *httpClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "decode response")
	}

	return nil
}
