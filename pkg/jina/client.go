// Package jina provides a client for the Jina AI embeddings API.
package jina

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/signalworks/listening-cli/internal/resilience"
)

// Client defines the Jina AI embeddings operations.
type Client interface {
	// Embed returns one embedding vector per input text, in input order.
	Embed(ctx context.Context, texts []string, opts ...EmbedOption) ([][]float64, error)
}

// EmbedOption configures an embeddings request.
type EmbedOption func(*embedOpts)

type embedOpts struct {
	model string
	task  string
}

// WithModel overrides the embedding model for one request.
func WithModel(model string) EmbedOption {
	return func(o *embedOpts) {
		o.model = model
	}
}

// WithTask sets the embedding task hint (e.g. "text-matching").
func WithTask(task string) EmbedOption {
	return func(o *embedOpts) {
		o.task = task
	}
}

// Option configures the Jina client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithDefaultModel sets the model used when a request does not override it.
func WithDefaultModel(model string) Option {
	return func(c *httpClient) {
		c.model = model
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

// NewClient creates a new Jina AI embeddings client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.jina.ai",
		model:   "jina-embeddings-v3",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type embedRequest struct {
	Model string   `json:"model"`
	Task  string   `json:"task,omitempty"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []embedDatum `json:"data"`
}

type embedDatum struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

func (c *httpClient) Embed(ctx context.Context, texts []string, opts ...EmbedOption) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	o := embedOpts{model: c.model, task: "text-matching"}
	for _, opt := range opts {
		opt(&o)
	}

	payload, err := json.Marshal(embedRequest{Model: o.model, Task: o.task, Input: texts})
	if err != nil {
		return nil, eris.Wrap(err, "jina: marshal request")
	}

	body, statusCode, err := c.retryDo(ctx, payload)
	if err != nil {
		return nil, eris.Wrap(err, "jina: request failed")
	}
	if statusCode != http.StatusOK {
		return nil, eris.Errorf("jina: unexpected status %d: %s", statusCode, string(body))
	}

	var resp embedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "jina: decode response")
	}
	if len(resp.Data) != len(texts) {
		return nil, eris.Errorf("jina: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	// Each datum carries its input index; order by it before returning.
	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })

	out := make([][]float64, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

// retryDo executes the embeddings POST with bounded retries on transient
// failures. Returns the response body and status code on success, or the
// last error after exhausting retries.
func (c *httpClient) retryDo(ctx context.Context, payload []byte) ([]byte, int, error) {
	type result struct {
		body   []byte
		status int
	}

	cfg := resilience.DefaultRetryConfig()
	cfg.Backoff = 1 * time.Second

	res, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (result, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/embeddings", bytes.NewReader(payload))
		if err != nil {
			return result{}, eris.Wrap(err, "jina: create request")
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return result{}, resilience.NewTransientError(err, 0)
		}
		defer resp.Body.Close()

		body := new(bytes.Buffer)
		if _, err := body.ReadFrom(resp.Body); err != nil {
			return result{}, eris.Wrap(err, "jina: read response body")
		}

		if resilience.RetryableStatus(resp.StatusCode) {
			return result{}, resilience.NewTransientError(
				eris.Errorf("jina: status %d: %s", resp.StatusCode, body.String()),
				resp.StatusCode,
			)
		}
		return result{body: body.Bytes(), status: resp.StatusCode}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return res.body, res.status, nil
}
