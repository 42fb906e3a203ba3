package nlu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client calls an HTTP classification endpoint. The wire contract is a JSON
// POST of {utterance, context, model} answered by a Result document.
type Client struct {
	endpoint string
	apiKey   string
	model    string
	timeout  time.Duration
	httpc    *http.Client
}

// ClientOption customizes the client.
type ClientOption func(*Client)

// WithAPIKey sets the bearer token sent with every request.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) { c.apiKey = key }
}

// WithModel selects the model the endpoint should use.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithTimeout bounds each classification call. The collaborator sits on the
// conversational hot path, so the default is deliberately short.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpc *http.Client) ClientOption {
	return func(c *Client) {
		if httpc != nil {
			c.httpc = httpc
		}
	}
}

// NewClient builds a classifier for the given endpoint.
func NewClient(endpoint string, opts ...ClientOption) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("nlu: endpoint is required")
	}
	c := &Client{
		endpoint: endpoint,
		model:    "concierge-intent-v1",
		timeout:  3 * time.Second,
		httpc:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type classifyRequest struct {
	Utterance string `json:"utterance"`
	Context   string `json:"context,omitempty"`
	Model     string `json:"model"`
}

// Classify posts the utterance and returns the service's verdict. Errors are
// reported as-is; the caller's fallback policy decides what happens next.
func (c *Client) Classify(ctx context.Context, utterance, contextHint string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(classifyRequest{Utterance: utterance, Context: contextHint, Model: c.model})
	if err != nil {
		return Result{}, fmt.Errorf("nlu: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("nlu: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("nlu: classify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("nlu: classify: status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("nlu: decode response: %w", err)
	}
	return result, nil
}
