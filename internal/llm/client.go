// Package llm implements the gateway to the chat-completions oracle.
//
// The gateway never fails: any transport, status, or parse problem is
// absorbed and converted into a deterministic fallback object derived from
// the user payload, so the pipeline always terminates with a usable result.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// maxResponseSize caps the oracle response body.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// DefaultTimeout bounds short routing/naming/tag calls. Transcript-bearing
// calls pass a larger per-call timeout instead.
const DefaultTimeout = 60 * time.Second

// Config holds the gateway connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	// DefaultType seeds the fallback object's type field.
	DefaultType string
	Timeout     time.Duration
}

// Client talks to an OpenAI-compatible chat-completions endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client (used by tests).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// New creates a gateway client.
func New(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string    `json:"model"`
	Messages       []message `json:"messages"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
	Temperature float64 `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// CallOption adjusts a single gateway call.
type CallOption func(*callSettings)

type callSettings struct {
	timeout      time.Duration
	fallbackText string
}

// WithTimeout overrides the call timeout, e.g. for transcript summarisation.
func WithTimeout(d time.Duration) CallOption {
	return func(s *callSettings) { s.timeout = d }
}

// WithFallbackText sets the text the deterministic fallback is computed
// from. Callers that wrap the user's content in a JSON envelope should pass
// the underlying raw text here, otherwise the fallback title and URL scan
// operate on the envelope.
func WithFallbackText(text string) CallOption {
	return func(s *callSettings) { s.fallbackText = text }
}

// ChatJSON sends (systemPrompt, userJSON) to the oracle and returns the JSON
// value from the first choice's message content. It never returns an error:
// on any failure it returns the deterministic fallback computed from the
// fallback text (or userJSON when none was given). The call is not retried;
// one failure falls back immediately.
func (c *Client) ChatJSON(ctx context.Context, systemPrompt, userJSON string, opts ...CallOption) json.RawMessage {
	raw, err := c.ChatJSONStrict(ctx, systemPrompt, userJSON, opts...)
	if err != nil {
		settings := callSettings{fallbackText: userJSON}
		for _, opt := range opts {
			opt(&settings)
		}
		c.logger.Warn("llm: call failed, using fallback", slog.String("error", err.Error()))
		return c.Fallback(settings.fallbackText)
	}
	return raw
}

// ChatJSONStrict is the variant for best-effort enrichment stages: instead
// of substituting the fallback object it reports the failure, so the caller
// can skip its stage and keep prior values.
func (c *Client) ChatJSONStrict(ctx context.Context, systemPrompt, userJSON string, opts ...CallOption) (json.RawMessage, error) {
	settings := callSettings{timeout: c.cfg.Timeout}
	for _, opt := range opts {
		opt(&settings)
	}
	if c.cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: api key missing")
	}
	return c.chat(ctx, systemPrompt, userJSON, settings.timeout)
}

func (c *Client) chat(ctx context.Context, systemPrompt, userJSON string, timeout time.Duration) (json.RawMessage, error) {
	reqBody := chatRequest{
		Model: c.cfg.Model,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userJSON},
		},
		Temperature: 0.1,
	}
	reqBody.ResponseFormat.Type = "json_object"

	encoded, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("llm: encode request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := c.endpoint()
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	c.logger.Debug("llm: request", slog.String("url", url), slog.String("model", c.cfg.Model))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm: post: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("llm: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		preview := body
		if len(preview) > 500 {
			preview = preview[:500]
		}
		return nil, fmt.Errorf("llm: http %d: %s", resp.StatusCode, preview)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("llm: decode envelope: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("llm: empty choices")
	}

	content := ExtractJSON(parsed.Choices[0].Message.Content)
	if content == "" {
		return nil, fmt.Errorf("llm: no JSON in response content")
	}
	if !json.Valid([]byte(content)) {
		return nil, fmt.Errorf("llm: invalid JSON in response content")
	}
	return json.RawMessage(content), nil
}

func (c *Client) endpoint() string {
	base := c.cfg.BaseURL
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + "/chat/completions"
}
