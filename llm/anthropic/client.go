// Package anthropic implements the Anthropic Messages API wire protocol
// directly over HTTP, mapping its request and response shapes to the
// provider-neutral llm types.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/wanderhaven/llmcore/llm"
)

const (
	// DefaultBaseURL is the production API endpoint.
	DefaultBaseURL = "https://api.anthropic.com"
	// DefaultModel is used when the request does not name one.
	DefaultModel = "claude-3-sonnet-20240229"
	// apiVersion is the pinned wire protocol version header value.
	apiVersion = "2023-06-01"
)

// Options configures a Client. Zero values fall back to defaults; APIKey
// is required unless MockMode is on.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	MockMode   bool
	Cache      llm.ResponseCache
	HTTPClient *http.Client
}

// Client talks to the Anthropic Messages API. It implements llm.Generator.
type Client struct {
	apiKey   string
	baseURL  string
	model    string
	mockMode bool
	cache    llm.ResponseCache
	http     *http.Client
	retryer  *llm.Retryer
	logger   zerolog.Logger
}

// New creates a Client from opts.
func New(opts Options, logger zerolog.Logger) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		apiKey:   opts.APIKey,
		baseURL:  strings.TrimRight(baseURL, "/"),
		model:    model,
		mockMode: opts.MockMode,
		cache:    opts.Cache,
		http:     httpClient,
		retryer:  llm.NewRetryer(llm.ProviderAnthropic, llm.DefaultRetryPolicy(), logger),
		logger:   logger,
	}
}

// Retryer exposes the client's retryer so tests can replace its sleep.
func (c *Client) Retryer() *llm.Retryer {
	return c.retryer
}

// Generate implements llm.Generator. Cache-eligible requests are checked
// against the local cache before any network call and written through
// after a successful one; mock mode skips both network and cache entirely.
func (c *Client) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	if c.mockMode {
		c.logger.Debug().Str("model", model).Msg("Mock mode: returning fabricated anthropic response")
		return llm.MockResponse(req.SystemPrompt, req.UserPrompt, model, req.Schema), nil
	}

	var cacheKey string
	if c.cache != nil && req.CacheEligible() {
		cacheKey = c.cache.Key(req.SystemPrompt, req.UserPrompt, model, "")
		if resp, ok := c.cache.Get(cacheKey); ok {
			c.logger.Debug().Str("cache_key", cacheKey).Msg("Cache hit")
			return resp, nil
		}
	}

	resp, err := c.retryer.Do(ctx, func() (*llm.Response, error) {
		return c.post(ctx, req, model)
	})
	if err != nil {
		return nil, err
	}

	if cacheKey != "" {
		c.cache.Put(cacheKey, resp)
	}
	return resp, nil
}

// messageRequest is the Messages API request body.
type messageRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	System      string        `json:"system,omitempty"`
	Messages    []wireMessage `json:"messages"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// messageResponse is the Messages API response body.
type messageResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, req *llm.Request, model string) (*llm.Response, error) {
	system := req.SystemPrompt
	messages := []wireMessage{{Role: "user", Content: req.UserPrompt}}

	// For structured output, instruct the model and prefill the assistant
	// turn with an opening brace so the completion continues the JSON
	// object instead of narrating around it.
	prefilled := false
	if req.Schema != nil {
		if !strings.Contains(system, "JSON") {
			system += "\n\nMake sure to return your response as a valid JSON object."
		}
		messages = append(messages, wireMessage{Role: "assistant", Content: `{"`})
		prefilled = true
	}

	body, err := json.Marshal(messageRequest{
		Model:       model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		System:      system,
		Messages:    messages,
	})
	if err != nil {
		return nil, llm.NewInvalidRequestError(llm.ProviderAnthropic, "encoding request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, llm.NewInvalidRequestError(llm.ProviderAnthropic, "building request", err)
	}
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	httpReq.Header.Set("content-type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, llm.NewNetworkError(llm.ProviderAnthropic, "request failed", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, llm.NewNetworkError(llm.ProviderAnthropic, "reading response body", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, c.mapStatusError(httpResp.StatusCode, raw)
	}

	var wire messageResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, llm.NewMalformedResponseError(llm.ProviderAnthropic, "decoding response body", err)
	}
	if len(wire.Content) == 0 {
		return nil, llm.NewMalformedResponseError(llm.ProviderAnthropic, "response has no content blocks", nil)
	}

	content := wire.Content[0].Text
	if prefilled {
		content = restorePrefill(content)
	}

	return &llm.Response{
		Content:    content,
		Model:      wire.Model,
		StopReason: wire.StopReason,
		Usage: llm.Usage{
			PromptTokens:     wire.Usage.InputTokens,
			CompletionTokens: wire.Usage.OutputTokens,
			TotalTokens:      wire.Usage.InputTokens + wire.Usage.OutputTokens,
		},
	}, nil
}

// restorePrefill reattaches the assistant prefill the API does not echo
// back. The completion usually starts mid-key, so a missing opening brace
// gets the full prefill restored. A completion that already leads with a
// quote only needs the brace, and one that leads with the brace needs
// nothing.
func restorePrefill(content string) string {
	trimmed := strings.TrimLeft(content, " \t\r\n")
	switch {
	case strings.HasPrefix(trimmed, "{"):
		return content
	case strings.HasPrefix(trimmed, `"`):
		return "{" + trimmed
	default:
		return `{"` + trimmed
	}
}

func (c *Client) mapStatusError(status int, raw []byte) error {
	message := fmt.Sprintf("unexpected status %d", status)
	var wire errorResponse
	if err := json.Unmarshal(raw, &wire); err == nil && wire.Error.Message != "" {
		message = wire.Error.Message
	}

	switch {
	case status == http.StatusUnauthorized:
		return llm.NewAuthError(llm.ProviderAnthropic, message, nil)
	case status == http.StatusBadRequest:
		return llm.NewInvalidRequestError(llm.ProviderAnthropic, message, nil)
	case status == http.StatusTooManyRequests:
		return llm.NewRateLimitError(llm.ProviderAnthropic, message, nil)
	case status >= 500:
		return llm.NewServerError(llm.ProviderAnthropic, message, status, nil)
	default:
		return llm.NewInvalidRequestError(llm.ProviderAnthropic, message, nil)
	}
}
