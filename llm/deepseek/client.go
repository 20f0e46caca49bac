// Package deepseek implements the DeepSeek chat completions wire protocol
// (OpenAI-compatible) directly over HTTP, including streaming, server-side
// prompt caching, conversation contexts, and embeddings.
package deepseek

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
	DefaultBaseURL = "https://api.deepseek.com"
	// DefaultModel is used when the request does not name one.
	DefaultModel = "deepseek-chat"
	// DefaultEmbeddingModel is used when CreateEmbeddings gets no model.
	DefaultEmbeddingModel = "deepseek-embedding"
)

// ServerCacheRecorder receives server-side prompt cache token counts so
// savings can be tracked alongside the local cache stats.
type ServerCacheRecorder interface {
	RecordServerCacheUsage(hitTokens, missTokens int)
}

// Options configures a Client. Zero values fall back to defaults; APIKey
// is required unless MockMode is on.
type Options struct {
	APIKey        string
	BaseURL       string
	Model         string
	MockMode      bool
	Cache         llm.ResponseCache
	Contexts      llm.ContextStore
	CacheRecorder ServerCacheRecorder
	HTTPClient    *http.Client
}

// Client talks to the DeepSeek API. It implements llm.Generator,
// llm.Streamer, and llm.Embedder.
type Client struct {
	apiKey   string
	baseURL  string
	model    string
	mockMode bool
	cache    llm.ResponseCache
	contexts llm.ContextStore
	recorder ServerCacheRecorder
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
		contexts: opts.Contexts,
		recorder: opts.CacheRecorder,
		http:     httpClient,
		retryer:  llm.NewRetryer(llm.ProviderDeepSeek, llm.DefaultRetryPolicy(), logger),
		logger:   logger,
	}
}

// Retryer exposes the client's retryer so tests can replace its sleep.
func (c *Client) Retryer() *llm.Retryer {
	return c.retryer
}

// Generate implements llm.Generator. Cache-eligible requests are checked
// against the local cache first; context-bound requests flow the stored
// conversation to the API and persist both new turns only after success.
func (c *Client) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	if c.mockMode {
		c.logger.Debug().Str("model", model).Msg("Mock mode: returning fabricated deepseek response")
		return llm.MockResponse(req.SystemPrompt, req.UserPrompt, model, req.Schema), nil
	}

	var cacheKey string
	if c.cache != nil && req.CacheEligible() {
		cacheKey = c.cache.Key(req.SystemPrompt, req.UserPrompt, model, req.ContextID)
		if resp, ok := c.cache.Get(cacheKey); ok {
			c.logger.Debug().Str("cache_key", cacheKey).Msg("Cache hit")
			return resp, nil
		}
	}

	messages := c.buildMessages(req)

	resp, err := c.retryer.Do(ctx, func() (*llm.Response, error) {
		if req.Stream {
			return c.postStream(ctx, req, model, messages)
		}
		return c.post(ctx, req, model, messages)
	})
	if err != nil {
		return nil, err
	}

	// Only a successful turn extends the stored conversation; a failed
	// request must leave the context exactly as it was.
	if req.ContextID != "" && c.contexts != nil {
		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
		c.contexts.Save(req.ContextID, messages)
	}

	if cacheKey != "" {
		c.cache.Put(cacheKey, resp)
	}
	return resp, nil
}

// GenerateStream implements llm.Streamer: the request is forced onto the
// streaming wire protocol but still returns one assembled response.
func (c *Client) GenerateStream(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	streamed := *req
	streamed.Stream = true
	return c.Generate(ctx, &streamed)
}

// buildMessages assembles the wire conversation: stored context when the
// request names one (seeding the system turn into new contexts), then the
// current user turn.
func (c *Client) buildMessages(req *llm.Request) []llm.Message {
	var messages []llm.Message
	if req.ContextID != "" && c.contexts != nil {
		messages = c.contexts.Load(req.ContextID)
	}
	if len(messages) == 0 && req.SystemPrompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: req.SystemPrompt})
	}
	return append(messages, llm.Message{Role: llm.RoleUser, Content: req.UserPrompt})
}

// chatRequest is the chat completions request body. CacheID is a
// DeepSeek extension enabling server-side prompt cache reuse.
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []llm.Message   `json:"messages"`
	MaxTokens      int             `json:"max_tokens"`
	Temperature    float64         `json:"temperature"`
	Stream         bool            `json:"stream,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	CacheID        string          `json:"cache_id,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatResponse is the non-streaming chat completions response body.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Model   string    `json:"model"`
	Usage   wireUsage `json:"usage"`
	CacheID string    `json:"cache_id,omitempty"`
}

type wireUsage struct {
	PromptTokens          int `json:"prompt_tokens"`
	CompletionTokens      int `json:"completion_tokens"`
	TotalTokens           int `json:"total_tokens"`
	PromptCacheHitTokens  int `json:"prompt_cache_hit_tokens"`
	PromptCacheMissTokens int `json:"prompt_cache_miss_tokens"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, req *llm.Request, model string, messages []llm.Message) (*llm.Response, error) {
	httpResp, err := c.send(ctx, req, model, messages, false)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, llm.NewNetworkError(llm.ProviderDeepSeek, "reading response body", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, c.mapStatusError(httpResp.StatusCode, raw)
	}

	var wire chatResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, llm.NewMalformedResponseError(llm.ProviderDeepSeek, "decoding response body", err)
	}
	if len(wire.Choices) == 0 {
		return nil, llm.NewMalformedResponseError(llm.ProviderDeepSeek, "response has no choices", nil)
	}

	c.recordServerCache(wire.Usage)

	return &llm.Response{
		Content:    wire.Choices[0].Message.Content,
		Model:      wire.Model,
		StopReason: wire.Choices[0].FinishReason,
		CacheID:    wire.CacheID,
		Usage: llm.Usage{
			PromptTokens:     wire.Usage.PromptTokens,
			CompletionTokens: wire.Usage.CompletionTokens,
			TotalTokens:      wire.Usage.TotalTokens,
		},
	}, nil
}

// send issues the chat completions POST, shared by the plain and
// streaming paths.
func (c *Client) send(ctx context.Context, req *llm.Request, model string, messages []llm.Message, stream bool) (*http.Response, error) {
	wireReq := chatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
		CacheID:     req.CacheID,
	}
	if req.Schema != nil {
		wireReq.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(wireReq)
	if err != nil {
		return nil, llm.NewInvalidRequestError(llm.ProviderDeepSeek, "encoding request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, llm.NewInvalidRequestError(llm.ProviderDeepSeek, "building request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, llm.NewNetworkError(llm.ProviderDeepSeek, "request failed", err)
	}
	return httpResp, nil
}

func (c *Client) recordServerCache(usage wireUsage) {
	if c.recorder == nil {
		return
	}
	if usage.PromptCacheHitTokens == 0 && usage.PromptCacheMissTokens == 0 {
		return
	}
	c.recorder.RecordServerCacheUsage(usage.PromptCacheHitTokens, usage.PromptCacheMissTokens)
}

func (c *Client) mapStatusError(status int, raw []byte) error {
	message := fmt.Sprintf("unexpected status %d", status)
	var wire errorResponse
	if err := json.Unmarshal(raw, &wire); err == nil && wire.Error.Message != "" {
		message = wire.Error.Message
	}

	switch {
	case status == http.StatusUnauthorized:
		return llm.NewAuthError(llm.ProviderDeepSeek, message, nil)
	case status == http.StatusBadRequest:
		return llm.NewInvalidRequestError(llm.ProviderDeepSeek, message, nil)
	case status == http.StatusTooManyRequests:
		return llm.NewRateLimitError(llm.ProviderDeepSeek, message, nil)
	case status >= 500:
		return llm.NewServerError(llm.ProviderDeepSeek, message, status, nil)
	default:
		return llm.NewInvalidRequestError(llm.ProviderDeepSeek, message, nil)
	}
}
