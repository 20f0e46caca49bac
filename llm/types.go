package llm

import "context"

// Provider names used for routing, registry lookups, and cache statistics.
const (
	ProviderAnthropic = "anthropic"
	ProviderDeepSeek  = "deepseek"
)

// CacheTemperatureCeiling is the temperature at or above which responses
// are considered non-deterministic and are not cached by default. Requests
// can override the gate with ForceCache.
const CacheTemperatureCeiling = 0.2

// MessageRole represents the role of a message in a conversation.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message represents a single message in a conversation, in the shape both
// wire protocols and the context store share.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// Request represents a complete generation request.
//
// Model is provider-specific and optional; the provider fills in its
// default. Schema, when set, describes the JSON shape the model is asked to
// emit (a plain JSON-schema-style map); it instructs the model, it does not
// guarantee validity.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Model        string
	MaxTokens    int
	Temperature  float64
	Schema       map[string]any

	// UseCache enables the local response cache for this request. Caching
	// only actually happens for deterministic requests (temperature below
	// CacheTemperatureCeiling) unless ForceCache is set.
	UseCache   bool
	ForceCache bool

	// ProviderOverride pins the request to a specific provider.
	ProviderOverride string

	// ContextID associates the request with a stored conversation context.
	ContextID string

	// Stream asks the provider to deliver the response as server-sent
	// chunks. The assembled response is still returned as a single value;
	// only providers implementing Streamer honor it.
	Stream bool

	// CacheID is a provider-side cache token from a previous response,
	// passed back to providers that support server-side caching.
	CacheID string
}

// NewRequest returns a Request with the default generation options.
func NewRequest(systemPrompt, userPrompt string) *Request {
	return &Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		MaxTokens:    1000,
		Temperature:  0.7,
		UseCache:     true,
	}
}

// CacheEligible reports whether this request may be served from, and
// written through to, the local response cache.
func (r *Request) CacheEligible() bool {
	if !r.UseCache {
		return false
	}
	return r.Temperature < CacheTemperatureCeiling || r.ForceCache
}

// Usage represents token usage reported by a provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response represents a complete generation response. It is produced fresh
// for each call and never mutated after construction.
type Response struct {
	// Content is the raw model text, possibly JSON.
	Content string `json:"content"`
	// Model is the model name as reported by the provider.
	Model      string `json:"model"`
	Usage      Usage  `json:"usage"`
	StopReason string `json:"stop_reason,omitempty"`
	// IsMock marks responses fabricated in mock mode.
	IsMock bool `json:"is_mock,omitempty"`
	// CacheID is the provider-side cache token, when the provider
	// returned one.
	CacheID string `json:"cache_id,omitempty"`
}

// Generator is the base capability every provider client implements.
type Generator interface {
	// Generate sends a request and returns the complete response.
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Streamer is the optional streaming capability. The response is consumed
// incrementally from the provider but returned fully assembled; streaming
// is not exposed to callers as a lazy sequence.
type Streamer interface {
	GenerateStream(ctx context.Context, req *Request) (*Response, error)
}

// Embedder is the optional embedding capability.
type Embedder interface {
	CreateEmbeddings(ctx context.Context, texts []string, model string) ([][]float64, error)
}

// ContextStore is the conversation context store as seen by provider
// clients. Load returns an empty history when the context is missing or
// unreadable; Save is best-effort.
type ContextStore interface {
	Load(contextID string) []Message
	Save(contextID string, messages []Message)
}

// ResponseCache is the local response cache as seen by provider clients.
// Get reports a miss for absent, stale, or unreadable entries; Put is
// best-effort and never fails the request.
type ResponseCache interface {
	Key(systemPrompt, userPrompt, model, contextID string) string
	Get(key string) (*Response, bool)
	Put(key string, resp *Response)
}
