// Package manager is the routing policy layer in front of the provider
// clients. Per request it decides between the cache/context-optimized
// provider path and the unified fallback path, and it exposes the
// administrative operations: provider health probes, cache statistics and
// clearing, and context clearing.
package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/wanderhaven/llmcore/cache"
	"github.com/wanderhaven/llmcore/contexts"
	"github.com/wanderhaven/llmcore/llm"
)

// Config carries the routing knobs.
type Config struct {
	// DefaultProvider is the preferred provider for the fallback path.
	DefaultProvider string
	// UseOptimized enables steering cacheable and context-bound traffic
	// to the provider whose server-side caching and context reuse is
	// cheaper.
	UseOptimized bool
	// MockMode fabricates responses without network calls.
	MockMode bool
}

// Manager routes generation requests and exposes administration.
type Manager struct {
	cfg      Config
	registry *llm.Registry
	clients  map[string]llm.Generator
	unified  *llm.UnifiedClient
	cache    *cache.Cache
	contexts *contexts.Store
	group    singleflight.Group
	logger   zerolog.Logger
}

// New wires a Manager. The clients map holds one Generator per provider
// name; unified is the fallback path over the same clients.
func New(cfg Config, registry *llm.Registry, clients map[string]llm.Generator, unified *llm.UnifiedClient, responseCache *cache.Cache, contextStore *contexts.Store, logger zerolog.Logger) *Manager {
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = llm.ProviderAnthropic
	}
	return &Manager{
		cfg:      cfg,
		registry: registry,
		clients:  clients,
		unified:  unified,
		cache:    responseCache,
		contexts: contextStore,
		logger:   logger,
	}
}

// Generate routes the request per the policy table and executes it.
// Cache-eligible requests additionally run under single-flight so
// concurrent identical misses bound for the same provider trigger at most
// one remote call.
func (m *Manager) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	client, effReq, flight := m.route(req)

	if effReq.CacheEligible() && m.cache != nil {
		// The flight key carries the routed provider so requests pinned
		// to different providers never share a flight.
		key := flight + "|" + m.cache.Key(effReq.SystemPrompt, effReq.UserPrompt, effReq.Model, effReq.ContextID)
		v, err, _ := m.group.Do(key, func() (any, error) {
			return client.Generate(ctx, effReq)
		})
		if err != nil {
			return nil, err
		}
		return v.(*llm.Response), nil
	}
	return client.Generate(ctx, effReq)
}

// route applies the policy table, first match wins. "provider" below is
// the request's override when set, else the configured default; rules 3
// and 4 never pull traffic away from an explicit anthropic preference.
// Steering happens whenever deepseek is configured; UseOptimized only
// selects which deepseek path runs, never whether traffic is steered.
// It returns the client to call, the request to send, and a flight label
// naming the routed provider.
func (m *Manager) route(req *llm.Request) (llm.Generator, *llm.Request, string) {
	deepseek, deepseekOK := m.clients[llm.ProviderDeepSeek]
	if deepseekOK {
		deepseekOK = m.registry.IsConfigured(llm.ProviderDeepSeek)
	}
	provider := m.cfg.DefaultProvider
	if req.ProviderOverride != "" {
		provider = req.ProviderOverride
	}

	steer := func(rule string) (llm.Generator, *llm.Request, string) {
		m.logRoute(req, rule)
		if m.cfg.UseOptimized {
			return deepseek, req, llm.ProviderDeepSeek
		}
		// Optimization off: deepseek is still the preference, but the
		// call goes through the unified client so fallback applies.
		steered := *req
		steered.ProviderOverride = llm.ProviderDeepSeek
		return m.unified, &steered, llm.ProviderDeepSeek
	}

	switch {
	case req.ProviderOverride == llm.ProviderDeepSeek && deepseekOK:
		return steer("override")
	case req.ForceCache && req.UseCache && deepseekOK:
		return steer("force_cache")
	case req.Temperature < llm.CacheTemperatureCeiling && req.UseCache && deepseekOK && provider != llm.ProviderAnthropic:
		return steer("deterministic")
	case req.ContextID != "" && deepseekOK && provider != llm.ProviderAnthropic:
		return steer("context")
	default:
		m.logRoute(req, "unified")
		return m.unified, req, "unified|" + provider
	}
}

func (m *Manager) logRoute(req *llm.Request, rule string) {
	m.logger.Debug().
		Str("rule", rule).
		Str("override", req.ProviderOverride).
		Float64("temperature", req.Temperature).
		Bool("use_cache", req.UseCache).
		Str("context_id", req.ContextID).
		Msg("Routed generation request")
}

// ProviderState is the outcome of a health probe.
type ProviderState struct {
	Provider   string `json:"provider"`
	Configured bool   `json:"configured"`
	Active     bool   `json:"active"`
	Error      string `json:"error,omitempty"`
}

// ProviderStatus probes each known provider with a minimal one-token
// request and reports whether it answered.
func (m *Manager) ProviderStatus(ctx context.Context) []ProviderState {
	states := make([]ProviderState, 0, 2)
	for _, provider := range []string{llm.ProviderAnthropic, llm.ProviderDeepSeek} {
		state := ProviderState{Provider: provider, Configured: m.registry.IsConfigured(provider)}
		client, ok := m.clients[provider]
		if !state.Configured || !ok {
			states = append(states, state)
			continue
		}

		probe := &llm.Request{
			SystemPrompt: "You are a helpful assistant.",
			UserPrompt:   "Hi",
			MaxTokens:    1,
			Temperature:  0,
			UseCache:     true,
		}
		if _, err := client.Generate(ctx, probe); err != nil {
			state.Error = err.Error()
		} else {
			state.Active = true
		}
		states = append(states, state)
	}
	return states
}

// CacheStats returns the current cache statistics.
func (m *Manager) CacheStats() cache.Stats {
	if m.cache == nil {
		return cache.Stats{}
	}
	return m.cache.Stats()
}

// CacheEntryRank pairs a cache key with how often it has been served.
type CacheEntryRank struct {
	Key  string `json:"key"`
	Hits int    `json:"hits"`
}

// TopCacheEntries returns the n most-served cache entries, most-served
// first.
func (m *Manager) TopCacheEntries(n int) []CacheEntryRank {
	if m.cache == nil {
		return nil
	}
	keys := m.cache.TopEntries(n)
	ranked := make([]CacheEntryRank, 0, len(keys))
	for _, key := range keys {
		ranked = append(ranked, CacheEntryRank{Key: key, Hits: m.cache.HitCount(key)})
	}
	return ranked
}

// ClearCacheResult reports what a ClearCache call removed.
type ClearCacheResult struct {
	Removed int         `json:"removed"`
	Before  cache.Stats `json:"before"`
	After   cache.Stats `json:"after"`
}

// ClearCache removes cache entries older than maxAge (zero removes all)
// and reports before/after statistics.
func (m *Manager) ClearCache(maxAge time.Duration) ClearCacheResult {
	if m.cache == nil {
		return ClearCacheResult{}
	}
	result := ClearCacheResult{Before: m.cache.Stats()}
	result.Removed = m.cache.Clear(maxAge)
	result.After = m.cache.Stats()
	m.logger.Info().Int("removed", result.Removed).Dur("max_age", maxAge).Msg("Cleared cache entries")
	return result
}

// ClearContext removes the named conversation context.
func (m *Manager) ClearContext(contextID string) error {
	if m.contexts == nil {
		return nil
	}
	return m.contexts.Clear(contextID)
}

// SweepContexts removes contexts idle longer than maxAge.
func (m *Manager) SweepContexts(maxAge time.Duration) int {
	if m.contexts == nil {
		return 0
	}
	removed := m.contexts.Sweep(maxAge)
	m.logger.Info().Int("removed", removed).Dur("max_age", maxAge).Msg("Swept idle contexts")
	return removed
}

// CreateEmbeddings produces embedding vectors through the optimized
// provider. Fails when that provider is not configured or cannot embed.
func (m *Manager) CreateEmbeddings(ctx context.Context, texts []string, model string) ([][]float64, error) {
	client, ok := m.clients[llm.ProviderDeepSeek]
	if !ok || !m.registry.IsConfigured(llm.ProviderDeepSeek) {
		return nil, fmt.Errorf("embeddings require the %s provider to be configured", llm.ProviderDeepSeek)
	}
	embedder, ok := client.(llm.Embedder)
	if !ok {
		return nil, fmt.Errorf("provider %s does not support embeddings", llm.ProviderDeepSeek)
	}
	return embedder.CreateEmbeddings(ctx, texts, model)
}
