package manager

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/wanderhaven/llmcore/cache"
	"github.com/wanderhaven/llmcore/config"
	"github.com/wanderhaven/llmcore/contexts"
	"github.com/wanderhaven/llmcore/llm"
	"github.com/wanderhaven/llmcore/llm/anthropic"
	"github.com/wanderhaven/llmcore/llm/deepseek"
)

// FromConfig builds a fully wired Manager: cache, context store, both
// provider clients, and the unified fallback client.
func FromConfig(cfg *config.Config, logger zerolog.Logger) (*Manager, error) {
	maxAge := time.Duration(cfg.Cache.MaxAgeDays) * 24 * time.Hour
	responseCache, err := cache.New(cfg.Cache.Dir, maxAge, logger)
	if err != nil {
		return nil, err
	}
	contextStore, err := contexts.NewStore(cfg.Context.Dir, logger)
	if err != nil {
		return nil, err
	}

	registry := llm.NewRegistry(llm.ProviderSettings{
		AnthropicAPIKey: cfg.Anthropic.APIKey,
		DeepSeekAPIKey:  cfg.DeepSeek.APIKey,
		MockMode:        cfg.MockMode,
	})

	clients := map[string]llm.Generator{}
	if registry.IsConfigured(llm.ProviderAnthropic) {
		clients[llm.ProviderAnthropic] = anthropic.New(anthropic.Options{
			APIKey:   cfg.Anthropic.APIKey,
			BaseURL:  cfg.Anthropic.BaseURL,
			Model:    cfg.Anthropic.Model,
			MockMode: cfg.MockMode,
			Cache:    responseCache,
		}, logger)
	}
	if registry.IsConfigured(llm.ProviderDeepSeek) {
		clients[llm.ProviderDeepSeek] = deepseek.New(deepseek.Options{
			APIKey:        cfg.DeepSeek.APIKey,
			BaseURL:       cfg.DeepSeek.BaseURL,
			Model:         cfg.DeepSeek.Model,
			MockMode:      cfg.MockMode,
			Cache:         responseCache,
			Contexts:      contextStore,
			CacheRecorder: responseCache,
		}, logger)
	}

	unified, err := llm.NewUnifiedClient(cfg.DefaultProvider, clients, registry, cfg.MockMode, logger)
	if err != nil {
		return nil, err
	}
	logger.Info().
		Strs("providers", registry.Configured()).
		Str("default", cfg.DefaultProvider).
		Msg("LLM providers initialized")

	return New(Config{
		DefaultProvider: cfg.DefaultProvider,
		UseOptimized:    cfg.UseOptimized(),
		MockMode:        cfg.MockMode,
	}, registry, clients, unified, responseCache, contextStore, logger), nil
}
