// Package config loads the layered runtime configuration: defaults,
// overridden by an optional YAML file, overridden by environment
// variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/wanderhaven/llmcore/llm"
)

// ProviderConfig holds one provider's connection settings.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// CacheConfig holds the response cache settings.
type CacheConfig struct {
	Dir        string `yaml:"dir"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// ContextConfig holds the conversation context store settings.
type ContextConfig struct {
	Dir string `yaml:"dir"`
}

// Config is the full runtime configuration.
type Config struct {
	DefaultProvider string `yaml:"default_provider"`
	MockMode        bool   `yaml:"mock_mode"`
	// OptimizedDeepSeek is a pointer so an explicit false in the file
	// survives the merge with defaults.
	OptimizedDeepSeek *bool `yaml:"optimized_deepseek"`
	// Strict disables masking total generation failure with synthetic
	// defaults.
	Strict bool `yaml:"strict"`

	Anthropic ProviderConfig `yaml:"anthropic"`
	DeepSeek  ProviderConfig `yaml:"deepseek"`

	Cache   CacheConfig   `yaml:"cache"`
	Context ContextConfig `yaml:"context"`
}

// UseOptimized reports whether cacheable traffic should be steered to the
// optimized provider. Defaults to true when unset.
func (c *Config) UseOptimized() bool {
	if c.OptimizedDeepSeek == nil {
		return true
	}
	return *c.OptimizedDeepSeek
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DefaultProvider: llm.ProviderAnthropic,
		Cache: CacheConfig{
			Dir:        "llm_cache",
			MaxAgeDays: 7,
		},
		Context: ContextConfig{
			Dir: "llm_contexts",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is non-empty; a missing file at an explicit path is an error), and
// environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := mergo.Merge(cfg, Default()); err != nil {
		return nil, fmt.Errorf("merging config defaults: %w", err)
	}

	applyEnv(cfg)

	if cfg.DefaultProvider != llm.ProviderAnthropic && cfg.DefaultProvider != llm.ProviderDeepSeek {
		return nil, fmt.Errorf("unknown default provider %q", cfg.DefaultProvider)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Anthropic.APIKey = v
	}
	if v := os.Getenv("DEEPSEEK_API_KEY"); v != "" {
		cfg.DeepSeek.APIKey = v
	}
	if v := os.Getenv("LLM_DEFAULT_PROVIDER"); v != "" {
		cfg.DefaultProvider = v
	}
	if v := os.Getenv("LLM_MOCK_MODE"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			cfg.MockMode = parsed
		}
	}
	if v := os.Getenv("LLM_CACHE_DIR"); v != "" {
		cfg.Cache.Dir = v
	}
	if v := os.Getenv("LLM_CONTEXT_DIR"); v != "" {
		cfg.Context.Dir = v
	}
}
