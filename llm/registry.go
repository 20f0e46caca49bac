package llm

import "os"

// ProviderSettings holds the credential material the registry needs to
// decide provider availability. Constructed once per process; read-only
// thereafter.
type ProviderSettings struct {
	AnthropicAPIKey string
	DeepSeekAPIKey  string
	MockMode        bool
}

// Registry answers which providers are configured. A provider is
// configured when its credentials are present (settings first, environment
// fallback); in mock mode every known provider is considered configured
// since no network calls are made.
type Registry struct {
	settings ProviderSettings
}

// NewRegistry creates a Registry from the given settings.
func NewRegistry(settings ProviderSettings) *Registry {
	return &Registry{settings: settings}
}

// IsConfigured checks whether the named provider has usable credentials.
func (r *Registry) IsConfigured(provider string) bool {
	if r.settings.MockMode {
		return provider == ProviderAnthropic || provider == ProviderDeepSeek
	}
	switch provider {
	case ProviderAnthropic:
		return r.apiKey(r.settings.AnthropicAPIKey, "ANTHROPIC_API_KEY") != ""
	case ProviderDeepSeek:
		return r.apiKey(r.settings.DeepSeekAPIKey, "DEEPSEEK_API_KEY") != ""
	default:
		return false
	}
}

// Configured returns the list of configured providers, anthropic first.
func (r *Registry) Configured() []string {
	var providers []string
	for _, p := range []string{ProviderAnthropic, ProviderDeepSeek} {
		if r.IsConfigured(p) {
			providers = append(providers, p)
		}
	}
	return providers
}

// Alternate returns the other configured provider, if any.
func (r *Registry) Alternate(provider string) (string, bool) {
	var other string
	switch provider {
	case ProviderAnthropic:
		other = ProviderDeepSeek
	case ProviderDeepSeek:
		other = ProviderAnthropic
	default:
		return "", false
	}
	if !r.IsConfigured(other) {
		return "", false
	}
	return other, true
}

func (r *Registry) apiKey(configured, envVar string) string {
	if configured != "" {
		return configured
	}
	return os.Getenv(envVar)
}
