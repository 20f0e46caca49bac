package llm

import "testing"

func TestRegistryConfiguredFromSettings(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("DEEPSEEK_API_KEY", "")

	r := NewRegistry(ProviderSettings{AnthropicAPIKey: "key-a"})
	if !r.IsConfigured(ProviderAnthropic) {
		t.Error("anthropic should be configured")
	}
	if r.IsConfigured(ProviderDeepSeek) {
		t.Error("deepseek should not be configured")
	}
	if r.IsConfigured("bogus") {
		t.Error("unknown provider should never be configured")
	}
}

func TestRegistryFallsBackToEnvironment(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("DEEPSEEK_API_KEY", "env-key")

	r := NewRegistry(ProviderSettings{})
	if !r.IsConfigured(ProviderDeepSeek) {
		t.Error("deepseek should be configured from the environment")
	}
}

func TestRegistryMockModeConfiguresEverything(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("DEEPSEEK_API_KEY", "")

	r := NewRegistry(ProviderSettings{MockMode: true})
	got := r.Configured()
	if len(got) != 2 {
		t.Errorf("Configured = %v, want both providers", got)
	}
}

func TestRegistryAlternate(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("DEEPSEEK_API_KEY", "")

	r := NewRegistry(ProviderSettings{AnthropicAPIKey: "a", DeepSeekAPIKey: "b"})
	if alt, ok := r.Alternate(ProviderAnthropic); !ok || alt != ProviderDeepSeek {
		t.Errorf("Alternate(anthropic) = %q, %v", alt, ok)
	}

	onlyA := NewRegistry(ProviderSettings{AnthropicAPIKey: "a"})
	if _, ok := onlyA.Alternate(ProviderAnthropic); ok {
		t.Error("no alternate should be reported when only one provider is configured")
	}
}
