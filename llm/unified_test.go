package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

type stubGenerator struct {
	resp  *Response
	err   error
	calls int
}

func (s *stubGenerator) Generate(_ context.Context, _ *Request) (*Response, error) {
	s.calls++
	return s.resp, s.err
}

// bothConfigured is a registry where anthropic and deepseek both have keys.
func bothConfigured() *Registry {
	return NewRegistry(ProviderSettings{AnthropicAPIKey: "k1", DeepSeekAPIKey: "k2"})
}

func TestUnifiedClientUsesPreferredProvider(t *testing.T) {
	anthro := &stubGenerator{resp: &Response{Content: "from anthropic"}}
	deep := &stubGenerator{resp: &Response{Content: "from deepseek"}}
	c, err := NewUnifiedClient(ProviderAnthropic, map[string]Generator{
		ProviderAnthropic: anthro,
		ProviderDeepSeek:  deep,
	}, bothConfigured(), false, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewUnifiedClient: %v", err)
	}

	resp, err := c.Generate(context.Background(), NewRequest("s", "u"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Content != "from anthropic" {
		t.Errorf("Content = %q", resp.Content)
	}
	if deep.calls != 0 {
		t.Errorf("alternate should not be called, got %d calls", deep.calls)
	}
}

func TestUnifiedClientFallsBackExactlyOnce(t *testing.T) {
	anthro := &stubGenerator{err: NewServerError(ProviderAnthropic, "down", 503, nil)}
	deep := &stubGenerator{resp: &Response{Content: "from deepseek"}}
	c, _ := NewUnifiedClient(ProviderAnthropic, map[string]Generator{
		ProviderAnthropic: anthro,
		ProviderDeepSeek:  deep,
	}, bothConfigured(), false, zerolog.Nop())

	resp, err := c.Generate(context.Background(), NewRequest("s", "u"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Content != "from deepseek" {
		t.Errorf("Content = %q", resp.Content)
	}
	if anthro.calls != 1 || deep.calls != 1 {
		t.Errorf("calls = %d/%d, want 1/1", anthro.calls, deep.calls)
	}
}

func TestUnifiedClientAggregatesAllFailures(t *testing.T) {
	anthro := &stubGenerator{err: NewServerError(ProviderAnthropic, "down", 503, nil)}
	deep := &stubGenerator{err: NewRateLimitError(ProviderDeepSeek, "slow", nil)}
	c, _ := NewUnifiedClient(ProviderAnthropic, map[string]Generator{
		ProviderAnthropic: anthro,
		ProviderDeepSeek:  deep,
	}, bothConfigured(), false, zerolog.Nop())

	_, err := c.Generate(context.Background(), NewRequest("s", "u"))
	var all *AllProvidersFailedError
	if !errors.As(err, &all) {
		t.Fatalf("expected AllProvidersFailedError, got %v", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, ProviderAnthropic) || !strings.Contains(msg, ProviderDeepSeek) {
		t.Errorf("message should reference both providers: %q", msg)
	}
}

func TestUnifiedClientHonorsProviderOverride(t *testing.T) {
	anthro := &stubGenerator{resp: &Response{Content: "from anthropic"}}
	deep := &stubGenerator{resp: &Response{Content: "from deepseek"}}
	c, _ := NewUnifiedClient(ProviderAnthropic, map[string]Generator{
		ProviderAnthropic: anthro,
		ProviderDeepSeek:  deep,
	}, bothConfigured(), false, zerolog.Nop())

	req := NewRequest("s", "u")
	req.ProviderOverride = ProviderDeepSeek
	resp, err := c.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Content != "from deepseek" {
		t.Errorf("Content = %q", resp.Content)
	}
}

func TestUnifiedClientSkipsUnconfiguredAlternate(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "")
	anthro := &stubGenerator{err: NewServerError(ProviderAnthropic, "down", 503, nil)}
	deep := &stubGenerator{resp: &Response{Content: "from deepseek"}}
	registry := NewRegistry(ProviderSettings{AnthropicAPIKey: "k1"})
	c, _ := NewUnifiedClient(ProviderAnthropic, map[string]Generator{
		ProviderAnthropic: anthro,
		ProviderDeepSeek:  deep,
	}, registry, false, zerolog.Nop())

	_, err := c.Generate(context.Background(), NewRequest("s", "u"))
	if err == nil {
		t.Fatal("expected failure when the only configured provider is down")
	}
	if deep.calls != 0 {
		t.Errorf("unconfigured alternate called %d times", deep.calls)
	}
}

func TestUnifiedClientMockModeSkipsFallback(t *testing.T) {
	anthro := &stubGenerator{err: NewServerError(ProviderAnthropic, "down", 503, nil)}
	deep := &stubGenerator{resp: &Response{Content: "from deepseek"}}
	c, _ := NewUnifiedClient(ProviderAnthropic, map[string]Generator{
		ProviderAnthropic: anthro,
		ProviderDeepSeek:  deep,
	}, bothConfigured(), true, zerolog.Nop())

	_, err := c.Generate(context.Background(), NewRequest("s", "u"))
	if err == nil {
		t.Fatal("mock mode should not fall back past the preferred provider")
	}
	if deep.calls != 0 {
		t.Errorf("alternate called %d times in mock mode", deep.calls)
	}
}

func TestUnifiedClientRequiresAProvider(t *testing.T) {
	if _, err := NewUnifiedClient(ProviderAnthropic, nil, bothConfigured(), false, zerolog.Nop()); err == nil {
		t.Error("expected an error with no providers configured")
	}
	if _, err := NewUnifiedClient(ProviderAnthropic, nil, bothConfigured(), true, zerolog.Nop()); err != nil {
		t.Errorf("mock mode should boot without providers: %v", err)
	}
}

func TestCacheEligibility(t *testing.T) {
	req := NewRequest("s", "u")
	if req.CacheEligible() {
		t.Error("default temperature 0.7 should not be cache eligible")
	}

	req.Temperature = 0.0
	if !req.CacheEligible() {
		t.Error("temperature 0 with use_cache should be eligible")
	}

	req.Temperature = 0.7
	req.ForceCache = true
	if !req.CacheEligible() {
		t.Error("force_cache should override the temperature gate")
	}

	req.UseCache = false
	if req.CacheEligible() {
		t.Error("use_cache=false must always disable caching")
	}
}
