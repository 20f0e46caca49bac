package llm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// UnifiedClient tries a preferred provider and falls back to the
// registry's alternate when it fails. All failure messages are
// aggregated into AllProvidersFailedError when every attempt fails.
type UnifiedClient struct {
	clients   map[string]Generator
	preferred string
	registry  *Registry
	mockMode  bool
	logger    zerolog.Logger
}

// NewUnifiedClient creates a UnifiedClient over the given provider
// clients. At least one client must be supplied unless mock mode is on.
// The registry decides fallback order: only a configured alternate is
// ever tried.
func NewUnifiedClient(preferred string, clients map[string]Generator, registry *Registry, mockMode bool, logger zerolog.Logger) (*UnifiedClient, error) {
	if len(clients) == 0 && !mockMode {
		return nil, fmt.Errorf("no providers available: configure at least one API key")
	}
	return &UnifiedClient{
		clients:   clients,
		preferred: preferred,
		registry:  registry,
		mockMode:  mockMode,
		logger:    logger,
	}, nil
}

// Generate implements Generator. The request's ProviderOverride, when set,
// replaces the configured preference for this call. In mock mode the call
// short-circuits straight to the preferred provider's mock path; fallback
// is a production-only concern.
func (c *UnifiedClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	preferred := c.preferred
	if req.ProviderOverride != "" {
		preferred = req.ProviderOverride
	}

	if c.mockMode {
		if client, ok := c.clients[preferred]; ok {
			return client.Generate(ctx, req)
		}
		for _, name := range c.attempts(preferred)[1:] {
			if client, ok := c.clients[name]; ok {
				return client.Generate(ctx, req)
			}
		}
		return nil, &AllProvidersFailedError{}
	}

	var errs []error
	for _, name := range c.attempts(preferred) {
		client, ok := c.clients[name]
		if !ok {
			continue
		}
		resp, err := client.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		c.logger.Warn().Str("provider", name).Err(err).Msg("Provider request failed, trying alternate")
		errs = append(errs, fmt.Errorf("%s error: %w", name, err))
	}
	return nil, &AllProvidersFailedError{Errors: errs}
}

// attempts returns the providers to try in order: the preference, then
// the registry's configured alternate when one exists.
func (c *UnifiedClient) attempts(preferred string) []string {
	names := []string{preferred}
	if c.registry != nil {
		if alt, ok := c.registry.Alternate(preferred); ok {
			names = append(names, alt)
		}
	}
	return names
}
