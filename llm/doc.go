// Package llm provides a provider-neutral abstraction layer for remote
// text-generation APIs.
//
// This package defines the common request/response model, error taxonomy,
// retry policy, and mock mode shared by the provider adapters, so callers
// can work with multiple providers (Anthropic, DeepSeek) without being
// coupled to either wire protocol.
//
// # Core Concepts
//
//  1. Request/Response: a Request carries the system and user prompts plus
//     generation options (model, max tokens, temperature, structured-output
//     schema, caching and conversation-context hints). A Response carries
//     the raw model text, token usage, and stop reason, and is never
//     mutated after construction.
//
//  2. Capabilities: the Generator interface is the base contract every
//     provider implements. Streaming and embeddings are optional
//     capabilities discovered by type assertion against the Streamer and
//     Embedder interfaces.
//
//  3. Errors: the Error type classifies provider failures (auth, rate
//     limit, server, network, malformed response, invalid request) with a
//     Retryable flag. Retry exhaustion surfaces as ProviderFailedError;
//     exhaustion of every configured provider as AllProvidersFailedError.
//
//  4. Retrying: Retryer runs an operation under the shared retry policy
//     (pure exponential backoff, no jitter), sleeping between attempts in
//     a context-aware way so caller deadlines abort mid-backoff.
//
//  5. Mock mode: MockResponse fabricates a deterministic response from a
//     hash of the inputs without any network call, for tests and offline
//     use. Identical inputs always produce identical output.
//
// # Extension Points
//
// To add a new provider:
//  1. Implement the Generator interface (and Streamer/Embedder if the
//     provider supports those capabilities)
//  2. Translate provider-specific wire formats and status codes into the
//     llm types and error taxonomy
//  3. Register credentials with the Registry so routing can see whether
//     the provider is configured
package llm
