package llm

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// RetryPolicy controls retrying of transient provider failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// DefaultRetryPolicy returns the shared provider retry policy: three
// attempts with pure exponential backoff (2s, then 4s), no jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		Multiplier:  2,
	}
}

// Retryer runs provider operations under a RetryPolicy. Retryable errors
// are retried after a backoff sleep; non-retryable errors surface
// immediately; exhaustion surfaces as ProviderFailedError wrapping the
// last cause. A malformed-response error is retried at most once before
// being surfaced regardless of remaining attempts.
type Retryer struct {
	provider string
	policy   RetryPolicy
	logger   zerolog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewRetryer creates a Retryer for the named provider.
func NewRetryer(provider string, policy RetryPolicy, logger zerolog.Logger) *Retryer {
	return &Retryer{
		provider: provider,
		policy:   policy,
		logger:   logger,
		sleep:    waitFor,
	}
}

// WithSleep overrides the between-attempt sleep function. Intended for
// tests that need to observe backoff delays without waiting them out.
func (r *Retryer) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Retryer {
	r.sleep = sleep
	return r
}

func (r *Retryer) newBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.policy.BaseDelay
	eb.Multiplier = r.policy.Multiplier
	eb.RandomizationFactor = 0
	eb.MaxInterval = time.Hour
	eb.MaxElapsedTime = 0
	eb.Reset()
	return eb
}

// Do runs op until it succeeds, fails terminally, or attempts run out.
func (r *Retryer) Do(ctx context.Context, op func() (*Response, error)) (*Response, error) {
	b := r.newBackOff()
	var lastErr error
	malformedRetried := false

	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		resp, err := op()
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !IsRetryableError(err) {
			return nil, err
		}
		if IsMalformedResponseError(err) {
			if malformedRetried {
				break
			}
			malformedRetried = true
		}
		if attempt == r.policy.MaxAttempts-1 {
			break
		}

		delay := b.NextBackOff()
		if delay == backoff.Stop {
			break
		}
		r.logger.Warn().
			Str("provider", r.provider).
			Int("attempt", attempt+1).
			Int("max_attempts", r.policy.MaxAttempts).
			Dur("retry_delay", delay).
			Err(err).
			Msg("Provider request failed, retrying")
		if err := r.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, &ProviderFailedError{
		Provider: r.provider,
		Attempts: r.policy.MaxAttempts,
		LastErr:  lastErr,
	}
}

// waitFor sleeps for the given delay, respecting context cancellation so a
// caller deadline aborts mid-backoff rather than after it.
func waitFor(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
