package llm

import (
	"context"
	"time"

	"github.com/ppiankov/hllm/internal/model"
)

// retrySleepFunc waits between retries (injectable for tests)
var retrySleepFunc = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryBaseDelay is the first backoff step; each retry doubles it
const retryBaseDelay = 250 * time.Millisecond

type retryAdapter struct {
	Adapter
	maxRetries int
}

// WithRetry retries rate-limited and unavailable failures with exponential backoff.
// Retries share the caller's timeout; a backoff that would outlive it is not started.
func WithRetry(a Adapter, maxRetries int) Adapter {
	return &retryAdapter{Adapter: a, maxRetries: maxRetries}
}

func (r *retryAdapter) Invoke(ctx context.Context, query string, timeout time.Duration) (*Response, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		resp, err := r.Adapter.Invoke(ctx, query, 0)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !Retryable(err) || attempt == r.maxRetries {
			break
		}

		backoff := retryBaseDelay * time.Duration(1<<uint(attempt))
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < backoff {
			break
		}
		if err := retrySleepFunc(ctx, backoff); err != nil {
			break
		}
	}
	return nil, lastErr
}

// Waiter blocks until a call for key may proceed
type Waiter interface {
	Wait(ctx context.Context, key string) error
}

type rateLimitedAdapter struct {
	Adapter
	waiter Waiter
}

// RateLimited gates every call through w, keyed by provider tag
func RateLimited(a Adapter, w Waiter) Adapter {
	return &rateLimitedAdapter{Adapter: a, waiter: w}
}

func (r *rateLimitedAdapter) Invoke(ctx context.Context, query string, timeout time.Duration) (*Response, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	identity := r.Identity()
	if err := r.waiter.Wait(ctx, string(identity.Provider)); err != nil {
		return nil, &AdapterError{
			Provider: identity.Name,
			Kind:     model.KindRateLimited,
			Message:  "local rate limit: " + err.Error(),
			Err:      err,
		}
	}
	return r.Adapter.Invoke(ctx, query, 0)
}
