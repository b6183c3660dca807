package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ppiankov/hllm/internal/model"
)

// scriptedAdapter returns the scripted errors in order, then succeeds
type scriptedAdapter struct {
	errs  []error
	calls int
}

func (s *scriptedAdapter) Identity() model.ModelIdentity {
	return model.ModelIdentity{Name: "Scripted", Provider: model.ProviderCohere}
}

func (s *scriptedAdapter) Invoke(ctx context.Context, query string, timeout time.Duration) (*Response, error) {
	s.calls++
	if s.calls <= len(s.errs) {
		return nil, s.errs[s.calls-1]
	}
	return &Response{Text: "ok"}, nil
}

func (s *scriptedAdapter) IsAvailable(ctx context.Context) bool { return true }

func noSleep(t *testing.T) {
	t.Helper()
	orig := retrySleepFunc
	retrySleepFunc = func(ctx context.Context, d time.Duration) error { return nil }
	t.Cleanup(func() { retrySleepFunc = orig })
}

func TestWithRetry_RetriesTransient(t *testing.T) {
	noSleep(t)

	inner := &scriptedAdapter{errs: []error{
		&AdapterError{Kind: model.KindRateLimited},
		&AdapterError{Kind: model.KindUnavailable},
	}}

	resp, err := WithRetry(inner, 2).Invoke(context.Background(), "q", time.Minute)
	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if resp.Text != "ok" || inner.calls != 3 {
		t.Errorf("Expected 3 calls ending in ok, got %d calls, %+v", inner.calls, resp)
	}
}

func TestWithRetry_DoesNotRetryPermanent(t *testing.T) {
	noSleep(t)

	inner := &scriptedAdapter{errs: []error{&AdapterError{Kind: model.KindAuthFailure}}}

	_, err := WithRetry(inner, 3).Invoke(context.Background(), "q", time.Minute)
	if KindOf(err) != model.KindAuthFailure {
		t.Errorf("Expected auth failure, got %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("Expected a single call, got %d", inner.calls)
	}
}

func TestWithRetry_GivesUp(t *testing.T) {
	noSleep(t)

	transient := &AdapterError{Kind: model.KindUnavailable}
	inner := &scriptedAdapter{errs: []error{transient, transient, transient}}

	_, err := WithRetry(inner, 1).Invoke(context.Background(), "q", time.Minute)
	if !errors.Is(err, transient) {
		t.Errorf("Expected last transient error, got %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("Expected 2 calls, got %d", inner.calls)
	}
}

type denyWaiter struct{ key string }

func (d *denyWaiter) Wait(ctx context.Context, key string) error {
	d.key = key
	return errors.New("would exceed context deadline")
}

func TestRateLimited_WaitFailure(t *testing.T) {
	inner := &scriptedAdapter{}
	waiter := &denyWaiter{}

	_, err := RateLimited(inner, waiter).Invoke(context.Background(), "q", time.Second)
	if KindOf(err) != model.KindRateLimited {
		t.Errorf("Expected rate limited, got %v", err)
	}
	if waiter.key != string(model.ProviderCohere) {
		t.Errorf("Expected limiter keyed by provider tag, got %q", waiter.key)
	}
	if inner.calls != 0 {
		t.Errorf("Inner adapter should not be called, got %d calls", inner.calls)
	}
}

func TestNewAdapters_MissingKeyKeepsSlot(t *testing.T) {
	cfg := model.DefaultConfig()
	for i := range cfg.Providers {
		cfg.Providers[i].APIKeyEnv = ""
		cfg.Providers[i].APIKey = ""
	}
	cfg.Providers[0].APIKey = "sk-test"

	adapters := NewAdapters(cfg, Options{})
	if len(adapters) != len(cfg.Providers) {
		t.Fatalf("Expected %d adapters, got %d", len(cfg.Providers), len(adapters))
	}

	for i, a := range adapters {
		if a.Identity().Name != cfg.Providers[i].Name {
			t.Errorf("Slot %d: expected %s, got %s", i, cfg.Providers[i].Name, a.Identity().Name)
		}
	}

	_, err := adapters[1].Invoke(context.Background(), "q", time.Second)
	if KindOf(err) != model.KindAuthFailure {
		t.Errorf("Expected auth failure for keyless provider, got %v", err)
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(context.DeadlineExceeded) != model.KindTimeout {
		t.Error("Expected deadline to classify as timeout")
	}
	if KindOf(errors.New("boom")) != model.KindUnavailable {
		t.Error("Expected unknown error to classify as unavailable")
	}
	wrapped := errors.Join(errors.New("outer"), &AdapterError{Kind: model.KindMalformed})
	if KindOf(wrapped) != model.KindMalformed {
		t.Error("Expected wrapped adapter error kind")
	}
}
