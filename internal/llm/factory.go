package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppiankov/hllm/internal/model"
)

// NewAdapter creates the adapter matching the configured provider tag
func NewAdapter(config Config) (Adapter, error) {
	switch config.Identity.Provider {
	case model.ProviderOpenAI, model.ProviderDeepSeek, model.ProviderOpenRouter,
		model.ProviderPerplexity, model.ProviderXAI:
		return NewOpenAIAdapter(config)

	case model.ProviderAnthropic:
		return NewAnthropicAdapter(config)

	case model.ProviderGoogle:
		return NewGeminiAdapter(config)

	case model.ProviderCohere:
		return NewCohereAdapter(config)

	default:
		return nil, fmt.Errorf("unknown provider: %s (supported: openai, anthropic, google, cohere, deepseek, openrouter, perplexity, xai)", config.Identity.Provider)
	}
}

// Options controls the decorators NewAdapters wraps around each adapter
type Options struct {
	MaxRetries int
	Limiter    Waiter
	Logger     *slog.Logger
}

// NewAdapters builds one adapter per enabled provider, in configuration order.
// A provider that cannot be constructed (e.g., missing API key) still gets a
// slot: its adapter fails every call with the construction error.
func NewAdapters(cfg model.Config, opts Options) []Adapter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var adapters []Adapter
	for _, p := range cfg.EnabledProviders() {
		config := ConfigFromModel(p, cfg.Generation, cfg.Network)
		config.Logger = logger

		adapter, err := NewAdapter(config)
		if err != nil {
			logger.Warn("adapter unavailable", "provider", p.Name, "error", err)
			adapters = append(adapters, Unconfigured(p.Identity(), err))
			continue
		}

		if opts.Limiter != nil {
			adapter = RateLimited(adapter, opts.Limiter)
		}
		if opts.MaxRetries > 0 {
			adapter = WithRetry(adapter, opts.MaxRetries)
		}
		adapters = append(adapters, adapter)
	}
	return adapters
}

// missingKey is the construction error for a provider without credentials
func missingKey(config Config) *AdapterError {
	return &AdapterError{
		Provider: config.Identity.Name,
		Kind:     model.KindAuthFailure,
		Message:  "missing API key",
	}
}

// unconfiguredAdapter occupies the slot of a provider that could not be built
type unconfiguredAdapter struct {
	identity model.ModelIdentity
	err      error
}

// Unconfigured returns an adapter that fails every call with err
func Unconfigured(identity model.ModelIdentity, err error) Adapter {
	return &unconfiguredAdapter{identity: identity, err: err}
}

func (u *unconfiguredAdapter) Identity() model.ModelIdentity {
	return u.identity
}

func (u *unconfiguredAdapter) Invoke(ctx context.Context, query string, timeout time.Duration) (*Response, error) {
	return nil, classifyTransport(u.identity.Name, u.err)
}

func (u *unconfiguredAdapter) IsAvailable(ctx context.Context) bool {
	return false
}
