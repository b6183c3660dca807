package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/ppiankov/hllm/internal/model"
)

// Adapter is the call contract every model backend implements.
// Implementations must be safe for concurrent use and must not mutate
// shared configuration per call.
type Adapter interface {
	// Identity returns the model identity that fills this adapter's slot
	Identity() model.ModelIdentity

	// Invoke sends the query and returns the model's text. A positive timeout
	// bounds the call; failures are returned as *AdapterError.
	Invoke(ctx context.Context, query string, timeout time.Duration) (*Response, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// Response is the text a provider produced for one query
type Response struct {
	// Text is the trimmed completion text
	Text string

	// Model is the model the provider reports having used
	Model string

	// TokensUsed tracks token consumption
	TokensUsed int

	// FinishReason is the provider's stop reason, when reported
	FinishReason string
}

// Metadata returns the provider-reported details attached to a success slot
func (r *Response) Metadata() map[string]any {
	meta := map[string]any{}
	if r.Model != "" {
		meta["reported_model"] = r.Model
	}
	if r.TokensUsed > 0 {
		meta["total_tokens"] = r.TokensUsed
	}
	if r.FinishReason != "" {
		meta["finish_reason"] = r.FinishReason
	}
	return meta
}

// Config holds the settings for one adapter
type Config struct {
	// Identity is the slot identity (display name, provider tag, model id)
	Identity model.ModelIdentity

	// APIKey for the provider
	APIKey string

	// BaseURL overrides the provider's default endpoint
	BaseURL string

	// MaxTokens limits the response length
	MaxTokens int

	// Temperature for sampling
	Temperature float32

	// SystemPrompt is sent ahead of the query
	SystemPrompt string

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string

	// Logger receives debug output; nil uses slog.Default()
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxTokens:    600,
		Temperature:  0.5,
		SystemPrompt: model.DefaultSystemPrompt,
	}
}

// ConfigFromModel converts configuration sections into an adapter Config
func ConfigFromModel(p model.ProviderConfig, gen model.GenerationConfig, network model.NetworkConfig) Config {
	cfg := DefaultConfig()
	cfg.Identity = p.Identity()
	cfg.APIKey = p.ResolveAPIKey()
	cfg.BaseURL = p.BaseURL
	if gen.MaxTokens > 0 {
		cfg.MaxTokens = gen.MaxTokens
	}
	cfg.Temperature = gen.Temperature
	if gen.SystemPrompt != "" {
		cfg.SystemPrompt = gen.SystemPrompt
	}
	cfg.HTTPProxy = network.HTTPProxy
	cfg.HTTPSProxy = network.HTTPSProxy
	cfg.NoProxy = network.NoProxy
	return cfg
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// withTimeout bounds ctx by timeout when it is positive
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}
