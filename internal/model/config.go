package model

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the process-wide configuration, loaded once at startup
type Config struct {
	Providers    []ProviderConfig   `mapstructure:"providers" yaml:"providers" validate:"dive"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator" yaml:"orchestrator"`
	Generation   GenerationConfig   `mapstructure:"generation" yaml:"generation"`
	Scoring      ScoringConfig      `mapstructure:"scoring" yaml:"scoring"`
	Team         TeamConfig         `mapstructure:"team" yaml:"team"`
	Cache        CacheConfig        `mapstructure:"cache" yaml:"cache"`
	Conversation ConversationConfig `mapstructure:"conversation" yaml:"conversation"`
	Verification VerificationConfig `mapstructure:"verification" yaml:"verification"`
	Logging      LoggingConfig      `mapstructure:"logging" yaml:"logging"`
	Metrics      MetricsConfig      `mapstructure:"metrics" yaml:"metrics"`
	Tracing      TracingConfig      `mapstructure:"tracing" yaml:"tracing"`
	Network      NetworkConfig      `mapstructure:"network" yaml:"network"`
}

// ProviderConfig configures one adapter slot
type ProviderConfig struct {
	Name      string        `mapstructure:"name" yaml:"name" validate:"required"`
	Provider  Provider      `mapstructure:"provider" yaml:"provider" validate:"required,oneof=openai anthropic google cohere deepseek openrouter perplexity xai"`
	Model     string        `mapstructure:"model" yaml:"model" validate:"required"`
	BaseURL   string        `mapstructure:"base_url" yaml:"base_url,omitempty" validate:"omitempty,url"`
	APIKey    string        `mapstructure:"api_key" yaml:"api_key,omitempty"`
	APIKeyEnv string        `mapstructure:"api_key_env" yaml:"api_key_env,omitempty"`
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
	Weight    float64       `mapstructure:"weight" yaml:"weight" validate:"gte=0"` // Reliability prior used by trust
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty" validate:"gte=0"`
}

// ResolveAPIKey returns the inline key, falling back to the configured env var
func (p ProviderConfig) ResolveAPIKey() string {
	if p.APIKey != "" {
		return p.APIKey
	}
	if p.APIKeyEnv != "" {
		return os.Getenv(p.APIKeyEnv)
	}
	return ""
}

// Identity returns the model identity this provider fills slots with
func (p ProviderConfig) Identity() ModelIdentity {
	return ModelIdentity{Name: p.Name, Provider: p.Provider, Model: p.Model}
}

// OrchestratorConfig contains dispatch deadlines and outbound call policy
type OrchestratorConfig struct {
	AdapterTimeout  time.Duration `mapstructure:"adapter_timeout" yaml:"adapter_timeout" validate:"gt=0"`
	OverallDeadline time.Duration `mapstructure:"overall_deadline" yaml:"overall_deadline" validate:"gt=0"`
	MaxRetries      int           `mapstructure:"max_retries" yaml:"max_retries" validate:"gte=0,lte=5"`
	RateLimit       float64       `mapstructure:"rate_limit" yaml:"rate_limit" validate:"gte=0"` // Requests/second per provider, 0 = unlimited
	Burst           int           `mapstructure:"burst" yaml:"burst" validate:"gte=0"`
}

// GenerationConfig contains the sampling parameters sent to every provider
type GenerationConfig struct {
	MaxTokens    int     `mapstructure:"max_tokens" yaml:"max_tokens" validate:"gt=0"`
	Temperature  float32 `mapstructure:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
	SystemPrompt string  `mapstructure:"system_prompt" yaml:"system_prompt"`
}

// ScoringConfig contains H-Score weights and heuristic thresholds
type ScoringConfig struct {
	Weights                WeightsConfig `mapstructure:"weights" yaml:"weights"`
	Floor                  float64       `mapstructure:"floor" yaml:"floor" validate:"gte=0,ltefield=LowConfidenceCap"`
	LowConfidenceCap       float64       `mapstructure:"low_confidence_cap" yaml:"low_confidence_cap" validate:"gte=0,lte=3"`
	TrustConfidenceShare   float64       `mapstructure:"trust_confidence_share" yaml:"trust_confidence_share" validate:"gte=0,lte=1"`
	ContradictionThreshold float64       `mapstructure:"contradiction_threshold" yaml:"contradiction_threshold" validate:"gte=0,lte=1"`
}

// WeightsConfig weights the four sub-scores in the final H-Score
type WeightsConfig struct {
	Safety     float64 `mapstructure:"safety" yaml:"safety" validate:"gte=0"`
	Trust      float64 `mapstructure:"trust" yaml:"trust" validate:"gte=0"`
	Confidence float64 `mapstructure:"confidence" yaml:"confidence" validate:"gte=0"`
	Quality    float64 `mapstructure:"quality" yaml:"quality" validate:"gte=0"`
}

// Sum returns the total of all weights
func (w WeightsConfig) Sum() float64 {
	return w.Safety + w.Trust + w.Confidence + w.Quality
}

// TeamConfig selects how team narratives are worded
type TeamConfig struct {
	Narrator string `mapstructure:"narrator" yaml:"narrator" validate:"oneof=template llm"`
	Provider string `mapstructure:"provider" yaml:"provider,omitempty"` // Provider name used by the llm narrator
}

// CacheConfig contains result cache settings
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	TTL     time.Duration `mapstructure:"ttl" yaml:"ttl" validate:"gte=0"`
	Dir     string        `mapstructure:"dir" yaml:"dir"`
}

// ConversationConfig contains conversation history settings
type ConversationConfig struct {
	TTL                time.Duration `mapstructure:"ttl" yaml:"ttl" validate:"gt=0"`
	MaxContextMessages int           `mapstructure:"max_context_messages" yaml:"max_context_messages" validate:"gte=0"`
}

// VerificationConfig contains truth-verification settings
type VerificationConfig struct {
	CheckLinks    bool            `mapstructure:"check_links" yaml:"check_links"`
	Concurrency   int             `mapstructure:"concurrency" yaml:"concurrency" validate:"gt=0"`
	Timeout       time.Duration   `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
	MaxRetries    int             `mapstructure:"max_retries" yaml:"max_retries" validate:"gte=0"`
	RespectRobots bool            `mapstructure:"respect_robots" yaml:"respect_robots"`
	UserAgent     string          `mapstructure:"user_agent" yaml:"user_agent"`
	Authority     AuthorityConfig `mapstructure:"authority" yaml:"authority"`
}

// AuthorityConfig contains domain lists for source classification
type AuthorityConfig struct {
	PrimaryDomains   []string          `mapstructure:"primary_domains" yaml:"primary_domains"`
	SecondaryDomains []string          `mapstructure:"secondary_domains" yaml:"secondary_domains"`
	DomainMap        map[string]string `mapstructure:"domain_map" yaml:"domain_map,omitempty"` // host -> tier override
}

// LoggingConfig contains structured logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
}

// MetricsConfig contains prometheus settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// TracingConfig contains OpenTelemetry settings
type TracingConfig struct {
	Exporter    string `mapstructure:"exporter" yaml:"exporter" validate:"oneof=none stdout otlp"`
	Endpoint    string `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure    bool   `mapstructure:"insecure" yaml:"insecure"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
}

// NetworkConfig contains outbound proxy settings
type NetworkConfig struct {
	HTTPProxy  string `mapstructure:"http_proxy" yaml:"http_proxy,omitempty"`
	HTTPSProxy string `mapstructure:"https_proxy" yaml:"https_proxy,omitempty"`
	NoProxy    string `mapstructure:"no_proxy" yaml:"no_proxy,omitempty"`
}

// DefaultSystemPrompt is sent to every provider ahead of the query
const DefaultSystemPrompt = "You are a helpful assistant with access to current information."

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Providers: DefaultProviders(),
		Orchestrator: OrchestratorConfig{
			AdapterTimeout:  20 * time.Second,
			OverallDeadline: 30 * time.Second,
			MaxRetries:      0,
			RateLimit:       0,
			Burst:           1,
		},
		Generation: GenerationConfig{
			MaxTokens:    600,
			Temperature:  0.5,
			SystemPrompt: DefaultSystemPrompt,
		},
		Scoring: ScoringConfig{
			Weights: WeightsConfig{
				Safety:     0.25,
				Trust:      0.25,
				Confidence: 0.25,
				Quality:    0.25,
			},
			Floor:                  0,
			LowConfidenceCap:       3,
			TrustConfidenceShare:   0.6,
			ContradictionThreshold: 0.15,
		},
		Team: TeamConfig{
			Narrator: "template",
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     time.Hour,
			Dir:     "~/.hllm/cache",
		},
		Conversation: ConversationConfig{
			TTL:                24 * time.Hour,
			MaxContextMessages: 10,
		},
		Verification: VerificationConfig{
			CheckLinks:    false,
			Concurrency:   4,
			Timeout:       5 * time.Second,
			MaxRetries:    1,
			RespectRobots: true,
			UserAgent:     "hllm/0.3 (+https://github.com/ppiankov/hllm)",
			Authority: AuthorityConfig{
				PrimaryDomains: []string{
					"nih.gov",
					"who.int",
					"nature.com",
					"science.org",
					"doi.org",
					"arxiv.org",
					"pubmed.ncbi.nlm.nih.gov",
				},
				SecondaryDomains: []string{
					"wikipedia.org",
					"britannica.com",
					"reuters.com",
					"apnews.com",
					"bbc.com",
					"bbc.co.uk",
				},
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9464",
		},
		Tracing: TracingConfig{
			Exporter:    "none",
			Endpoint:    "localhost:4317",
			Insecure:    true,
			ServiceName: "hllm",
		},
	}
}

// DefaultProviders returns the eight default adapter slots in dispatch order
func DefaultProviders() []ProviderConfig {
	return []ProviderConfig{
		{Name: "OpenAI", Provider: ProviderOpenAI, Model: "gpt-4o", APIKeyEnv: "OPENAI_API_KEY", Enabled: true, Weight: 1},
		{Name: "Claude", Provider: ProviderAnthropic, Model: "claude-3-haiku-20240307", APIKeyEnv: "ANTHROPIC_API_KEY", Enabled: true, Weight: 1},
		{Name: "Gemini", Provider: ProviderGoogle, Model: "gemini-2.0-flash", APIKeyEnv: "GOOGLE_API_KEY", Enabled: true, Weight: 1},
		{Name: "Cohere", Provider: ProviderCohere, Model: "command-r-08-2024", APIKeyEnv: "COHERE_API_KEY", Enabled: true, Weight: 1},
		{Name: "DeepSeek", Provider: ProviderDeepSeek, Model: "deepseek-chat", BaseURL: "https://api.deepseek.com", APIKeyEnv: "DEEPSEEK_API_KEY", Enabled: true, Weight: 1},
		{Name: "OpenRouter", Provider: ProviderOpenRouter, Model: "microsoft/wizardlm-2-8x22b", BaseURL: "https://openrouter.ai/api/v1", APIKeyEnv: "OPENROUTER_API_KEY", Enabled: true, Weight: 1},
		{Name: "Perplexity", Provider: ProviderPerplexity, Model: "sonar", BaseURL: "https://api.perplexity.ai", APIKeyEnv: "PERPLEXITY_API_KEY", Enabled: true, Weight: 1},
		{Name: "Grok", Provider: ProviderXAI, Model: "grok-beta", BaseURL: "https://api.x.ai/v1", APIKeyEnv: "GROK_API_KEY", Enabled: true, Weight: 1},
	}
}

// EnabledProviders returns the enabled provider slots, preserving order
func (c Config) EnabledProviders() []ProviderConfig {
	var enabled []ProviderConfig
	for _, p := range c.Providers {
		if p.Enabled {
			enabled = append(enabled, p)
		}
	}
	return enabled
}

// Provider looks up a provider by name (case-insensitive)
func (c Config) Provider(name string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

var configValidate = validator.New()

// Validate checks field constraints and cross-field rules
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	seen := make(map[string]bool)
	for _, p := range c.Providers {
		key := strings.ToLower(p.Name)
		if seen[key] {
			return fmt.Errorf("invalid config: duplicate provider name %q", p.Name)
		}
		seen[key] = true
	}

	if c.Scoring.Weights.Sum() <= 0 {
		return fmt.Errorf("invalid config: scoring weights must have a positive sum")
	}

	if c.Team.Narrator == "llm" {
		if _, ok := c.Provider(c.Team.Provider); !ok {
			return fmt.Errorf("invalid config: team.provider %q is not a configured provider", c.Team.Provider)
		}
	}

	return nil
}
