package llm

import (
	"context"
	"strings"
	"time"

	"github.com/ppiankov/hllm/internal/model"
	"github.com/sashabaranov/go-openai"
)

// Default endpoints for providers that speak the OpenAI chat completions API
var openAICompatibleBaseURLs = map[model.Provider]string{
	model.ProviderDeepSeek:   "https://api.deepseek.com",
	model.ProviderOpenRouter: "https://openrouter.ai/api/v1",
	model.ProviderPerplexity: "https://api.perplexity.ai",
	model.ProviderXAI:        "https://api.x.ai/v1",
}

// OpenAIAdapter implements the Adapter interface for OpenAI and OpenAI-compatible APIs
type OpenAIAdapter struct {
	client *openai.Client
	config Config
}

// NewOpenAIAdapter creates a new OpenAI-compatible adapter
func NewOpenAIAdapter(config Config) (*OpenAIAdapter, error) {
	if config.APIKey == "" {
		return nil, missingKey(config)
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = openAICompatibleBaseURLs[config.Identity.Provider]
	}
	if baseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	clientConfig.HTTPClient = newHTTPClient(config)

	return &OpenAIAdapter{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// Identity returns the slot identity
func (p *OpenAIAdapter) Identity() model.ModelIdentity {
	return p.config.Identity
}

// IsAvailable checks if the provider is properly configured
func (p *OpenAIAdapter) IsAvailable(ctx context.Context) bool {
	var err error
	if p.config.Identity.Provider == model.ProviderPerplexity {
		// Perplexity does not expose a models listing
		_, err = p.complete(ctx, "Hi", 1)
	} else {
		_, err = p.client.ListModels(ctx)
	}
	if err != nil {
		p.config.logger().Debug("availability check failed", "provider", p.config.Identity.Name, "error", err)
		return false
	}
	return true
}

// Invoke sends the query through the Chat Completions API
func (p *OpenAIAdapter) Invoke(ctx context.Context, query string, timeout time.Duration) (*Response, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	return p.complete(ctx, query, p.config.MaxTokens)
}

func (p *OpenAIAdapter) complete(ctx context.Context, query string, maxTokens int) (*Response, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if p.config.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: p.config.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: query,
	})

	chatReq := openai.ChatCompletionRequest{
		Model:       p.config.Identity.Model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: p.config.Temperature,
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, classifyTransport(p.config.Identity.Name, err)
	}

	if len(resp.Choices) == 0 {
		return nil, malformed(p.config.Identity.Name, "no choices in response", nil)
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" && maxTokens > 1 {
		return nil, malformed(p.config.Identity.Name, "empty completion", nil)
	}

	return &Response{
		Text:         answer,
		Model:        resp.Model,
		TokensUsed:   resp.Usage.TotalTokens,
		FinishReason: string(resp.Choices[0].FinishReason),
	}, nil
}
