package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/hllm/internal/model"
)

const anthropicDefaultBaseURL = "https://api.anthropic.com"

// AnthropicAdapter implements the Adapter interface for Anthropic Claude models
type AnthropicAdapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	config     Config
}

// Anthropic API structures
type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Temperature float32            `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model        string `json:"model"`
	StopReason   string `json:"stop_reason"`
	StopSequence string `json:"stop_sequence"`
	Usage        struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewAnthropicAdapter creates a new Anthropic adapter
func NewAnthropicAdapter(config Config) (*AnthropicAdapter, error) {
	if config.APIKey == "" {
		return nil, missingKey(config)
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = anthropicDefaultBaseURL
	}

	return &AnthropicAdapter{
		apiKey:     config.APIKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: newHTTPClient(config),
		config:     config,
	}, nil
}

// Identity returns the slot identity
func (p *AnthropicAdapter) Identity() model.ModelIdentity {
	return p.config.Identity
}

// IsAvailable checks if the provider is properly configured
func (p *AnthropicAdapter) IsAvailable(ctx context.Context) bool {
	// Minimal completion; Anthropic has no free health endpoint
	req := anthropicRequest{
		Model:     p.config.Identity.Model,
		MaxTokens: 1,
		Messages: []anthropicMessage{
			{Role: "user", Content: "Hi"},
		},
	}

	if _, err := p.makeRequest(ctx, req); err != nil {
		p.config.logger().Debug("anthropic availability check failed", "provider", p.config.Identity.Name, "error", err)
		return false
	}
	return true
}

// Invoke sends the query through the Messages API
func (p *AnthropicAdapter) Invoke(ctx context.Context, query string, timeout time.Duration) (*Response, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	apiReq := anthropicRequest{
		Model:     p.config.Identity.Model,
		MaxTokens: p.config.MaxTokens,
		System:    p.config.SystemPrompt,
		Messages: []anthropicMessage{
			{
				Role:    "user",
				Content: query,
			},
		},
		Temperature: p.config.Temperature,
	}

	resp, err := p.makeRequest(ctx, apiReq)
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	answer := strings.TrimSpace(text.String())
	if answer == "" {
		return nil, malformed(p.config.Identity.Name, "no text content in response", nil)
	}

	return &Response{
		Text:         answer,
		Model:        resp.Model,
		TokensUsed:   resp.Usage.InputTokens + resp.Usage.OutputTokens,
		FinishReason: resp.StopReason,
	}, nil
}

// makeRequest makes an HTTP request to the Anthropic API
func (p *AnthropicAdapter) makeRequest(ctx context.Context, apiReq anthropicRequest) (*anthropicResponse, error) {
	headers := map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": "2023-06-01",
	}

	var resp anthropicResponse
	err := doJSON(ctx, p.httpClient, p.config.Identity.Name, p.baseURL+"/v1/messages", headers, apiReq, &resp, func(body []byte) string {
		var apiErr anthropicError
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
			return apiErr.Error.Type + " - " + apiErr.Error.Message
		}
		return ""
	})
	if err != nil {
		return nil, err
	}

	return &resp, nil
}
