package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/hllm/internal/model"
)

const cohereDefaultBaseURL = "https://api.cohere.com"

// CohereAdapter implements the Adapter interface for Cohere Command models
type CohereAdapter struct {
	baseURL    string
	httpClient *http.Client
	config     Config
}

// Cohere v2 chat API structures
type cohereMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type cohereRequest struct {
	Model       string          `json:"model"`
	Messages    []cohereMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float32         `json:"temperature"`
}

type cohereResponse struct {
	ID           string `json:"id"`
	FinishReason string `json:"finish_reason"`
	Message      struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message"`
	Usage struct {
		Tokens struct {
			InputTokens  float64 `json:"input_tokens"`
			OutputTokens float64 `json:"output_tokens"`
		} `json:"tokens"`
	} `json:"usage"`
}

type cohereError struct {
	Message string `json:"message"`
}

// NewCohereAdapter creates a new Cohere adapter
func NewCohereAdapter(config Config) (*CohereAdapter, error) {
	if config.APIKey == "" {
		return nil, missingKey(config)
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = cohereDefaultBaseURL
	}

	return &CohereAdapter{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: newHTTPClient(config),
		config:     config,
	}, nil
}

// Identity returns the slot identity
func (p *CohereAdapter) Identity() model.ModelIdentity {
	return p.config.Identity
}

// IsAvailable checks if the key can list models
func (p *CohereAdapter) IsAvailable(ctx context.Context) bool {
	if err := doJSON(ctx, p.httpClient, p.config.Identity.Name, p.baseURL+"/v1/models", p.headers(), nil, nil, cohereErrorMessage); err != nil {
		p.config.logger().Debug("cohere availability check failed", "provider", p.config.Identity.Name, "error", err)
		return false
	}
	return true
}

// Invoke sends the query through the v2 chat API
func (p *CohereAdapter) Invoke(ctx context.Context, query string, timeout time.Duration) (*Response, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	messages := make([]cohereMessage, 0, 2)
	if p.config.SystemPrompt != "" {
		messages = append(messages, cohereMessage{Role: "system", Content: p.config.SystemPrompt})
	}
	messages = append(messages, cohereMessage{Role: "user", Content: query})

	apiReq := cohereRequest{
		Model:       p.config.Identity.Model,
		Messages:    messages,
		MaxTokens:   p.config.MaxTokens,
		Temperature: p.config.Temperature,
	}

	var resp cohereResponse
	if err := doJSON(ctx, p.httpClient, p.config.Identity.Name, p.baseURL+"/v2/chat", p.headers(), apiReq, &resp, cohereErrorMessage); err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range resp.Message.Content {
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
		Model:        p.config.Identity.Model,
		TokensUsed:   int(resp.Usage.Tokens.InputTokens + resp.Usage.Tokens.OutputTokens),
		FinishReason: resp.FinishReason,
	}, nil
}

func (p *CohereAdapter) headers() map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + p.config.APIKey,
		"Accept":        "application/json",
	}
}

func cohereErrorMessage(body []byte) string {
	var apiErr cohereError
	if err := json.Unmarshal(body, &apiErr); err == nil {
		return apiErr.Message
	}
	return ""
}
