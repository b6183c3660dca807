package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ppiankov/hllm/internal/model"
)

const geminiDefaultBaseURL = "https://generativelanguage.googleapis.com"

// GeminiAdapter implements the Adapter interface for Google Gemini models
type GeminiAdapter struct {
	baseURL    string
	httpClient *http.Client
	config     Config
}

// Gemini API structures
type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float32 `json:"temperature"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

type geminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// NewGeminiAdapter creates a new Gemini adapter
func NewGeminiAdapter(config Config) (*GeminiAdapter, error) {
	if config.APIKey == "" {
		return nil, missingKey(config)
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = geminiDefaultBaseURL
	}

	return &GeminiAdapter{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: newHTTPClient(config),
		config:     config,
	}, nil
}

// Identity returns the slot identity
func (p *GeminiAdapter) Identity() model.ModelIdentity {
	return p.config.Identity
}

// IsAvailable checks that the configured model can be described with the key
func (p *GeminiAdapter) IsAvailable(ctx context.Context) bool {
	endpoint := fmt.Sprintf("%s/v1beta/models/%s", p.baseURL, url.PathEscape(p.config.Identity.Model))
	if err := doJSON(ctx, p.httpClient, p.config.Identity.Name, endpoint, p.headers(), nil, nil, geminiErrorMessage); err != nil {
		p.config.logger().Debug("gemini availability check failed", "provider", p.config.Identity.Name, "error", err)
		return false
	}
	return true
}

// Invoke sends the query through the generateContent API
func (p *GeminiAdapter) Invoke(ctx context.Context, query string, timeout time.Duration) (*Response, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	apiReq := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: query}}},
		},
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: p.config.MaxTokens,
			Temperature:     p.config.Temperature,
		},
	}
	if p.config.SystemPrompt != "" {
		apiReq.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: p.config.SystemPrompt}}}
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.baseURL, url.PathEscape(p.config.Identity.Model))

	var resp geminiResponse
	if err := doJSON(ctx, p.httpClient, p.config.Identity.Name, endpoint, p.headers(), apiReq, &resp, geminiErrorMessage); err != nil {
		return nil, err
	}

	if len(resp.Candidates) == 0 {
		reason := "no candidates in response"
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			reason = "prompt blocked: " + resp.PromptFeedback.BlockReason
		}
		return nil, malformed(p.config.Identity.Name, reason, nil)
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	answer := strings.TrimSpace(text.String())
	if answer == "" {
		return nil, malformed(p.config.Identity.Name, "empty candidate", nil)
	}

	return &Response{
		Text:         answer,
		Model:        resp.ModelVersion,
		TokensUsed:   resp.UsageMetadata.TotalTokenCount,
		FinishReason: resp.Candidates[0].FinishReason,
	}, nil
}

func (p *GeminiAdapter) headers() map[string]string {
	return map[string]string{"x-goog-api-key": p.config.APIKey}
}

func geminiErrorMessage(body []byte) string {
	var apiErr geminiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return apiErr.Error.Status + " - " + apiErr.Error.Message
	}
	return ""
}
