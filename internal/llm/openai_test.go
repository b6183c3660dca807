package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ppiankov/hllm/internal/model"
	"github.com/sashabaranov/go-openai"
)

func testConfig(provider model.Provider, baseURL string) Config {
	cfg := DefaultConfig()
	cfg.Identity = model.ModelIdentity{Name: "Test", Provider: provider, Model: "test-model"}
	cfg.APIKey = "test-key"
	cfg.BaseURL = baseURL
	return cfg
}

func TestOpenAIAdapter_Invoke_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected path /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected Authorization header Bearer test-key, got %s", r.Header.Get("Authorization"))
		}

		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.MaxTokens != 600 {
			t.Errorf("Expected max_tokens 600, got %d", req.MaxTokens)
		}
		if len(req.Messages) != 2 || req.Messages[1].Content != "What is the capital of France?" {
			t.Errorf("Unexpected messages: %+v", req.Messages)
		}

		resp := openai.ChatCompletionResponse{
			ID:    "chatcmpl-123",
			Model: "test-model",
			Choices: []openai.ChatCompletionChoice{
				{
					Message: openai.ChatCompletionMessage{
						Role:    "assistant",
						Content: "  The capital of France is Paris.  ",
					},
					FinishReason: "stop",
				},
			},
			Usage: openai.Usage{TotalTokens: 42},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	adapter, err := NewOpenAIAdapter(testConfig(model.ProviderOpenAI, server.URL))
	if err != nil {
		t.Fatalf("Failed to create adapter: %v", err)
	}

	resp, err := adapter.Invoke(context.Background(), "What is the capital of France?", 5*time.Second)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	if resp.Text != "The capital of France is Paris." {
		t.Errorf("Unexpected text: %q", resp.Text)
	}
	if resp.TokensUsed != 42 {
		t.Errorf("Expected 42 tokens, got %d", resp.TokensUsed)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("Expected finish reason stop, got %s", resp.FinishReason)
	}
}

func TestOpenAIAdapter_Invoke_StatusKinds(t *testing.T) {
	tests := []struct {
		status int
		want   model.ErrorKind
	}{
		{http.StatusUnauthorized, model.KindAuthFailure},
		{http.StatusForbidden, model.KindAuthFailure},
		{http.StatusTooManyRequests, model.KindRateLimited},
		{http.StatusInternalServerError, model.KindUnavailable},
		{http.StatusServiceUnavailable, model.KindUnavailable},
		{http.StatusGatewayTimeout, model.KindTimeout},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error": {"message": "scripted", "type": "server_error"}}`))
			}))
			defer server.Close()

			adapter, err := NewOpenAIAdapter(testConfig(model.ProviderDeepSeek, server.URL))
			if err != nil {
				t.Fatalf("Failed to create adapter: %v", err)
			}

			_, err = adapter.Invoke(context.Background(), "q", 5*time.Second)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}

			var aerr *AdapterError
			if !errors.As(err, &aerr) {
				t.Fatalf("Expected *AdapterError, got %T: %v", err, err)
			}
			if aerr.Kind != tt.want {
				t.Errorf("Expected kind %s, got %s (%v)", tt.want, aerr.Kind, err)
			}
		})
	}
}

func TestOpenAIAdapter_Invoke_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{ID: "empty"})
	}))
	defer server.Close()

	adapter, err := NewOpenAIAdapter(testConfig(model.ProviderXAI, server.URL))
	if err != nil {
		t.Fatalf("Failed to create adapter: %v", err)
	}

	_, err = adapter.Invoke(context.Background(), "q", 5*time.Second)
	if KindOf(err) != model.KindMalformed {
		t.Errorf("Expected malformed, got %v", err)
	}
}

func TestOpenAIAdapter_Invoke_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	adapter, err := NewOpenAIAdapter(testConfig(model.ProviderOpenRouter, server.URL))
	if err != nil {
		t.Fatalf("Failed to create adapter: %v", err)
	}

	start := time.Now()
	_, err = adapter.Invoke(context.Background(), "q", 50*time.Millisecond)
	if KindOf(err) != model.KindTimeout {
		t.Errorf("Expected timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Invoke did not honor its timeout: %v", elapsed)
	}
}

func TestOpenAIAdapter_MissingKey(t *testing.T) {
	cfg := testConfig(model.ProviderOpenAI, "")
	cfg.APIKey = ""

	_, err := NewOpenAIAdapter(cfg)
	if KindOf(err) != model.KindAuthFailure {
		t.Errorf("Expected auth failure for missing key, got %v", err)
	}
}

func TestOpenAIAdapter_DefaultBaseURL(t *testing.T) {
	cfg := testConfig(model.ProviderPerplexity, "")

	adapter, err := NewOpenAIAdapter(cfg)
	if err != nil {
		t.Fatalf("Failed to create adapter: %v", err)
	}
	if adapter.Identity().Provider != model.ProviderPerplexity {
		t.Errorf("Unexpected identity: %+v", adapter.Identity())
	}
}
