package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ppiankov/hllm/internal/model"
)

func TestGeminiAdapter_Invoke_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/test-model:generateContent" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("Expected x-goog-api-key header, got %q", r.Header.Get("x-goog-api-key"))
		}

		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.GenerationConfig.MaxOutputTokens != 600 {
			t.Errorf("Expected maxOutputTokens 600, got %d", req.GenerationConfig.MaxOutputTokens)
		}
		if req.SystemInstruction == nil {
			t.Error("Expected system instruction")
		}

		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "Paris."}]}, "finishReason": "STOP"}],
			"usageMetadata": {"totalTokenCount": 9},
			"modelVersion": "gemini-2.0-flash"
		}`))
	}))
	defer server.Close()

	adapter, err := NewGeminiAdapter(testConfig(model.ProviderGoogle, server.URL))
	if err != nil {
		t.Fatalf("Failed to create adapter: %v", err)
	}

	resp, err := adapter.Invoke(context.Background(), "capital of France?", 5*time.Second)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if resp.Text != "Paris." || resp.TokensUsed != 9 || resp.FinishReason != "STOP" {
		t.Errorf("Unexpected response: %+v", resp)
	}
}

func TestGeminiAdapter_Invoke_Blocked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates": [], "promptFeedback": {"blockReason": "SAFETY"}}`))
	}))
	defer server.Close()

	adapter, err := NewGeminiAdapter(testConfig(model.ProviderGoogle, server.URL))
	if err != nil {
		t.Fatalf("Failed to create adapter: %v", err)
	}

	_, err = adapter.Invoke(context.Background(), "q", 5*time.Second)
	if KindOf(err) != model.KindMalformed {
		t.Fatalf("Expected malformed, got %v", err)
	}
}

func TestGeminiAdapter_Invoke_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"code": 429, "message": "quota exceeded", "status": "RESOURCE_EXHAUSTED"}}`))
	}))
	defer server.Close()

	adapter, err := NewGeminiAdapter(testConfig(model.ProviderGoogle, server.URL))
	if err != nil {
		t.Fatalf("Failed to create adapter: %v", err)
	}

	_, err = adapter.Invoke(context.Background(), "q", 5*time.Second)
	if KindOf(err) != model.KindRateLimited {
		t.Errorf("Expected rate limited, got %v", err)
	}
}
