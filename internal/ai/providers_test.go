package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaInvoke(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ollamaChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Stream {
			t.Error("request asked for streaming")
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}

		resp := ollamaChatResponse{
			Model:           req.Model,
			Message:         ollamaMessage{Role: "assistant", Content: "ROOT CAUSE: disk full"},
			Done:            true,
			PromptEvalCount: 120,
			EvalCount:       45,
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, err := NewOllamaClient(OllamaConfig{BaseURL: server.URL, Model: "llama3.3"})
	if err != nil {
		t.Fatalf("NewOllamaClient() failed: %v", err)
	}

	got, err := client.Invoke(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("Invoke() failed: %v", err)
	}
	if got.Text != "ROOT CAUSE: disk full" {
		t.Errorf("Text = %q", got.Text)
	}
	if got.InputTokens != 120 || got.OutputTokens != 45 {
		t.Errorf("tokens = (%d, %d), want (120, 45)", got.InputTokens, got.OutputTokens)
	}
}

func TestOllamaInvokeIncompleteResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{Done: false})
	}))
	defer server.Close()

	client, _ := NewOllamaClient(OllamaConfig{BaseURL: server.URL, Model: "llama3.3"})
	_, err := client.Invoke(context.Background(), "s", "u")

	var backendErr *BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("Invoke() error = %T, want *BackendError", err)
	}
}

func TestLMStudioInvoke(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		resp := openAIChatResponse{Model: "local-model"}
		resp.Choices = []struct {
			Index        int           `json:"index"`
			Message      openAIMessage `json:"message"`
			FinishReason string        `json:"finish_reason"`
		}{
			{Message: openAIMessage{Role: "assistant", Content: "analysis text"}, FinishReason: "stop"},
		}
		resp.Usage.PromptTokens = 80
		resp.Usage.CompletionTokens = 20
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, err := NewLMStudioClient(LMStudioConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewLMStudioClient() failed: %v", err)
	}

	got, err := client.Invoke(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("Invoke() failed: %v", err)
	}
	if got.Text != "analysis text" || got.InputTokens != 80 || got.OutputTokens != 20 {
		t.Errorf("Invoke() = %+v", got)
	}
}

func TestDoJSONPostErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model is loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, _ := NewOllamaClient(OllamaConfig{BaseURL: server.URL, Model: "llama3.3"})
	_, err := client.Invoke(context.Background(), "s", "u")

	var backendErr *BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("Invoke() error = %T, want *BackendError", err)
	}
	if backendErr.Status != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want 503", backendErr.Status)
	}
	if !backendErr.Temporary() {
		t.Error("503 should be temporary")
	}
	if !ShouldRetry(err) {
		t.Error("503 should be retryable")
	}
}

func TestDoJSONPostConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // nothing listening anymore

	client, _ := NewOllamaClient(OllamaConfig{BaseURL: server.URL, Model: "llama3.3", TimeoutSeconds: 1})
	_, err := client.Invoke(context.Background(), "s", "u")

	var backendErr *BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("Invoke() error = %T, want *BackendError", err)
	}
	if backendErr.Status != 0 {
		t.Errorf("Status = %d, want 0 for transport failure", backendErr.Status)
	}
}

func TestOllamaCheckConnection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, _ := NewOllamaClient(OllamaConfig{BaseURL: server.URL, Model: "llama3.3"})
	if err := client.CheckConnection(context.Background()); err != nil {
		t.Errorf("CheckConnection() = %v, want nil", err)
	}
}

func TestOllamaCheckConnectionDaemonDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client, _ := NewOllamaClient(OllamaConfig{BaseURL: server.URL, Model: "llama3.3", TimeoutSeconds: 1})
	if err := client.CheckConnection(context.Background()); err == nil {
		t.Error("CheckConnection() = nil for an unreachable daemon")
	}
}

func TestProviderTypeValidation(t *testing.T) {
	for _, pt := range []string{"anthropic", "ollama", "lmstudio"} {
		if !IsValidProviderType(pt) {
			t.Errorf("IsValidProviderType(%q) = false", pt)
		}
	}
	if IsValidProviderType("openai") {
		t.Error("IsValidProviderType(\"openai\") = true")
	}
}
