package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/voxbridge/voxbridge/internal/sessions"
)

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func completionResponse(content string) map[string]any {
	return map[string]any{
		"id":     "gen-1",
		"object": "chat.completion",
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *OpenRouterClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewOpenRouterClient(OpenRouterConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestGenerateBuildsConversation(t *testing.T) {
	var captured chatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(completionResponse("We are open until five."))
	})

	history := []sessions.Turn{
		{Role: sessions.RoleUser, Content: "hello"},
		{Role: sessions.RoleAssistant, Content: "Hi, how can I help?"},
	}
	reply, err := client.Generate(context.Background(), "what are your hours", history)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if reply != "We are open until five." {
		t.Errorf("reply = %q", reply)
	}

	if captured.Model != "anthropic/claude-3-haiku" {
		t.Errorf("model = %q", captured.Model)
	}
	if captured.MaxTokens != 150 {
		t.Errorf("max tokens = %d, want 150", captured.MaxTokens)
	}
	if len(captured.Messages) != 4 {
		t.Fatalf("got %d messages, want 4", len(captured.Messages))
	}
	if captured.Messages[0].Role != "system" {
		t.Errorf("first message role = %q, want system", captured.Messages[0].Role)
	}
	if captured.Messages[2].Role != "assistant" {
		t.Errorf("history role = %q, want assistant", captured.Messages[2].Role)
	}
	last := captured.Messages[len(captured.Messages)-1]
	if last.Role != "user" || last.Content != "what are your hours" {
		t.Errorf("last message = %+v", last)
	}
}

func TestGenerateFallbackOnEmptyChoices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "gen-2",
			"object":  "chat.completion",
			"choices": []any{},
		})
	})

	reply, err := client.Generate(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if reply != fallbackReply {
		t.Errorf("reply = %q, want fallback", reply)
	}
}

func TestGenerateRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, `{"error":{"message":"upstream overloaded"}}`, http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(completionResponse("Recovered."))
	})

	reply, err := client.Generate(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("generate should succeed after retries: %v", err)
	}
	if reply != "Recovered." {
		t.Errorf("reply = %q", reply)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestGenerateErrorAfterExhaustedRetries(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"down"}}`, http.StatusServiceUnavailable)
	})

	if _, err := client.Generate(context.Background(), "hello", nil); err == nil {
		t.Fatal("generate should fail when the upstream stays down")
	}
}

func TestNewOpenRouterClientRequiresKey(t *testing.T) {
	if _, err := NewOpenRouterClient(OpenRouterConfig{}); err == nil {
		t.Error("missing API key should be rejected")
	}
}
