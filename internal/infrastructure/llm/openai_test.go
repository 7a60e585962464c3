package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"NarrativeScanner/internal/config"
)

func TestOpenAIClientComplete(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("unexpected model: %s", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}

		_ = json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{
				{Message: chatMessage{Role: "assistant", Content: "  PHASE: growth  "}},
			},
		})
	}))
	defer server.Close()

	client := NewOpenAIClient(config.GroqConfig{
		Endpoint: server.URL,
		Model:    "test-model",
		APIKey:   "test-key",
	})

	out, err := client.Complete(context.Background(), "system prompt", "user prompt")
	if err != nil {
		t.Fatalf("complete returned error: %v", err)
	}
	if out != "PHASE: growth" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestOpenAIClientErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewOpenAIClient(config.GroqConfig{
		Endpoint: server.URL,
		Model:    "test-model",
		APIKey:   "test-key",
	})

	if _, err := client.Complete(context.Background(), "", "p"); err == nil {
		t.Fatalf("expected error on 429 response")
	}
}

func TestOpenAIClientMisconfigured(t *testing.T) {
	t.Parallel()

	client := NewOpenAIClient(config.GroqConfig{})
	if _, err := client.Complete(context.Background(), "", "p"); err == nil {
		t.Fatalf("expected error for missing configuration")
	}
}

func TestOpenAIClientNoChoices(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(config.GroqConfig{
		Endpoint: server.URL,
		Model:    "m",
		APIKey:   "k",
	})

	if _, err := client.Complete(context.Background(), "", "p"); err == nil {
		t.Fatalf("expected error for empty choices")
	}
}
