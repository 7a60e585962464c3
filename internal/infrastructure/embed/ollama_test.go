package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"NarrativeScanner/internal/config"
)

func TestOllamaProviderEmbed(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "embeddinggemma" {
			t.Errorf("unexpected model: %s", req.Model)
		}

		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{0.1, 0.2, 0.3}})
	}))
	defer server.Close()

	p := NewOllamaProvider(config.OllamaConfig{Endpoint: server.URL, Model: "embeddinggemma"})

	vec, err := p.Embed(context.Background(), "silver demand")
	if err != nil {
		t.Fatalf("embed returned error: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Fatalf("unexpected vector: %v", vec)
	}
}

func TestOllamaProviderEmbedBatch(t *testing.T) {
	t.Parallel()

	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{1}})
	}))
	defer server.Close()

	p := NewOllamaProvider(config.OllamaConfig{Endpoint: server.URL, Model: "m"})

	vectors, err := p.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("embed batch returned error: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vectors))
	}
	if calls != 3 {
		t.Fatalf("expected 3 requests, got %d", calls)
	}
}

func TestOllamaProviderServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	p := NewOllamaProvider(config.OllamaConfig{Endpoint: server.URL, Model: "missing"})

	if _, err := p.Embed(context.Background(), "text"); err == nil {
		t.Fatalf("expected error on 404 response")
	}
}

func TestOllamaProviderEmptyVector(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"embedding": []}`))
	}))
	defer server.Close()

	p := NewOllamaProvider(config.OllamaConfig{Endpoint: server.URL, Model: "m"})

	if _, err := p.Embed(context.Background(), "text"); err == nil {
		t.Fatalf("expected error for empty embedding")
	}
}
