package embeddings_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lisakoeritz/aien-api/config"
	"github.com/lisakoeritz/aien-api/embeddings"
)

func TestNewEmbedderOllama(t *testing.T) {
	embedder, err := embeddings.NewEmbedder(config.EmbeddingConfig{
		Provider:   config.ProviderOllama,
		Model:      "nomic-embed-text",
		Dimension:  768,
		OllamaHost: "http://localhost:11434",
	})
	if err != nil {
		t.Fatalf("expected embedder, got error: %v", err)
	}
	if embedder == nil {
		t.Fatal("expected non-nil embedder")
	}
}

func TestNewEmbedderOpenAIMissingKey(t *testing.T) {
	_, err := embeddings.NewEmbedder(config.EmbeddingConfig{
		Provider:  config.ProviderOpenAI,
		Model:     "text-embedding-3-small",
		Dimension: 1536,
	})
	if err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestNewEmbedderUnknownProvider(t *testing.T) {
	if _, err := embeddings.NewEmbedder(config.EmbeddingConfig{Provider: "other"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func ollamaTestServer(t *testing.T, dimension int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Prompt == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		embedding := make([]float64, dimension)
		embedding[0] = float64(len(req.Prompt))
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": embedding})
	}))
}

func TestOllamaEmbedderEmbedsEachText(t *testing.T) {
	server := ollamaTestServer(t, 4)
	defer server.Close()

	embedder := embeddings.NewOllamaEmbedder(config.EmbeddingConfig{
		Provider:   config.ProviderOllama,
		Model:      "nomic-embed-text",
		Dimension:  4,
		OllamaHost: server.URL,
	})

	vectors, err := embedder.Embed(context.Background(), []string{"first", "second text"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	for i, vec := range vectors {
		if len(vec) != 4 {
			t.Fatalf("vector %d has dimension %d, want 4", i, len(vec))
		}
	}
	if vectors[0][0] == vectors[1][0] {
		t.Fatal("expected distinct embeddings for distinct texts")
	}
}

func TestOllamaEmbedderRejectsDimensionMismatch(t *testing.T) {
	server := ollamaTestServer(t, 4)
	defer server.Close()

	embedder := embeddings.NewOllamaEmbedder(config.EmbeddingConfig{
		Provider:   config.ProviderOllama,
		Model:      "nomic-embed-text",
		Dimension:  768,
		OllamaHost: server.URL,
	})

	if _, err := embedder.Embed(context.Background(), []string{"text"}); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestOllamaEmbedderSurfacesServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	embedder := embeddings.NewOllamaEmbedder(config.EmbeddingConfig{
		Provider:   config.ProviderOllama,
		Model:      "missing-model",
		Dimension:  4,
		OllamaHost: server.URL,
	})

	if _, err := embedder.Embed(context.Background(), []string{"text"}); err == nil {
		t.Fatal("expected error for failing embeddings endpoint")
	}
}
