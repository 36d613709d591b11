// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

type EmbeddingConfig struct {
	Provider   string
	Model      string
	Dimension  int
	APIKey     string
	BaseURL    string
	OllamaHost string
}

type LLMConfig struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	OllamaHost string
}

type Config struct {
	PostgresDSN   string
	Collection    string
	DataDir       string
	RegistryCSV   string
	MetadataJSON  string
	ListenAddr    string
	BearerToken   string
	AllowedOrigin string

	Embeddings EmbeddingConfig
	LLM        LLMConfig
}

func Load() Config {
	return Config{
		PostgresDSN:   getEnv("DATABASE_URL", "postgres://localhost:5432/aien?sslmode=disable"),
		Collection:    getEnv("COLLECTION_NAME", "ai_ethics"),
		DataDir:       getEnv("DATA_DIR", "data/documents"),
		RegistryCSV:   getEnv("REGISTRY_CSV", "data/registered_documents.csv"),
		MetadataJSON:  getEnv("METADATA_JSON", "data/registered_documents.json"),
		ListenAddr:    getEnv("LISTEN_ADDR", "localhost:8000"),
		BearerToken:   os.Getenv("BEARER_TOKEN"),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "https://ai-ethics-navigator.streamlit.app"),
		Embeddings: EmbeddingConfig{
			Provider:   getEnv("EMBEDDINGS_PROVIDER", ProviderOpenAI),
			Model:      getEnv("EMBEDDINGS_MODEL", "text-embedding-3-small"),
			Dimension:  getEnvInt("EMBEDDINGS_DIMENSION", 1536),
			APIKey:     os.Getenv("OPENAI_API_KEY"),
			BaseURL:    os.Getenv("OPENAI_BASE_URL"),
			OllamaHost: getEnv("OLLAMA_HOST", "http://localhost:11434"),
		},
		LLM: LLMConfig{
			Provider:   getEnv("LLM_PROVIDER", ProviderOpenAI),
			Model:      getEnv("LLM_MODEL", "mixtral-8x7b-32768"),
			APIKey:     getEnv("GROQ_API_KEY", os.Getenv("OPENAI_API_KEY")),
			BaseURL:    getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
			OllamaHost: getEnv("OLLAMA_HOST", "http://localhost:11434"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
