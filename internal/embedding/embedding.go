package embedding

import (
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"filing-rag/internal/config"
	"filing-rag/internal/models"
)

// NewEmbedder creates the embedder named by cfg.Provider.
func NewEmbedder(cfg *config.LLMConfig) (embeddings.Embedder, error) {
	log.Debug().Interface("config", map[string]string{
		"provider":        cfg.Provider,
		"base_url":        cfg.BaseURL,
		"embedding_model": cfg.Model,
	}).Msg("Loaded embedder config")

	switch cfg.Provider {
	case "openai":
		return NewOpenAIEmbedder(cfg)
	case "ollama":
		return NewOllamaEmbedder(cfg)
	case "hash":
		return NewHashEmbedder(cfg.Dimension), nil
	default:
		return nil, models.ConfigError("unknown embedding provider %q", cfg.Provider)
	}
}

// NewOpenAIEmbedder talks to any OpenAI-compatible embeddings endpoint
// (OpenAI, OpenRouter, vLLM).
func NewOpenAIEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		openai.WithModel(cfg.Model),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, models.ConfigError("init openai embedder: %v", err)
	}
	return embeddings.NewEmbedder(llm)
}

// NewOllamaEmbedder uses a local Ollama server.
func NewOllamaEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, models.ConfigError("init ollama embedder: %v", err)
	}
	return embeddings.NewEmbedder(llm)
}
