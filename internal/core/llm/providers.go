package llm

import (
	"context"
	"fmt"

	"github.com/markdave123-py/docrag/internal/config"
	"github.com/markdave123-py/docrag/internal/core"
)

// NewEmbeddingProvider builds the embedder selected by EMBED_PROVIDER. The same
// instance must serve ingestion and queries.
func NewEmbeddingProvider(ctx context.Context, cfg *config.Config) (core.EmbeddingProvider, error) {
	switch cfg.EmbedProvider {
	case config.ProviderHash:
		return NewHashEmbedder(cfg.EmbedDim), nil
	case config.ProviderGemini:
		key := cfg.EmbedAPIKey
		if key == "" {
			key = cfg.GeminiAPIKey
		}
		emb, err := NewGeminiEmbedder(ctx, key, cfg.EmbedModel)
		if err != nil {
			return nil, err
		}
		return emb, nil
	case config.ProviderOpenAI:
		emb, err := NewOpenAIEmbedder(OpenAIConfig{
			BaseURL: cfg.EmbedBaseURL,
			Model:   cfg.EmbedModel,
			APIKey:  cfg.EmbedAPIKey,
		}, cfg.IngestEmbedBatch)
		if err != nil {
			return nil, err
		}
		return emb, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbedProvider)
	}
}

// NewLLMProvider builds the generative client selected by GEN_PROVIDER. It
// returns nil without error when no credential is configured, which disables
// generation.
func NewLLMProvider(ctx context.Context, cfg *config.Config) (core.LLMProvider, error) {
	key := cfg.GenerationKey()
	if key == "" {
		return nil, nil
	}

	switch cfg.GenProvider {
	case config.ProviderGemini:
		gen, err := NewGeminiLLM(ctx, key, cfg.GenModel, cfg.GenTemperature, cfg.GenMaxTokens)
		if err != nil {
			return nil, err
		}
		return gen, nil
	case config.ProviderGroq:
		gen, err := NewGroqLLM(OpenAIConfig{
			BaseURL: cfg.GenBaseURL,
			Model:   cfg.GenModel,
			APIKey:  key,
		}, cfg.GenTemperature, cfg.GenMaxTokens)
		if err != nil {
			return nil, err
		}
		return gen, nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.GenProvider)
	}
}
