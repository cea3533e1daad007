package core

import "context"

// EmbeddingProvider turns texts into fixed-dimension vectors. The same provider
// must be used for ingestion and for queries.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMProvider completes a single prompt. A nil LLMProvider means generation is
// disabled and answers fall back to the retrieved context.
type LLMProvider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
