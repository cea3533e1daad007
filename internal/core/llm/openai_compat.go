package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/markdave123-py/docrag/internal/core"
)

// OpenAIConfig points at any OpenAI-compatible endpoint: OpenAI itself, a
// local text-embeddings-inference server or Groq.
type OpenAIConfig struct {
	BaseURL string
	Model   string
	APIKey  string
}

func (c OpenAIConfig) client(embedding bool) (*openai.LLM, error) {
	if c.BaseURL == "" || c.Model == "" {
		return nil, fmt.Errorf("openai client: base url and model are required")
	}
	token := c.APIKey
	if token == "" {
		// langchaingo requires a token even for servers that ignore it
		token = "placeholder"
	}
	opts := []openai.Option{
		openai.WithBaseURL(c.BaseURL),
		openai.WithToken(token),
		openai.WithModel(c.Model),
	}
	if embedding {
		opts = append(opts, openai.WithEmbeddingModel(c.Model))
	}
	return openai.New(opts...)
}

// OpenAIEmbedder embeds through langchaingo's embeddings abstraction.
type OpenAIEmbedder struct {
	embedder *embeddings.EmbedderImpl
}

func NewOpenAIEmbedder(cfg OpenAIConfig, batchSize int) (*OpenAIEmbedder, error) {
	cl, err := cfg.client(true)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	opts := []embeddings.Option{embeddings.WithStripNewLines(false)}
	if batchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(batchSize))
	}
	emb, err := embeddings.NewEmbedder(cl, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	return &OpenAIEmbedder{embedder: emb}, nil
}

func (e *OpenAIEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	return vecs, nil
}

var _ core.EmbeddingProvider = (*OpenAIEmbedder)(nil)

// ChatLLM completes prompts with any langchaingo model.
type ChatLLM struct {
	model       llms.Model
	temperature float64
	maxTokens   int
	legacy      bool
}

// NewGroqLLM talks to Groq's OpenAI-compatible chat endpoint.
func NewGroqLLM(cfg OpenAIConfig, temperature float64, maxTokens int) (*ChatLLM, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("groq llm: api key not set")
	}
	cl, err := cfg.client(false)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}
	c := NewChatLLM(cl, temperature, maxTokens)
	// Groq expects max_tokens rather than max_completion_tokens
	c.legacy = true
	return c, nil
}

func NewChatLLM(model llms.Model, temperature float64, maxTokens int) *ChatLLM {
	return &ChatLLM{model: model, temperature: temperature, maxTokens: maxTokens}
}

func (c *ChatLLM) Complete(ctx context.Context, prompt string) (string, error) {
	opts := []llms.CallOption{llms.WithTemperature(c.temperature)}
	if c.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.maxTokens))
	}
	if c.legacy {
		opts = append(opts, openai.WithLegacyMaxTokensField())
	}

	out, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt, opts...)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return out, nil
}

var _ core.LLMProvider = (*ChatLLM)(nil)
