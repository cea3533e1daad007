package retrieval

import (
	"context"
	"strings"

	"github.com/tmc/langchaingo/prompts"
	"go.uber.org/zap"

	"github.com/markdave123-py/docrag/internal/core"
	"github.com/markdave123-py/docrag/internal/metrics"
)

const (
	// NoResultsAnswer is returned when retrieval found nothing.
	NoResultsAnswer = "No relevant information found to answer your question."

	// FallbackPrefix starts every answer built without the generative backend.
	FallbackPrefix = "Based on the retrieved information, here's what I found: "

	fallbackContextChars = 500
	contextSeparator     = "\n\n"
)

const qaTemplate = `You are a helpful AI assistant that answers questions based on the provided context.
If you don't know the answer based on the context, just say that you don't know.
Don't try to make up an answer.

Context:
{{.context}}

Question: {{.question}}

Answer:`

// Synthesizer turns retrieved passages into an answer. It never fails: when
// the generative backend is missing or errors, the answer is built from the
// retrieved text itself.
type Synthesizer struct {
	llm     core.LLMProvider
	prompt  prompts.PromptTemplate
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewSynthesizer accepts a nil llm, which disables generation.
func NewSynthesizer(llm core.LLMProvider, m *metrics.Metrics, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{
		llm:     llm,
		prompt:  prompts.NewPromptTemplate(qaTemplate, []string{"context", "question"}),
		metrics: m,
		logger:  logger,
	}
}

func (s *Synthesizer) Answer(ctx context.Context, query string, results []core.RetrievedResult) string {
	if len(results) == 0 {
		return NoResultsAnswer
	}

	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Content
	}
	passages := strings.Join(texts, contextSeparator)

	if s.llm == nil {
		s.metrics.AnswerFallback(metrics.FallbackNoBackend)
		return fallbackAnswer(passages)
	}

	prompt, err := s.prompt.Format(map[string]any{"context": passages, "question": query})
	if err != nil {
		s.logger.Error("rendering qa prompt failed", zap.Error(err))
		s.metrics.AnswerFallback(metrics.FallbackBackendError)
		return fallbackAnswer(passages)
	}

	answer, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		s.logger.Warn("generation failed, answering from retrieved context", zap.Error(err))
		s.metrics.AnswerFallback(metrics.FallbackBackendError)
		return fallbackAnswer(passages)
	}
	return answer
}

// fallbackAnswer keeps the first 500 characters of the passages.
func fallbackAnswer(passages string) string {
	runes := []rune(passages)
	if len(runes) > fallbackContextChars {
		runes = runes[:fallbackContextChars]
	}
	return FallbackPrefix + string(runes) + "..."
}
