package retrieval

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/docrag/internal/core"
	"github.com/markdave123-py/docrag/internal/metrics"
)

// Service composes retrieval and answer synthesis.
type Service struct {
	retriever   *Retriever
	synthesizer *Synthesizer
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

func NewService(retriever *Retriever, synthesizer *Synthesizer, m *metrics.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{retriever: retriever, synthesizer: synthesizer, metrics: m, logger: logger}
}

// RetrieveAndAnswer retrieves up to topK passages and answers query from them.
// Only retrieval failures are returned; generation problems degrade the
// answer instead.
func (s *Service) RetrieveAndAnswer(ctx context.Context, query string, topK int, opts ...RetrieveOption) (res *core.QueryResult, err error) {
	start := time.Now()
	defer func() { s.metrics.Query(err) }()

	results, err := s.retriever.Retrieve(ctx, query, topK, opts...)
	if err != nil {
		s.logger.Error("retrieval failed", zap.Error(err))
		return nil, err
	}

	answer := s.synthesizer.Answer(ctx, query, results)

	sources := make([]core.Source, len(results))
	for i, r := range results {
		sources[i] = core.Source{Content: r.Content, Metadata: r.Metadata}
	}

	s.logger.Info("query answered",
		zap.Int("top_k", topK),
		zap.Int("results", len(results)),
		zap.Duration("took", time.Since(start)),
	)

	return &core.QueryResult{
		Query:      query,
		Answer:     answer,
		Sources:    sources,
		NumResults: len(results),
	}, nil
}
