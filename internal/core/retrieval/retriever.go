// Package retrieval answers questions from indexed passages.
package retrieval

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/markdave123-py/docrag/internal/core"
)

// DefaultTopK is the number of passages retrieved when the caller gives none.
const DefaultTopK = 5

type retrieveOptions struct {
	collections []string
	scoped      bool
}

// RetrieveOption narrows a retrieval.
type RetrieveOption func(*retrieveOptions)

// WithCollections restricts the search to the named collections. Scoping to
// an empty list matches nothing.
func WithCollections(names ...string) RetrieveOption {
	return func(o *retrieveOptions) {
		o.collections = append(o.collections, names...)
		o.scoped = true
	}
}

// Retriever embeds a query and looks up its nearest passages. By default it
// searches across every indexed collection.
type Retriever struct {
	embedder core.EmbeddingProvider
	store    core.VectorStore
	logger   *zap.Logger
}

func NewRetriever(embedder core.EmbeddingProvider, store core.VectorStore, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{embedder: embedder, store: store, logger: logger}
}

// Retrieve returns at most topK passages, most similar first, with their
// stored text and metadata unchanged. A non-positive topK returns nothing
// without calling the embedder.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, opts ...RetrieveOption) ([]core.RetrievedResult, error) {
	var o retrieveOptions
	for _, opt := range opts {
		opt(&o)
	}

	if topK <= 0 || (o.scoped && len(o.collections) == 0) {
		return []core.RetrievedResult{}, nil
	}

	vecs, err := r.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: query: %w", core.ErrEmbedding, err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("%w: query: got %d vectors", core.ErrEmbedding, len(vecs))
	}

	results, err := r.store.Search(ctx, vecs[0], topK, o.collections)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", core.ErrVectorStore, err)
	}
	if len(results) > topK {
		results = results[:topK]
	}

	r.logger.Debug("retrieved passages",
		zap.Int("top_k", topK),
		zap.Int("results", len(results)),
		zap.Int("collections", len(o.collections)),
	)
	return results, nil
}
