package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/markdave123-py/docrag/internal/core"
	"github.com/markdave123-py/docrag/internal/metrics"
)

type mockEmbedder struct{ mock.Mock }

func (m *mockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	v, _ := args.Get(0).([][]float32)
	return v, args.Error(1)
}

type mockLLM struct{ mock.Mock }

func (m *mockLLM) Complete(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

type mockStore struct{ mock.Mock }

func (m *mockStore) Insert(ctx context.Context, recs []core.VectorRecord) ([]string, error) {
	args := m.Called(ctx, recs)
	v, _ := args.Get(0).([]string)
	return v, args.Error(1)
}

func (m *mockStore) Search(ctx context.Context, q []float32, k int, cols []string) ([]core.RetrievedResult, error) {
	args := m.Called(ctx, q, k, cols)
	v, _ := args.Get(0).([]core.RetrievedResult)
	return v, args.Error(1)
}

func (m *mockStore) Flush(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *mockStore) DropCollection(ctx context.Context, name string) error {
	return m.Called(ctx, name).Error(0)
}
func (m *mockStore) Close() error { return nil }

func results(texts ...string) []core.RetrievedResult {
	out := make([]core.RetrievedResult, len(texts))
	for i, t := range texts {
		out[i] = core.RetrievedResult{Content: t, Metadata: map[string]any{"chunk_index": i}, Score: 1 - float32(i)/10}
	}
	return out
}

func TestRetriever_NonPositiveTopK(t *testing.T) {
	emb := &mockEmbedder{}
	store := &mockStore{}
	r := NewRetriever(emb, store, zaptest.NewLogger(t))

	for _, k := range []int{0, -3} {
		res, err := r.Retrieve(context.Background(), "anything", k)
		require.NoError(t, err)
		assert.Empty(t, res)
	}
	emb.AssertNotCalled(t, "EmbedTexts", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRetriever_Global(t *testing.T) {
	emb := &mockEmbedder{}
	store := &mockStore{}
	emb.On("EmbedTexts", mock.Anything, []string{"what?"}).Return([][]float32{{1, 0}}, nil)
	store.On("Search", mock.Anything, []float32{1, 0}, 2, []string(nil)).Return(results("a", "b"), nil)

	res, err := NewRetriever(emb, store, nil).Retrieve(context.Background(), "what?", 2)
	require.NoError(t, err)
	assert.Equal(t, results("a", "b"), res)

	emb.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestRetriever_TruncatesOversizedStoreResults(t *testing.T) {
	emb := &mockEmbedder{}
	store := &mockStore{}
	emb.On("EmbedTexts", mock.Anything, mock.Anything).Return([][]float32{{1}}, nil)
	store.On("Search", mock.Anything, mock.Anything, 1, mock.Anything).Return(results("a", "b", "c"), nil)

	res, err := NewRetriever(emb, store, nil).Retrieve(context.Background(), "q", 1)
	require.NoError(t, err)
	assert.Len(t, res, 1)
}

func TestRetriever_Scoped(t *testing.T) {
	emb := &mockEmbedder{}
	store := &mockStore{}
	emb.On("EmbedTexts", mock.Anything, mock.Anything).Return([][]float32{{1}}, nil)
	store.On("Search", mock.Anything, mock.Anything, 5, []string{"doc_1", "doc_2"}).Return(results("a"), nil)

	r := NewRetriever(emb, store, nil)
	res, err := r.Retrieve(context.Background(), "q", 5, WithCollections("doc_1", "doc_2"))
	require.NoError(t, err)
	assert.Len(t, res, 1)
	store.AssertExpectations(t)

	// scoping to nothing matches nothing
	res, err = r.Retrieve(context.Background(), "q", 5, WithCollections())
	require.NoError(t, err)
	assert.Empty(t, res)
	emb.AssertNumberOfCalls(t, "EmbedTexts", 1)
}

func TestRetriever_Errors(t *testing.T) {
	t.Run("embedding", func(t *testing.T) {
		emb := &mockEmbedder{}
		emb.On("EmbedTexts", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

		_, err := NewRetriever(emb, &mockStore{}, nil).Retrieve(context.Background(), "q", 3)
		assert.ErrorIs(t, err, core.ErrEmbedding)
	})

	t.Run("store", func(t *testing.T) {
		emb := &mockEmbedder{}
		store := &mockStore{}
		emb.On("EmbedTexts", mock.Anything, mock.Anything).Return([][]float32{{1}}, nil)
		store.On("Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("dimension mismatch"))

		_, err := NewRetriever(emb, store, nil).Retrieve(context.Background(), "q", 3)
		assert.ErrorIs(t, err, core.ErrVectorStore)
	})
}

func TestSynthesizer_EmptyResultsSkipBackend(t *testing.T) {
	llm := &mockLLM{}
	s := NewSynthesizer(llm, nil, zaptest.NewLogger(t))

	assert.Equal(t, NoResultsAnswer, s.Answer(context.Background(), "q", nil))
	llm.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestSynthesizer_UsesBackendVerbatim(t *testing.T) {
	llm := &mockLLM{}
	llm.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "Context:\nfirst\n\nsecond\n\nQuestion: where?\n\nAnswer:") &&
			strings.HasPrefix(p, "You are a helpful AI assistant")
	})).Return("  In the attic. ", nil)

	got := NewSynthesizer(llm, nil, nil).Answer(context.Background(), "where?", results("first", "second"))
	assert.Equal(t, "  In the attic. ", got)
	llm.AssertExpectations(t)
}

func TestSynthesizer_EmptyBackendReplyIsKept(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	llm := &mockLLM{}
	llm.On("Complete", mock.Anything, mock.Anything).Return("", nil)

	got := NewSynthesizer(llm, m, zaptest.NewLogger(t)).Answer(context.Background(), "q", results("context"))
	assert.Empty(t, got)
	assert.Zero(t, testutil.CollectAndCount(m.FallbacksTotal))
}

func TestSynthesizer_FallbackWithoutBackend(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	s := NewSynthesizer(nil, m, nil)

	long := strings.Repeat("é", 600)
	got := s.Answer(context.Background(), "q", results(long, "tail of context"))

	passages := long + "\n\n" + "tail of context"
	want := FallbackPrefix + string([]rune(passages)[:500]) + "..."
	assert.Equal(t, want, got)

	short := s.Answer(context.Background(), "q", results("short"))
	assert.Equal(t, FallbackPrefix+"short...", short)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FallbacksTotal.WithLabelValues(metrics.FallbackNoBackend)))
}

func TestSynthesizer_FallbackOnBackendError(t *testing.T) {
	llm := &mockLLM{}
	llm.On("Complete", mock.Anything, mock.Anything).Return("", errors.New("rate limited"))

	got := NewSynthesizer(llm, nil, zaptest.NewLogger(t)).Answer(context.Background(), "q", results("Paris is the capital of France."))
	assert.Equal(t, FallbackPrefix+"Paris is the capital of France....", got)
}

func TestService_EmptyStore(t *testing.T) {
	emb := &mockEmbedder{}
	store := &mockStore{}
	llm := &mockLLM{}
	emb.On("EmbedTexts", mock.Anything, mock.Anything).Return([][]float32{{1}}, nil)
	store.On("Search", mock.Anything, mock.Anything, 5, mock.Anything).Return([]core.RetrievedResult{}, nil)

	svc := NewService(NewRetriever(emb, store, nil), NewSynthesizer(llm, nil, nil), nil, zaptest.NewLogger(t))
	res, err := svc.RetrieveAndAnswer(context.Background(), "q", DefaultTopK)
	require.NoError(t, err)

	assert.Equal(t, 0, res.NumResults)
	assert.Empty(t, res.Sources)
	assert.Equal(t, NoResultsAnswer, res.Answer)
	assert.Equal(t, "q", res.Query)
	llm.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestService_TopKBound(t *testing.T) {
	emb := &mockEmbedder{}
	store := &mockStore{}
	emb.On("EmbedTexts", mock.Anything, mock.Anything).Return([][]float32{{1}}, nil)
	store.On("Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(results("a", "b", "c", "d"), nil)

	svc := NewService(NewRetriever(emb, store, nil), NewSynthesizer(nil, nil, nil), nil, nil)
	for _, k := range []int{-1, 0, 1, 3, 10} {
		res, err := svc.RetrieveAndAnswer(context.Background(), "q", k)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(res.Sources), max(k, 0))
		assert.Equal(t, len(res.Sources), res.NumResults)
	}
}

func TestService_PropagatesRetrievalErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	emb := &mockEmbedder{}
	emb.On("EmbedTexts", mock.Anything, mock.Anything).Return(nil, errors.New("down"))

	svc := NewService(NewRetriever(emb, &mockStore{}, nil), NewSynthesizer(nil, m, nil), m, nil)
	res, err := svc.RetrieveAndAnswer(context.Background(), "q", 3)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, core.ErrEmbedding)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("error")))
}
