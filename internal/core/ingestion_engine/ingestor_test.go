package ingestion_engine

import (
	"context"
	"errors"
	"os"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/markdave123-py/docrag/internal/core"
	"github.com/markdave123-py/docrag/internal/metrics"
)

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

// EmbedTexts encodes each text's length and first byte so tests can match
// vectors back to chunks.
func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), float32(t[0])}
	}
	return out, nil
}

type fakeStore struct {
	mu        sync.Mutex
	records   []core.VectorRecord
	flushes   int
	dropped   []string
	insertErr error
	flushErr  error
}

func (s *fakeStore) Insert(_ context.Context, recs []core.VectorRecord) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	s.records = append(s.records, recs...)
	return ids, nil
}

func (s *fakeStore) Search(context.Context, []float32, int, []string) ([]core.RetrievedResult, error) {
	return nil, nil
}

func (s *fakeStore) Flush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return s.flushErr
}

func (s *fakeStore) DropCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped = append(s.dropped, name)
	return nil
}

func (s *fakeStore) Close() error { return nil }

type fakeObjects struct {
	puts map[string][]byte
	err  error
}

func (o *fakeObjects) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	if o.err != nil {
		return "", o.err
	}
	if o.puts == nil {
		o.puts = map[string][]byte{}
	}
	o.puts[key] = data
	return "store/" + key, nil
}

func (o *fakeObjects) Get(_ context.Context, key string) ([]byte, error) { return o.puts[key], nil }

func (o *fakeObjects) Delete(_ context.Context, key string) error {
	delete(o.puts, key)
	return nil
}

type fixture struct {
	emb     *fakeEmbedder
	store   *fakeStore
	obj     *fakeObjects
	tmp     string
	ing     *DocumentIngestor
	metrics *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		emb:     &fakeEmbedder{},
		store:   &fakeStore{},
		obj:     &fakeObjects{},
		tmp:     t.TempDir(),
		metrics: metrics.NewWithRegistry(prometheus.NewRegistry()),
	}
	cfg := DefaultIngestConfig()
	cfg.TempDir = f.tmp
	f.ing = NewDocumentIngestor(NewFileLoader(zaptest.NewLogger(t)), f.emb, f.store, f.obj, cfg, f.metrics, zaptest.NewLogger(t))
	return f
}

func assertNothingStaged(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp file must be removed")
}

var collectionPattern = regexp.MustCompile(`^doc_[0-9a-f]{32}$`)

func TestIngest_Text(t *testing.T) {
	f := newFixture(t)
	content := []byte(patterned(2500))

	res, err := f.ing.Ingest(context.Background(), IngestRequest{
		Content:  content,
		Filename: "Report.TXT",
		Title:    "Quarterly report",
	})
	require.NoError(t, err)

	assert.Regexp(t, collectionPattern, res.CollectionName)
	assert.Equal(t, "txt", res.FileType)
	assert.Equal(t, 3, res.NumChunks)
	assert.Equal(t, "store/"+res.CollectionName+".txt", res.FilePath)
	assert.Equal(t, content, f.obj.puts[res.CollectionName+".txt"])

	require.Len(t, f.store.records, 3)
	assert.Equal(t, 1, f.store.flushes)
	for i, r := range f.store.records {
		assert.Equal(t, res.CollectionName, r.Collection)
		assert.Equal(t, res.CollectionName, r.Metadata["collection_name"])
		assert.Equal(t, "Report.TXT", r.Metadata["source"])
		assert.Equal(t, "Quarterly report", r.Metadata["title"])
		assert.Equal(t, "txt", r.Metadata["file_type"])
		assert.Equal(t, i, r.Metadata["chunk_index"])
		assert.Equal(t, []float32{float32(len(r.Text)), float32(r.Text[0])}, r.Embedding)
	}
	assert.Empty(t, f.store.dropped)
	assertNothingStaged(t, f.tmp)
}

func TestIngest_CollectionsAreDistinct(t *testing.T) {
	f := newFixture(t)

	a, err := f.ing.Ingest(context.Background(), IngestRequest{Content: []byte("same"), Filename: "a.txt"})
	require.NoError(t, err)
	b, err := f.ing.Ingest(context.Background(), IngestRequest{Content: []byte("same"), Filename: "a.txt"})
	require.NoError(t, err)

	assert.NotEqual(t, a.CollectionName, b.CollectionName)
}

func TestIngest_BatchesKeepOrder(t *testing.T) {
	f := newFixture(t)
	f.ing.cfg.EmbedBatchSize = 4
	f.ing.cfg.Workers = 3

	var b strings.Builder
	for i := 0; i < 20; i++ {
		// each 800-char step starts with a distinct letter
		b.WriteString(strings.Repeat(string(rune('a'+i)), 800))
	}

	res, err := f.ing.Ingest(context.Background(), IngestRequest{Content: []byte(b.String()), Filename: "letters.txt"})
	require.NoError(t, err)
	require.Equal(t, 20, res.NumChunks)
	assert.Equal(t, 5, f.emb.calls)

	for i, r := range f.store.records {
		assert.Equal(t, byte('a'+i), r.Text[0])
		assert.Equal(t, float32('a'+i), r.Embedding[1])
	}
}

func TestIngest_UnsupportedTypeWritesNothing(t *testing.T) {
	for _, name := range []string{"slides.pptx", "README", ".txt", ""} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.ing.Ingest(context.Background(), IngestRequest{Content: []byte("x"), Filename: name})
			require.Error(t, err)
			assert.True(t, core.IsInputError(err))

			assert.Empty(t, f.store.records)
			assert.Zero(t, f.store.flushes)
			assert.Empty(t, f.obj.puts)
			assert.Zero(t, f.emb.calls)
			assertNothingStaged(t, f.tmp)
		})
	}
}

func TestIngest_EmptyTextProducesNoChunks(t *testing.T) {
	f := newFixture(t)

	res, err := f.ing.Ingest(context.Background(), IngestRequest{Content: nil, Filename: "empty.txt"})
	require.NoError(t, err)

	assert.Equal(t, 0, res.NumChunks)
	assert.Zero(t, f.emb.calls)
	assert.Empty(t, f.store.records)
	assert.Contains(t, f.obj.puts, res.CollectionName+".txt")
}

func TestIngest_EmbeddingFailure(t *testing.T) {
	f := newFixture(t)
	f.emb.err = errors.New("model offline")

	res, err := f.ing.Ingest(context.Background(), IngestRequest{Content: []byte("hello"), Filename: "a.txt"})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, core.ErrEmbedding)
	assert.False(t, core.IsInputError(err))

	assert.Empty(t, f.store.records)
	assert.Empty(t, f.obj.puts)
	assert.Empty(t, f.store.dropped)
	assertNothingStaged(t, f.tmp)
}

func TestIngest_RawWriteFailureRollsBackVectors(t *testing.T) {
	f := newFixture(t)
	f.obj.err = errors.New("disk full")

	_, err := f.ing.Ingest(context.Background(), IngestRequest{Content: []byte("hello"), Filename: "a.txt"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrObjectStore)

	require.Len(t, f.store.records, 1)
	assert.Equal(t, []string{f.store.records[0].Collection}, f.store.dropped)
	assertNothingStaged(t, f.tmp)
}

func TestIngest_FlushFailureRollsBackVectors(t *testing.T) {
	f := newFixture(t)
	f.store.flushErr = errors.New("read-only filesystem")

	_, err := f.ing.Ingest(context.Background(), IngestRequest{Content: []byte("hello"), Filename: "a.txt"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrVectorStore)
	assert.Len(t, f.store.dropped, 1)
	assert.Empty(t, f.obj.puts)
	assertNothingStaged(t, f.tmp)
}

func TestIngest_InsertFailureSkipsRollback(t *testing.T) {
	f := newFixture(t)
	f.store.insertErr = errors.New("dimension mismatch")

	_, err := f.ing.Ingest(context.Background(), IngestRequest{Content: []byte("hello"), Filename: "a.txt"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrVectorStore)
	assert.Empty(t, f.store.dropped)
	assertNothingStaged(t, f.tmp)
}

func TestIngest_LoaderFailureCleansUp(t *testing.T) {
	f := newFixture(t)

	res, err := f.ing.Ingest(context.Background(), IngestRequest{Content: []byte("this is not a pdf"), Filename: "broken.pdf"})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.False(t, core.IsInputError(err))

	assert.Zero(t, f.emb.calls)
	assert.Empty(t, f.store.records)
	assert.Empty(t, f.obj.puts)
	assertNothingStaged(t, f.tmp)
}

func TestIngest_PDFKeepsPageMetadata(t *testing.T) {
	f := newFixture(t)
	content := buildPDF("Paris is the capital of France.", "Rome is the capital of Italy.")

	res, err := f.ing.Ingest(context.Background(), IngestRequest{Content: content, Filename: "atlas.pdf", Title: "Atlas"})
	require.NoError(t, err)
	assert.Equal(t, "pdf", res.FileType)
	assert.Equal(t, 2, res.NumChunks)

	require.Len(t, f.store.records, 2)
	for i, r := range f.store.records {
		assert.Equal(t, i+1, r.Metadata["page"])
		assert.Equal(t, 2, r.Metadata["total_pages"])
		assert.Equal(t, "pdf", r.Metadata["file_type"])
	}
	assert.Equal(t, content, f.obj.puts[res.CollectionName+".pdf"])
	assertNothingStaged(t, f.tmp)
}
