package ingestion_engine

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/docrag/internal/core"
	"github.com/markdave123-py/docrag/internal/metrics"
)

// Ingestor turns an upload into searchable passages.
type Ingestor interface {
	Ingest(ctx context.Context, req IngestRequest) (*core.IngestionResult, error)
}

var _ Ingestor = (*DocumentIngestor)(nil)

// DocumentIngestor runs load, chunk, embed, index and raw-file storage for one
// upload at a time. It is safe for concurrent use when its dependencies are.
type DocumentIngestor struct {
	loader   core.DocumentLoader
	chunker  *Chunker
	embedder core.EmbeddingProvider
	store    core.VectorStore
	obj      core.ObjectClient
	cfg      *IngestConfig
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewDocumentIngestor(
	loader core.DocumentLoader,
	embedder core.EmbeddingProvider,
	store core.VectorStore,
	obj core.ObjectClient,
	cfg *IngestConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *DocumentIngestor {
	if cfg == nil {
		cfg = DefaultIngestConfig()
	}
	cfg.normalize()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentIngestor{
		loader:   loader,
		chunker:  NewChunker(WithChunkSize(cfg.ChunkSize), WithChunkOverlap(cfg.ChunkOverlap)),
		embedder: embedder,
		store:    store,
		obj:      obj,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
	}
}

// NewCollectionName mints a fresh collection identifier, "doc_" followed by
// 32 hex characters.
func NewCollectionName() string {
	return "doc_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Ingest indexes one upload. Nothing is written before the file type is
// validated. If a later step fails after vectors were inserted the collection
// is dropped again.
func (i *DocumentIngestor) Ingest(ctx context.Context, req IngestRequest) (res *core.IngestionResult, err error) {
	start := time.Now()
	var fileType core.FileType
	defer func() {
		n := 0
		if res != nil {
			n = res.NumChunks
		}
		i.metrics.Ingestion(string(fileType), n, time.Since(start), err)
	}()

	fileType, err = core.ParseFileType(req.Filename)
	if err != nil {
		return nil, err
	}

	path, cleanup, err := i.stage(req.Content, fileType)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	segments, err := i.loader.Load(ctx, path, fileType)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	chunks := i.chunker.Split(segments)

	collection := NewCollectionName()
	log := i.logger.With(
		zap.String("collection", collection),
		zap.String("filename", req.Filename),
		zap.String("file_type", string(fileType)),
	)

	inserted := false
	defer func() {
		if err == nil || !inserted {
			return
		}
		// use a fresh context so a cancelled request still cleans up
		dctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if derr := i.store.DropCollection(dctx, collection); derr != nil {
			log.Error("rollback of indexed chunks failed", zap.Error(derr))
		}
	}()

	if len(chunks) > 0 {
		vecs, err := i.embed(ctx, chunks)
		if err != nil {
			return nil, err
		}

		records := make([]core.VectorRecord, len(chunks))
		for n, ch := range chunks {
			md := make(map[string]any, len(ch.Metadata)+4)
			for k, v := range ch.Metadata {
				md[k] = v
			}
			md["collection_name"] = collection
			md["source"] = req.Filename
			md["title"] = req.Title
			md["file_type"] = string(fileType)

			records[n] = core.VectorRecord{
				ID:         uuid.NewString(),
				Collection: collection,
				Text:       ch.Text,
				Embedding:  vecs[n],
				Metadata:   md,
			}
		}

		if _, err := i.store.Insert(ctx, records); err != nil {
			return nil, fmt.Errorf("%w: insert: %w", core.ErrVectorStore, err)
		}
		inserted = true
	}

	if err := i.store.Flush(ctx); err != nil {
		return nil, fmt.Errorf("%w: flush: %w", core.ErrVectorStore, err)
	}

	location, err := i.obj.Put(ctx, collection+"."+string(fileType), req.Content, fileType.ContentType())
	if err != nil {
		return nil, fmt.Errorf("%w: store raw file: %w", core.ErrObjectStore, err)
	}

	log.Info("document ingested",
		zap.Int("segments", len(segments)),
		zap.Int("chunks", len(chunks)),
		zap.Duration("took", time.Since(start)),
	)

	return &core.IngestionResult{
		FilePath:       location,
		FileType:       string(fileType),
		CollectionName: collection,
		NumChunks:      len(chunks),
	}, nil
}

// stage writes the upload to a temp file whose name keeps the extension. The
// returned cleanup only logs removal failures.
func (i *DocumentIngestor) stage(content []byte, fileType core.FileType) (string, func(), error) {
	f, err := os.CreateTemp(i.cfg.TempDir, "upload-*."+string(fileType))
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	cleanup := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			i.logger.Warn("failed to remove temp file", zap.String("path", path), zap.Error(err))
		}
	}

	if _, err := f.Write(content); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close temp file: %w", err)
	}
	return path, cleanup, nil
}

// embed sends chunks to the provider in batches with bounded concurrency and
// returns vectors in chunk order.
func (i *DocumentIngestor) embed(ctx context.Context, chunks []core.Chunk) ([][]float32, error) {
	out := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.cfg.Workers)

	for lo := 0; lo < len(chunks); lo += i.cfg.EmbedBatchSize {
		hi := min(lo+i.cfg.EmbedBatchSize, len(chunks))
		g.Go(func() error {
			texts := make([]string, 0, hi-lo)
			for _, ch := range chunks[lo:hi] {
				texts = append(texts, ch.Text)
			}

			vecs, err := i.embedder.EmbedTexts(gctx, texts)
			if err != nil {
				return fmt.Errorf("%w: %w", core.ErrEmbedding, err)
			}
			if len(vecs) != len(texts) {
				return fmt.Errorf("%w: got %d vectors for %d texts", core.ErrEmbedding, len(vecs), len(texts))
			}
			copy(out[lo:hi], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
