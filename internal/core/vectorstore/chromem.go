// Package vectorstore provides the embedded chromem-go vector index.
package vectorstore

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/markdave123-py/docrag/internal/core"
)

var _ core.VectorStore = (*ChromemStore)(nil)

var errPrecomputedOnly = errors.New("chromem: embeddings must be supplied by the caller")

// ChromemConfig holds configuration for the chromem-go index.
type ChromemConfig struct {
	// Dir holds the snapshot file. Empty keeps the index in memory only.
	Dir string

	// Compress gzips the snapshot.
	Compress bool
}

// SnapshotPath is the file Flush writes to.
func (c ChromemConfig) SnapshotPath() string {
	if c.Dir == "" {
		return ""
	}
	name := "chromem.gob"
	if c.Compress {
		name += ".gz"
	}
	return filepath.Join(c.Dir, name)
}

// ChromemStore keeps one chromem collection per ingested document and writes
// the whole index to a single snapshot on Flush. The snapshot is loaded back
// on startup.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger

	// writers hold the read side; Flush takes the write side so the snapshot
	// never sees a half-added collection.
	mu sync.RWMutex
}

// NewChromemStore opens the index, importing the last snapshot if present.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db := chromem.NewDB()
	if path := config.SnapshotPath(); path != "" {
		if err := os.MkdirAll(config.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", config.Dir, err)
		}
		if _, err := os.Stat(path); err == nil {
			if err := db.ImportFromFile(path, ""); err != nil {
				return nil, fmt.Errorf("importing snapshot %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat snapshot %s: %w", path, err)
		}
	}

	s := &ChromemStore{db: db, config: config, logger: logger}

	logger.Info("chromem store initialized",
		zap.String("dir", config.Dir),
		zap.Bool("compress", config.Compress),
		zap.Int("collections", len(db.ListCollections())),
	)
	return s, nil
}

func precomputed(context.Context, string) ([]float32, error) {
	return nil, errPrecomputedOnly
}

// Insert adds records to their collection, creating it on first use. All
// records of one call must target the same collection.
func (s *ChromemStore) Insert(ctx context.Context, records []core.VectorRecord) ([]string, error) {
	if len(records) == 0 {
		return nil, nil
	}

	name := records[0].Collection
	if name == "" {
		return nil, fmt.Errorf("record %s has no collection", records[0].ID)
	}

	docs := make([]chromem.Document, len(records))
	ids := make([]string, len(records))
	for i, r := range records {
		if r.Collection != name {
			return nil, fmt.Errorf("record at index %d targets %q but batch targets %q", i, r.Collection, name)
		}
		if len(r.Embedding) == 0 {
			return nil, fmt.Errorf("record %s has no embedding", r.ID)
		}
		md, err := encodeMetadata(r.Metadata)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", r.ID, err)
		}
		ids[i] = r.ID
		docs[i] = chromem.Document{
			ID:        r.ID,
			Content:   r.Text,
			Metadata:  md,
			Embedding: r.Embedding,
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	col, err := s.db.GetOrCreateCollection(name, nil, precomputed)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", name, err)
	}
	// embeddings are already computed, so a single worker is enough
	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return nil, fmt.Errorf("adding documents: %w", err)
	}

	s.logger.Debug("added documents to chromem",
		zap.String("collection", name),
		zap.Int("count", len(docs)),
	)
	return ids, nil
}

// Search queries every collection (or only the named ones), capping k at each
// collection's size, and merges the hits by similarity.
func (s *ChromemStore) Search(ctx context.Context, query []float32, k int, collections []string) ([]core.RetrievedResult, error) {
	if k <= 0 {
		return []core.RetrievedResult{}, nil
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("query embedding is empty")
	}

	targets := s.db.ListCollections()
	if len(collections) > 0 {
		scoped := make(map[string]*chromem.Collection, len(collections))
		for _, name := range collections {
			if c, ok := targets[name]; ok {
				scoped[name] = c
			}
		}
		targets = scoped
	}

	type hit struct {
		collection string
		res        chromem.Result
	}
	var hits []hit
	for name, col := range targets {
		n := min(k, col.Count())
		if n == 0 {
			continue
		}
		res, err := col.QueryEmbedding(ctx, query, n, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("querying collection %s: %w", name, err)
		}
		for _, r := range res {
			hits = append(hits, hit{collection: name, res: r})
		}
	}

	slices.SortFunc(hits, func(a, b hit) int {
		if c := cmp.Compare(b.res.Similarity, a.res.Similarity); c != 0 {
			return c
		}
		if c := cmp.Compare(a.collection, b.collection); c != 0 {
			return c
		}
		return cmp.Compare(a.res.ID, b.res.ID)
	})
	if len(hits) > k {
		hits = hits[:k]
	}

	out := make([]core.RetrievedResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, core.RetrievedResult{
			Content:  h.res.Content,
			Metadata: decodeMetadata(h.res.Metadata),
			Score:    h.res.Similarity,
		})
	}

	s.logger.Debug("searched chromem",
		zap.Int("collections", len(targets)),
		zap.Int("k", k),
		zap.Int("results", len(out)),
	)
	return out, nil
}

// Flush writes the whole index to the snapshot file, replacing the previous
// one atomically.
func (s *ChromemStore) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := s.config.SnapshotPath()
	if path == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := path + ".tmp"
	if err := s.db.ExportToFile(tmp, s.config.Compress, ""); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("exporting snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

// DropCollection removes a collection and persists its removal. Dropping an
// unknown collection is a no-op.
func (s *ChromemStore) DropCollection(ctx context.Context, name string) error {
	s.mu.RLock()
	exists := s.db.GetCollection(name, precomputed) != nil
	var err error
	if exists {
		err = s.db.DeleteCollection(name)
	}
	s.mu.RUnlock()

	if err != nil {
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}
	if !exists {
		return nil
	}

	s.logger.Info("dropped chromem collection", zap.String("collection", name))
	return s.Flush(ctx)
}

// Collections lists the indexed collection names in sorted order.
func (s *ChromemStore) Collections() []string {
	names := make([]string, 0)
	for name := range s.db.ListCollections() {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Close flushes any unsaved records.
func (s *ChromemStore) Close() error {
	return s.Flush(context.Background())
}

// encodeMetadata stores each value as JSON so types survive the string-only
// chromem metadata.
func encodeMetadata(md map[string]any) (map[string]string, error) {
	if md == nil {
		return nil, nil
	}
	out := make(map[string]string, len(md))
	for k, v := range md {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("metadata %q: %w", k, err)
		}
		out[k] = string(b)
	}
	return out, nil
}

func decodeMetadata(md map[string]string) map[string]any {
	out := make(map[string]any, len(md))
	for k, raw := range md {
		dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			// written by something other than encodeMetadata
			out[k] = raw
			continue
		}
		out[k] = normalizeNumber(v)
	}
	return out
}

// normalizeNumber turns json.Number into int when integral, float64 otherwise.
func normalizeNumber(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return int(i)
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
