package vectorstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/markdave123-py/docrag/internal/core"
)

var _ core.VectorStore = (*PgVectorStore)(nil)

// PgVectorStore keeps chunks in the vector_chunks table. Collections are a
// column rather than separate tables. Writes commit per Insert, so Flush has
// nothing to do.
type PgVectorStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPgVectorStore uses a pool opened by db.Open; the schema must already
// exist.
func NewPgVectorStore(db *sql.DB, logger *zap.Logger) *PgVectorStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PgVectorStore{db: db, logger: logger}
}

// Insert writes the records in a single transaction.
func (s *PgVectorStore) Insert(ctx context.Context, records []core.VectorRecord) ([]string, error) {
	if len(records) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
		INSERT INTO vector_chunks (id, collection_name, content, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5)
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	ids := make([]string, len(records))
	for i, r := range records {
		if r.Collection == "" {
			return nil, fmt.Errorf("record %s has no collection", r.ID)
		}
		if len(r.Embedding) == 0 {
			return nil, fmt.Errorf("record %s has no embedding", r.ID)
		}
		md, err := marshalMetadata(r.Metadata)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", r.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.Collection, r.Text, md, pgvector.NewVector(r.Embedding)); err != nil {
			return nil, fmt.Errorf("insert record %s: %w", r.ID, err)
		}
		ids[i] = r.ID
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.logger.Debug("added chunks to pgvector", zap.Int("count", len(ids)))
	return ids, nil
}

// Search ranks by cosine distance; Score is 1 - distance so it matches the
// chromem similarity.
func (s *PgVectorStore) Search(ctx context.Context, query []float32, k int, collections []string) ([]core.RetrievedResult, error) {
	if k <= 0 {
		return []core.RetrievedResult{}, nil
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("query embedding is empty")
	}

	vec := pgvector.NewVector(query)
	var (
		rows *sql.Rows
		err  error
	)
	if len(collections) == 0 {
		const q = `
			SELECT content, metadata, 1 - (embedding <=> $1) AS score
			FROM vector_chunks
			ORDER BY embedding <=> $1, collection_name, id
			LIMIT $2
		`
		rows, err = s.db.QueryContext(ctx, q, vec, k)
	} else {
		const q = `
			SELECT content, metadata, 1 - (embedding <=> $1) AS score
			FROM vector_chunks
			WHERE collection_name = ANY($3)
			ORDER BY embedding <=> $1, collection_name, id
			LIMIT $2
		`
		rows, err = s.db.QueryContext(ctx, q, vec, k, collections)
	}
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	out := []core.RetrievedResult{}
	for rows.Next() {
		var (
			r   core.RetrievedResult
			raw []byte
			sc  float64
		)
		if err := rows.Scan(&r.Content, &raw, &sc); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		r.Metadata = unmarshalMetadata(raw)
		r.Score = float32(sc)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search rows: %w", err)
	}
	return out, nil
}

func (s *PgVectorStore) Flush(ctx context.Context) error {
	return ctx.Err()
}

func (s *PgVectorStore) DropCollection(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM vector_chunks WHERE collection_name = $1`, name)
	if err != nil {
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}
	n, _ := res.RowsAffected()
	s.logger.Info("dropped pgvector collection", zap.String("collection", name), zap.Int64("rows", n))
	return nil
}

// Close is a no-op; the pool belongs to the database client.
func (s *PgVectorStore) Close() error { return nil }

func marshalMetadata(md map[string]any) ([]byte, error) {
	if md == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(md)
}

func unmarshalMetadata(raw []byte) map[string]any {
	out := map[string]any{}
	if len(raw) == 0 {
		return out
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return map[string]any{}
	}
	for k, v := range out {
		out[k] = normalizeNumber(v)
	}
	return out
}
