package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/markdave123-py/docrag/internal/core"
	ingest "github.com/markdave123-py/docrag/internal/core/ingestion_engine"
	"github.com/markdave123-py/docrag/internal/core/retrieval"
	"github.com/markdave123-py/docrag/internal/models"
)

const (
	DefaultListLimit = 100
	maxListLimit     = 1000
)

// Answerer is the retrieval side of the core.
type Answerer interface {
	RetrieveAndAnswer(ctx context.Context, query string, topK int, opts ...retrieval.RetrieveOption) (*core.QueryResult, error)
}

// UploadInput is one multipart upload.
type UploadInput struct {
	Filename    string
	Content     []byte
	Title       string
	Description *string
}

// QueryInput is a RAG question. TopK nil means retrieval.DefaultTopK; an
// empty DocumentIDs searches everything indexed.
type QueryInput struct {
	Query       string
	TopK        *int
	DocumentIDs []string
}

type DocumentService struct {
	db       core.DbClient
	ingestor ingest.Ingestor
	rag      Answerer
	store    core.VectorStore
	raw      core.ObjectClient
	logger   *zap.Logger
}

// NewDocumentService wires the caller layer to the core. store and raw are
// only used to undo an ingestion whose Document record could not be saved;
// either may be nil.
func NewDocumentService(db core.DbClient, ingestor ingest.Ingestor, rag Answerer, store core.VectorStore, raw core.ObjectClient, logger *zap.Logger) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{db: db, ingestor: ingestor, rag: rag, store: store, raw: raw, logger: logger}
}

// Upload ingests the file and records it. The record is written only after
// ingestion succeeded.
func (s *DocumentService) Upload(ctx context.Context, actor *models.User, in UploadInput) (*models.Document, error) {
	if !Authorize(actor, ActionUploadDocument, nil) {
		return nil, ErrForbidden
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if _, err := core.ParseFileType(in.Filename); err != nil {
		return nil, err
	}

	var description string
	if in.Description != nil {
		description = *in.Description
	}
	res, err := s.ingestor.Ingest(ctx, ingest.IngestRequest{
		Content:     in.Content,
		Filename:    in.Filename,
		Title:       title,
		Description: description,
	})
	if err != nil {
		return nil, err
	}

	doc := &models.Document{
		ID:             uuid.NewString(),
		Title:          title,
		Description:    in.Description,
		FilePath:       res.FilePath,
		FileType:       res.FileType,
		CollectionName: res.CollectionName,
		NumChunks:      res.NumChunks,
		UploaderID:     actor.ID,
	}
	if err := s.db.CreateDocument(ctx, doc); err != nil {
		s.undoIngestion(res)
		return nil, fmt.Errorf("saving document: %w", err)
	}

	s.logger.Info("document uploaded",
		zap.String("document_id", doc.ID),
		zap.String("collection", doc.CollectionName),
		zap.Int("chunks", doc.NumChunks),
		zap.String("uploader_id", actor.ID),
	)
	return doc, nil
}

func (s *DocumentService) undoIngestion(res *core.IngestionResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.store != nil {
		if err := s.store.DropCollection(ctx, res.CollectionName); err != nil {
			s.logger.Warn("dropping orphaned collection", zap.String("collection", res.CollectionName), zap.Error(err))
		}
	}
	if s.raw != nil {
		key := res.CollectionName + "." + res.FileType
		if err := s.raw.Delete(ctx, key); err != nil {
			s.logger.Warn("deleting orphaned raw file", zap.String("key", key), zap.Error(err))
		}
	}
}

// List pages through the documents actor may read: every document for
// admins and moderators, otherwise their own uploads.
func (s *DocumentService) List(ctx context.Context, actor *models.User, skip, limit int) ([]models.Document, error) {
	if !Authorize(actor, ActionReadDocument, nil) {
		return nil, ErrForbidden
	}
	if skip < 0 {
		return nil, fmt.Errorf("%w: skip must not be negative", ErrInvalidInput)
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", ErrInvalidInput)
	}
	limit = min(limit, maxListLimit)

	if isStaff(actor) {
		return s.db.ListDocuments(ctx, skip, limit)
	}
	return s.db.ListDocumentsByUser(ctx, actor.ID, skip, limit)
}

// Query answers a question from the indexed documents. Named documents
// narrow the search to their collections after a read check on each.
func (s *DocumentService) Query(ctx context.Context, actor *models.User, in QueryInput) (*core.QueryResult, error) {
	if !Authorize(actor, ActionUseRAG, nil) {
		return nil, ErrForbidden
	}
	if strings.TrimSpace(in.Query) == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}
	topK := retrieval.DefaultTopK
	if in.TopK != nil {
		topK = *in.TopK
	}

	var opts []retrieval.RetrieveOption
	if len(in.DocumentIDs) > 0 {
		collections, err := s.collectionsFor(ctx, actor, in.DocumentIDs)
		if err != nil {
			return nil, err
		}
		opts = append(opts, retrieval.WithCollections(collections...))
	}

	res, err := s.rag.RetrieveAndAnswer(ctx, in.Query, topK, opts...)
	if err != nil {
		return nil, err
	}
	s.logger.Info("rag query served",
		zap.String("user_id", actor.ID),
		zap.Int("scoped_documents", len(in.DocumentIDs)),
		zap.Int("top_k", topK),
		zap.Int("results", res.NumResults),
	)
	return res, nil
}

func (s *DocumentService) collectionsFor(ctx context.Context, actor *models.User, ids []string) ([]string, error) {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		doc, err := s.db.GetDocumentByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return nil, fmt.Errorf("%w: document %s", ErrNotFound, id)
		}
		if !Authorize(actor, ActionReadDocument, doc) {
			return nil, fmt.Errorf("%w: document %s", ErrForbidden, id)
		}
		out = append(out, doc.CollectionName)
	}
	return out, nil
}
