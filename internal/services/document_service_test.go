package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/markdave123-py/docrag/internal/core"
	"github.com/markdave123-py/docrag/internal/core/database/dbtest"
	ingest "github.com/markdave123-py/docrag/internal/core/ingestion_engine"
	"github.com/markdave123-py/docrag/internal/core/retrieval"
	"github.com/markdave123-py/docrag/internal/models"
)

type mockIngestor struct{ mock.Mock }

func (m *mockIngestor) Ingest(ctx context.Context, req ingest.IngestRequest) (*core.IngestionResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*core.IngestionResult)
	return res, args.Error(1)
}

type mockAnswerer struct{ mock.Mock }

func (m *mockAnswerer) RetrieveAndAnswer(ctx context.Context, query string, topK int, opts ...retrieval.RetrieveOption) (*core.QueryResult, error) {
	args := m.Called(ctx, query, topK, len(opts))
	res, _ := args.Get(0).(*core.QueryResult)
	return res, args.Error(1)
}

type recordingStore struct {
	core.VectorStore
	dropped []string
}

func (s *recordingStore) DropCollection(_ context.Context, name string) error {
	s.dropped = append(s.dropped, name)
	return nil
}

type docFixture struct {
	db    *dbtest.MemoryClient
	ing   *mockIngestor
	rag   *mockAnswerer
	store *recordingStore
	svc   *DocumentService
}

func newDocFixture(t *testing.T) *docFixture {
	t.Helper()
	f := &docFixture{
		db:    dbtest.NewMemoryClient(),
		ing:   &mockIngestor{},
		rag:   &mockAnswerer{},
		store: &recordingStore{},
	}
	f.svc = NewDocumentService(f.db, f.ing, f.rag, f.store, nil, zaptest.NewLogger(t))
	return f
}

func (f *docFixture) addUser(t *testing.T, id string, role models.Role) *models.User {
	t.Helper()
	u := &models.User{ID: id, Username: id, Email: id + "@example.com", Role: role, IsActive: true}
	require.NoError(t, f.db.CreateUser(context.Background(), u))
	return u
}

func ingested(collection string) *core.IngestionResult {
	return &core.IngestionResult{
		FilePath:       "/store/" + collection + ".txt",
		FileType:       "txt",
		CollectionName: collection,
		NumChunks:      2,
	}
}

func TestDocumentService_Upload(t *testing.T) {
	ctx := context.Background()
	f := newDocFixture(t)
	alice := f.addUser(t, "alice", models.RoleUser)
	desc := "trip notes"

	f.ing.On("Ingest", mock.Anything, ingest.IngestRequest{
		Content: []byte("hello"), Filename: "notes.txt", Title: "Notes", Description: "trip notes",
	}).Return(ingested("doc_1"), nil)

	doc, err := f.svc.Upload(ctx, alice, UploadInput{Filename: "notes.txt", Content: []byte("hello"), Title: " Notes ", Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "Notes", doc.Title)
	assert.Equal(t, "doc_1", doc.CollectionName)
	assert.Equal(t, 2, doc.NumChunks)
	assert.Equal(t, alice.ID, doc.UploaderID)
	require.NotNil(t, doc.Description)

	stored, err := f.db.GetDocumentByID(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	f.ing.AssertExpectations(t)
}

func TestDocumentService_UploadRejectsBeforeIngest(t *testing.T) {
	ctx := context.Background()
	f := newDocFixture(t)
	alice := f.addUser(t, "alice", models.RoleUser)

	_, err := f.svc.Upload(ctx, alice, UploadInput{Filename: "notes.txt", Content: []byte("x")})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.Upload(ctx, alice, UploadInput{Filename: "slides.pptx", Content: []byte("x"), Title: "Slides"})
	assert.ErrorIs(t, err, core.ErrUnsupportedFileType)
	assert.True(t, core.IsInputError(err))

	inactive := &models.User{ID: "z", Role: models.RoleUser}
	_, err = f.svc.Upload(ctx, inactive, UploadInput{Filename: "notes.txt", Title: "t"})
	assert.ErrorIs(t, err, ErrForbidden)

	f.ing.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything)
}

func TestDocumentService_UploadIngestFailureSavesNothing(t *testing.T) {
	ctx := context.Background()
	f := newDocFixture(t)
	alice := f.addUser(t, "alice", models.RoleUser)
	f.ing.On("Ingest", mock.Anything, mock.Anything).Return(nil, core.ErrEmbedding)

	_, err := f.svc.Upload(ctx, alice, UploadInput{Filename: "notes.txt", Content: []byte("x"), Title: "t"})
	assert.ErrorIs(t, err, core.ErrEmbedding)

	docs, err := f.db.ListDocuments(ctx, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestDocumentService_UploadRecordFailureDropsCollection(t *testing.T) {
	ctx := context.Background()
	f := newDocFixture(t)
	alice := f.addUser(t, "alice", models.RoleUser)
	f.ing.On("Ingest", mock.Anything, mock.Anything).Return(ingested("doc_9"), nil)
	f.db.Err = errors.New("connection reset")

	_, err := f.svc.Upload(ctx, alice, UploadInput{Filename: "notes.txt", Content: []byte("x"), Title: "t"})
	assert.Error(t, err)
	assert.Equal(t, []string{"doc_9"}, f.store.dropped)
}

func TestDocumentService_ListScopesByRole(t *testing.T) {
	ctx := context.Background()
	f := newDocFixture(t)
	alice := f.addUser(t, "alice", models.RoleUser)
	bob := f.addUser(t, "bob", models.RoleUser)
	mod := f.addUser(t, "mod", models.RoleModerator)

	for i, owner := range []string{alice.ID, alice.ID, bob.ID} {
		require.NoError(t, f.db.CreateDocument(ctx, &models.Document{
			ID: string(rune('a' + i)), Title: "t", FileType: "txt",
			CollectionName: "doc_" + string(rune('a'+i)), UploaderID: owner,
		}))
	}

	docs, err := f.svc.List(ctx, alice, 0, DefaultListLimit)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	docs, err = f.svc.List(ctx, bob, 0, DefaultListLimit)
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	docs, err = f.svc.List(ctx, mod, 0, DefaultListLimit)
	require.NoError(t, err)
	assert.Len(t, docs, 3)

	docs, err = f.svc.List(ctx, mod, 1, 1)
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	_, err = f.svc.List(ctx, mod, -1, 10)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDocumentService_Query(t *testing.T) {
	ctx := context.Background()
	f := newDocFixture(t)
	alice := f.addUser(t, "alice", models.RoleUser)
	bob := f.addUser(t, "bob", models.RoleUser)
	require.NoError(t, f.db.CreateDocument(ctx, &models.Document{ID: "d1", Title: "t", CollectionName: "doc_1", UploaderID: alice.ID}))

	answer := &core.QueryResult{Query: "q", Answer: "a", Sources: []core.Source{}, NumResults: 0}

	t.Run("global default top k", func(t *testing.T) {
		f.rag.On("RetrieveAndAnswer", mock.Anything, "q", retrieval.DefaultTopK, 0).Return(answer, nil).Once()
		res, err := f.svc.Query(ctx, bob, QueryInput{Query: "q"})
		require.NoError(t, err)
		assert.Equal(t, "a", res.Answer)
	})

	t.Run("explicit top k and owned document", func(t *testing.T) {
		k := 2
		f.rag.On("RetrieveAndAnswer", mock.Anything, "q", 2, 1).Return(answer, nil).Once()
		_, err := f.svc.Query(ctx, alice, QueryInput{Query: "q", TopK: &k, DocumentIDs: []string{"d1", "d1"}})
		require.NoError(t, err)
	})

	t.Run("other user's document", func(t *testing.T) {
		_, err := f.svc.Query(ctx, bob, QueryInput{Query: "q", DocumentIDs: []string{"d1"}})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("unknown document", func(t *testing.T) {
		_, err := f.svc.Query(ctx, alice, QueryInput{Query: "q", DocumentIDs: []string{"nope"}})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("empty query", func(t *testing.T) {
		_, err := f.svc.Query(ctx, alice, QueryInput{Query: "  "})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("retrieval error", func(t *testing.T) {
		f.rag.On("RetrieveAndAnswer", mock.Anything, "boom", mock.Anything, mock.Anything).Return(nil, core.ErrVectorStore).Once()
		_, err := f.svc.Query(ctx, alice, QueryInput{Query: "boom"})
		assert.ErrorIs(t, err, core.ErrVectorStore)
	})

	f.rag.AssertExpectations(t)
}
