package core

import (
	"context"

	"github.com/markdave123-py/docrag/internal/models"
)

// DbClient defines the relational persistence the HTTP layer needs.
// Lookups return (nil, nil) when no row matches.
type DbClient interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUserRole(ctx context.Context, id string, role models.Role) error
	// UpdateUser writes the username, email and password hash of user.
	UpdateUser(ctx context.Context, user *models.User) error

	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, offset, limit int) ([]models.Document, error)
	ListDocumentsByUser(ctx context.Context, userID string, offset, limit int) ([]models.Document, error)

	Close() error
}

// ObjectClient stores raw uploaded bytes. Put returns the durable location
// (a filesystem path or an object URL).
type ObjectClient interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (location string, err error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// VectorStore indexes embedded chunks and answers nearest-neighbour queries.
// Implementations must be safe for concurrent use.
type VectorStore interface {
	// Insert stores records; all records of one call share a collection.
	Insert(ctx context.Context, records []VectorRecord) ([]string, error)

	// Search returns at most k results ordered most similar first. An empty
	// collections slice searches everything that is indexed.
	Search(ctx context.Context, query []float32, k int, collections []string) ([]RetrievedResult, error)

	// Flush makes every inserted record durable.
	Flush(ctx context.Context) error

	// DropCollection removes a collection's records. Used only to roll back a
	// failed ingestion.
	DropCollection(ctx context.Context, name string) error

	Close() error
}
