// Package dbtest provides an in-memory core.DbClient for tests.
package dbtest

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/markdave123-py/docrag/internal/core"
	"github.com/markdave123-py/docrag/internal/models"
)

var _ core.DbClient = (*MemoryClient)(nil)

// MemoryClient mirrors the Postgres client's semantics, including the
// uniqueness constraints on username, email and collection name.
type MemoryClient struct {
	mu    sync.Mutex
	users map[string]models.User
	docs  map[string]models.Document

	// Err, when set, is returned by every call.
	Err error
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		users: map[string]models.User{},
		docs:  map[string]models.Document{},
	}
}

func (m *MemoryClient) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for _, u := range m.users {
		if u.ID == user.ID || u.Email == user.Email || u.Username == user.Username {
			return fmt.Errorf("duplicate user %s", user.Username)
		}
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	m.users[user.ID] = *user
	return nil
}

func (m *MemoryClient) findUser(match func(models.User) bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for _, u := range m.users {
		if match(u) {
			return &u, nil
		}
	}
	return nil, nil
}

func (m *MemoryClient) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	return m.findUser(func(u models.User) bool { return u.Email == email })
}

func (m *MemoryClient) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	return m.findUser(func(u models.User) bool { return u.Username == username })
}

func (m *MemoryClient) GetUserByID(_ context.Context, id string) (*models.User, error) {
	return m.findUser(func(u models.User) bool { return u.ID == id })
}

func (m *MemoryClient) ListUsers(context.Context) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b models.User) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (m *MemoryClient) UpdateUserRole(_ context.Context, id string, role models.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if !role.Valid() {
		return fmt.Errorf("invalid role %q", role)
	}
	u, ok := m.users[id]
	if !ok {
		return fmt.Errorf("user not found: %s", id)
	}
	u.Role = role
	u.UpdatedAt = time.Now().UTC()
	m.users[id] = u
	return nil
}

func (m *MemoryClient) UpdateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	u, ok := m.users[user.ID]
	if !ok {
		return fmt.Errorf("user not found: %s", user.ID)
	}
	for _, other := range m.users {
		if other.ID != user.ID && (other.Email == user.Email || other.Username == user.Username) {
			return fmt.Errorf("duplicate user %s", user.Username)
		}
	}
	user.UpdatedAt = time.Now().UTC()
	u.Username = user.Username
	u.Email = user.Email
	u.PasswordHash = user.PasswordHash
	u.UpdatedAt = user.UpdatedAt
	m.users[user.ID] = u
	return nil
}

// SetActive toggles a user's is_active flag.
func (m *MemoryClient) SetActive(id string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.IsActive = active
		m.users[id] = u
	}
}

func (m *MemoryClient) CreateDocument(_ context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for _, d := range m.docs {
		if d.ID == doc.ID || d.CollectionName == doc.CollectionName {
			return fmt.Errorf("duplicate document %s", doc.ID)
		}
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = now
	}
	m.docs[doc.ID] = *doc
	return nil
}

func (m *MemoryClient) GetDocumentByID(_ context.Context, id string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	d, ok := m.docs[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (m *MemoryClient) ListDocuments(_ context.Context, offset, limit int) ([]models.Document, error) {
	return m.listDocuments(func(models.Document) bool { return true }, offset, limit)
}

func (m *MemoryClient) ListDocumentsByUser(_ context.Context, userID string, offset, limit int) ([]models.Document, error) {
	return m.listDocuments(func(d models.Document) bool { return d.UploaderID == userID }, offset, limit)
}

func (m *MemoryClient) listDocuments(keep func(models.Document) bool, offset, limit int) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := []models.Document{}
	for _, d := range m.docs {
		if keep(d) {
			out = append(out, d)
		}
	}
	// newest first, like the SQL client
	slices.SortFunc(out, func(a, b models.Document) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if offset >= len(out) {
		return []models.Document{}, nil
	}
	out = out[offset:]
	if limit >= 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryClient) Close() error { return nil }
