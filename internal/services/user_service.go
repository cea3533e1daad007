package services

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/markdave123-py/docrag/internal/core"
	"github.com/markdave123-py/docrag/internal/models"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 50
	minPasswordLen = 6
)

type UserService struct {
	db     core.DbClient
	tokens *TokenManager
	logger *zap.Logger
}

func NewUserService(db core.DbClient, tokens *TokenManager, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{db: db, tokens: tokens, logger: logger}
}

// Register creates an active user with the default role.
func (s *UserService) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	if u, err := s.db.GetUserByUsername(ctx, username); err != nil {
		return nil, err
	} else if u != nil {
		return nil, fmt.Errorf("%w: username already registered", ErrConflict)
	}
	if u, err := s.db.GetUserByEmail(ctx, email); err != nil {
		return nil, err
	} else if u != nil {
		return nil, fmt.Errorf("%w: email already registered", ErrConflict)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         models.RoleUser,
		IsActive:     true,
	}
	if err := s.db.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("username", user.Username))
	return user, nil
}

func validateUsername(username string) error {
	if n := utf8.RuneCountInString(username); n < minUsernameLen || n > maxUsernameLen {
		return fmt.Errorf("%w: username must be %d to %d characters", ErrInvalidInput, minUsernameLen, maxUsernameLen)
	}
	return nil
}

func validateEmail(email string) error {
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	return nil
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}
	return nil
}

// Login checks the password of an active user and issues an access token.
func (s *UserService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.db.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return "", err
	}
	if user == nil || !user.IsActive {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return "", err
	}
	s.logger.Info("user authenticated", zap.String("user_id", user.ID))
	return token, nil
}

// Authenticate resolves a bearer token to an active user.
func (s *UserService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	id, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	user, err := s.db.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: unknown user", ErrUnauthenticated)
	}
	if !user.IsActive {
		return nil, fmt.Errorf("%w: inactive user", ErrUnauthenticated)
	}
	return user, nil
}

func (s *UserService) Get(ctx context.Context, actor *models.User, id string) (*models.User, error) {
	user, err := s.db.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	if !Authorize(actor, ActionReadUser, user) {
		return nil, ErrForbidden
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context, actor *models.User) ([]models.User, error) {
	if !Authorize(actor, ActionReadUser, nil) {
		return nil, ErrForbidden
	}
	return s.db.ListUsers(ctx)
}

// UserUpdate holds the profile fields to change. Nil fields are left alone.
type UserUpdate struct {
	Username *string
	Email    *string
	Password *string
}

// Update changes a user's profile. Users may update themselves; admins may
// update anyone.
func (s *UserService) Update(ctx context.Context, actor *models.User, id string, in UserUpdate) (*models.User, error) {
	user, err := s.db.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	if !Authorize(actor, ActionUpdateUser, user) {
		return nil, ErrForbidden
	}

	if in.Username != nil {
		username := strings.TrimSpace(*in.Username)
		if err := validateUsername(username); err != nil {
			return nil, err
		}
		if username != user.Username {
			existing, err := s.db.GetUserByUsername(ctx, username)
			if err != nil {
				return nil, err
			}
			if existing != nil && existing.ID != user.ID {
				return nil, fmt.Errorf("%w: username already taken", ErrConflict)
			}
			user.Username = username
		}
	}
	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		if email != user.Email {
			existing, err := s.db.GetUserByEmail(ctx, email)
			if err != nil {
				return nil, err
			}
			if existing != nil && existing.ID != user.ID {
				return nil, fmt.Errorf("%w: email already taken", ErrConflict)
			}
			user.Email = email
		}
	}
	if in.Password != nil {
		if err := validatePassword(*in.Password); err != nil {
			return nil, err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*in.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hashing password: %w", err)
		}
		user.PasswordHash = string(hash)
	}

	if err := s.db.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("updating user: %w", err)
	}
	s.logger.Info("user updated", zap.String("user_id", user.ID), zap.String("by", actor.ID))
	return user, nil
}

// UpdateRole changes another user's role on behalf of actor.
func (s *UserService) UpdateRole(ctx context.Context, actor *models.User, id string, role models.Role) (*models.User, error) {
	if !Authorize(actor, ActionUpdateUserRole, nil) {
		return nil, ErrForbidden
	}
	user, err := s.SetRole(ctx, id, role)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user role updated",
		zap.String("user_id", id),
		zap.String("role", string(role)),
		zap.String("by", actor.ID),
	)
	return user, nil
}

// SetRole changes a user's role without an authorization check. It backs
// the admin CLI.
func (s *UserService) SetRole(ctx context.Context, id string, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	user, err := s.db.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	if err := s.db.UpdateUserRole(ctx, id, role); err != nil {
		return nil, fmt.Errorf("updating role: %w", err)
	}
	user.Role = role
	return user, nil
}

// ListAll returns every user without an authorization check. It backs the
// admin CLI.
func (s *UserService) ListAll(ctx context.Context) ([]models.User, error) {
	return s.db.ListUsers(ctx)
}
