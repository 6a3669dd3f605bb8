package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/vittordeaguiar/blog-api/internal/blog"
	"github.com/vittordeaguiar/blog-api/internal/storage"
)

// Account roles. Authors manage their own posts; admins additionally
// manage categories, users and the admin surfaces.
const (
	RoleAdmin  = "admin"
	RoleAuthor = "author"
)

// Name length bounds for registration.
const (
	NameMinLength = 3
	NameMaxLength = 100
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// UserRepository is the persistence surface the auth service needs.
// *storage.UserStore satisfies it.
type UserRepository interface {
	Create(ctx context.Context, user storage.User) (storage.User, error)
	GetByEmail(ctx context.Context, email string) (storage.User, error)
}

// RegisterInput carries the fields of an account registration.
type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Credentials carries a login attempt.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Service implements registration and login.
type Service struct {
	users  UserRepository
	hasher *Hasher
	tokens *TokenIssuer
	logger *slog.Logger
}

// NewService wires an auth service. logger may be nil.
func NewService(users UserRepository, hasher *Hasher, tokens *TokenIssuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{users: users, hasher: hasher, tokens: tokens, logger: logger}
}

// Register creates an account. An empty role defaults to author.
func (s *Service) Register(ctx context.Context, in RegisterInput) (storage.User, error) {
	if in.Role == "" {
		in.Role = RoleAuthor
	}
	if err := validateRegister(in); err != nil {
		return storage.User{}, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return storage.User{}, err
	}

	user := storage.User{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(in.Name),
		Email:        strings.TrimSpace(in.Email),
		PasswordHash: hash,
		Role:         in.Role,
	}

	created, err := s.users.Create(ctx, user)
	if errors.Is(err, storage.ErrDuplicateEmail) {
		return storage.User{}, blog.Conflictf("email already registered")
	}
	if err != nil {
		return storage.User{}, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user registered", "user_id", created.ID, "role", created.Role)

	return created, nil
}

// Login verifies credentials and issues an access token. Unknown emails
// and wrong passwords produce the same error, so callers cannot probe
// which addresses are registered.
func (s *Service) Login(ctx context.Context, creds Credentials) (string, storage.User, error) {
	user, err := s.users.GetByEmail(ctx, creds.Email)
	if errors.Is(err, storage.ErrNotFound) {
		return "", storage.User{}, blog.Unauthorizedf("invalid credentials")
	}
	if err != nil {
		return "", storage.User{}, fmt.Errorf("load user: %w", err)
	}

	if !s.hasher.Verify(user.PasswordHash, creds.Password) {
		return "", storage.User{}, blog.Unauthorizedf("invalid credentials")
	}

	token, err := s.tokens.Issue(Identity{
		UserID: user.ID,
		Name:   user.Name,
		Email:  user.Email,
		Role:   user.Role,
	})
	if err != nil {
		return "", storage.User{}, err
	}

	s.logger.Info("user logged in", "user_id", user.ID)

	return token, user, nil
}

func validateRegister(in RegisterInput) error {
	name := strings.TrimSpace(in.Name)
	if len(name) < NameMinLength || len(name) > NameMaxLength {
		return blog.Validationf("name must be between %d and %d characters", NameMinLength, NameMaxLength)
	}

	email := strings.TrimSpace(in.Email)
	if !emailPattern.MatchString(email) {
		return blog.Validationf("email is not valid")
	}

	if len(in.Password) < PasswordMinLength {
		return blog.Validationf("password must have at least %d characters", PasswordMinLength)
	}
	if len(in.Password) > PasswordMaxLength {
		return blog.Validationf("password cannot exceed %d characters", PasswordMaxLength)
	}

	if in.Role != RoleAdmin && in.Role != RoleAuthor {
		return blog.Validationf("role must be %q or %q", RoleAdmin, RoleAuthor)
	}

	return nil
}
