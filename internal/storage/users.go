package storage

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// UserStore persists registered accounts.
type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a user store over the provided database handle.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// Create inserts a user. Duplicate emails map to ErrDuplicateEmail.
func (s *UserStore) Create(ctx context.Context, user User) (User, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, user.ID, user.Name, user.Email, user.PasswordHash, user.Role).
		Scan(&user.CreatedAt)
	if err != nil {
		return User{}, mapError(err)
	}

	return user, nil
}

// GetByEmail looks a user up by email, case-insensitively.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, created_at
		FROM users
		WHERE lower(email) = lower($1)
	`, email).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		return User{}, mapError(err)
	}

	return u, nil
}

// GetByID returns a single user.
func (s *UserStore) GetByID(ctx context.Context, id uuid.UUID) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, created_at
		FROM users
		WHERE id = $1
	`, id).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		return User{}, mapError(err)
	}

	return u, nil
}
