// Package storage provides PostgreSQL persistence for blog entities.
package storage

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("storage: record not found")

	// ErrDuplicateSlug is returned when an insert or update violates the
	// unique slug index. The slug generator pre-checks candidates, but
	// concurrent writers can still race; the index is the backstop.
	ErrDuplicateSlug = errors.New("storage: slug already in use")

	// ErrDuplicateEmail is returned when a user email is already registered.
	ErrDuplicateEmail = errors.New("storage: email already in use")
)

// Post is a blog post row together with its author name and categories.
type Post struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	Slug        string     `json:"slug"`
	AuthorID    uuid.UUID  `json:"author_id"`
	AuthorName  string     `json:"author_name"`
	IsPublished bool       `json:"is_published"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Categories  []Category `json:"categories"`
}

// Category groups posts under a named, slugged label.
type Category struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// User is a registered account. PasswordHash never leaves the API boundary.
type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// pqUniqueViolation is the PostgreSQL error code for unique_violation.
const pqUniqueViolation = "23505"

// mapError converts driver-level errors into the package's sentinel errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		switch {
		case strings.Contains(pqErr.Constraint, "slug"):
			return ErrDuplicateSlug
		case strings.Contains(pqErr.Constraint, "email"):
			return ErrDuplicateEmail
		}
	}

	return err
}
