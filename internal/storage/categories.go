package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// CategoryStore persists post categories.
type CategoryStore struct {
	db *sql.DB
}

// NewCategoryStore creates a category store over the provided database handle.
func NewCategoryStore(db *sql.DB) *CategoryStore {
	return &CategoryStore{db: db}
}

// Create inserts a category and returns it with database timestamps.
func (s *CategoryStore) Create(ctx context.Context, category Category) (Category, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO categories (id, name, slug, description)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		RETURNING created_at, updated_at
	`, category.ID, category.Name, category.Slug, category.Description).
		Scan(&category.CreatedAt, &category.UpdatedAt)
	if err != nil {
		return Category{}, mapError(err)
	}

	return category, nil
}

// List returns all categories ordered by name.
func (s *CategoryStore) List(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, slug, COALESCE(description, ''), created_at, updated_at
		FROM categories
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("storage: list categories: %w", err)
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.Description,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan category: %w", err)
		}
		out = append(out, c)
	}

	return out, rows.Err()
}

// GetByID returns a single category.
func (s *CategoryStore) GetByID(ctx context.Context, id uuid.UUID) (Category, error) {
	var c Category
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, COALESCE(description, ''), created_at, updated_at
		FROM categories
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Category{}, mapError(err)
	}

	return c, nil
}

// GetManyByIDs returns the categories for the given ids, in name order.
// Missing ids are simply absent from the result; callers decide whether
// that is an error.
func (s *CategoryStore) GetManyByIDs(ctx context.Context, ids []uuid.UUID) ([]Category, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, slug, COALESCE(description, ''), created_at, updated_at
		FROM categories
		WHERE id = ANY($1)
		ORDER BY name
	`, pq.Array(raw))
	if err != nil {
		return nil, fmt.Errorf("storage: load categories: %w", err)
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.Description,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan category: %w", err)
		}
		out = append(out, c)
	}

	return out, rows.Err()
}

// FindIDBySlug reports which category, if any, currently owns a slug.
func (s *CategoryStore) FindIDBySlug(ctx context.Context, slug string) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx, `SELECT id FROM categories WHERE slug = $1`, slug).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("storage: find category by slug: %w", err)
	}

	return id, true, nil
}

// Delete removes a category; post links cascade.
func (s *CategoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("storage: delete category: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: delete category: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}
