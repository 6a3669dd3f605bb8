package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostStore persists posts and their category links.
type PostStore struct {
	db *sql.DB
}

// NewPostStore creates a post store over the provided database handle.
func NewPostStore(db *sql.DB) *PostStore {
	return &PostStore{db: db}
}

const postColumns = `
	p.id, p.title, p.content, p.slug, p.author_id, u.name,
	p.is_published, p.published_at, p.created_at, p.updated_at`

// Create inserts a post and its category links in one transaction.
// The returned post carries the database-assigned timestamps.
func (s *PostStore) Create(ctx context.Context, post Post) (Post, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Post{}, fmt.Errorf("storage: begin create post: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO posts (id, title, content, slug, author_id, is_published)
		VALUES ($1, $2, $3, $4, $5, FALSE)
		RETURNING created_at, updated_at
	`, post.ID, post.Title, post.Content, post.Slug, post.AuthorID).
		Scan(&post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return Post{}, mapError(err)
	}

	if err := replaceCategoryLinks(ctx, tx, post.ID, post.Categories); err != nil {
		return Post{}, err
	}

	if err := tx.Commit(); err != nil {
		return Post{}, fmt.Errorf("storage: commit create post: %w", err)
	}

	post.IsPublished = false
	post.PublishedAt = nil

	return post, nil
}

// GetByID returns a post with its author name and categories.
func (s *PostStore) GetByID(ctx context.Context, id uuid.UUID) (Post, error) {
	return s.getOne(ctx, "p.id = $1", id)
}

// GetBySlug returns a post looked up by its slug.
func (s *PostStore) GetBySlug(ctx context.Context, slug string) (Post, error) {
	return s.getOne(ctx, "p.slug = $1", slug)
}

func (s *PostStore) getOne(ctx context.Context, where string, arg any) (Post, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM posts p
		JOIN users u ON u.id = p.author_id
		WHERE %s
	`, postColumns, where)

	post, err := scanPost(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		return Post{}, mapError(err)
	}

	categories, err := s.categoriesFor(ctx, []uuid.UUID{post.ID})
	if err != nil {
		return Post{}, err
	}
	post.Categories = categories[post.ID]

	return post, nil
}

// FindIDBySlug reports which record, if any, currently owns a slug.
// It is the lookup the slug generator probes with, so it stays a bare
// index-only query.
func (s *PostStore) FindIDBySlug(ctx context.Context, slug string) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx, `SELECT id FROM posts WHERE slug = $1`, slug).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("storage: find post by slug: %w", err)
	}

	return id, true, nil
}

// ListPaged returns one page of posts, newest first, plus the total count.
func (s *PostStore) ListPaged(ctx context.Context, page, pageSize int) ([]Post, int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count posts: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM posts p
		JOIN users u ON u.id = p.author_id
		ORDER BY p.created_at DESC, p.id
		LIMIT $1 OFFSET $2
	`, postColumns)

	rows, err := s.db.QueryContext(ctx, query, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list posts: %w", err)
	}
	defer rows.Close()

	var posts []Post
	var ids []uuid.UUID
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("storage: scan post: %w", err)
		}
		posts = append(posts, post)
		ids = append(ids, post.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("storage: list posts: %w", err)
	}

	categories, err := s.categoriesFor(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range posts {
		posts[i].Categories = categories[posts[i].ID]
	}

	return posts, total, nil
}

// Update rewrites a post's content fields and replaces its category links.
func (s *PostStore) Update(ctx context.Context, post Post) (Post, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Post{}, fmt.Errorf("storage: begin update post: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		UPDATE posts
		SET title = $2, content = $3, slug = $4, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, post.ID, post.Title, post.Content, post.Slug).Scan(&post.UpdatedAt)
	if err != nil {
		return Post{}, mapError(err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM post_categories WHERE post_id = $1`, post.ID); err != nil {
		return Post{}, fmt.Errorf("storage: clear category links: %w", err)
	}
	if err := replaceCategoryLinks(ctx, tx, post.ID, post.Categories); err != nil {
		return Post{}, err
	}

	if err := tx.Commit(); err != nil {
		return Post{}, fmt.Errorf("storage: commit update post: %w", err)
	}

	return post, nil
}

// Delete removes a post; category links cascade.
func (s *PostStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("storage: delete post: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: delete post: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// SetPublished flips the publication state. publishedAt must be nil when
// unpublishing and non-nil when publishing.
func (s *PostStore) SetPublished(ctx context.Context, id uuid.UUID, published bool, publishedAt *time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE posts
		SET is_published = $2, published_at = $3, updated_at = now()
		WHERE id = $1
	`, id, published, publishedAt)
	if err != nil {
		return fmt.Errorf("storage: set published: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: set published: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// categoriesFor loads the categories of each listed post in one query.
func (s *PostStore) categoriesFor(ctx context.Context, postIDs []uuid.UUID) (map[uuid.UUID][]Category, error) {
	out := make(map[uuid.UUID][]Category, len(postIDs))
	if len(postIDs) == 0 {
		return out, nil
	}

	ids := make([]string, len(postIDs))
	for i, id := range postIDs {
		ids[i] = id.String()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT pc.post_id, c.id, c.name, c.slug, COALESCE(c.description, ''),
		       c.created_at, c.updated_at
		FROM post_categories pc
		JOIN categories c ON c.id = pc.category_id
		WHERE pc.post_id = ANY($1)
		ORDER BY c.name
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("storage: load post categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var postID uuid.UUID
		var c Category
		if err := rows.Scan(&postID, &c.ID, &c.Name, &c.Slug, &c.Description,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan post category: %w", err)
		}
		out[postID] = append(out[postID], c)
	}

	return out, rows.Err()
}

func replaceCategoryLinks(ctx context.Context, tx *sql.Tx, postID uuid.UUID, categories []Category) error {
	for _, c := range categories {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO post_categories (post_id, category_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, postID, c.ID); err != nil {
			return fmt.Errorf("storage: link category %s: %w", c.ID, err)
		}
	}

	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (Post, error) {
	var post Post
	var publishedAt sql.NullTime

	err := row.Scan(&post.ID, &post.Title, &post.Content, &post.Slug,
		&post.AuthorID, &post.AuthorName, &post.IsPublished, &publishedAt,
		&post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return Post{}, err
	}

	if publishedAt.Valid {
		t := publishedAt.Time
		post.PublishedAt = &t
	}

	return post, nil
}
