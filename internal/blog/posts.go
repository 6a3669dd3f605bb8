package blog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vittordeaguiar/blog-api/internal/cache"
	"github.com/vittordeaguiar/blog-api/internal/slug"
	"github.com/vittordeaguiar/blog-api/internal/storage"
)

// Pagination bounds for the post listing.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Cache lifetimes. Individual records live longer than listing pages
// because pages churn on every write anyway.
const (
	postCacheTTL = 10 * time.Minute
	listCacheTTL = 5 * time.Minute
)

// PostInput carries the caller-supplied fields of a post write.
type PostInput struct {
	Title       string      `json:"title"`
	Content     string      `json:"content"`
	CategoryIDs []uuid.UUID `json:"category_ids"`
}

// PagedPosts is one page of the post listing.
type PagedPosts struct {
	Items      []storage.Post `json:"items"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	TotalItems int64          `json:"total_items"`
	TotalPages int            `json:"total_pages"`
}

// PostRepository is the persistence surface the post service needs.
// *storage.PostStore satisfies it.
type PostRepository interface {
	Create(ctx context.Context, post storage.Post) (storage.Post, error)
	GetByID(ctx context.Context, id uuid.UUID) (storage.Post, error)
	GetBySlug(ctx context.Context, slug string) (storage.Post, error)
	ListPaged(ctx context.Context, page, pageSize int) ([]storage.Post, int64, error)
	Update(ctx context.Context, post storage.Post) (storage.Post, error)
	Delete(ctx context.Context, id uuid.UUID) error
	SetPublished(ctx context.Context, id uuid.UUID, published bool, publishedAt *time.Time) error
}

// CategoryReader resolves category ids to records.
type CategoryReader interface {
	GetManyByIDs(ctx context.Context, ids []uuid.UUID) ([]storage.Category, error)
}

// UserReader resolves an author id to its account.
type UserReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (storage.User, error)
}

// SlugUniquer turns a base slug into one that is free to use.
type SlugUniquer interface {
	Unique(ctx context.Context, base string, excludeID uuid.UUID) (string, error)
}

// PostService implements the post operations: CRUD, listing and
// publication state, with read-through caching and write invalidation.
type PostService struct {
	posts      PostRepository
	categories CategoryReader
	users      UserReader
	slugs      SlugUniquer
	cache      cache.Cache
	logger     *slog.Logger

	now func() time.Time
}

// NewPostService wires a post service. cache may be nil, in which case
// caching is disabled; logger may be nil.
func NewPostService(posts PostRepository, categories CategoryReader, users UserReader,
	slugs SlugUniquer, c cache.Cache, logger *slog.Logger) *PostService {
	if c == nil {
		c = cache.NewNull()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostService{
		posts:      posts,
		categories: categories,
		users:      users,
		slugs:      slugs,
		cache:      c,
		logger:     logger,
		now:        time.Now,
	}
}

// Create validates the input, derives a unique slug from the title and
// stores the post as a draft owned by authorID.
func (s *PostService) Create(ctx context.Context, in PostInput, authorID uuid.UUID) (storage.Post, error) {
	if err := validatePostInput(in); err != nil {
		return storage.Post{}, err
	}

	author, err := s.users.GetByID(ctx, authorID)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Post{}, Validationf("author %s does not exist", authorID)
	}
	if err != nil {
		return storage.Post{}, fmt.Errorf("load author: %w", err)
	}

	categories, err := s.resolveCategories(ctx, in.CategoryIDs)
	if err != nil {
		return storage.Post{}, err
	}

	postSlug, err := s.slugFor(ctx, in.Title, uuid.Nil)
	if err != nil {
		return storage.Post{}, err
	}

	post := storage.Post{
		ID:         uuid.New(),
		Title:      in.Title,
		Content:    in.Content,
		Slug:       postSlug,
		AuthorID:   author.ID,
		AuthorName: author.Name,
		Categories: categories,
	}

	created, err := s.posts.Create(ctx, post)
	if errors.Is(err, storage.ErrDuplicateSlug) {
		return storage.Post{}, Conflictf("slug %q is already in use", postSlug)
	}
	if err != nil {
		return storage.Post{}, fmt.Errorf("create post: %w", err)
	}

	s.cache.DeletePattern(ctx, cache.AllPostsPattern())
	s.logger.Info("post created", "post_id", created.ID, "slug", created.Slug, "author_id", author.ID)

	return created, nil
}

// GetByID returns a post, serving from cache when possible.
func (s *PostService) GetByID(ctx context.Context, id uuid.UUID) (storage.Post, error) {
	key := cache.PostByIDKey(id)

	var cached storage.Post
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	post, err := s.posts.GetByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Post{}, NotFoundf("post %s not found", id)
	}
	if err != nil {
		return storage.Post{}, fmt.Errorf("get post: %w", err)
	}

	s.cache.Set(ctx, key, post, postCacheTTL)

	return post, nil
}

// GetBySlug returns a post looked up by slug, serving from cache when possible.
func (s *PostService) GetBySlug(ctx context.Context, postSlug string) (storage.Post, error) {
	key := cache.PostBySlugKey(postSlug)

	var cached storage.Post
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	post, err := s.posts.GetBySlug(ctx, postSlug)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Post{}, NotFoundf("post %q not found", postSlug)
	}
	if err != nil {
		return storage.Post{}, fmt.Errorf("get post by slug: %w", err)
	}

	s.cache.Set(ctx, key, post, postCacheTTL)

	return post, nil
}

// List returns one page of posts, newest first. pageSize zero selects
// the default size.
func (s *PostService) List(ctx context.Context, page, pageSize int) (PagedPosts, error) {
	if page < 1 {
		return PagedPosts{}, Validationf("page must be at least 1")
	}
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return PagedPosts{}, Validationf("page_size must be between 1 and %d", MaxPageSize)
	}

	key := cache.PostsPageKey(page, pageSize)

	var cached PagedPosts
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	posts, total, err := s.posts.ListPaged(ctx, page, pageSize)
	if err != nil {
		return PagedPosts{}, fmt.Errorf("list posts: %w", err)
	}

	result := PagedPosts{
		Items:      posts,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: total,
		TotalPages: int((total + int64(pageSize) - 1) / int64(pageSize)),
	}
	if result.Items == nil {
		result.Items = []storage.Post{}
	}

	s.cache.Set(ctx, key, result, listCacheTTL)

	return result, nil
}

// Update rewrites a post's content fields. The slug is re-derived from
// the new title; the post's own current slug never counts as a collision.
func (s *PostService) Update(ctx context.Context, id uuid.UUID, in PostInput) (storage.Post, error) {
	if err := validatePostInput(in); err != nil {
		return storage.Post{}, err
	}

	existing, err := s.posts.GetByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Post{}, NotFoundf("post %s not found", id)
	}
	if err != nil {
		return storage.Post{}, fmt.Errorf("load post: %w", err)
	}

	categories, err := s.resolveCategories(ctx, in.CategoryIDs)
	if err != nil {
		return storage.Post{}, err
	}

	postSlug, err := s.slugFor(ctx, in.Title, id)
	if err != nil {
		return storage.Post{}, err
	}

	existing.Title = in.Title
	existing.Content = in.Content
	existing.Slug = postSlug
	existing.Categories = categories

	updated, err := s.posts.Update(ctx, existing)
	if errors.Is(err, storage.ErrDuplicateSlug) {
		return storage.Post{}, Conflictf("slug %q is already in use", postSlug)
	}
	if err != nil {
		return storage.Post{}, fmt.Errorf("update post: %w", err)
	}

	s.cache.DeletePattern(ctx, cache.AllPostsPattern())
	s.logger.Info("post updated", "post_id", updated.ID, "slug", updated.Slug)

	return updated, nil
}

// Delete removes a post.
func (s *PostService) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.posts.Delete(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return NotFoundf("post %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}

	s.cache.DeletePattern(ctx, cache.AllPostsPattern())
	s.logger.Info("post deleted", "post_id", id)

	return nil
}

// Publish marks a post as published. Publishing an already published
// post is a no-op and keeps the original publication time.
func (s *PostService) Publish(ctx context.Context, id uuid.UUID) (storage.Post, error) {
	post, err := s.posts.GetByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Post{}, NotFoundf("post %s not found", id)
	}
	if err != nil {
		return storage.Post{}, fmt.Errorf("load post: %w", err)
	}
	if post.IsPublished {
		return post, nil
	}

	publishedAt := s.now().UTC()
	if err := s.posts.SetPublished(ctx, id, true, &publishedAt); err != nil {
		return storage.Post{}, fmt.Errorf("publish post: %w", err)
	}

	post.IsPublished = true
	post.PublishedAt = &publishedAt

	s.cache.DeletePattern(ctx, cache.AllPostsPattern())
	s.logger.Info("post published", "post_id", id, "slug", post.Slug)

	return post, nil
}

// Unpublish reverts a post to draft. Unpublishing a draft is a no-op.
func (s *PostService) Unpublish(ctx context.Context, id uuid.UUID) (storage.Post, error) {
	post, err := s.posts.GetByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Post{}, NotFoundf("post %s not found", id)
	}
	if err != nil {
		return storage.Post{}, fmt.Errorf("load post: %w", err)
	}
	if !post.IsPublished {
		return post, nil
	}

	if err := s.posts.SetPublished(ctx, id, false, nil); err != nil {
		return storage.Post{}, fmt.Errorf("unpublish post: %w", err)
	}

	post.IsPublished = false
	post.PublishedAt = nil

	s.cache.DeletePattern(ctx, cache.AllPostsPattern())
	s.logger.Info("post unpublished", "post_id", id, "slug", post.Slug)

	return post, nil
}

// slugFor derives a unique slug from a title, mapping generation
// failures to validation errors the caller can present.
func (s *PostService) slugFor(ctx context.Context, title string, excludeID uuid.UUID) (string, error) {
	base, err := slug.Generate(title)
	if errors.Is(err, slug.ErrEmptyText) || errors.Is(err, slug.ErrNoAlphanumeric) {
		return "", Validationf("cannot derive a slug from the title")
	}
	if err != nil {
		return "", fmt.Errorf("generate slug: %w", err)
	}

	unique, err := s.slugs.Unique(ctx, base, excludeID)
	if err != nil {
		return "", fmt.Errorf("unique slug: %w", err)
	}

	return unique, nil
}

// resolveCategories loads and verifies every requested category.
// Duplicate ids in the request collapse to one.
func (s *PostService) resolveCategories(ctx context.Context, ids []uuid.UUID) ([]storage.Category, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	seen := make(map[uuid.UUID]struct{}, len(ids))
	unique := ids[:0:0]
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	categories, err := s.categories.GetManyByIDs(ctx, unique)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	if len(categories) != len(unique) {
		return nil, Validationf("one or more categories do not exist")
	}

	return categories, nil
}
