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

const categoriesCacheTTL = 10 * time.Minute

// CategoryInput carries the caller-supplied fields of a category write.
type CategoryInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CategoryRepository is the persistence surface the category service
// needs. *storage.CategoryStore satisfies it.
type CategoryRepository interface {
	Create(ctx context.Context, category storage.Category) (storage.Category, error)
	List(ctx context.Context) ([]storage.Category, error)
	GetByID(ctx context.Context, id uuid.UUID) (storage.Category, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// CategoryService implements category management. Category slugs are
// derived from the name the same way post slugs are derived from titles.
type CategoryService struct {
	categories CategoryRepository
	slugs      SlugUniquer
	cache      cache.Cache
	logger     *slog.Logger
}

// NewCategoryService wires a category service. cache may be nil, in
// which case caching is disabled; logger may be nil.
func NewCategoryService(categories CategoryRepository, slugs SlugUniquer,
	c cache.Cache, logger *slog.Logger) *CategoryService {
	if c == nil {
		c = cache.NewNull()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &CategoryService{categories: categories, slugs: slugs, cache: c, logger: logger}
}

// Create validates the input, derives a unique slug from the name and
// stores the category.
func (s *CategoryService) Create(ctx context.Context, in CategoryInput) (storage.Category, error) {
	if err := validateCategoryInput(in); err != nil {
		return storage.Category{}, err
	}

	base, err := slug.Generate(in.Name)
	if errors.Is(err, slug.ErrEmptyText) || errors.Is(err, slug.ErrNoAlphanumeric) {
		return storage.Category{}, Validationf("cannot derive a slug from the name")
	}
	if err != nil {
		return storage.Category{}, fmt.Errorf("generate slug: %w", err)
	}

	categorySlug, err := s.slugs.Unique(ctx, base, uuid.Nil)
	if err != nil {
		return storage.Category{}, fmt.Errorf("unique slug: %w", err)
	}

	category := storage.Category{
		ID:          uuid.New(),
		Name:        in.Name,
		Slug:        categorySlug,
		Description: in.Description,
	}

	created, err := s.categories.Create(ctx, category)
	if errors.Is(err, storage.ErrDuplicateSlug) {
		return storage.Category{}, Conflictf("slug %q is already in use", categorySlug)
	}
	if err != nil {
		return storage.Category{}, fmt.Errorf("create category: %w", err)
	}

	s.cache.DeletePattern(ctx, cache.AllCategoriesPattern())
	s.logger.Info("category created", "category_id", created.ID, "slug", created.Slug)

	return created, nil
}

// List returns all categories, serving from cache when possible.
func (s *CategoryService) List(ctx context.Context) ([]storage.Category, error) {
	key := cache.CategoriesKey()

	var cached []storage.Category
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	if categories == nil {
		categories = []storage.Category{}
	}

	s.cache.Set(ctx, key, categories, categoriesCacheTTL)

	return categories, nil
}

// GetByID returns a single category.
func (s *CategoryService) GetByID(ctx context.Context, id uuid.UUID) (storage.Category, error) {
	category, err := s.categories.GetByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Category{}, NotFoundf("category %s not found", id)
	}
	if err != nil {
		return storage.Category{}, fmt.Errorf("get category: %w", err)
	}

	return category, nil
}

// Delete removes a category. Posts linked to it simply lose the link.
// Cached posts embed category data, so post keys are invalidated too.
func (s *CategoryService) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.categories.Delete(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return NotFoundf("category %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}

	s.cache.DeletePattern(ctx, cache.AllCategoriesPattern())
	s.cache.DeletePattern(ctx, cache.AllPostsPattern())
	s.logger.Info("category deleted", "category_id", id)

	return nil
}
