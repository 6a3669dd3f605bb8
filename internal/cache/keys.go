package cache

import (
	"fmt"

	"github.com/google/uuid"
)

// Key construction is centralized here so invalidation patterns and
// read keys can never drift apart.

const (
	postsPrefix      = "posts"
	categoriesPrefix = "categories"
)

// PostsPageKey is the cache key for one page of the post listing.
func PostsPageKey(page, pageSize int) string {
	return fmt.Sprintf("%s:page:%d:%d", postsPrefix, page, pageSize)
}

// PostByIDKey is the cache key for a single post looked up by id.
func PostByIDKey(id uuid.UUID) string {
	return fmt.Sprintf("%s:id:%s", postsPrefix, id)
}

// PostBySlugKey is the cache key for a single post looked up by slug.
func PostBySlugKey(slug string) string {
	return fmt.Sprintf("%s:slug:%s", postsPrefix, slug)
}

// AllPostsPattern matches every post-related cache key.
func AllPostsPattern() string {
	return postsPrefix + ":*"
}

// CategoriesKey is the cache key for the full category listing.
func CategoriesKey() string {
	return categoriesPrefix + ":all"
}

// AllCategoriesPattern matches every category-related cache key.
func AllCategoriesPattern() string {
	return categoriesPrefix + ":*"
}
