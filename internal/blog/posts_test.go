package blog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vittordeaguiar/blog-api/internal/storage"
)

// memPosts is an in-memory PostRepository that counts calls so tests
// can assert cache hits.
type memPosts struct {
	posts     map[uuid.UUID]storage.Post
	getCalls  int
	listCalls int
	setPubs   int
	createErr error
	updateErr error
}

func newMemPosts() *memPosts {
	return &memPosts{posts: make(map[uuid.UUID]storage.Post)}
}

func (m *memPosts) Create(_ context.Context, post storage.Post) (storage.Post, error) {
	if m.createErr != nil {
		return storage.Post{}, m.createErr
	}
	post.CreatedAt = time.Now()
	post.UpdatedAt = post.CreatedAt
	m.posts[post.ID] = post
	return post, nil
}

func (m *memPosts) GetByID(_ context.Context, id uuid.UUID) (storage.Post, error) {
	m.getCalls++
	post, ok := m.posts[id]
	if !ok {
		return storage.Post{}, storage.ErrNotFound
	}
	return post, nil
}

func (m *memPosts) GetBySlug(_ context.Context, slug string) (storage.Post, error) {
	m.getCalls++
	for _, post := range m.posts {
		if post.Slug == slug {
			return post, nil
		}
	}
	return storage.Post{}, storage.ErrNotFound
}

func (m *memPosts) ListPaged(_ context.Context, page, pageSize int) ([]storage.Post, int64, error) {
	m.listCalls++
	var all []storage.Post
	for _, post := range m.posts {
		all = append(all, post)
	}
	total := int64(len(all))
	start := (page - 1) * pageSize
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (m *memPosts) Update(_ context.Context, post storage.Post) (storage.Post, error) {
	if m.updateErr != nil {
		return storage.Post{}, m.updateErr
	}
	if _, ok := m.posts[post.ID]; !ok {
		return storage.Post{}, storage.ErrNotFound
	}
	post.UpdatedAt = time.Now()
	m.posts[post.ID] = post
	return post, nil
}

func (m *memPosts) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.posts[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.posts, id)
	return nil
}

func (m *memPosts) SetPublished(_ context.Context, id uuid.UUID, published bool, publishedAt *time.Time) error {
	m.setPubs++
	post, ok := m.posts[id]
	if !ok {
		return storage.ErrNotFound
	}
	post.IsPublished = published
	post.PublishedAt = publishedAt
	m.posts[id] = post
	return nil
}

type memCategories struct {
	byID map[uuid.UUID]storage.Category
}

func (m *memCategories) GetManyByIDs(_ context.Context, ids []uuid.UUID) ([]storage.Category, error) {
	var out []storage.Category
	for _, id := range ids {
		if c, ok := m.byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

type memUsers struct {
	byID map[uuid.UUID]storage.User
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (storage.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return storage.User{}, storage.ErrNotFound
	}
	return u, nil
}

// passSlugs returns the base unchanged and records the exclude id it
// was called with.
type passSlugs struct {
	lastBase    string
	lastExclude uuid.UUID
	err         error
}

func (f *passSlugs) Unique(_ context.Context, base string, excludeID uuid.UUID) (string, error) {
	f.lastBase = base
	f.lastExclude = excludeID
	if f.err != nil {
		return "", f.err
	}
	return base, nil
}

// memCache is a JSON-backed in-memory Cache that records invalidations.
type memCache struct {
	entries  map[string][]byte
	patterns []string
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]byte)}
}

func (c *memCache) Get(_ context.Context, key string, dest any) bool {
	raw, ok := c.entries[key]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dest) == nil
}

func (c *memCache) Set(_ context.Context, key string, value any, _ time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.entries[key] = raw
}

func (c *memCache) Delete(_ context.Context, keys ...string) {
	for _, key := range keys {
		delete(c.entries, key)
	}
}

func (c *memCache) DeletePattern(_ context.Context, pattern string) {
	c.patterns = append(c.patterns, pattern)
	c.entries = make(map[string][]byte)
}

func (c *memCache) Close() error { return nil }

type postFixture struct {
	svc        *PostService
	posts      *memPosts
	cache      *memCache
	slugs      *passSlugs
	authorID   uuid.UUID
	categoryID uuid.UUID
}

func newPostFixture(t *testing.T) *postFixture {
	t.Helper()

	authorID := uuid.New()
	categoryID := uuid.New()

	posts := newMemPosts()
	categories := &memCategories{byID: map[uuid.UUID]storage.Category{
		categoryID: {ID: categoryID, Name: "Go", Slug: "go"},
	}}
	users := &memUsers{byID: map[uuid.UUID]storage.User{
		authorID: {ID: authorID, Name: "Ada", Email: "ada@example.com", Role: "author"},
	}}
	slugs := &passSlugs{}
	c := newMemCache()

	return &postFixture{
		svc:        NewPostService(posts, categories, users, slugs, c, nil),
		posts:      posts,
		cache:      c,
		slugs:      slugs,
		authorID:   authorID,
		categoryID: categoryID,
	}
}

func TestCreatePost(t *testing.T) {
	f := newPostFixture(t)

	in := PostInput{
		Title:       "Meu Post Incrível!",
		Content:     "long enough content",
		CategoryIDs: []uuid.UUID{f.categoryID},
	}

	post, err := f.svc.Create(context.Background(), in, f.authorID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if post.Slug != "meu-post-incrivel" {
		t.Errorf("slug = %q, want %q", post.Slug, "meu-post-incrivel")
	}
	if post.IsPublished {
		t.Error("new posts must start as drafts")
	}
	if post.AuthorName != "Ada" {
		t.Errorf("author name = %q, want %q", post.AuthorName, "Ada")
	}
	if len(post.Categories) != 1 || post.Categories[0].ID != f.categoryID {
		t.Errorf("categories = %+v, want the requested category", post.Categories)
	}
	if len(f.cache.patterns) == 0 {
		t.Error("Create must invalidate cached post keys")
	}
}

func TestCreatePostValidation(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   PostInput
	}{
		{"empty title", PostInput{Title: "  ", Content: "long enough content"}},
		{"title too short", PostInput{Title: "ab", Content: "long enough content"}},
		{"content too short", PostInput{Title: "A Valid Title", Content: "short"}},
		{"no slug material", PostInput{Title: "!!!", Content: "long enough content"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.in, f.authorID)
			if kind, ok := KindOf(err); !ok || kind != KindValidation {
				t.Fatalf("err = %v, want a validation error", err)
			}
		})
	}
}

func TestCreatePostUnknownAuthor(t *testing.T) {
	f := newPostFixture(t)

	in := PostInput{Title: "A Valid Title", Content: "long enough content"}
	_, err := f.svc.Create(context.Background(), in, uuid.New())
	if kind, ok := KindOf(err); !ok || kind != KindValidation {
		t.Fatalf("err = %v, want a validation error for an unknown author", err)
	}
}

func TestCreatePostUnknownCategory(t *testing.T) {
	f := newPostFixture(t)

	in := PostInput{
		Title:       "A Valid Title",
		Content:     "long enough content",
		CategoryIDs: []uuid.UUID{uuid.New()},
	}
	_, err := f.svc.Create(context.Background(), in, f.authorID)
	if kind, ok := KindOf(err); !ok || kind != KindValidation {
		t.Fatalf("err = %v, want a validation error for an unknown category", err)
	}
}

func TestCreatePostSlugConflict(t *testing.T) {
	f := newPostFixture(t)
	f.posts.createErr = storage.ErrDuplicateSlug

	in := PostInput{Title: "A Valid Title", Content: "long enough content"}
	_, err := f.svc.Create(context.Background(), in, f.authorID)
	if kind, ok := KindOf(err); !ok || kind != KindConflict {
		t.Fatalf("err = %v, want a conflict error", err)
	}
}

func TestGetPostByIDCaches(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, PostInput{Title: "A Valid Title", Content: "long enough content"}, f.authorID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	f.posts.getCalls = 0

	if _, err := f.svc.GetByID(ctx, created.ID); err != nil {
		t.Fatalf("first GetByID: %v", err)
	}
	got, err := f.svc.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("second GetByID: %v", err)
	}

	if f.posts.getCalls != 1 {
		t.Errorf("store hit %d times, want 1 (second read from cache)", f.posts.getCalls)
	}
	if got.ID != created.ID || got.Slug != created.Slug {
		t.Errorf("cached post = %+v, want the created one", got)
	}
}

func TestGetPostNotFound(t *testing.T) {
	f := newPostFixture(t)

	_, err := f.svc.GetByID(context.Background(), uuid.New())
	if kind, ok := KindOf(err); !ok || kind != KindNotFound {
		t.Fatalf("err = %v, want a not-found error", err)
	}

	_, err = f.svc.GetBySlug(context.Background(), "missing-slug")
	if kind, ok := KindOf(err); !ok || kind != KindNotFound {
		t.Fatalf("err = %v, want a not-found error", err)
	}
}

func TestListPosts(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		f.slugs.lastBase = ""
		in := PostInput{Title: fmt.Sprintf("A Valid Title %d", i), Content: "long enough content"}
		if _, err := f.svc.Create(ctx, in, f.authorID); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}

	page, err := f.svc.List(ctx, 1, 3)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Items) != 3 || page.TotalItems != 5 || page.TotalPages != 2 {
		t.Fatalf("page = %d items, total %d, pages %d; want 3/5/2",
			len(page.Items), page.TotalItems, page.TotalPages)
	}

	// A repeat read must come from the cache.
	f.posts.listCalls = 0
	if _, err := f.svc.List(ctx, 1, 3); err != nil {
		t.Fatalf("cached List: %v", err)
	}
	if f.posts.listCalls != 0 {
		t.Errorf("store list hit %d times, want 0", f.posts.listCalls)
	}
}

func TestListPostsBounds(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	if _, err := f.svc.List(ctx, 0, 10); err == nil {
		t.Error("page 0 must be rejected")
	}
	if _, err := f.svc.List(ctx, 1, MaxPageSize+1); err == nil {
		t.Errorf("page size above %d must be rejected", MaxPageSize)
	}

	page, err := f.svc.List(ctx, 1, 0)
	if err != nil {
		t.Fatalf("List with default size: %v", err)
	}
	if page.PageSize != DefaultPageSize {
		t.Errorf("page size = %d, want default %d", page.PageSize, DefaultPageSize)
	}
	if page.Items == nil {
		t.Error("empty pages must serialize as [], not null")
	}
}

func TestUpdatePostExcludesOwnSlug(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, PostInput{Title: "A Valid Title", Content: "long enough content"}, f.authorID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := f.svc.Update(ctx, created.ID, PostInput{Title: "A Renamed Title", Content: "still long enough"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if updated.Slug != "a-renamed-title" {
		t.Errorf("slug = %q, want re-derived from the new title", updated.Slug)
	}
	if f.slugs.lastExclude != created.ID {
		t.Errorf("exclude id = %s, want the updated post's own id", f.slugs.lastExclude)
	}
}

func TestUpdatePostNotFound(t *testing.T) {
	f := newPostFixture(t)

	_, err := f.svc.Update(context.Background(), uuid.New(),
		PostInput{Title: "A Valid Title", Content: "long enough content"})
	if kind, ok := KindOf(err); !ok || kind != KindNotFound {
		t.Fatalf("err = %v, want a not-found error", err)
	}
}

func TestDeletePost(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, PostInput{Title: "A Valid Title", Content: "long enough content"}, f.authorID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := f.svc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	err = f.svc.Delete(ctx, created.ID)
	if kind, ok := KindOf(err); !ok || kind != KindNotFound {
		t.Fatalf("second delete err = %v, want not-found", err)
	}
}

func TestPublishIdempotent(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return fixed }

	created, err := f.svc.Create(ctx, PostInput{Title: "A Valid Title", Content: "long enough content"}, f.authorID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	published, err := f.svc.Publish(ctx, created.ID)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !published.IsPublished || published.PublishedAt == nil || !published.PublishedAt.Equal(fixed) {
		t.Fatalf("published = %+v, want published at %v", published, fixed)
	}

	// Publishing again must keep the original time and skip the write.
	f.svc.now = func() time.Time { return fixed.Add(time.Hour) }
	writes := f.posts.setPubs

	again, err := f.svc.Publish(ctx, created.ID)
	if err != nil {
		t.Fatalf("second Publish: %v", err)
	}
	if !again.PublishedAt.Equal(fixed) {
		t.Errorf("published_at = %v, want the original %v", again.PublishedAt, fixed)
	}
	if f.posts.setPubs != writes {
		t.Error("second publish must not rewrite the row")
	}
}

func TestUnpublish(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, PostInput{Title: "A Valid Title", Content: "long enough content"}, f.authorID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.svc.Publish(ctx, created.ID); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	draft, err := f.svc.Unpublish(ctx, created.ID)
	if err != nil {
		t.Fatalf("Unpublish: %v", err)
	}
	if draft.IsPublished || draft.PublishedAt != nil {
		t.Fatalf("draft = %+v, want unpublished with no timestamp", draft)
	}

	// Unpublishing a draft is a no-op.
	writes := f.posts.setPubs
	if _, err := f.svc.Unpublish(ctx, created.ID); err != nil {
		t.Fatalf("second Unpublish: %v", err)
	}
	if f.posts.setPubs != writes {
		t.Error("second unpublish must not rewrite the row")
	}
}

func TestSlugGenerationFailurePropagates(t *testing.T) {
	f := newPostFixture(t)
	f.slugs.err = errors.New("redis down")

	_, err := f.svc.Create(context.Background(),
		PostInput{Title: "A Valid Title", Content: "long enough content"}, f.authorID)
	if err == nil {
		t.Fatal("expected an error when uniqueness probing fails")
	}
	if _, ok := KindOf(err); ok {
		t.Fatalf("err = %v, want a plain internal error, not a domain kind", err)
	}
}
