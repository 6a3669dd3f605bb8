// Package api assembles the HTTP surface of the blog: public content
// routes, authenticated author routes and the admin dashboard.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/vittordeaguiar/blog-api/internal/auth"
	"github.com/vittordeaguiar/blog-api/internal/blog"
	"github.com/vittordeaguiar/blog-api/internal/httputil"
	"github.com/vittordeaguiar/blog-api/internal/storage"
)

// PostService is the application surface the post handlers call.
// *blog.PostService satisfies it.
type PostService interface {
	Create(ctx context.Context, in blog.PostInput, authorID uuid.UUID) (storage.Post, error)
	GetByID(ctx context.Context, id uuid.UUID) (storage.Post, error)
	GetBySlug(ctx context.Context, slug string) (storage.Post, error)
	List(ctx context.Context, page, pageSize int) (blog.PagedPosts, error)
	Update(ctx context.Context, id uuid.UUID, in blog.PostInput) (storage.Post, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Publish(ctx context.Context, id uuid.UUID) (storage.Post, error)
	Unpublish(ctx context.Context, id uuid.UUID) (storage.Post, error)
}

// CategoryService is the application surface the category handlers call.
type CategoryService interface {
	Create(ctx context.Context, in blog.CategoryInput) (storage.Category, error)
	List(ctx context.Context) ([]storage.Category, error)
	GetByID(ctx context.Context, id uuid.UUID) (storage.Category, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// AuthService is the application surface the auth handlers call.
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (storage.User, error)
	Login(ctx context.Context, creds auth.Credentials) (string, storage.User, error)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if err := httputil.Decode(w, r, &in); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.auth.Register(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.loginGuard != nil {
		key, _ := s.loginKey(r)
		if !s.loginGuard.Allow(key) {
			httputil.WriteError(w, http.StatusTooManyRequests, "too many login attempts")
			return
		}
	}

	var creds auth.Credentials
	if err := httputil.Decode(w, r, &creds); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, user, err := s.auth.Login(r.Context(), creds)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  user,
	})
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	page, err := parseIntQuery(r, "page", 1)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	pageSize, err := parseIntQuery(r, "page_size", 0)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.posts.List(r.Context(), page, pageSize)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	post, err := s.posts.GetByID(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, post)
}

func (s *Server) handleGetPostBySlug(w http.ResponseWriter, r *http.Request) {
	post, err := s.posts.GetBySlug(r.Context(), mux.Vars(r)["slug"])
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, post)
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	var in blog.PostInput
	if err := httputil.Decode(w, r, &in); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	post, err := s.posts.Create(r.Context(), in, identity.UserID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, post)
}

func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if !s.authorizePostWrite(w, r, id) {
		return
	}

	var in blog.PostInput
	if err := httputil.Decode(w, r, &in); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	post, err := s.posts.Update(r.Context(), id, in)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, post)
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if !s.authorizePostWrite(w, r, id) {
		return
	}

	if err := s.posts.Delete(r.Context(), id); err != nil {
		s.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePublishPost(w http.ResponseWriter, r *http.Request) {
	s.handleSetPublished(w, r, s.posts.Publish)
}

func (s *Server) handleUnpublishPost(w http.ResponseWriter, r *http.Request) {
	s.handleSetPublished(w, r, s.posts.Unpublish)
}

func (s *Server) handleSetPublished(w http.ResponseWriter, r *http.Request,
	op func(context.Context, uuid.UUID) (storage.Post, error)) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if !s.authorizePostWrite(w, r, id) {
		return
	}

	post, err := op(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, post)
}

// authorizePostWrite allows admins to modify any post and authors only
// their own. It writes the error response when the check fails.
func (s *Server) authorizePostWrite(w http.ResponseWriter, r *http.Request, id uuid.UUID) bool {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "missing bearer token")
		return false
	}
	if identity.Role == auth.RoleAdmin {
		return true
	}

	post, err := s.posts.GetByID(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return false
	}
	if post.AuthorID != identity.UserID {
		httputil.WriteError(w, http.StatusForbidden, "you can only modify your own posts")
		return false
	}

	return true
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.categories.List(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, categories)
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	category, err := s.categories.GetByID(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, category)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var in blog.CategoryInput
	if err := httputil.Decode(w, r, &in); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	category, err := s.categories.Create(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, category)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := s.categories.Delete(r.Context(), id); err != nil {
		s.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// pathID parses the {id} route variable, writing the error response
// when it is not a UUID.
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "id must be a valid UUID")
		return uuid.Nil, false
	}

	return id, true
}

func parseIntQuery(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}

	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errBadQuery(key + " must be an integer")
	}

	return parsed, nil
}
