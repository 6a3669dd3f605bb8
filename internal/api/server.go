package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vittordeaguiar/blog-api/internal/auth"
	"github.com/vittordeaguiar/blog-api/internal/blog"
	"github.com/vittordeaguiar/blog-api/internal/httputil"
	"github.com/vittordeaguiar/blog-api/internal/ratelimit"
)

// Server holds the handlers' dependencies and builds the router.
type Server struct {
	posts      PostService
	categories CategoryService
	auth       AuthService
	tokens     *auth.TokenIssuer
	stats      StatsProvider
	broker     *EventBroker
	rateLimit  *ratelimit.Middleware
	loginGuard *ratelimit.LocalLimiter
	loginKey   func(*http.Request) (string, bool)
	logger     *slog.Logger
}

// ServerConfig wires a Server. Posts, Categories, Auth and Tokens are
// required; the rest degrade gracefully when absent.
type ServerConfig struct {
	Posts      PostService
	Categories CategoryService
	Auth       AuthService
	Tokens     *auth.TokenIssuer
	Stats      StatsProvider
	Broker     *EventBroker
	RateLimit  *ratelimit.Middleware
	LoginGuard *ratelimit.LocalLimiter
	TrustProxy bool
	Logger     *slog.Logger
}

// NewServer creates a Server from its dependencies.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		posts:      cfg.Posts,
		categories: cfg.Categories,
		auth:       cfg.Auth,
		tokens:     cfg.Tokens,
		stats:      cfg.Stats,
		broker:     cfg.Broker,
		rateLimit:  cfg.RateLimit,
		loginGuard: cfg.LoginGuard,
		loginKey:   ratelimit.ClientIPKey(cfg.TrustProxy),
		logger:     logger,
	}
}

// Router builds the full route table. Rate limiting wraps everything
// except the health check; auth middleware wraps the write surfaces.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	v1.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)

	v1.HandleFunc("/posts", s.handleListPosts).Methods(http.MethodGet)
	v1.HandleFunc("/posts/slug/{slug}", s.handleGetPostBySlug).Methods(http.MethodGet)
	v1.HandleFunc("/posts/{id}", s.handleGetPost).Methods(http.MethodGet)

	v1.HandleFunc("/categories", s.handleListCategories).Methods(http.MethodGet)
	v1.HandleFunc("/categories/{id}", s.handleGetCategory).Methods(http.MethodGet)

	authed := v1.NewRoute().Subrouter()
	authed.Use(s.tokens.RequireAuth)
	authed.HandleFunc("/posts", s.handleCreatePost).Methods(http.MethodPost)
	authed.HandleFunc("/posts/{id}", s.handleUpdatePost).Methods(http.MethodPut)
	authed.HandleFunc("/posts/{id}", s.handleDeletePost).Methods(http.MethodDelete)
	authed.HandleFunc("/posts/{id}/publish", s.handlePublishPost).Methods(http.MethodPost)
	authed.HandleFunc("/posts/{id}/unpublish", s.handleUnpublishPost).Methods(http.MethodPost)

	admin := v1.PathPrefix("/admin").Subrouter()
	admin.Use(s.tokens.RequireAuth, auth.RequireRole(auth.RoleAdmin))
	admin.HandleFunc("/stats/overview", s.handleStatsOverview).Methods(http.MethodGet)
	admin.HandleFunc("/stats/top-blocked", s.handleStatsTopBlocked).Methods(http.MethodGet)
	admin.HandleFunc("/stats/policies", s.handleStatsPolicies).Methods(http.MethodGet)
	admin.HandleFunc("/stats/timeline", s.handleStatsTimeline).Methods(http.MethodGet)
	admin.Handle("/events", NewEventStreamHandler(s.broker)).Methods(http.MethodGet)

	adminCategories := v1.NewRoute().Subrouter()
	adminCategories.Use(s.tokens.RequireAuth, auth.RequireRole(auth.RoleAdmin))
	adminCategories.HandleFunc("/categories", s.handleCreateCategory).Methods(http.MethodPost)
	adminCategories.HandleFunc("/categories/{id}", s.handleDeleteCategory).Methods(http.MethodDelete)

	if s.rateLimit == nil {
		return r
	}

	limited := s.rateLimit.Wrap(r)
	outer := http.NewServeMux()
	outer.Handle("/health", r) // health stays reachable under load shedding
	outer.Handle("/", limited)

	return outer
}

// writeServiceError maps domain error kinds onto HTTP status codes.
// Anything without a kind is an internal failure and is not echoed to
// the client.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	if kind, ok := blog.KindOf(err); ok {
		status := http.StatusInternalServerError
		switch kind {
		case blog.KindValidation:
			status = http.StatusBadRequest
		case blog.KindNotFound:
			status = http.StatusNotFound
		case blog.KindConflict:
			status = http.StatusConflict
		case blog.KindUnauthorized:
			status = http.StatusUnauthorized
		}
		httputil.WriteError(w, status, err.Error())
		return
	}

	s.logger.Error("request failed", "error", err)
	httputil.WriteError(w, http.StatusInternalServerError, "internal server error")
}
