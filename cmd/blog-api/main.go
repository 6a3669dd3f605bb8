package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vittordeaguiar/blog-api/internal/analytics"
	"github.com/vittordeaguiar/blog-api/internal/api"
	"github.com/vittordeaguiar/blog-api/internal/auth"
	"github.com/vittordeaguiar/blog-api/internal/blog"
	"github.com/vittordeaguiar/blog-api/internal/cache"
	"github.com/vittordeaguiar/blog-api/internal/config"
	"github.com/vittordeaguiar/blog-api/internal/ratelimit"
	"github.com/vittordeaguiar/blog-api/internal/slug"
	"github.com/vittordeaguiar/blog-api/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	// Redis backs both the response cache and the rate limit counters.
	// Without it the API still works: reads hit the database and rate
	// limiting is off.
	var responseCache cache.Cache = cache.NewNull()
	var redisCache *cache.Redis
	if cfg.RedisAddr != "" {
		redisCfg := cache.DefaultRedisConfig()
		redisCfg.Addr = cfg.RedisAddr

		redisCache, err = cache.NewRedis(ctx, redisCfg)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		responseCache = redisCache
		defer func() {
			if closeErr := redisCache.Close(); closeErr != nil {
				logger.Error("failed to close redis", "error", closeErr)
			}
		}()
	} else {
		logger.Warn("REDIS_ADDR not set, caching and rate limiting disabled")
	}

	postStore := storage.NewPostStore(db)
	categoryStore := storage.NewCategoryStore(db)
	userStore := storage.NewUserStore(db)

	postSlugs, err := slug.NewGenerator(postStore)
	if err != nil {
		log.Fatalf("failed to initialize slug generator: %v", err)
	}
	categorySlugs, err := slug.NewGenerator(categoryStore)
	if err != nil {
		log.Fatalf("failed to initialize slug generator: %v", err)
	}

	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret)
	if err != nil {
		log.Fatalf("failed to initialize token issuer: %v", err)
	}

	authService := auth.NewService(userStore, auth.NewHasher(cfg.BcryptCost), tokens, logger)
	postService := blog.NewPostService(postStore, categoryStore, userStore, postSlugs, responseCache, logger)
	categoryService := blog.NewCategoryService(categoryStore, categorySlugs, responseCache, logger)

	recorder, err := analytics.New(analytics.Config{DB: db, Logger: logger})
	if err != nil {
		log.Fatalf("failed to initialize analytics: %v", err)
	}
	statsService, err := analytics.NewQueryService(db)
	if err != nil {
		log.Fatalf("failed to initialize analytics queries: %v", err)
	}

	broker := api.NewEventBroker(64)

	var limitMiddleware *ratelimit.Middleware
	if cfg.RateLimitEnabled && redisCache != nil {
		limitMiddleware, err = buildRateLimiter(cfg, redisCache, tokens, broker, recorder, logger)
		if err != nil {
			log.Fatalf("failed to initialize rate limiter: %v", err)
		}
	}

	server := api.NewServer(api.ServerConfig{
		Posts:      postService,
		Categories: categoryService,
		Auth:       authService,
		Tokens:     tokens,
		Stats:      statsService,
		Broker:     broker,
		RateLimit:  limitMiddleware,
		LoginGuard: ratelimit.NewLocalLimiter(cfg.LoginRPS, cfg.LoginBurst),
		TrustProxy: cfg.TrustProxy,
		Logger:     logger,
	})

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("blog api listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := recorder.Close(shutdownCtx); err != nil {
		logger.Error("analytics shutdown error", "error", err)
	}
}

// buildRateLimiter wires the three sliding-window policies over the
// shared Redis pool and fans decisions out to the live stream and the
// analytics recorder.
func buildRateLimiter(cfg *config.Config, redisCache *cache.Redis, tokens *auth.TokenIssuer,
	broker *api.EventBroker, recorder *analytics.Recorder, logger *slog.Logger) (*ratelimit.Middleware, error) {
	store, err := ratelimit.NewRedisStore(redisCache.Client())
	if err != nil {
		return nil, err
	}

	newLimiter := func(policy config.PolicyConfig) (*ratelimit.Limiter, error) {
		return ratelimit.New(store, ratelimit.Config{Limit: policy.Limit, Window: policy.Window})
	}

	global, err := newLimiter(cfg.GlobalLimit)
	if err != nil {
		return nil, err
	}
	perIP, err := newLimiter(cfg.IPLimit)
	if err != nil {
		return nil, err
	}
	perUser, err := newLimiter(cfg.UserLimit)
	if err != nil {
		return nil, err
	}

	identify := func(r *http.Request) (string, bool) {
		identity, ok := tokens.IdentityFromRequest(r)
		if !ok {
			return "", false
		}
		return identity.UserID.String(), true
	}

	policies := []ratelimit.Policy{
		{Name: "global", Limiter: global, Key: ratelimit.GlobalKey()},
		{Name: "ip", Limiter: perIP, Key: ratelimit.ClientIPKey(cfg.TrustProxy)},
		{Name: "user", Limiter: perUser, Key: ratelimit.UserKey(identify)},
	}

	sink := func(event ratelimit.Event) {
		broker.Publish(api.StreamEvent{
			Timestamp: event.Timestamp,
			ClientKey: event.ClientKey,
			Policy:    event.Policy,
			Method:    event.Method,
			Path:      event.Path,
			Allowed:   event.Allowed,
			Status:    event.Status,
		})
		recorder.Record(analytics.Event{
			Timestamp: event.Timestamp,
			ClientKey: event.ClientKey,
			Policy:    event.Policy,
			Method:    event.Method,
			Path:      event.Path,
			Allowed:   event.Allowed,
			Status:    event.Status,
		})
	}

	logger.Info("rate limiting enabled",
		"global", cfg.GlobalLimit.Limit, "ip", cfg.IPLimit.Limit, "user", cfg.UserLimit.Limit)

	return ratelimit.NewMiddleware(policies, ratelimit.WithEventSink(sink)), nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
