package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vittordeaguiar/blog-api/internal/analytics"
	"github.com/vittordeaguiar/blog-api/internal/httputil"
)

const (
	defaultStatsWindow = 24 * time.Hour
	defaultTopLimit    = 10
	maxTopLimit        = 100
	defaultBucket      = 5 * time.Minute
	minBucket          = 1 * time.Minute
	maxBucket          = 24 * time.Hour
)

// StatsProvider exposes the analytics read models the admin API serves.
type StatsProvider interface {
	GetOverview(ctx context.Context, window time.Duration) (analytics.Overview, error)
	GetTopBlocked(ctx context.Context, window time.Duration, limit int) ([]analytics.TopBlockedClient, error)
	GetPolicyStats(ctx context.Context, window time.Duration) ([]analytics.PolicyStats, error)
	GetTimeline(ctx context.Context, window, bucket time.Duration) ([]analytics.TimelinePoint, error)
}

func (s *Server) handleStatsOverview(w http.ResponseWriter, r *http.Request) {
	window, ok := s.statsWindow(w, r)
	if !ok {
		return
	}

	result, err := s.stats.GetOverview(r.Context(), window)
	if err != nil {
		s.logger.Error("overview query failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to fetch overview stats")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"data": result})
}

func (s *Server) handleStatsTopBlocked(w http.ResponseWriter, r *http.Request) {
	window, ok := s.statsWindow(w, r)
	if !ok {
		return
	}

	limit, err := parseLimitQuery(r, defaultTopLimit, maxTopLimit)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.stats.GetTopBlocked(r.Context(), window, limit)
	if err != nil {
		s.logger.Error("top-blocked query failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to fetch top blocked clients")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"data": result})
}

func (s *Server) handleStatsPolicies(w http.ResponseWriter, r *http.Request) {
	window, ok := s.statsWindow(w, r)
	if !ok {
		return
	}

	result, err := s.stats.GetPolicyStats(r.Context(), window)
	if err != nil {
		s.logger.Error("policy stats query failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to fetch policy stats")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"data": result})
}

func (s *Server) handleStatsTimeline(w http.ResponseWriter, r *http.Request) {
	window, ok := s.statsWindow(w, r)
	if !ok {
		return
	}

	bucket, err := parseDurationQuery(r, "bucket", defaultBucket)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if bucket < minBucket || bucket > maxBucket {
		httputil.WriteError(w, http.StatusBadRequest, "bucket must be between 1m and 24h")
		return
	}

	result, err := s.stats.GetTimeline(r.Context(), window, bucket)
	if err != nil {
		s.logger.Error("timeline query failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to fetch timeline stats")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"data": result})
}

// statsWindow parses the shared window query parameter, writing the
// error response itself when parsing fails or no provider is wired.
func (s *Server) statsWindow(w http.ResponseWriter, r *http.Request) (time.Duration, bool) {
	if s.stats == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "analytics service unavailable")
		return 0, false
	}

	window, err := parseDurationQuery(r, "window", defaultStatsWindow)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}

	return window, true
}

func parseLimitQuery(r *http.Request, fallback, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return fallback, nil
	}

	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return 0, errBadQuery("limit must be a positive integer")
	}

	if parsed > max {
		return max, nil
	}

	return parsed, nil
}

func parseDurationQuery(r *http.Request, key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}

	parsed, err := parseFlexibleDuration(raw)
	if err != nil || parsed <= 0 {
		return 0, errBadQuery(key + " must be a valid positive duration (for example: 15m, 1h, 7d)")
	}

	return parsed, nil
}

// parseFlexibleDuration accepts the standard duration syntax plus a
// day suffix, which time.ParseDuration does not understand.
func parseFlexibleDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if strings.HasSuffix(raw, "d") {
		daysRaw := strings.TrimSuffix(raw, "d")
		days, err := strconv.Atoi(daysRaw)
		if err != nil {
			return 0, err
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}

	return time.ParseDuration(raw)
}

type badQueryError struct {
	message string
}

func (e badQueryError) Error() string {
	return e.message
}

func errBadQuery(message string) error {
	return badQueryError{message: message}
}
