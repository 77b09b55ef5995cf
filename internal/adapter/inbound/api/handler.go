package api

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loomchat/loomchat/internal/domain/ratelimit"
	"github.com/loomchat/loomchat/internal/service"
)

// Handler wires every HTTP route to its service.
type Handler struct {
	auth        *service.AuthService
	chat        *service.ChatService
	attachments *service.AttachmentService
	analytics   *service.AnalyticsService
	admin       *service.AdminService
	stats       *service.StatsService

	limiter ratelimit.RateLimiter
	policy  *ratelimit.TierPolicy
	metrics *Metrics
	health  *HealthChecker
	logger  *slog.Logger

	registry *prometheus.Registry
	origins  []string
}

// Option configures a Handler.
type Option func(*Handler)

// WithRateLimiter enables rate limiting with the given limiter and policy.
func WithRateLimiter(limiter ratelimit.RateLimiter, policy *ratelimit.TierPolicy) Option {
	return func(h *Handler) {
		h.limiter = limiter
		h.policy = policy
	}
}

// WithAllowedOrigins sets the CORS allowlist.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Handler) {
		h.origins = origins
	}
}

// WithHealthChecker sets the /health implementation.
func WithHealthChecker(hc *HealthChecker) Option {
	return func(h *Handler) {
		h.health = hc
	}
}

// NewHandler creates the API handler. The prometheus registry gains the Go
// and process collectors next to the API metrics.
func NewHandler(
	auth *service.AuthService,
	chat *service.ChatService,
	attachments *service.AttachmentService,
	analytics *service.AnalyticsService,
	admin *service.AdminService,
	stats *service.StatsService,
	logger *slog.Logger,
	opts ...Option,
) *Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	h := &Handler{
		auth:        auth,
		chat:        chat,
		attachments: attachments,
		analytics:   analytics,
		admin:       admin,
		stats:       stats,
		policy:      ratelimit.DefaultPolicy(),
		metrics:     NewMetrics(registry),
		logger:      logger,
		registry:    registry,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.health == nil {
		h.health = NewHealthChecker("dev")
	}
	return h
}

// Routes returns the full route tree wrapped in the middleware chain:
// Metrics → RequestID → RealIP → CORS, with auth and rate limiting applied
// per route.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// Anonymous, auth-class. Rate limited by client IP.
	mux.HandleFunc("POST /api/auth/signup", h.rateLimit(ratelimit.ClassAuth, h.handleSignup))
	mux.HandleFunc("POST /api/auth/login", h.rateLimit(ratelimit.ClassAuth, h.handleLogin))
	mux.HandleFunc("POST /api/auth/refresh", h.rateLimit(ratelimit.ClassAuth, h.handleRefresh))
	mux.HandleFunc("POST /api/auth/logout", h.requireAuth(h.handleLogout))

	// Authenticated API surface.
	mux.HandleFunc("GET /api/me", h.requireAuth(h.rateLimit(ratelimit.ClassAPI, h.handleMe)))
	mux.HandleFunc("GET /api/models", h.requireAuth(h.rateLimit(ratelimit.ClassAPI, h.handleModels)))
	mux.HandleFunc("POST /api/chat", h.requireAuth(h.rateLimit(ratelimit.ClassChat, h.handleChat)))

	mux.HandleFunc("GET /api/conversations", h.requireAuth(h.rateLimit(ratelimit.ClassAPI, h.handleListConversations)))
	mux.HandleFunc("POST /api/conversations", h.requireAuth(h.rateLimit(ratelimit.ClassAPI, h.handleCreateConversation)))
	mux.HandleFunc("GET /api/conversations/{id}", h.requireAuth(h.rateLimit(ratelimit.ClassAPI, h.handleGetConversation)))
	mux.HandleFunc("DELETE /api/conversations/{id}", h.requireAuth(h.rateLimit(ratelimit.ClassAPI, h.handleDeleteConversation)))
	mux.HandleFunc("GET /api/conversations/{id}/messages", h.requireAuth(h.rateLimit(ratelimit.ClassAPI, h.handleListMessages)))
	mux.HandleFunc("GET /api/sync", h.requireAuth(h.rateLimit(ratelimit.ClassAPI, h.handleSync)))

	mux.HandleFunc("POST /api/attachments", h.requireAuth(h.rateLimit(ratelimit.ClassUpload, h.handleUpload)))
	mux.HandleFunc("GET /api/attachments/{id}", h.requireAuth(h.rateLimit(ratelimit.ClassAPI, h.handleGetAttachment)))

	mux.HandleFunc("GET /api/usage", h.requireAuth(h.rateLimit(ratelimit.ClassAPI, h.handleMyUsage)))

	// Admin surface.
	mux.HandleFunc("GET /admin/api/stats", h.requireAdmin(h.handleStats))
	mux.HandleFunc("GET /admin/api/usage/models", h.requireAdmin(h.handleUsageModels))
	mux.HandleFunc("GET /admin/api/usage/top-users", h.requireAdmin(h.handleTopUsers))
	mux.HandleFunc("GET /admin/api/users", h.requireAdmin(h.handleListUsers))
	mux.HandleFunc("PUT /admin/api/users/{id}", h.requireAdmin(h.handleUpdateUser))

	// Operational endpoints, open.
	mux.Handle("GET /health", h.health.Handler())
	mux.Handle("GET /metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))

	var handler http.Handler = mux
	handler = CORSMiddleware(h.origins)(handler)
	handler = RealIPMiddleware(handler)
	handler = RequestIDMiddleware(h.logger)(handler)
	handler = MetricsMiddleware(h.metrics)(handler)
	return handler
}
