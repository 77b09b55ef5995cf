package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/loomchat/loomchat/internal/adapter/inbound/api"
	"github.com/loomchat/loomchat/internal/adapter/outbound/memory"
	"github.com/loomchat/loomchat/internal/adapter/outbound/objstore"
	"github.com/loomchat/loomchat/internal/adapter/outbound/openrouter"
	"github.com/loomchat/loomchat/internal/adapter/outbound/redisstore"
	"github.com/loomchat/loomchat/internal/adapter/outbound/sqlstore"
	"github.com/loomchat/loomchat/internal/config"
	"github.com/loomchat/loomchat/internal/domain/ratelimit"
	"github.com/loomchat/loomchat/internal/domain/session"
	"github.com/loomchat/loomchat/internal/domain/usage"
	"github.com/loomchat/loomchat/internal/domain/user"
	"github.com/loomchat/loomchat/internal/observability"
	"github.com/loomchat/loomchat/internal/port/outbound"
	"github.com/loomchat/loomchat/internal/service"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the chat server",
	Long: `Start the Loomchat HTTP server.

The server migrates the database on boot, then serves the chat API on
server.addr. Sessions and rate limits live in Redis when redis.enabled
is set; otherwise they are kept in memory (single instance only).

Examples:
  # Start with config file settings
  loomchat start

  # Start in development mode (sqlite, in-memory everything, debug logs)
  loomchat start --dev

  # Start with a specific config file
  loomchat --config /path/to/loomchat.yaml start`,
	RunE: runStart,
}

var devMode bool

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (debug logging, relaxed validation)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	// Load configuration (without validation, so CLI flags can override first)
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Override dev mode from CLI flag
	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// Create signal context for graceful shutdown.
	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop() // Restore default: next Ctrl+C = immediate exit.
	}()

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("loomchat stopped")
	return nil
}

// run wires all components together and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.DevMode {
		logger.Warn("development mode enabled; do not use in production")
	}

	// ===== Tracing =====
	tracer, traceShutdown, err := observability.Setup(ctx, observability.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceVersion: Version,
		Writer:         os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = traceShutdown(shutdownCtx)
	}()

	// ===== Database (migrates on open) =====
	store, err := sqlstore.Open(ctx, sqlstore.Driver(cfg.Database.Driver), cfg.Database.DSN,
		sqlstore.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	userStore := sqlstore.NewUserStore(store)
	chatStore := sqlstore.NewChatStore(store)
	usageStore := sqlstore.NewUsageStore(store)

	// ===== Sessions and rate limiting: Redis or in-memory =====
	var (
		sessionStore session.SessionStore
		limiter      ratelimit.RateLimiter
		redisClient  *redis.Client
	)
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}

		sessionStore = redisstore.NewSessionStore(redisClient)
		if cfg.RateLimit.Enabled {
			limiter = redisstore.NewRateLimiter(redisClient, redisstore.WithLogger(logger))
		}
		logger.Info("redis backend enabled", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
	} else {
		memSessions := memory.NewSessionStore()
		memSessions.StartCleanup(ctx)
		defer memSessions.Stop()
		sessionStore = memSessions

		if cfg.RateLimit.Enabled {
			memLimiter := memory.NewRateLimiterWithConfig(
				config.Duration(cfg.RateLimit.CleanupInterval),
				config.Duration(cfg.RateLimit.MaxTTL),
			)
			memLimiter.StartCleanup(ctx)
			defer memLimiter.Stop()
			limiter = memLimiter
		}
		logger.Info("in-memory session and rate limit backend (single instance)")
	}

	// ===== Object storage =====
	var objects outbound.ObjectStore
	if cfg.Storage.Enabled {
		s3, err := objstore.NewS3Store(ctx, objstore.Config{
			Bucket:   cfg.Storage.Bucket,
			Region:   cfg.Storage.Region,
			Endpoint: cfg.Storage.Endpoint,
		})
		if err != nil {
			return fmt.Errorf("failed to create object store: %w", err)
		}
		objects = s3
		logger.Info("object storage enabled", "bucket", cfg.Storage.Bucket, "region", cfg.Storage.Region)
	} else {
		objects = memory.NewObjectStore()
		logger.Warn("object storage disabled; attachments are held in memory")
	}

	// ===== Pricing and model catalog =====
	pricing := usage.NewPricingTable()
	if cfg.Provider.PricingFile != "" {
		if err := pricing.LoadFile(cfg.Provider.PricingFile); err != nil {
			return fmt.Errorf("failed to load pricing file: %w", err)
		}
		logger.Info("loaded pricing overrides", "file", cfg.Provider.PricingFile)
	}

	models := make([]service.ModelSpec, len(cfg.Provider.Models))
	for i, m := range cfg.Provider.Models {
		models[i] = service.ModelSpec{
			ID:      m.ID,
			MinTier: user.Tier(m.MinTier),
		}
	}

	// ===== Completion provider =====
	providerOpts := []openrouter.Option{
		openrouter.WithBaseURL(cfg.Provider.BaseURL),
		openrouter.WithLogger(logger),
		openrouter.WithHTTPClient(&http.Client{
			Timeout: config.Duration(cfg.Provider.RequestTimeout),
		}),
	}
	if cfg.Provider.Referer != "" || cfg.Provider.Title != "" {
		providerOpts = append(providerOpts, openrouter.WithAttribution(cfg.Provider.Referer, cfg.Provider.Title))
	}
	client := openrouter.NewClient(cfg.Provider.APIKey, providerOpts...)

	// ===== Services =====
	sessionSvc := session.NewSessionService(sessionStore, session.Config{
		Timeout: config.Duration(cfg.Auth.SessionTTL),
	})
	issuer := session.NewTokenIssuer([]byte(cfg.Auth.JWTSecret), config.Duration(cfg.Auth.AccessTokenTTL))
	stats := service.NewStatsService()

	authSvc := service.NewAuthService(userStore, sessionSvc, issuer, stats, logger)
	chatSvc := service.NewChatService(chatStore, client, pricing, models, stats, logger, tracer)
	attachSvc := service.NewAttachmentService(chatStore, objects, service.AttachmentConfig{
		MaxUploadBytes:   cfg.Storage.MaxUploadBytes,
		AllowedMIMETypes: cfg.Storage.AllowedMIMETypes,
		PresignTTL:       config.Duration(cfg.Storage.PresignTTL),
	}, logger)
	analyticsSvc := service.NewAnalyticsService(usageStore)
	adminSvc := service.NewAdminService(userStore, logger)

	// ===== Health checks =====
	health := api.NewHealthChecker(Version)
	health.AddCheck("database", func(ctx context.Context) error {
		return store.DB().PingContext(ctx)
	})
	if redisClient != nil {
		health.AddCheck("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	// ===== HTTP handler and server =====
	handlerOpts := []api.Option{
		api.WithHealthChecker(health),
		api.WithAllowedOrigins(cfg.Server.AllowedOrigins),
	}
	if limiter != nil {
		handlerOpts = append(handlerOpts, api.WithRateLimiter(limiter, ratelimit.DefaultPolicy()))
	}
	handler := api.NewHandler(authSvc, chatSvc, attachSvc, analyticsSvc, adminSvc, stats, logger, handlerOpts...)

	logger.Info("loomchat starting",
		"version", Version,
		"addr", cfg.Server.Addr,
		"dev_mode", cfg.DevMode,
		"driver", cfg.Database.Driver,
		"redis", cfg.Redis.Enabled,
		"storage", cfg.Storage.Enabled,
		"rate_limit", cfg.RateLimit.Enabled,
		"models", len(models),
	)

	server := api.NewServer(handler.Routes(),
		api.WithAddr(cfg.Server.Addr),
		api.WithServerLogger(logger),
		api.WithTimeouts(
			config.Duration(cfg.Server.ReadTimeout),
			config.Duration(cfg.Server.WriteTimeout),
		),
	)
	return server.Start(ctx)
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
