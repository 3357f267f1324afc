// Package app wires configuration, storage and HTTP handlers into one
// http.Handler shared by the long-running server and the serverless entry.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"panicless-backend/internal/auth"
	"panicless-backend/internal/config"
	"panicless-backend/internal/connector"
	"panicless-backend/internal/db"
	"panicless-backend/internal/httpx"
	"panicless-backend/internal/maintenance"
	"panicless-backend/internal/oauth"
	"panicless-backend/internal/observability"
	"panicless-backend/internal/vault"
)

type Options struct {
	LoadDotEnv bool
	// ForceMigrations runs migrations even when RUN_MIGRATIONS_ON_STARTUP
	// is off.
	ForceMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Logger  *observability.Logger
	Config  config.Config
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	cfg, err := config.Load(config.Options{LoadDotEnv: options.LoadDotEnv})
	if err != nil {
		return nil, err
	}

	logger, err := observability.NewLogger(observability.LogConfig{
		Level:   cfg.LogLevel,
		Pretty:  !cfg.IsProduction(),
		Service: "panicless-backend",
		Env:     cfg.Environment,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	if err := observability.InitSentry(cfg.SentryDSN, cfg.Environment); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	vlt, err := vault.New(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("init vault: %w", err)
	}

	database, err := openDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	if options.ForceMigrations || cfg.RunMigrationsOnStartup {
		if err := db.RunMigrations(database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("migrations_applied", nil)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	issuer := auth.NewTokenIssuer(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	authRepo := auth.NewRepository(database)
	oauthRepo := oauth.NewRepository(database)
	connectorRepo := connector.NewRepository(database)

	gate := auth.NewGate(issuer, oauthRepo, logger).WithMetrics(auth.NewMetrics(registry))

	redisClient := connectRedis(cfg, logger)
	if redisClient != nil {
		gate = gate.WithCache(auth.NewRedisTokenCache(redisClient, cfg.OpaqueTokenCacheTTL))
	}

	authService := auth.NewService(authRepo, issuer).
		WithSecurityConfig(cfg.Security.LoginMaxAttempts, cfg.Security.LoginLockDuration)
	authHandler := auth.NewHandler(authService, logger)
	loginLimiter := auth.NewLoginRateLimiter(cfg.Security.LoginRateLimitMax, cfg.Security.LoginRateLimitWindow)

	oauthService := oauth.NewService(
		oauthRepo,
		oauth.StaticClient{ID: cfg.OAuthClient.ID, Secret: cfg.OAuthClient.Secret},
		issuer,
		logger,
	).WithMetrics(oauth.NewMetrics(registry))
	oauthHandler := oauth.NewHandler(oauthService, logger, cfg.PublicBaseURL)

	connectorHandler := connector.NewHandler(connector.NewService(connectorRepo, vlt), logger)

	cleanupHandler := maintenance.NewCleanupHandler(
		authRepo,
		oauthRepo,
		logger,
		cfg.Maintenance.CronSecret,
		cfg.Maintenance.LoginAttemptRetention,
		cfg.Maintenance.BatchSize,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.Handle("POST /api/auth/login", loginLimiter.Middleware(http.HandlerFunc(authHandler.Login)))
	mux.HandleFunc("POST /api/auth/refresh", authHandler.Refresh)
	mux.Handle("GET /api/auth/me", gate.Middleware(http.HandlerFunc(authHandler.Me)))

	mux.Handle("GET /oauth/authorize", gate.Middleware(http.HandlerFunc(oauthHandler.Authorize)))
	mux.Handle("POST /oauth/authorize", gate.Middleware(http.HandlerFunc(oauthHandler.Authorize)))
	mux.HandleFunc("POST /oauth/token", oauthHandler.Token)
	mux.HandleFunc("GET /.well-known/oauth-authorization-server", oauthHandler.AuthorizationServerMetadata)
	mux.HandleFunc("GET /.well-known/oauth-protected-resource", oauthHandler.ProtectedResourceMetadata)

	connectorHandler.Register(mux, gate.Middleware)

	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(database))
	mux.Handle("GET /metrics", observability.MetricsHandler(registry))

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Handler: handler,
		Logger:  logger,
		Config:  cfg,
		Close: func() error {
			observability.FlushSentry()
			if redisClient != nil {
				_ = redisClient.Close()
			}
			_ = logger.Sync()
			return database.Close()
		},
	}, nil
}

func openDatabase(c config.Database) (*sql.DB, error) {
	database, err := sql.Open("pgx", c.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(c.MaxOpenConns)
	database.SetMaxIdleConns(c.MaxIdleConns)
	database.SetConnMaxLifetime(c.ConnMaxLifetime)
	database.SetConnMaxIdleTime(c.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return database, nil
}

// connectRedis returns nil when no cache is configured or reachable; the
// gate then reads opaque tokens straight from the database.
func connectRedis(cfg config.Config, logger *observability.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		return nil
	}

	client, err := auth.NewRedisClient(cfg.RedisURL)
	if err != nil {
		logger.Warn("redis_config_invalid", map[string]any{"error": err.Error()})
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis_unreachable", map[string]any{"error": err.Error()})
		_ = client.Close()
		return nil
	}

	return client
}

type pinger interface {
	PingContext(ctx context.Context) error
}

func healthHandler(database pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		httpx.WriteJSON(w, status, body)
	}
}
