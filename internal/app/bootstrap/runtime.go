package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cacheadapter "github.com/watchstack/tautulli-exporter/internal/adapters/cache"
	httpadapter "github.com/watchstack/tautulli-exporter/internal/adapters/http"
	"github.com/watchstack/tautulli-exporter/internal/adapters/postgres"
	"github.com/watchstack/tautulli-exporter/internal/adapters/security"
	"github.com/watchstack/tautulli-exporter/internal/adapters/tautulli"
	"github.com/watchstack/tautulli-exporter/internal/application"
	"github.com/watchstack/tautulli-exporter/internal/ports"
)

// sessionPurgeInterval paces the background sweep of expired session rows.
// Expired sessions are already rejected on access; the sweep only keeps the
// table small.
const sessionPurgeInterval = time.Hour

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	sessions   ports.SessionRepository
	cleanupFn  func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("bootstrapping tautulli exporter", "http_port", cfg.HTTPPort)

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := pool.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	cleanup := func(ctx context.Context) {
		_ = sqlDB.Close()
	}

	var rateStore ports.RateCounterStore
	if cfg.RedisURL != "" {
		redisClient, err := cacheadapter.Connect(ctx, cfg.RedisURL)
		if err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		rateStore = cacheadapter.NewRedisRateStore(redisClient)
		cleanup = func(ctx context.Context) {
			_ = redisClient.Close()
			_ = sqlDB.Close()
		}
	} else {
		logger.Warn("REDIS_URL not set, rate counters are process local")
		memStore := cacheadapter.NewMemoryRateStore(time.Minute)
		rateStore = memStore
		cleanup = func(ctx context.Context) {
			memStore.Close()
			_ = sqlDB.Close()
		}
	}

	repos := postgres.NewRepositories(pool)
	svc, err := application.NewService(application.Dependencies{
		Accounts:      repos.Accounts,
		Sessions:      repos.Sessions,
		LoginAttempts: repos.LoginAttempts,
		Settings:      repos.Settings,
		History:       tautulli.NewClient(&http.Client{Timeout: cfg.TautulliTimeout}),
		Hasher:        security.NewBcryptHasher(cfg.BcryptCost),
		Tokens:        security.NewRandomTokenSource(),
		Logger:        logger,
	}, application.Config{
		SessionTTL:        cfg.SessionTTL,
		ExportMaxRows:     cfg.ExportMaxRows,
		BootstrapUsername: cfg.BootstrapUsername,
		BootstrapPassword: cfg.BootstrapPassword,
	})
	if err != nil {
		cleanup(ctx)
		return nil, fmt.Errorf("build service: %w", err)
	}

	if err := svc.EnsureBootstrapAdmin(ctx); err != nil {
		cleanup(ctx)
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}

	limiter := application.NewRateLimiter(rateStore, logger)
	handler := httpadapter.NewHandler(svc, limiter, httpadapter.Options{
		ReadyCheck:    sqlDB.PingContext,
		SecureCookies: cfg.SecureCookies,
	})
	router := httpadapter.NewRouter(handler)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		sessions:   repos.Sessions,
		cleanupFn:  cleanup,
	}, nil
}

func (r *Runtime) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go r.purgeSessionsLoop(ctx)

	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case err := <-errCh:
		r.logger.Error("server failure", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.cleanupFn(shutdownCtx)
	return nil
}

func (r *Runtime) purgeSessionsLoop(ctx context.Context) {
	ticker := time.NewTicker(sessionPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := r.sessions.DeleteExpired(ctx, time.Now())
			if err != nil {
				r.logger.Error("purge expired sessions", "error", err)
				continue
			}
			if purged > 0 {
				r.logger.Info("expired sessions purged", "count", purged)
			}
		}
	}
}
