package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	adapterHTTP "github.com/comitanigiacomo/kanso-progress-engine/internal/adapters/handler/http"
	"github.com/comitanigiacomo/kanso-progress-engine/internal/adapters/cache"
	"github.com/comitanigiacomo/kanso-progress-engine/internal/adapters/repository"
	"github.com/comitanigiacomo/kanso-progress-engine/internal/config"
	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/calendar"
	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/services"
	"github.com/comitanigiacomo/kanso-progress-engine/internal/logger"
)

type ServeCmd struct {
	Port            string        `help:"HTTP listen port." env:"PORT" default:"8080"`
	RateLimit       int           `help:"Requests per minute per client IP, 0 disables." env:"RATE_LIMIT" default:"100"`
	ShutdownTimeout time.Duration `help:"Grace period for in-flight requests." env:"SHUTDOWN_TIMEOUT" default:"5s"`
	MigrateOnStart  bool          `help:"Apply migrations before serving." env:"MIGRATE_ON_START"`
}

type MigrateCmd struct{}

func (m *MigrateCmd) Run(cfg *config.Config) error {
	return repository.Migrate(cfg.DSN(), cfg.MigrationsDir)
}

func (s *ServeCmd) Run(cfg *config.Config) error {
	startTime := time.Now()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if s.MigrateOnStart {
		if err := repository.Migrate(cfg.DSN(), cfg.MigrationsDir); err != nil {
			return err
		}
	}

	logger.Info("connecting to database", "host", cfg.DB.Host, "name", cfg.DB.Name)

	pool, err := repository.NewPostgresPool(ctx, cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	readDB, err := repository.ConnectReadDB(ctx, cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open read connection: %w", err)
	}
	defer readDB.Close()

	logger.Info("database connected")

	store := repository.NewPostgresStore(pool, cfg.StatementTimeout)
	read := repository.NewPostgresReadRepository(readDB)

	var progressCache domain.ProgressCache = domain.NoopProgressCache{}
	rdb, err := cache.NewRedisClient(ctx, cfg.RedisConfig())
	if err != nil {
		logger.Warn("redis unavailable, running without progress cache and rate limiting", "err", err)
	} else {
		defer rdb.Close()
		progressCache = cache.NewProgressCache(rdb, cfg.ProgressCacheTTL)
		logger.Info("redis connected", "addr", cfg.RedisConfig().Addr())
	}

	resolver := calendar.NewResolver(cfg.DefaultTimezone)

	completionService := services.NewCompletionService(store, read, read, resolver, progressCache)
	progressService := services.NewProgressService(store, read, progressCache)
	rebalanceService := services.NewRebalanceService(store, read, resolver, progressCache)
	statsService := services.NewStatsService(read, read, resolver)

	gin.SetMode(gin.ReleaseMode)
	router := adapterHTTP.NewRouter(adapterHTTP.RouterDependencies{
		CompletionHandler: adapterHTTP.NewCompletionHandler(completionService),
		GoalHandler:       adapterHTTP.NewGoalHandler(progressService, rebalanceService),
		StatsHandler:      adapterHTTP.NewStatsHandler(completionService, statsService),
		Store:             store,
		ReadDB:            read,
		Redis:             rdb,
		RateLimit:         s.RateLimit,
		StartTime:         startTime,
	})

	srv := &http.Server{
		Addr:         ":" + s.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("kanso progress engine listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("stop signal received, shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
