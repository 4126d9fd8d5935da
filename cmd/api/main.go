package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/gatewayd-labs/auth-gateway/internal/api/http"
	"github.com/gatewayd-labs/auth-gateway/internal/api/http/handlers"
	"github.com/gatewayd-labs/auth-gateway/internal/auth"
	"github.com/gatewayd-labs/auth-gateway/internal/config"
	"github.com/gatewayd-labs/auth-gateway/internal/events"
	"github.com/gatewayd-labs/auth-gateway/internal/observability"
	"github.com/gatewayd-labs/auth-gateway/internal/persistence"
	"github.com/gatewayd-labs/auth-gateway/internal/repository"
	"github.com/gatewayd-labs/auth-gateway/internal/service"
	"github.com/gatewayd-labs/auth-gateway/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), persistence.DefaultMigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	checks := []handlers.DependencyCheck{{Name: "postgres", Ping: pg.Ping}}

	var storage fiber.Storage
	if cfg.Session.Store == config.SessionStoreRedis {
		redis, err := persistence.NewRedis(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Fatal("failed to connect redis", zap.Error(err))
		}
		defer redis.Close()

		sessionStorage, err := persistence.NewSessionStorage(redis)
		if err != nil {
			logger.Fatal("failed to init session storage", zap.Error(err))
		}
		storage = sessionStorage
		checks = append(checks, handlers.DependencyCheck{Name: "redis", Ping: redis.Ping})
	} else {
		logger.Warn("using in-memory session storage; sessions are lost on restart")
	}

	metrics := observability.NewMetrics()

	pool := pg.PoolHandle()
	accountRepo := repository.NewAccountRepository(pool)
	authEventRepo := repository.NewAuthEventRepository(pool)

	dispatcher := events.NewAsyncDispatcher(cfg.Audit.QueueSize, logger)
	worker.StartAuditWorker(dispatcher, authEventRepo, logger)
	go dispatcher.Run(ctx)

	validator, err := auth.NewTokenValidator(auth.OptionsFromConfig(cfg.Auth))
	if err != nil {
		logger.Fatal("failed to init token validator", zap.Error(err))
	}
	sessions := auth.NewSessionManager(cfg.Session, storage)
	sessionService := service.NewSessionService(service.SessionDependencies{
		AccountRepo: accountRepo,
		Events:      dispatcher,
		Logger:      logger,
	})
	coordinator := auth.NewSchemeCoordinator(cfg.Session, auth.CoordinatorDependencies{
		Validator: validator,
		Sessions:  sessions,
		Logger:    logger,
		Metrics:   metrics,
		Events:    dispatcher,
	})

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
		ErrorHandler:          httptransport.ErrorHandler(logger, metrics),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Session:     cfg.Session,
		Health:      handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, metrics, checks...),
		Sessions:    handlers.NewSessionHandler(sessions, sessionService),
		Identity:    handlers.NewIdentityHandler(),
		Coordinator: coordinator,
	})

	go func() {
		logger.Info("auth gateway listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	cancel()
	select {
	case <-dispatcher.Done():
	case <-time.After(shutdownTimeout):
		logger.Warn("audit queue not drained before shutdown")
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
