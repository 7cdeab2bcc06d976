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

	httptransport "github.com/spec-kit/loyalty-scanner/internal/api/http"
	"github.com/spec-kit/loyalty-scanner/internal/api/http/handlers"
	"github.com/spec-kit/loyalty-scanner/internal/auth"
	"github.com/spec-kit/loyalty-scanner/internal/capture"
	"github.com/spec-kit/loyalty-scanner/internal/config"
	"github.com/spec-kit/loyalty-scanner/internal/events"
	"github.com/spec-kit/loyalty-scanner/internal/observability"
	"github.com/spec-kit/loyalty-scanner/internal/payload"
	"github.com/spec-kit/loyalty-scanner/internal/persistence"
	"github.com/spec-kit/loyalty-scanner/internal/repository"
	"github.com/spec-kit/loyalty-scanner/internal/scanner"
	"github.com/spec-kit/loyalty-scanner/internal/service"
	"github.com/spec-kit/loyalty-scanner/internal/worker"
	"github.com/spec-kit/loyalty-scanner/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger,
		zap.String("service", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("merchant_id", cfg.Scanner.MerchantID))
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
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), migrations.FS, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()

	loyalty := service.NewLoyaltyService(cfg.Scanner.MerchantID, service.LoyaltyDependencies{
		Store:  repository.NewStore(pg.PoolHandle()),
		Lock:   persistence.NewActionLock(redis, cfg.Scanner.ActionLockTTL()),
		Cache:  persistence.NewCache(redis, "loyalty:", cfg.Scanner.ProgramCacheTTL()),
		Logger: logger,
	})

	dispatcher := events.NewAsyncDispatcher(events.NewInMemoryDispatcher(), cfg.Notification.QueueSize, logger)
	notifications := service.NewNotificationService(dispatcher, logger, cfg.Notification, cfg.Scanner.MerchantID)
	worker.StartNotificationWorker(notifications)

	camera, err := capture.NewGstCamera(capture.GstCameraConfig{
		RearDevice:  cfg.Camera.RearDevice,
		FrontDevice: cfg.Camera.FrontDevice,
		Width:       cfg.Camera.Width,
		Height:      cfg.Camera.Height,
	}, logger)
	if err != nil {
		logger.Fatal("failed to init camera", zap.Error(err))
	}
	loop, err := capture.NewLoop(camera, capture.NewQRDecoder(), capture.LoopOptions{
		Facing:       capture.Facing(cfg.Camera.Facing),
		PollInterval: cfg.Scanner.PollInterval(),
		Classify:     payload.Classify,
	}, logger)
	if err != nil {
		logger.Fatal("failed to init capture loop", zap.Error(err))
	}

	machine, err := scanner.NewMachine(scanner.Dependencies{
		Camera:   loop,
		Gateway:  loyalty,
		Notifier: notifications,
		Metrics:  metrics,
		Logger:   logger,
	}, scanner.Options{
		MerchantID:    cfg.Scanner.MerchantID,
		ResetDelay:    cfg.Scanner.ResetDelay(),
		LookupTimeout: cfg.Scanner.LookupTimeout(),
		OnScan:        notifications.PayloadScanned,
	})
	if err != nil {
		logger.Fatal("failed to init scanner", zap.Error(err))
	}
	if err := machine.Start(ctx); err != nil {
		// Camera failures are recoverable through /scan/camera/retry.
		logger.Warn("scanner started without camera", zap.Error(err))
	}
	defer machine.Close()

	reporterDone := worker.StartStatsReporter(ctx, loop, metrics, cfg.Scanner.StatsInterval(), logger)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authService := service.NewAuthService(*cfg, tokens)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	probes := map[string]handlers.Probe{
		"postgres": pg.Ping,
		"redis":    redis.Ping,
	}
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, loop, probes),
		Operators:      handlers.NewOperatorsHandler(authService),
		Scan:           handlers.NewScanHandler(machine, loop, metrics),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		MerchantID:     cfg.Scanner.MerchantID,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
	cancel()
	<-reporterDone

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer drainCancel()
	if err := dispatcher.Close(drainCtx); err != nil {
		logger.Warn("pending notifications dropped", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
