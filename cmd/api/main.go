package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/portal-resilience-api/internal/config"
	"github.com/noah-isme/portal-resilience-api/internal/connectivity"
	"github.com/noah-isme/portal-resilience-api/internal/database"
	"github.com/noah-isme/portal-resilience-api/internal/events"
	"github.com/noah-isme/portal-resilience-api/internal/handler"
	"github.com/noah-isme/portal-resilience-api/internal/middleware"
	"github.com/noah-isme/portal-resilience-api/internal/models"
	"github.com/noah-isme/portal-resilience-api/internal/repository"
	"github.com/noah-isme/portal-resilience-api/internal/router"
	"github.com/noah-isme/portal-resilience-api/internal/service"
	cloud "github.com/noah-isme/portal-resilience-api/pkg/cloudinary"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := newLogger(cfg)

	store, closeStore, err := database.OpenRecordStore(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open record store")
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn().Err(err).Msg("failed to close record store")
		}
	}()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(context.Background(), database.RedisOptions{
			URL:      cfg.RedisURL,
			PoolSize: cfg.RedisPoolSize,
			Timeout:  cfg.RedisTimeout,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer natsConn.Drain()
	}

	var exporter service.SnapshotExporter
	if cfg.CloudinaryConfigured() {
		uploader, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create cloudinary client")
		}
		exporter = uploader
	} else if cfg.BackupExportEnabled {
		logger.Warn().Msg("backup export enabled but cloudinary is not configured; exports are skipped")
	}

	publisher := events.NewPublisher(redisClient, natsConn, cfg.RealtimeChannel, logger)
	validate := validator.New(validator.WithRequiredStructEnabled())

	activityRepo := repository.NewActivityLogRepository(store)
	calculationRepo := repository.NewCalculationRepository(store)

	activityService := service.NewActivityService(activityRepo, redisClient, cfg.ActivityCacheTTL, logger)
	calculationService := service.NewCalculationService(calculationRepo, activityService, validate, logger)
	backupService := service.NewBackupService(store, activityService, exporter, publisher, service.BackupConfig{
		RecordLimit:   cfg.BackupRecordLimit,
		ExportEnabled: cfg.BackupExportEnabled,
	}, logger)
	restoreService := service.NewRestoreService(store, activityService, publisher, cfg.RestorePageSize, logger)

	monitorConfig := connectivity.Config{
		InitiallyOnline:      cfg.ConnectivityInitiallyOnline,
		ProbeTimeout:         cfg.ConnectivityProbeTimeout,
		ReconnectDelay:       cfg.ConnectivityReconnectDelay,
		MaxReconnectAttempts: cfg.ConnectivityMaxReconnectAttempts,
	}

	// The backend monitor owns the store-wide gate; client events only ever
	// reach their own user's slice of it.
	backendConfig := monitorConfig
	backendConfig.InitiallyOnline = true
	backendConfig.ProbeInterval = cfg.ConnectivityProbeInterval
	backendMonitor := connectivity.New(store, store, backendConfig, logger, connectivity.WithPublisher(publisher))

	clients := connectivity.NewRegistry(func(userID string) *connectivity.Monitor {
		network := store.ForUser(userID)
		return connectivity.New(network, network, monitorConfig, logger,
			connectivity.WithScope(userID),
			connectivity.WithPublisher(publisher),
			connectivity.WithoutGauges(),
		)
	})

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()
	backendMonitor.Start(rootCtx)
	defer backendMonitor.Close()
	defer clients.Close()

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSOrigins})
	router.Register(app, cfg, router.Dependencies{
		BackupHandler:       handler.NewBackupHandler(backupService, restoreService, validate, logger),
		ActivityHandler:     handler.NewActivityHandler(activityService, validate, logger),
		CalculationHandler:  handler.NewCalculationHandler(calculationService, logger),
		ConnectivityHandler: handler.NewConnectivityHandler(
			func(userID string) handler.ConnectivityMonitor { return clients.For(userID) },
			backendMonitor, validate, 30*time.Second, logger,
		),
		Store:               store,
		Version:             models.CurrentVersion().Version,
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	logger.Info().
		Str("addr", cfg.HTTPAddress()).
		Str("store", cfg.StoreDriver).
		Bool("redis", redisClient != nil).
		Bool("nats", natsConn != nil).
		Bool("export", exporter != nil && cfg.BackupExportEnabled).
		Msg("portal resilience api started")

	waitForShutdown(app, logger)
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.LogPretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}

	return logger.Level(level).With().Timestamp().Str("service", cfg.AppName).Str("env", cfg.AppEnv).Logger()
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
