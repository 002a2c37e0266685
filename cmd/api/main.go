package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/cuchu-notify/internal/application/access"
	"github.com/cuchu-notify/internal/application/dispatch"
	"github.com/cuchu-notify/internal/application/notification"
	"github.com/cuchu-notify/internal/config"
	"github.com/cuchu-notify/internal/infrastructure/awsconf"
	"github.com/cuchu-notify/internal/infrastructure/dynamo"
	jwtinfra "github.com/cuchu-notify/internal/infrastructure/jwt"
	redisrelay "github.com/cuchu-notify/internal/infrastructure/redis"
	s3infra "github.com/cuchu-notify/internal/infrastructure/s3"
	"github.com/cuchu-notify/internal/infrastructure/smtp"
	"github.com/cuchu-notify/internal/infrastructure/sns"
	"github.com/cuchu-notify/internal/infrastructure/sqlite"
	"github.com/cuchu-notify/internal/realtime"
	transporthttp "github.com/cuchu-notify/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()
	logger := newLogger(cfg)
	slog.SetDefault(logger)
	if envErr != nil {
		logger.Info("no .env file found, reading from environment")
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg, err := awsconf.Load(ctx, cfg, "")
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg, awsCfg)
	if err != nil {
		return err
	}
	defer closeStore()

	provider, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		return fmt.Errorf("jwt provider: %w", err)
	}

	registry := realtime.NewRegistry(provider, logger)
	var relay *redisrelay.Relay
	var hubOpts []realtime.HubOption
	if cfg.RedisAddr != "" {
		relay = redisrelay.New(redisrelay.NewClient(cfg.RedisAddr, cfg.RedisPassword), cfg.RedisChannel, logger)
		defer relay.Close()
		if err := relay.Ping(ctx); err != nil {
			return fmt.Errorf("redis relay: %w", err)
		}
		hubOpts = append(hubOpts, realtime.WithRelay(relay))
	}
	hub := realtime.NewHub(registry, logger, hubOpts...)
	if relay != nil {
		if err := relay.Run(ctx, hub); err != nil {
			return err
		}
	}
	return serve(ctx, cfg, logger, awsCfg, store, hub, provider)
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, awsCfg aws.Config, store notification.Store,
	hub *realtime.Hub, provider *jwtinfra.Provider) error {
	notifications := notification.NewService(notification.ServiceDeps{
		Store:  store,
		Policy: access.NewPolicy(logger),
		Logger: logger,
	})

	deps := dispatch.Deps{
		Notifications: notifications,
		Emitter:       hub,
		Renderer:      dispatch.Renderer{Welcome: smtp.WelcomeEmail, Notification: smtp.NotificationEmail},
		Logger:        logger,
	}
	if mailer := smtp.NewMailer(cfg); mailer != nil {
		deps.Mailer = mailer
	}
	if cfg.SNSAlertTopicARN != "" {
		snsCfg, err := awsconf.Load(ctx, cfg, cfg.SNSRegion)
		if err != nil {
			return err
		}
		deps.Alerter = sns.NewAlerter(sns.NewClient(snsCfg, cfg.AWSEndpointURL), cfg.SNSAlertTopicARN)
	}
	if cfg.S3BucketName != "" {
		deps.Snapshots = s3infra.NewSnapshotStore(s3infra.NewClient(awsCfg, cfg.AWSEndpointURL), cfg.S3BucketName, 24*time.Hour)
	}

	sweeper := notification.NewSweeper(notifications, cfg.SweepInterval, logger)
	go sweeper.Run(ctx)

	router := transporthttp.NewRouter(ctx, cfg, &transporthttp.Deps{
		Notifications: notifications,
		Producer:      dispatch.New(deps),
		Hub:           hub,
		Verifier:      provider,
	}, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.AppPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, awsCfg aws.Config) (notification.Store, func(), error) {
	switch cfg.StoreDriver {
	case "dynamo":
		client := dynamo.NewClient(awsCfg, cfg.AWSEndpointURL)
		dynamo.Bootstrap(ctx, client, cfg.DynamoTables)
		return dynamo.NewNotificationRepo(client, cfg.DynamoTables.Notifications), func() {}, nil
	case "sqlite":
		if cfg.SQLitePath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
				return nil, nil, fmt.Errorf("sqlite dir: %w", err)
			}
		}
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return sqlite.NewNotificationStore(db), func() { closeDB(db) }, nil
	}
	return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
}

func closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		slog.Warn("sqlite close", "err", err)
	}
}
