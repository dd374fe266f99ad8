package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"eventqueue/internal/auth"
	"eventqueue/internal/checkin"
	"eventqueue/internal/config"
	"eventqueue/internal/feed"
	"eventqueue/internal/httpapi"
	"eventqueue/internal/httpmiddleware"
	"eventqueue/internal/notify"
	"eventqueue/internal/queue"
	"eventqueue/internal/store"
)

func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func newLogger(cfg config.App) (*zap.Logger, error) {
	if cfg.Production() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func runHTTP(cfg config.App, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx := context.Background()
	health := map[string]httpapi.HealthCheck{}

	var st checkin.Store
	switch cfg.StoreBackend {
	case "memory":
		st = checkin.NewMemoryStore()
		logger.Warn("using in-memory store, data is lost on restart")
	case "postgres":
		db, err := store.NewDB(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		st = checkin.NewPostgresStore(db.Client)
		health["db"] = db.Healthy
	}

	var redisClient *store.Redis
	if cfg.FeedBackend == "redis" || cfg.QueueBackend == "redis" {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		health["redis"] = redisClient.Healthy
	}

	var broker feed.Broker
	if cfg.FeedBackend == "redis" {
		broker = feed.NewRedis(redisClient.Client, "")
	} else {
		broker = feed.NewMemory()
	}

	dispatcher, err := newDispatcher(cfg, redisClient, logger)
	if err != nil {
		return err
	}

	var limiter httpmiddleware.Limiter = httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	if redisClient != nil {
		limiter = httpmiddleware.NewFallback(
			httpmiddleware.NewRedisWindow(redisClient.Client, "", cfg.RateLimitPerMin), limiter, logger)
	}

	settings := checkin.NewStoredSettings(st, checkin.Settings{OnQueueCall: cfg.NotifyOnQueueCall}, logger)
	assigner := checkin.NewAssigner(st, logger)
	registry := checkin.NewRegistry(st, broker, logger)

	srv := httpapi.New(httpapi.Deps{
		Registrations: checkin.NewRegistrations(st, logger),
		Registry:      registry,
		Controller:    checkin.NewController(st, broker, dispatcher, settings, logger),
		Projector:     checkin.NewProjector(st, registry),
		Intake:        checkin.NewIntake(assigner, st, cfg.IntakeResetDelay),
		Settings:      settings,
		Auth:          auth.NewIssuer(cfg.AdminUsername, cfg.AdminPassword, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL),
		Limiter:       limiter,
		Health:        health,
		PublicBaseURL: cfg.PublicBaseURL,
		Logger:        logger,
	})
	defer srv.Close()

	// WriteTimeout stays zero: display streams are long-lived.
	httpSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", httpSrv.Addr), zap.String("store", cfg.StoreBackend), zap.String("notify", cfg.NotifyMode))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", zap.Error(err))
	}
	logger.Info("server exited")
	return nil
}

// newDispatcher picks how queue-call notifications leave the API process.
func newDispatcher(cfg config.App, redisClient *store.Redis, logger *zap.Logger) (notify.Dispatcher, error) {
	switch cfg.NotifyMode {
	case "off":
		return notify.Discard{}, nil
	case "direct":
		if cfg.LineChannelToken == "" {
			logger.Warn("LINE_CHANNEL_TOKEN not set, notifications will fail")
		}
		return notify.NewLineClient(cfg.LineAPIBase, cfg.LineChannelToken), nil
	case "queue":
		if cfg.QueueBackend == "memory" {
			// Nothing drains an in-process queue in another binary.
			q := queue.NewInMemory(256)
			w := notify.NewWorker(q, notify.NewLineClient(cfg.LineAPIBase, cfg.LineChannelToken), logger)
			go func() { _ = w.Run(context.Background()) }()
			return notify.NewQueued(q), nil
		}
		return notify.NewQueued(queue.NewRedisQueue(redisClient.Client, "")), nil
	}
	return nil, fmt.Errorf("unknown NOTIFY_MODE %q", cfg.NotifyMode)
}
