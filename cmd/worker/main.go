package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"eventqueue/internal/config"
	"eventqueue/internal/notify"
	"eventqueue/internal/queue"
	"eventqueue/internal/store"
)

// Worker consumes queue_called jobs and pushes LINE messages.
func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if !cfg.Production() {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend == "memory" {
		logger.Fatal("worker needs QUEUE_BACKEND=redis; the in-memory queue lives inside the API process")
	}
	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		logger.Warn("redis not reachable yet, consumer will keep retrying", zap.String("addr", cfg.RedisAddr))
	}

	line := notify.NewLineClient(cfg.LineAPIBase, cfg.LineChannelToken)
	if cfg.LineChannelToken == "" {
		logger.Warn("LINE_CHANNEL_TOKEN not set, every job will be dropped")
	}

	q := queue.NewRedisQueue(redisClient.Client, "")
	if n, err := q.Len(ctx); err == nil {
		logger.Info("pending notifications at start", zap.Int64("jobs", n))
	}
	w := notify.NewWorker(q, line, logger)
	if err := w.Run(ctx); err != nil {
		logger.Fatal("queue consume init failed", zap.Error(err))
	}
}
