package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"smartattend/internal/config"
	"smartattend/internal/logger"
	"smartattend/internal/metrics"
	"smartattend/internal/notify"
	"smartattend/internal/queue"
	"smartattend/internal/store"
)

// Worker consumes settled-attendance events and sends per-student notices.
func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if cfg.QueueBackend != "redis" {
		log.Fatalf("worker needs QUEUE_BACKEND=redis; the api runs the notifier inline for %q", cfg.QueueBackend)
	}
	slogger := logger.SetupDefault(os.Stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		log.Printf("WARNING: redis not reachable at %s, will keep retrying", cfg.RedisAddr)
	}

	reg := prometheus.NewRegistry()
	rec := metrics.NewCollector(reg)

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metrics.Handler(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server: %v", err)
		}
	}()

	q := queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	log.Println("worker started, waiting for messages...")
	if err := notify.New(slogger, rec).Run(ctx, q); err != nil {
		log.Fatalf("worker failed: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Println("worker stopped")
}
