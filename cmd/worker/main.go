package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"rollcall/internal/attendance"
	"rollcall/internal/config"
	"rollcall/internal/logger"
	"rollcall/internal/queue"
	"rollcall/internal/store"
)

// Worker drains the scan audit queue into the scan_events table.
func main() {
	cfg := config.Load()
	lg := logger.NewConsole(nil, cfg.Debug)

	if cfg.QueueBackend == "memory" {
		log.Fatal("QUEUE_BACKEND=memory is consumed inside the api process; the worker needs redis")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		lg.Info("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.StoreDriver, cfg.DSN())
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()
	if err := store.Migrate(ctx, db); err != nil {
		log.Fatalf("migrate failed: %v", err)
	}

	redisClient := store.NewRedis(cfg.Redis())
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		lg.Warn("redis not reachable yet, consumer will keep retrying", map[string]interface{}{"addr": cfg.RedisAddr})
	}

	q := queue.NewRedisQueue(redisClient.Client, redisClient.Key("scans"))
	repo := attendance.NewRepository(db.Client)

	lg.Info("worker started, waiting for scans")
	if err := queue.ConsumeScans(ctx, q, repo, lg); err != nil {
		log.Fatalf("queue consume failed: %v", err)
	}
	lg.Info("worker stopped")
}
