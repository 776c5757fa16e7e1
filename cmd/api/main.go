package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rollcall/internal/attendance"
	"rollcall/internal/config"
	"rollcall/internal/handler"
	"rollcall/internal/logger"
	"rollcall/internal/metrics"
	"rollcall/internal/queue"
	"rollcall/internal/store"
	"rollcall/internal/validate"
)

func main() {
	cfg := config.Load()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func newLogger(cfg config.App) (logger.Logger, func()) {
	console := logger.NewConsole(nil, cfg.Debug)
	if cfg.RollbarToken == "" {
		return console, func() {}
	}
	host, _ := os.Hostname()
	rb := logger.NewRollbar(console, logger.RollbarOptions{
		Token:       cfg.RollbarToken,
		Environment: cfg.Env,
		Host:        host,
	})
	return rb, rb.Close
}

func runHTTP(cfg config.App) error {
	lg, flush := newLogger(cfg)
	defer flush()

	db, err := store.NewDB(cfg.StoreDriver, cfg.DSN())
	if err != nil {
		return err
	}
	defer db.Close()
	if err := store.Migrate(context.Background(), db); err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.Redis())
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := attendance.NewRepository(db.Client)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		mem := queue.NewInMemory(256)
		q = mem
		// no separate worker shares process memory, so drain the audit queue here
		go func() {
			if err := queue.ConsumeScans(ctx, mem, repo, lg); err != nil {
				lg.Error("scan consumer stopped", err)
			}
		}()
	} else {
		q = queue.NewRedisQueue(redisClient.Client, redisClient.Key("scans"))
	}

	var stages store.Stages
	if cfg.StagingBackend == "memory" {
		stages = store.NewMemoryStages(cfg.StageTTL)
	} else {
		stages = redisClient.Stages(cfg.StageTTL)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	svc := attendance.NewService(repo, queue.NewScanPublisher(q), m, lg, cfg.Location)

	checks := map[string]func(context.Context) bool{
		"db": func(ctx context.Context) bool { return db.Client.PingContext(ctx) == nil },
	}
	if cfg.QueueBackend != "memory" || cfg.StagingBackend != "memory" {
		checks["redis"] = redisClient.Healthy
	}

	r := handler.New(handler.Config{
		Issuer:          cfg.JWTIssuer,
		SigningKey:      cfg.JWTSigningKey,
		BootstrapKey:    cfg.BootstrapKey,
		AccessTTL:       cfg.AccessTTL,
		RefreshTTL:      cfg.RefreshTTL,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Location:        cfg.Location,
	}, handler.Deps{
		Service:     svc,
		Stages:      stages,
		Registry:    repo,
		Validator:   validate.New(),
		Log:         lg,
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		OnRateLimit: m.RateLimited,
		Checks:      checks,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		lg.Info("starting server", map[string]interface{}{"port": cfg.HTTPPort, "store": db.Driver})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	lg.Info("shutting down server")

	// give outstanding requests 10 seconds to complete
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("server forced shutdown", err)
	}
	lg.Info("server exited")
	return nil
}
