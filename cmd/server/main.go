package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"boardkit/internal/board/handler"
	boardmetrics "boardkit/internal/board/metrics"
	"boardkit/internal/board/outbox"
	"boardkit/internal/board/service"
	"boardkit/internal/board/store/cache"
	"boardkit/internal/board/store/memory"
	"boardkit/internal/board/store/postgres"
	"boardkit/internal/platform/config"
	"boardkit/internal/platform/httpserver"
	"boardkit/internal/platform/logger"
	"boardkit/internal/platform/redis"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in internal/board.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := boardmetrics.New()

	var store service.Store
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Error("database unreachable", "error", err)
			os.Exit(1)
		}
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			log.Error("failed to ensure schema", "error", err)
			os.Exit(1)
		}
		store = postgres.New(db)
	} else {
		log.Warn("no database configured, using in-memory store")
		store = memory.New()
	}

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(metrics),
	}

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		opts = append(opts, service.WithCache(
			cache.New(redisClient.Client, cfg.Redis.LaneCacheTTL, log),
		))
	}

	group, runCtx := errgroup.WithContext(ctx)

	var publisher *outbox.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaClient, err := outbox.NewClient(cfg.Kafka.Brokers)
		if err != nil {
			log.Error("failed to connect to kafka", "error", err)
			os.Exit(1)
		}
		publisher = outbox.New(kafkaClient, cfg.Kafka.Topic, outbox.WithLogger(log))
		defer publisher.Close()
		opts = append(opts, service.WithAuditPublisher(publisher))
		group.Go(func() error {
			if err := publisher.Run(runCtx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	board := service.New(store, opts...)

	router := chi.NewRouter()
	handler.New(board, log).Register(router)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/metrics", promhttp.Handler())

	srv := httpserver.New(cfg.Addr, router)

	group.Go(func() error {
		log.Info("starting boardkit", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-runCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
