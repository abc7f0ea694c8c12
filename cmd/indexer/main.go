// Command indexer consumes registry events from Kafka into the Redis index.
// It lets query nodes share one index without running the ledger's
// in-process notifier.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"docproof/internal/index"
	idxredis "docproof/internal/index/store/redis"
	"docproof/internal/platform/config"
	"docproof/internal/platform/httpserver"
	"docproof/internal/platform/kafka/consumer"
	"docproof/internal/platform/logger"
	"docproof/internal/platform/metrics"
	platformredis "docproof/internal/platform/redis"
	"docproof/internal/registry/models"
	httptransport "docproof/internal/transport/http"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel).With("component", "indexer")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("indexer exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	if !cfg.Kafka.Enabled() {
		return errors.New("indexer requires KAFKA_BROKERS")
	}
	if cfg.Redis.URL == "" {
		return errors.New("indexer requires REDIS_URL")
	}

	rc, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	reg := metrics.NewRegistry()
	idx := index.New(
		idxredis.New(rc.Client, idxredis.WithPrefix(cfg.Index.KeyPrefix)),
		index.WithLogger(log),
		index.WithMetrics(index.NewMetrics(reg)),
	)

	c, err := consumer.New(consumer.Config{
		Brokers:        cfg.Kafka.Brokers,
		Group:          cfg.Kafka.Group,
		Topics:         []string{cfg.Kafka.Topic},
		InitialBackoff: cfg.Notifier.InitialBackoff,
		MaxBackoff:     cfg.Notifier.MaxBackoff,
	}, applyHandler(idx, log), log)
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	httptransport.NewHealthHandler(map[string]httptransport.HealthCheck{"redis": rc.Health}).Register(r)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(reg))
	srv := httpserver.New(cfg.Addr, r)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("indexer consuming", "topic", cfg.Kafka.Topic, "group", cfg.Kafka.Group)
		return c.Run(gctx)
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// applyHandler decodes one event and applies it. Undecodable messages are
// logged and skipped; a poison message must not stall the partition.
func applyHandler(idx *index.Index, log *slog.Logger) consumer.Handler {
	return consumer.HandlerFunc(func(ctx context.Context, msg *consumer.Message) error {
		evt, err := models.UnmarshalEvent(msg.Value)
		if err != nil {
			log.ErrorContext(ctx, "skipping undecodable event",
				"error", err,
				"partition", msg.Partition,
				"offset", msg.Offset,
			)
			return nil
		}
		_, err = idx.Apply(ctx, evt)
		return err
	})
}
