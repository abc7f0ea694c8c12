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

	"golang.org/x/sync/errgroup"

	"docproof/internal/index"
	"docproof/internal/notifier"
	"docproof/internal/platform/config"
	"docproof/internal/platform/httpserver"
	"docproof/internal/platform/identity"
	"docproof/internal/platform/logger"
	"docproof/internal/platform/metrics"
	regmetrics "docproof/internal/registry/metrics"
	"docproof/internal/registry/service"
	httptransport "docproof/internal/transport/http"
	"docproof/internal/verification"
	"docproof/pkg/domain"
	"docproof/pkg/platform/audit/publisher"
)

const shutdownTimeout = 10 * time.Second

// main wires the registry, its consumers and the HTTP surface, then runs
// them until SIGINT or SIGTERM.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("docproof exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	alg, err := domain.ParseHashAlgorithm(cfg.FingerprintAlgorithm)
	if err != nil {
		return err
	}
	reg := metrics.NewRegistry()

	infra, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	auditPublisher := publisher.New(infra.auditStore,
		publisher.WithLogger(log),
		publisher.WithMetrics(publisher.NewMetrics(reg)),
	)
	defer func() { _ = auditPublisher.Close() }()

	n := notifier.New(infra.ledgerStore,
		notifier.WithLogger(log),
		notifier.WithMetrics(notifier.NewMetrics(reg)),
		notifier.WithBatchSize(cfg.Notifier.BatchSize),
		notifier.WithPollInterval(cfg.Notifier.PollInterval),
		notifier.WithBackoff(cfg.Notifier.InitialBackoff, cfg.Notifier.MaxBackoff),
	)

	idx := index.New(infra.indexStore,
		index.WithEventSource(infra.ledgerStore),
		index.WithLogger(log),
		index.WithMetrics(index.NewMetrics(reg)),
	)
	if err := registerConsumers(ctx, cfg, n, idx, auditPublisher, infra); err != nil {
		return err
	}

	ledger, err := service.New(infra.ledgerStore,
		service.WithLogger(log),
		service.WithMetrics(regmetrics.New(reg)),
		service.WithAuditPublisher(auditPublisher),
		service.WithNotifier(n),
		service.WithCASRetries(cfg.Ledger.CASRetries),
		service.WithCommitTimeout(cfg.Ledger.CommitTimeout),
		service.WithStorageRetry(cfg.Ledger.StorageRetries, cfg.Ledger.StorageRetryBase),
	)
	if err != nil {
		return err
	}

	verifier, err := verification.New(ledger, idx,
		verification.WithLogger(log),
		verification.WithMetrics(verification.NewMetrics(reg)),
		verification.WithCounter(infra.counter(log)),
		verification.WithHashAlgorithm(alg),
		verification.WithBatchLimit(cfg.Verification.BatchLimit),
	)
	if err != nil {
		return err
	}

	tokens := identity.NewTokenService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)
	requestLimit, writeLimit := infra.limiters(reg, log)
	router := httptransport.NewRouter(
		httptransport.RouterConfig{Logger: log, Metrics: metrics.New(reg), Gatherer: reg, RequestLimit: requestLimit},
		httptransport.NewHealthHandler(infra.healthChecks()),
		httptransport.NewRecordsHandler(ledger, infra.blobs, tokens, alg, cfg.Blob.MaxUploadBytes, log,
			httptransport.WithWriteLimit(writeLimit)),
		httptransport.NewVerificationHandler(verifier, cfg.Blob.MaxUploadBytes, log),
		httptransport.NewAdminHandler(cfg.Auth.AdminToken, func(ctx context.Context) (int, error) {
			return idx.Rebuild(ctx, infra.ledgerStore)
		}, infra.auditStore, log),
	)
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return n.Run(gctx) })
	g.Go(func() error { return verifier.Run(gctx) })
	g.Go(func() error {
		log.Info("docproof listening",
			"addr", cfg.Addr,
			"ledger", cfg.Ledger.Backend,
			"index", cfg.Index.Backend,
			"blob", cfg.Blob.Backend,
			"kafka", cfg.Kafka.Enabled(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
