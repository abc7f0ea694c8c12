package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"docproof/internal/blob"
	"docproof/internal/index"
	idxmem "docproof/internal/index/store/memory"
	idxredis "docproof/internal/index/store/redis"
	"docproof/internal/notifier"
	"docproof/internal/platform/config"
	"docproof/internal/platform/kafka"
	"docproof/internal/platform/kafka/producer"
	"docproof/internal/platform/postgres"
	platformredis "docproof/internal/platform/redis"
	rlmetrics "docproof/internal/ratelimit/metrics"
	ratelimit "docproof/internal/ratelimit/middleware"
	rlmodels "docproof/internal/ratelimit/models"
	"docproof/internal/ratelimit/store/bucket"
	"docproof/internal/registry/models"
	"docproof/internal/registry/service"
	boltstore "docproof/internal/registry/store/bolt"
	regmem "docproof/internal/registry/store/memory"
	pgstore "docproof/internal/registry/store/postgres"
	httptransport "docproof/internal/transport/http"
	"docproof/internal/verification/counter"
	"docproof/pkg/platform/audit"
	auditmem "docproof/pkg/platform/audit/store/memory"
	auditpg "docproof/pkg/platform/audit/store/postgres"
	"docproof/pkg/platform/circuit"
)

const (
	counterKeyPrefix   = "docproof:verify:"
	rateLimitKeyPrefix = "docproof:ratelimit:"
	highWaterPage      = 1000
)

// ledgerStore is what every ledger backend provides: the record store, the
// durable event log and a liveness probe.
type ledgerStore interface {
	service.RecordStore
	ReadFrom(ctx context.Context, afterSeq int64, limit int) ([]models.Event, error)
	Ping(ctx context.Context) error
}

// infra owns backend connections for the lifetime of the process.
type infra struct {
	cfg         config.Server
	ledgerStore ledgerStore
	indexStore  index.Store
	auditStore  audit.Store
	blobs       blob.Store
	db          *sql.DB
	bolt        *boltstore.Store
	redis       *platformredis.Client
	producer    *producer.Producer
}

func openInfra(ctx context.Context, cfg config.Server, log *slog.Logger) (_ *infra, err error) {
	in := &infra{cfg: cfg}
	defer func() {
		if err != nil {
			in.Close()
		}
	}()

	switch cfg.Ledger.Backend {
	case config.BackendPostgres:
		if in.db, err = postgres.Open(ctx, cfg.Ledger.DatabaseURL); err != nil {
			return nil, err
		}
		if err = postgres.Migrate(ctx, in.db); err != nil {
			return nil, err
		}
		in.ledgerStore = pgstore.New(in.db)
		in.auditStore = auditpg.New(in.db)
	case config.BackendBolt:
		if in.bolt, err = boltstore.Open(cfg.Ledger.BoltPath); err != nil {
			return nil, err
		}
		in.ledgerStore = in.bolt
		in.auditStore = auditmem.NewInMemoryStore()
	default:
		in.ledgerStore = regmem.New()
		in.auditStore = auditmem.NewInMemoryStore()
	}

	if in.redis, err = platformredis.New(ctx, cfg.Redis); err != nil {
		return nil, err
	}
	switch cfg.Index.Backend {
	case config.BackendRedis:
		in.indexStore = idxredis.New(in.redis.Client, idxredis.WithPrefix(cfg.Index.KeyPrefix))
	default:
		in.indexStore = idxmem.New()
	}

	switch cfg.Blob.Backend {
	case config.BackendS3:
		if in.blobs, err = blob.NewS3(ctx, cfg.Blob); err != nil {
			return nil, err
		}
	default:
		in.blobs = blob.NewInMemory()
	}

	if cfg.Kafka.Enabled() {
		err = kafka.EnsureTopic(ctx, cfg.Kafka.Brokers, kafka.TopicSpec{
			Name:              cfg.Kafka.Topic,
			Partitions:        cfg.Kafka.Partitions,
			ReplicationFactor: cfg.Kafka.ReplicationFactor,
		})
		if err != nil {
			return nil, err
		}
		if in.producer, err = producer.New(cfg.Kafka.Brokers, log); err != nil {
			return nil, err
		}
	}
	return in, nil
}

// counter returns the verification counter. Redis counts survive restarts;
// the breaker falls back to process memory while Redis is down.
func (in *infra) counter(log *slog.Logger) counter.Counter {
	if in.cfg.Verification.CounterBackend != config.BackendRedis {
		return counter.NewInMemory()
	}
	return counter.NewTracker(
		counter.NewRedis(in.redis.Client, counterKeyPrefix),
		counter.NewInMemory(),
		circuit.New("verification-counter"),
		log,
	)
}

// limiters returns the per-IP request limiter and the per-caller write
// limiter, or nils when rate limiting is off.
func (in *infra) limiters(reg prometheus.Registerer, log *slog.Logger) (requests, writes func(http.Handler) http.Handler) {
	rl := in.cfg.RateLimit
	if !rl.Enabled {
		return nil, nil
	}
	var store ratelimit.Store = bucket.NewInMemoryBucketStore()
	if rl.Backend == config.BackendRedis {
		store = bucket.NewRedisBucketStore(in.redis.Client, rateLimitKeyPrefix)
	}
	mw := ratelimit.New(store, ratelimit.WithLogger(log), ratelimit.WithMetrics(rlmetrics.New(reg)))
	requests = mw.ByIP(rlmodels.Class{Name: "requests", Limit: rl.RequestsPerMinute, Window: time.Minute})
	writes = mw.ByActor(rlmodels.Class{Name: "writes", Limit: rl.WritesPerMinute, Window: time.Minute})
	return requests, writes
}

func (in *infra) healthChecks() map[string]httptransport.HealthCheck {
	checks := map[string]httptransport.HealthCheck{
		"ledger": in.ledgerStore.Ping,
	}
	if in.redis != nil {
		checks["redis"] = in.redis.Health
	}
	if in.producer != nil {
		checks["kafka"] = in.producer.Ping
	}
	return checks
}

// Close releases backends in reverse dependency order.
func (in *infra) Close() {
	if in.producer != nil {
		in.producer.Close()
	}
	if in.redis != nil {
		_ = in.redis.Close()
	}
	if in.bolt != nil {
		_ = in.bolt.Close()
	}
	if in.db != nil {
		_ = in.db.Close()
	}
}

// registerConsumers attaches the index, audit sink and optional Kafka bridge.
// The index and audit sink replay from genesis on every start: index applies
// are idempotent and audit stores dedupe on EventID. The Kafka bridge starts
// at the current end of the log so a restart does not republish history.
func registerConsumers(
	ctx context.Context,
	cfg config.Server,
	n *notifier.Notifier,
	idx *index.Index,
	emitter notifier.AuditEmitter,
	in *infra,
) error {
	if err := n.Register(idx); err != nil {
		return err
	}
	if err := n.Register(notifier.AuditSink(emitter)); err != nil {
		return err
	}
	if in.producer == nil {
		return nil
	}
	head, err := highWater(ctx, in.ledgerStore)
	if err != nil {
		return fmt.Errorf("read event log head: %w", err)
	}
	return n.RegisterAt(notifier.KafkaBridge(in.producer, cfg.Kafka.Topic), head)
}

func highWater(ctx context.Context, src ledgerStore) (int64, error) {
	var after int64
	for {
		events, err := src.ReadFrom(ctx, after, highWaterPage)
		if err != nil {
			return 0, err
		}
		if len(events) == 0 {
			return after, nil
		}
		after = events[len(events)-1].Sequence
		if len(events) < highWaterPage {
			return after, nil
		}
	}
}
