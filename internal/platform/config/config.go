package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend names accepted by LEDGER_BACKEND, INDEX_BACKEND, BLOB_BACKEND and
// VERIFY_COUNTER_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendBolt     = "bolt"
	BackendRedis    = "redis"
	BackendS3       = "s3"
)

// Server captures process level configuration.
type Server struct {
	Addr                 string
	Environment          string
	LogLevel             string
	FingerprintAlgorithm string

	Auth         AuthConfig
	Ledger       LedgerConfig
	Index        IndexConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Blob         BlobConfig
	Notifier     NotifierConfig
	Verification VerificationConfig
	RateLimit    RateLimitConfig
}

type AuthConfig struct {
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	TokenTTL      time.Duration
	// AdminToken guards /v1/admin routes. Empty disables them.
	AdminToken string
}

type LedgerConfig struct {
	Backend          string
	DatabaseURL      string
	BoltPath         string
	CASRetries       int
	CommitTimeout    time.Duration
	StorageRetries   int
	StorageRetryBase time.Duration
}

type IndexConfig struct {
	Backend   string
	KeyPrefix string
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type KafkaConfig struct {
	Brokers           []string
	Topic             string
	Group             string
	Partitions        int32
	ReplicationFactor int16
}

// Enabled reports whether a Kafka cluster is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type BlobConfig struct {
	Backend        string
	Bucket         string
	Region         string
	Endpoint       string
	Prefix         string
	MaxUploadBytes int64
}

type NotifierConfig struct {
	BatchSize      int
	PollInterval   time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type VerificationConfig struct {
	BatchLimit     int
	CounterBackend string
}

// RateLimitConfig bounds requests per minute. Every API request counts
// against its client IP; writes also count against the calling identity.
type RateLimitConfig struct {
	Enabled           bool
	Backend           string
	WritesPerMinute   int
	RequestsPerMinute int
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	var errs []error
	p := parser{errs: &errs}

	cfg := Server{
		Addr:                 envOr("DOCPROOF_ADDR", ":8080"),
		Environment:          envOr("DOCPROOF_ENV", "local"),
		LogLevel:             envOr("LOG_LEVEL", "info"),
		FingerprintAlgorithm: envOr("FINGERPRINT_ALGORITHM", "sha256"),
		Auth: AuthConfig{
			// Development default; production deployments must override it.
			JWTSigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			JWTIssuer:     envOr("JWT_ISSUER", "docproof"),
			JWTAudience:   envOr("JWT_AUDIENCE", "docproof-registry"),
			TokenTTL:      p.duration("JWT_TOKEN_TTL", time.Hour),
			AdminToken:    os.Getenv("ADMIN_TOKEN"),
		},
		Ledger: LedgerConfig{
			Backend:          strings.ToLower(envOr("LEDGER_BACKEND", BackendMemory)),
			DatabaseURL:      os.Getenv("DATABASE_URL"),
			BoltPath:         envOr("BOLT_PATH", "docproof.db"),
			CASRetries:       p.int("LEDGER_CAS_RETRIES", 8),
			CommitTimeout:    p.duration("LEDGER_COMMIT_TIMEOUT", 5*time.Second),
			StorageRetries:   p.int("LEDGER_STORAGE_RETRIES", 3),
			StorageRetryBase: p.duration("LEDGER_STORAGE_RETRY_BASE", 50*time.Millisecond),
		},
		Index: IndexConfig{
			Backend:   strings.ToLower(envOr("INDEX_BACKEND", BackendMemory)),
			KeyPrefix: envOr("INDEX_KEY_PREFIX", "docproof:index:"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     p.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: p.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  p.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  p.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: p.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:           splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:             envOr("KAFKA_TOPIC", "docproof.registry.events"),
			Group:             envOr("KAFKA_GROUP", "docproof-indexer"),
			Partitions:        int32(p.int("KAFKA_PARTITIONS", 6)),
			ReplicationFactor: int16(p.int("KAFKA_REPLICATION_FACTOR", 1)),
		},
		Blob: BlobConfig{
			Backend:        strings.ToLower(envOr("BLOB_BACKEND", BackendMemory)),
			Bucket:         os.Getenv("S3_BUCKET"),
			Region:         envOr("S3_REGION", "us-east-1"),
			Endpoint:       os.Getenv("S3_ENDPOINT"),
			Prefix:         envOr("S3_PREFIX", "documents"),
			MaxUploadBytes: int64(p.int("MAX_UPLOAD_BYTES", 32<<20)),
		},
		Notifier: NotifierConfig{
			BatchSize:      p.int("NOTIFIER_BATCH_SIZE", 256),
			PollInterval:   p.duration("NOTIFIER_POLL_INTERVAL", time.Second),
			InitialBackoff: p.duration("NOTIFIER_INITIAL_BACKOFF", 100*time.Millisecond),
			MaxBackoff:     p.duration("NOTIFIER_MAX_BACKOFF", 30*time.Second),
		},
		Verification: VerificationConfig{
			BatchLimit:     p.int("VERIFY_BATCH_LIMIT", 100),
			CounterBackend: strings.ToLower(envOr("VERIFY_COUNTER_BACKEND", BackendMemory)),
		},
		RateLimit: RateLimitConfig{
			Enabled:           p.bool("RATE_LIMIT_ENABLED", true),
			Backend:           strings.ToLower(envOr("RATE_LIMIT_BACKEND", BackendMemory)),
			WritesPerMinute:   p.int("RATE_LIMIT_WRITES_PER_MINUTE", 60),
			RequestsPerMinute: p.int("RATE_LIMIT_REQUESTS_PER_MINUTE", 600),
		},
	}

	if len(errs) > 0 {
		return Server{}, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate rejects inconsistent backend combinations.
func (c Server) Validate() error {
	var errs []error

	switch c.Ledger.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Ledger.DatabaseURL == "" {
			errs = append(errs, errors.New("LEDGER_BACKEND=postgres requires DATABASE_URL"))
		}
	case BackendBolt:
		if c.Ledger.BoltPath == "" {
			errs = append(errs, errors.New("LEDGER_BACKEND=bolt requires BOLT_PATH"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown LEDGER_BACKEND %q", c.Ledger.Backend))
	}

	needsRedis := false
	switch c.Index.Backend {
	case BackendMemory:
	case BackendRedis:
		needsRedis = true
	default:
		errs = append(errs, fmt.Errorf("unknown INDEX_BACKEND %q", c.Index.Backend))
	}
	switch c.Verification.CounterBackend {
	case BackendMemory:
	case BackendRedis:
		needsRedis = true
	default:
		errs = append(errs, fmt.Errorf("unknown VERIFY_COUNTER_BACKEND %q", c.Verification.CounterBackend))
	}
	if c.RateLimit.Enabled {
		switch c.RateLimit.Backend {
		case BackendMemory:
		case BackendRedis:
			needsRedis = true
		default:
			errs = append(errs, fmt.Errorf("unknown RATE_LIMIT_BACKEND %q", c.RateLimit.Backend))
		}
		if c.RateLimit.WritesPerMinute < 1 || c.RateLimit.RequestsPerMinute < 1 {
			errs = append(errs, errors.New("rate limits must be at least 1 per minute"))
		}
	}
	if needsRedis && c.Redis.URL == "" {
		errs = append(errs, errors.New("redis-backed index, counter or rate limiter requires REDIS_URL"))
	}

	switch c.Blob.Backend {
	case BackendMemory:
	case BackendS3:
		if c.Blob.Bucket == "" {
			errs = append(errs, errors.New("BLOB_BACKEND=s3 requires S3_BUCKET"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown BLOB_BACKEND %q", c.Blob.Backend))
	}

	if c.Ledger.CASRetries < 1 {
		errs = append(errs, errors.New("LEDGER_CAS_RETRIES must be at least 1"))
	}
	if c.Verification.BatchLimit < 1 {
		errs = append(errs, errors.New("VERIFY_BATCH_LIMIT must be at least 1"))
	}
	if c.Notifier.MaxBackoff < c.Notifier.InitialBackoff {
		errs = append(errs, errors.New("NOTIFIER_MAX_BACKOFF must not be below NOTIFIER_INITIAL_BACKOFF"))
	}
	return errors.Join(errs...)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for part := range strings.SplitSeq(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

type parser struct {
	errs *[]error
}

func (p parser) int(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func (p parser) bool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func (p parser) duration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}
