package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, BackendMemory, cfg.Ledger.Backend)
	assert.Equal(t, BackendMemory, cfg.Index.Backend)
	assert.Equal(t, 8, cfg.Ledger.CASRetries)
	assert.Equal(t, 5*time.Second, cfg.Ledger.CommitTimeout)
	assert.Equal(t, 100, cfg.Verification.BatchLimit)
	assert.False(t, cfg.Kafka.Enabled())
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 60, cfg.RateLimit.WritesPerMinute)
	assert.Equal(t, 600, cfg.RateLimit.RequestsPerMinute)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("LEDGER_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/docproof")
	t.Setenv("INDEX_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("LEDGER_COMMIT_TIMEOUT", "2s")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, BackendPostgres, cfg.Ledger.Backend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 2*time.Second, cfg.Ledger.CommitTimeout)
	assert.True(t, cfg.Kafka.Enabled())
}

func TestFromEnv_RateLimitDisabledSkipsChecks(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("RATE_LIMIT_BACKEND", "redis")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestFromEnv_RejectsInconsistentCombinations(t *testing.T) {
	tests := map[string]map[string]string{
		"postgres without url":    {"LEDGER_BACKEND": "postgres"},
		"redis index without url": {"INDEX_BACKEND": "redis"},
		"s3 without bucket":       {"BLOB_BACKEND": "s3"},
		"unknown ledger":          {"LEDGER_BACKEND": "cassandra"},
		"bad duration":            {"LEDGER_COMMIT_TIMEOUT": "soon"},
		"bad int":                 {"VERIFY_BATCH_LIMIT": "many"},
		"zero batch limit":        {"VERIFY_BATCH_LIMIT": "0"},
		"bad bool":                {"RATE_LIMIT_ENABLED": "sometimes"},
		"redis limiter no url":    {"RATE_LIMIT_BACKEND": "redis"},
		"zero write limit":        {"RATE_LIMIT_WRITES_PER_MINUTE": "0"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}
