package counter

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"docproof/pkg/domain"
)

const (
	countsKeySuffix = "verifications"
	totalKeySuffix  = "verifications:total"
)

// Redis stores counts in one hash keyed by fingerprint plus a total key.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "docproof:"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Increment(ctx context.Context, fp domain.Fingerprint) error {
	pipe := r.client.TxPipeline()
	pipe.HIncrBy(ctx, r.prefix+countsKeySuffix, fp.String(), 1)
	pipe.Incr(ctx, r.prefix+totalKeySuffix)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("increment verification count: %w", err)
	}
	return nil
}

func (r *Redis) Count(ctx context.Context, fp domain.Fingerprint) (int64, error) {
	n, err := r.client.HGet(ctx, r.prefix+countsKeySuffix, fp.String()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read verification count: %w", err)
	}
	return n, nil
}

func (r *Redis) Total(ctx context.Context) (int64, error) {
	n, err := r.client.Get(ctx, r.prefix+totalKeySuffix).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read verification total: %w", err)
	}
	return n, nil
}
