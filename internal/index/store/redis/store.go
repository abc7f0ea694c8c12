// Package redis is the shared provenance index backend. Each owner, issuer
// and ownership history is a sorted set scored by log sequence; each entry is
// a hash. A Lua script applies one event atomically so concurrent projectors
// (for example the in-process notifier and cmd/indexer) never interleave
// halfway through an update.
//
// The script derives the previous owner's key from the prefix at run time,
// so the backend expects a single Redis node or a cluster with all keys of a
// prefix pinned to one slot via a hash tag in the prefix.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	idxmodels "docproof/internal/index/models"
	"docproof/internal/registry/models"
	"docproof/pkg/domain"
	"docproof/pkg/platform/sentinel"
)

const DefaultPrefix = "docproof:index:"

var applyScript = redis.NewScript(`
local entry = KEYS[1]
local ownerSet = KEYS[2]
local issuerSet = KEYS[3]
local historySet = KEYS[4]
local meta = KEYS[5]

local fp = ARGV[1]
local version = tonumber(ARGV[2])
local seq = tonumber(ARGV[3])
local owner = ARGV[4]
local issuer = ARGV[5]
local active = ARGV[6]
local metadataRef = ARGV[7]
local ownerPrefix = ARGV[8]

local current = redis.call('HGET', entry, 'version')
if current and tonumber(current) >= version then
  return 0
end

local highWater = tonumber(redis.call('HGET', meta, 'high_water') or '0')
if seq <= 0 then
  seq = highWater
end

local previousOwner = redis.call('HGET', entry, 'owner')
if previousOwner and previousOwner ~= owner then
  redis.call('ZREM', ownerPrefix .. previousOwner, fp)
end
redis.call('ZADD', ownerSet, 'NX', seq, fp)
redis.call('ZADD', issuerSet, 'NX', seq, fp)
redis.call('ZADD', historySet, 'NX', seq, fp)

redis.call('HSET', entry, 'owner', owner, 'issuer', issuer, 'active', active, 'version', version, 'sequence', seq)
if metadataRef ~= '' then
  redis.call('HSET', entry, 'metadata_ref', metadataRef)
end
if seq > highWater then
  redis.call('HSET', meta, 'high_water', seq)
end
return 1
`)

var queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "docproof_index_redis_query_duration_ms",
	Help:    "Latency of Redis index queries in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50},
}, []string{"query"})

// Store is a Redis-backed provenance index.
type Store struct {
	client redis.UniversalClient
	prefix string
}

type Option func(*Store)

// WithPrefix namespaces every key. Distinct prefixes give independent indexes
// on one Redis, which tests rely on.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, prefix: DefaultPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Store) entryKey(fp domain.Fingerprint) string { return s.prefix + "entry:" + fp.String() }
func (s *Store) ownerPrefix() string                   { return s.prefix + "owner:" }
func (s *Store) issuerKey(id domain.Identity) string   { return s.prefix + "issuer:" + id.String() }
func (s *Store) historyKey(id domain.Identity) string  { return s.prefix + "history:" + id.String() }
func (s *Store) metaKey() string                       { return s.prefix + "meta" }

func (s *Store) Apply(ctx context.Context, evt models.Event) (bool, error) {
	keys := []string{
		s.entryKey(evt.Fingerprint),
		s.ownerPrefix() + evt.Owner.String(),
		s.issuerKey(evt.Issuer),
		s.historyKey(evt.Owner),
		s.metaKey(),
	}
	active := "0"
	if evt.Type != models.EventRevoked {
		active = "1"
	}
	applied, err := applyScript.Run(ctx, s.client, keys,
		evt.Fingerprint.String(),
		evt.Version,
		evt.Sequence,
		evt.Owner.String(),
		evt.Issuer.String(),
		active,
		evt.MetadataRef,
		s.ownerPrefix(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("apply index event %s: %w", evt.ID, err)
	}
	return applied == 1, nil
}

func (s *Store) members(ctx context.Context, query, key string) ([]domain.Fingerprint, error) {
	start := time.Now()
	defer func() {
		queryDuration.WithLabelValues(query).Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	raw, err := s.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("index %s query: %w", query, err)
	}
	out := make([]domain.Fingerprint, len(raw))
	for i, m := range raw {
		out[i] = domain.Fingerprint(m)
	}
	return out, nil
}

func (s *Store) ByOwner(ctx context.Context, owner domain.Identity) ([]domain.Fingerprint, error) {
	return s.members(ctx, "owner", s.ownerPrefix()+owner.String())
}

func (s *Store) ByIssuer(ctx context.Context, issuer domain.Identity) ([]domain.Fingerprint, error) {
	return s.members(ctx, "issuer", s.issuerKey(issuer))
}

func (s *Store) History(ctx context.Context, owner domain.Identity) ([]domain.Fingerprint, error) {
	return s.members(ctx, "history", s.historyKey(owner))
}

func (s *Store) Entry(ctx context.Context, fp domain.Fingerprint) (*idxmodels.Entry, error) {
	fields, err := s.client.HGetAll(ctx, s.entryKey(fp)).Result()
	if err != nil {
		return nil, fmt.Errorf("index entry: %w", err)
	}
	if len(fields) == 0 {
		return nil, sentinel.ErrNotFound
	}
	version, err := strconv.ParseInt(fields["version"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("index entry %s: bad version: %w", fp, err)
	}
	var seq int64
	if raw, ok := fields["sequence"]; ok {
		if seq, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, fmt.Errorf("index entry %s: bad sequence: %w", fp, err)
		}
	}
	return &idxmodels.Entry{
		Fingerprint: fp,
		Owner:       domain.Identity(fields["owner"]),
		Issuer:      domain.Identity(fields["issuer"]),
		MetadataRef: fields["metadata_ref"],
		Active:      fields["active"] == "1",
		Version:     version,
		Sequence:    seq,
	}, nil
}

// Reset deletes every key under the prefix.
func (s *Store) Reset(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 500).Iterator()
	batch := make([]string, 0, 500)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := s.client.Unlink(ctx, batch...).Err()
		batch = batch[:0]
		return err
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				return fmt.Errorf("reset index: %w", err)
			}
		}
	}
	if err := iter.Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("reset index scan: %w", err)
	}
	if err := flush(); err != nil {
		return fmt.Errorf("reset index: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
