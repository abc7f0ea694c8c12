// Package memory is the in-process ledger backend.
//
// Records are spread over striped shards so writers on different fingerprints
// only share a lock for the brief event-log append. The log itself is a slice
// whose index doubles as the sequence number.
package memory

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"

	"docproof/internal/registry/models"
	"docproof/pkg/domain"
	"docproof/pkg/platform/sentinel"
)

const shardCount = 64

type shard struct {
	mu      sync.RWMutex
	records map[domain.Fingerprint]*models.Record
}

type InMemory struct {
	shards [shardCount]*shard

	logMu  sync.RWMutex
	events []models.Event

	created atomic.Int64
}

func New() *InMemory {
	s := &InMemory{}
	for i := range s.shards {
		s.shards[i] = &shard{records: make(map[domain.Fingerprint]*models.Record)}
	}
	return s
}

func (s *InMemory) shardFor(fp domain.Fingerprint) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fp))
	return s.shards[h.Sum32()%shardCount]
}

// appendEvent assigns the next sequence number. Callers hold the shard lock,
// which keeps per-fingerprint log order equal to commit order.
func (s *InMemory) appendEvent(evt models.Event) {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	evt.Sequence = int64(len(s.events)) + 1
	s.events = append(s.events, evt)
}

func (s *InMemory) Insert(ctx context.Context, rec *models.Record, evt models.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sh := s.shardFor(rec.Fingerprint)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, exists := sh.records[rec.Fingerprint]; exists {
		return sentinel.ErrAlreadyUsed
	}
	s.appendEvent(evt)
	sh.records[rec.Fingerprint] = rec.Clone()
	s.created.Add(1)
	return nil
}

func (s *InMemory) FindByFingerprint(ctx context.Context, fp domain.Fingerprint) (*models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sh := s.shardFor(fp)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	rec, ok := sh.records[fp]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return rec.Clone(), nil
}

// FindMany returns the records that exist; missing fingerprints are absent from the map.
func (s *InMemory) FindMany(ctx context.Context, fps []domain.Fingerprint) (map[domain.Fingerprint]*models.Record, error) {
	out := make(map[domain.Fingerprint]*models.Record, len(fps))
	for _, fp := range fps {
		rec, err := s.FindByFingerprint(ctx, fp)
		if err == sentinel.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[fp] = rec
	}
	return out, nil
}

// CompareAndSwap replaces the record only if the stored version still equals
// expectedVersion, appending evt in the same critical section.
func (s *InMemory) CompareAndSwap(ctx context.Context, expectedVersion int64, rec *models.Record, evt models.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sh := s.shardFor(rec.Fingerprint)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	current, ok := sh.records[rec.Fingerprint]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != expectedVersion {
		return sentinel.ErrConflict
	}
	s.appendEvent(evt)
	sh.records[rec.Fingerprint] = rec.Clone()
	return nil
}

// List enumerates all records ordered by fingerprint.
func (s *InMemory) List(ctx context.Context) ([]*models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*models.Record
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, rec := range sh.records {
			out = append(out, rec.Clone())
		}
		sh.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Fingerprint < out[j].Fingerprint })
	return out, nil
}

// Count is the number of records ever created, revoked ones included.
func (s *InMemory) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.created.Load(), nil
}

// ReadFrom returns up to limit events with Sequence > afterSeq.
func (s *InMemory) ReadFrom(ctx context.Context, afterSeq int64, limit int) ([]models.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.logMu.RLock()
	defer s.logMu.RUnlock()

	start := max(afterSeq, 0)
	if start >= int64(len(s.events)) {
		return nil, nil
	}
	end := int64(len(s.events))
	if limit > 0 {
		end = min(end, start+int64(limit))
	}
	out := make([]models.Event, end-start)
	copy(out, s.events[start:end])
	return out, nil
}

// Ping always succeeds.
func (s *InMemory) Ping(context.Context) error { return nil }
