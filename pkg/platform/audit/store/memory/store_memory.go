package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"docproof/pkg/domain"
	audit "docproof/pkg/platform/audit"
)

// InMemoryStore keeps audit entries in insertion order. Success entries are
// deduplicated by EventID so redelivered ledger events are recorded once.
type InMemoryStore struct {
	mu       sync.RWMutex
	entries  []audit.Entry
	seenEvts map[uuid.UUID]struct{}
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{seenEvts: make(map[uuid.UUID]struct{})}
}

func (s *InMemoryStore) Append(_ context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.EventID != uuid.Nil {
		if _, dup := s.seenEvts[entry.EventID]; dup {
			return nil
		}
		s.seenEvts[entry.EventID] = struct{}{}
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *InMemoryStore) ListByFingerprint(_ context.Context, fp domain.Fingerprint) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Entry
	for _, e := range s.entries {
		if e.Fingerprint == fp {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListRecent returns up to limit entries, most recent first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.entries) {
		limit = len(s.entries)
	}
	out := make([]audit.Entry, 0, limit)
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.seenEvts = make(map[uuid.UUID]struct{})
}
