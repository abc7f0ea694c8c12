// Package memory is the in-process provenance index backend.
package memory

import (
	"context"
	"sort"
	"sync"

	idxmodels "docproof/internal/index/models"
	"docproof/internal/registry/models"
	"docproof/pkg/domain"
	"docproof/pkg/platform/sentinel"
)

// association maps a fingerprint to the log sequence that created the link.
type association map[domain.Fingerprint]int64

type InMemory struct {
	mu        sync.RWMutex
	entries   map[domain.Fingerprint]*idxmodels.Entry
	owners    map[domain.Identity]association
	issuers   map[domain.Identity]association
	history   map[domain.Identity]association
	highWater int64
}

func New() *InMemory {
	s := &InMemory{}
	s.reset()
	return s
}

func (s *InMemory) reset() {
	s.entries = make(map[domain.Fingerprint]*idxmodels.Entry)
	s.owners = make(map[domain.Identity]association)
	s.issuers = make(map[domain.Identity]association)
	s.history = make(map[domain.Identity]association)
	s.highWater = 0
}

func link(sets map[domain.Identity]association, id domain.Identity, fp domain.Fingerprint, seq int64) {
	set, ok := sets[id]
	if !ok {
		set = make(association)
		sets[id] = set
	}
	if _, exists := set[fp]; !exists {
		set[fp] = seq
	}
}

// Apply folds evt into the index unless an equal or newer version of the
// same fingerprint was already applied.
func (s *InMemory) Apply(ctx context.Context, evt models.Event) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.entries[evt.Fingerprint]
	if exists && evt.Version <= current.Version {
		return false, nil
	}

	seq := evt.Sequence
	if seq <= 0 {
		seq = s.highWater
	}
	if exists && current.Owner != evt.Owner {
		delete(s.owners[current.Owner], evt.Fingerprint)
	}
	link(s.owners, evt.Owner, evt.Fingerprint, seq)
	link(s.issuers, evt.Issuer, evt.Fingerprint, seq)
	link(s.history, evt.Owner, evt.Fingerprint, seq)

	next := &idxmodels.Entry{
		Fingerprint: evt.Fingerprint,
		Owner:       evt.Owner,
		Issuer:      evt.Issuer,
		Active:      evt.Type != models.EventRevoked,
		Version:     evt.Version,
		Sequence:    seq,
	}
	if exists {
		next.MetadataRef = current.MetadataRef
	}
	if evt.MetadataRef != "" {
		next.MetadataRef = evt.MetadataRef
	}
	s.entries[evt.Fingerprint] = next
	s.highWater = max(s.highWater, seq)
	return true, nil
}

func (s *InMemory) query(ctx context.Context, sets map[domain.Identity]association, id domain.Identity) ([]domain.Fingerprint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	set := sets[id]
	out := make([]domain.Fingerprint, 0, len(set))
	for fp := range set {
		out = append(out, fp)
	}
	sort.Slice(out, func(i, j int) bool {
		si, sj := set[out[i]], set[out[j]]
		if si != sj {
			return si < sj
		}
		return out[i] < out[j]
	})
	s.mu.RUnlock()
	return out, nil
}

func (s *InMemory) ByOwner(ctx context.Context, owner domain.Identity) ([]domain.Fingerprint, error) {
	return s.query(ctx, s.owners, owner)
}

func (s *InMemory) ByIssuer(ctx context.Context, issuer domain.Identity) ([]domain.Fingerprint, error) {
	return s.query(ctx, s.issuers, issuer)
}

func (s *InMemory) History(ctx context.Context, owner domain.Identity) ([]domain.Fingerprint, error) {
	return s.query(ctx, s.history, owner)
}

func (s *InMemory) Entry(ctx context.Context, fp domain.Fingerprint) (*idxmodels.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[fp]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := *e
	return &c, nil
}

// Reset drops all derived state.
func (s *InMemory) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.reset()
	s.mu.Unlock()
	return nil
}
