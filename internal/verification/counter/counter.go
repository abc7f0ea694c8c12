// Package counter keeps best-effort verification counts per fingerprint.
// Counts are statistics, not trust data: losing an increment is acceptable,
// blocking a verification is not.
package counter

import (
	"context"
	"sync"

	"docproof/pkg/domain"
)

//go:generate mockgen -source=counter.go -destination=mocks/mocks.go -package=mocks Counter

// Counter is a verification count backend.
type Counter interface {
	Increment(ctx context.Context, fp domain.Fingerprint) error
	Count(ctx context.Context, fp domain.Fingerprint) (int64, error)
	Total(ctx context.Context) (int64, error)
}

// InMemory is a process-local Counter.
type InMemory struct {
	mu     sync.RWMutex
	counts map[domain.Fingerprint]int64
	total  int64
}

func NewInMemory() *InMemory {
	return &InMemory{counts: make(map[domain.Fingerprint]int64)}
}

func (c *InMemory) Increment(_ context.Context, fp domain.Fingerprint) error {
	c.mu.Lock()
	c.counts[fp]++
	c.total++
	c.mu.Unlock()
	return nil
}

func (c *InMemory) Count(_ context.Context, fp domain.Fingerprint) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counts[fp], nil
}

func (c *InMemory) Total(context.Context) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.total, nil
}
