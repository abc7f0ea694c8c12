package counter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docproof/pkg/domain"
	"docproof/pkg/platform/circuit"
)

var fp = domain.DeriveFingerprint([]byte("counted"))

func TestInMemoryCounter(t *testing.T) {
	ctx := context.Background()
	c := NewInMemory()
	other := domain.DeriveFingerprint([]byte("other"))

	require.NoError(t, c.Increment(ctx, fp))
	require.NoError(t, c.Increment(ctx, fp))
	require.NoError(t, c.Increment(ctx, other))

	n, err := c.Count(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	total, err := c.Total(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}

type brokenCounter struct {
	calls int
	err   error
}

func (b *brokenCounter) Increment(context.Context, domain.Fingerprint) error {
	b.calls++
	return b.err
}

func (b *brokenCounter) Count(context.Context, domain.Fingerprint) (int64, error) {
	b.calls++
	return 0, b.err
}

func (b *brokenCounter) Total(context.Context) (int64, error) {
	b.calls++
	return 0, b.err
}

func TestTrackerFallsBackWhenPrimaryFails(t *testing.T) {
	ctx := context.Background()
	primary := &brokenCounter{err: errors.New("redis down")}
	fallback := NewInMemory()
	breaker := circuit.New("verification-counter", circuit.WithFailureThreshold(2), circuit.WithSuccessThreshold(1))
	tracker := NewTracker(primary, fallback, breaker, nil)

	err := tracker.Increment(ctx, fp)
	assert.Error(t, err, "below threshold the primary error surfaces")
	assert.False(t, breaker.IsOpen())

	require.NoError(t, tracker.Increment(ctx, fp), "opening call is served by the fallback")
	assert.True(t, breaker.IsOpen())
	require.NoError(t, tracker.Increment(ctx, fp))

	n, err := tracker.Count(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	primary.err = nil
	require.NoError(t, tracker.Increment(ctx, fp))
	assert.False(t, breaker.IsOpen(), "a success closes the breaker")
}
