package bucket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestInMemoryBucketStoreSuite(t *testing.T) {
	suite.Run(t, &BucketStoreSuite{
		newStore: func() bucketStore { return NewInMemoryBucketStore() },
	})
}

func TestInMemoryWindowSlides(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewInMemoryBucketStore()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	for range 3 {
		_, err := store.Allow(ctx, "slide", 3, time.Minute)
		require.NoError(t, err)
	}
	res, err := store.Allow(ctx, "slide", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 60, res.RetryAfter)
	assert.Equal(t, now.Add(time.Minute), res.ResetAt)

	now = now.Add(40 * time.Second)
	res, err = store.Allow(ctx, "slide", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 20, res.RetryAfter)

	now = now.Add(21 * time.Second)
	res, err = store.Allow(ctx, "slide", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)
}
