//go:build integration

package counter

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docproof/pkg/domain"
	"docproof/pkg/testutil/containers"
)

func TestRedisCounter(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	ctx := context.Background()
	c := NewRedis(rc.Client, "test:"+uuid.NewString()+":")

	a := domain.MustParseFingerprint("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	b := domain.MustParseFingerprint("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	for range 3 {
		require.NoError(t, c.Increment(ctx, a))
	}
	require.NoError(t, c.Increment(ctx, b))

	n, err := c.Count(ctx, a)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	n, err = c.Count(ctx, domain.MustParseFingerprint("cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc"))
	require.NoError(t, err)
	assert.Zero(t, n)

	total, err := c.Total(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
}
