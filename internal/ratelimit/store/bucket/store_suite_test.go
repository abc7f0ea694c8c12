package bucket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/suite"

	"docproof/internal/ratelimit/models"
)

const (
	testLimit  = 10
	testWindow = time.Minute
)

type bucketStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error)
	AllowN(ctx context.Context, key string, cost, limit int, window time.Duration) (*models.Result, error)
	Reset(ctx context.Context, key string) error
	GetCurrentCount(ctx context.Context, key string) (int, error)
}

// BucketStoreSuite runs the same behaviour checks against every backend.
type BucketStoreSuite struct {
	suite.Suite
	newStore func() bucketStore
	store    bucketStore
	ctx      context.Context
}

func (s *BucketStoreSuite) SetupTest() {
	s.store = s.newStore()
	s.ctx = context.Background()
}

func (s *BucketStoreSuite) TestAllow() {
	s.Run("first request allowed", func() {
		res, err := s.store.Allow(s.ctx, "allow:first", testLimit, testWindow)
		s.Require().NoError(err)
		s.True(res.Allowed)
		s.Equal(testLimit, res.Limit)
		s.Equal(testLimit-1, res.Remaining)
		s.Zero(res.RetryAfter)
	})

	s.Run("requests up to limit allowed", func() {
		var res *models.Result
		var err error
		for range testLimit {
			res, err = s.store.Allow(s.ctx, "allow:limit", testLimit, testWindow)
			s.Require().NoError(err)
		}
		s.True(res.Allowed)
		s.Equal(0, res.Remaining)
	})

	s.Run("request over limit denied", func() {
		for range testLimit {
			_, err := s.store.Allow(s.ctx, "allow:over", testLimit, testWindow)
			s.Require().NoError(err)
		}
		res, err := s.store.Allow(s.ctx, "allow:over", testLimit, testWindow)
		s.Require().NoError(err)
		s.False(res.Allowed)
		s.Equal(0, res.Remaining)
		s.Positive(res.RetryAfter)

		count, err := s.store.GetCurrentCount(s.ctx, "allow:over")
		s.Require().NoError(err)
		s.Equal(testLimit, count, "denied requests are not recorded")
	})

	s.Run("keys are independent", func() {
		for range testLimit {
			_, err := s.store.Allow(s.ctx, "allow:a", testLimit, testWindow)
			s.Require().NoError(err)
		}
		res, err := s.store.Allow(s.ctx, "allow:b", testLimit, testWindow)
		s.Require().NoError(err)
		s.True(res.Allowed)
	})
}

func (s *BucketStoreSuite) TestAllowN() {
	res, err := s.store.AllowN(s.ctx, "allown", 7, testLimit, testWindow)
	s.Require().NoError(err)
	s.True(res.Allowed)
	s.Equal(3, res.Remaining)

	res, err = s.store.AllowN(s.ctx, "allown", 4, testLimit, testWindow)
	s.Require().NoError(err)
	s.False(res.Allowed, "cost that does not fit is rejected whole")

	count, err := s.store.GetCurrentCount(s.ctx, "allown")
	s.Require().NoError(err)
	s.Equal(7, count)
}

func (s *BucketStoreSuite) TestReset() {
	for range testLimit {
		_, err := s.store.Allow(s.ctx, "reset", testLimit, testWindow)
		s.Require().NoError(err)
	}
	s.Require().NoError(s.store.Reset(s.ctx, "reset"))

	count, err := s.store.GetCurrentCount(s.ctx, "reset")
	s.Require().NoError(err)
	s.Zero(count)

	res, err := s.store.Allow(s.ctx, "reset", testLimit, testWindow)
	s.Require().NoError(err)
	s.True(res.Allowed)
}

func (s *BucketStoreSuite) TestConcurrent() {
	const (
		workers = 200
		limit   = 100
	)
	var allowed atomic.Int64
	var wg sync.WaitGroup
	for range workers {
		wg.Go(func() {
			res, err := s.store.Allow(s.ctx, "concurrent", limit, testWindow)
			if err == nil && res.Allowed {
				allowed.Add(1)
			}
		})
	}
	wg.Wait()
	s.EqualValues(limit, allowed.Load())
}
