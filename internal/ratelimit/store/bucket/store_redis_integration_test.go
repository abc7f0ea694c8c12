//go:build integration

package bucket

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"docproof/pkg/testutil/containers"
)

func TestRedisBucketStoreSuite(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	suite.Run(t, &BucketStoreSuite{
		newStore: func() bucketStore {
			return NewRedisBucketStore(rc.Client, "test:"+uuid.NewString()+":")
		},
	})
}
