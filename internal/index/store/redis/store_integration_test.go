//go:build integration

package redis

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"docproof/internal/index/store/storetest"
	"docproof/pkg/testutil/containers"
)

func TestRedisIndexContract(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	suite.Run(t, &storetest.Suite{NewStore: func() storetest.Store {
		// a fresh prefix per test isolates state without flushing the shared container
		return New(rc.Client, WithPrefix("test:"+uuid.NewString()+":"))
	}})
}
