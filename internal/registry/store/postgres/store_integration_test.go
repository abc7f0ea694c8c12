//go:build integration

package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"docproof/internal/registry/store/postgres"
	"docproof/internal/registry/store/storetest"
	"docproof/pkg/testutil/containers"
)

func TestPostgresContract(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)

	suite.Run(t, &storetest.Suite{NewStore: func() storetest.Store {
		if err := pg.TruncateTables(context.Background(), "registry_events", "registry_records"); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return postgres.New(pg.DB)
	}})
}
