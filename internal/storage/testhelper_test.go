//go:build integration

package storage_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/sungwon/newsletter/internal/storage"
	"github.com/sungwon/newsletter/internal/storage/pgtest"
)

var (
	sharedPG *pgtest.Postgres
	sharedDB *storage.DB
)

// TestMain sets up a shared PostgreSQL container for all integration tests.
func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	sharedPG, err = pgtest.Start(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres: %v\n", err)
		os.Exit(1)
	}
	sharedDB = sharedPG.DB

	code := m.Run()

	sharedPG.Terminate(ctx)
	os.Exit(code)
}
