// Package testutil provides shared test infrastructure: a pgvector
// Postgres container, deterministic fakes for the embedding and model
// services, and an SSE stream parser.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/investron/investron/db"
	"github.com/investron/investron/internal/vectorstore"
)

// TestDB is an isolated Postgres instance with the pgvector extension
// and the application schema applied.
type TestDB struct {
	Pool    *pgxpool.Pool
	ConnStr string
}

// SetupTestDB starts a pgvector Postgres container, applies migrations,
// and returns a pool with the vector codec registered. The container is
// terminated via t.Cleanup.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("investron_test"),
		postgres.WithUsername("investron_test"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	if err := db.Migrate(connStr, DiscardLogger()); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}

	pool, err := vectorstore.NewPool(ctx, connStr)
	if err != nil {
		t.Fatalf("creating pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return &TestDB{Pool: pool, ConnStr: connStr}
}
