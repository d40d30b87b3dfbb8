//go:build integration

package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestRunSeedWithRealPostgres seeds fixtures against real PostgreSQL.
// Run with: go test -tags=integration -timeout 120s -run TestRunSeedWithRealPostgres ./cmd/marketctl/...
func TestRunSeedWithRealPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("marketplace"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			log.Printf("failed to terminate postgres container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer pool.Close()

	path := filepath.Join(t.TempDir(), "fixtures.json")
	if err := os.WriteFile(path, []byte(fixturesJSON), 0o644); err != nil {
		t.Fatalf("failed to write fixtures: %v", err)
	}

	n, err := runSeed(ctx, pool, path, false, nil, func(string, ...any) {})
	if err != nil {
		t.Fatalf("runSeed failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("seeded %d items", n)
	}

	var count int
	if err := pool.QueryRow(ctx, "SELECT count(*) FROM items").Scan(&count); err != nil || count != 2 {
		t.Fatalf("items count=%d err=%v", count, err)
	}

	// Re-running the same fixtures updates in place instead of duplicating.
	updated := `[{"id":"a1","name":"Netherite Axe","category":"tools","price":99,"stock_quantity":1,"owner_id":"steve","owner_shop_name":"Steve's Smithy"}]`
	upPath := filepath.Join(t.TempDir(), "update.json")
	if err := os.WriteFile(upPath, []byte(updated), 0o644); err != nil {
		t.Fatalf("failed to write fixtures: %v", err)
	}
	if _, err := runSeed(ctx, pool, upPath, false, nil, func(string, ...any) {}); err != nil {
		t.Fatalf("second runSeed failed: %v", err)
	}

	var name string
	if err := pool.QueryRow(ctx, "SELECT name FROM items WHERE id='a1'").Scan(&name); err != nil || name != "Netherite Axe" {
		t.Fatalf("upsert did not update: name=%q err=%v", name, err)
	}
	if err := pool.QueryRow(ctx, "SELECT count(*) FROM items").Scan(&count); err != nil || count != 2 {
		t.Fatalf("duplicate rows after upsert: count=%d err=%v", count, err)
	}
}
