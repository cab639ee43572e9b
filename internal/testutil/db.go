package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/xxxsen/ragsearch/internal/config"
	"github.com/xxxsen/ragsearch/internal/repo"
)

// OpenTestDB connects to the postgres named by TEST_DB_HOST and applies the
// migrations. The test is skipped when the variable is unset.
func OpenTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set, skipping postgres test")
	}
	conn, err := repo.Open(config.DatabaseConfig{
		Host:     host,
		Port:     5432,
		User:     "ragsearch",
		Password: "ragsearch_pass",
		DBName:   "ragsearch_test",
		SSLMode:  "disable",
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := repo.ApplyMigrations(context.Background(), conn); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	if _, err := conn.Exec("TRUNCATE documents, embedding_cache CASCADE"); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return conn, func() {
		_ = conn.Close()
	}
}

// Vector returns a dim-length vector with value at position hot.
func Vector(dim, hot int, value float32) []float32 {
	v := make([]float32, dim)
	v[hot%dim] = value
	return v
}
