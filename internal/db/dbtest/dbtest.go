// Package dbtest opens throwaway SQLite databases for tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"

	"github.com/toonranks/toonranks/internal/db"
)

// New returns a migrated database backed by a file in t.TempDir()
func New(t testing.TB) *db.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	database, err := db.Open(sqlite.Open(db.SQLiteDSN(path)), "ERROR")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	if err := database.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database
}
