package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/podcoord/internal/persistence/sqlite"
)

// NewSQLiteStore opens a migrated storage in a temporary file. The storage is
// closed when the test finishes.
func NewSQLiteStore(tb testing.TB) *sqlite.Storage {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "podcoord.db")
	storage, err := sqlite.Open(sqlite.DefaultConfig(path))
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	tb.Cleanup(func() {
		_ = storage.Close()
	})

	if err := storage.Migrate(context.Background()); err != nil {
		tb.Fatalf("failed to migrate storage: %v", err)
	}
	return storage
}
