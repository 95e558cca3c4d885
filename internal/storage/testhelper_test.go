package storage

import (
	"context"
	"path/filepath"
	"testing"
)

// setupTestStore opens a migrated store on a fresh file under t.TempDir().
func setupTestStore(t *testing.T, opts ...Option) *SQLiteStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "vault.db")
	s, err := Open(context.Background(), path, opts...)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func ptr[T any](v T) *T { return &v }
