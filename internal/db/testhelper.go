package db

import (
	"path/filepath"
	"testing"
)

// OpenTestMetastore opens a migrated metastore in t.TempDir() and registers
// cleanup.
func OpenTestMetastore(t *testing.T) *Metastore {
	t.Helper()

	store, err := OpenMetastore(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("open test metastore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}
