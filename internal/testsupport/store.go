package testsupport

import (
	"context"
	"strings"
	"testing"

	"fileforge/internal/catalog"
	"fileforge/internal/config"
	"fileforge/internal/objectstore"
)

// MustOpenStore opens a catalog.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// MustOpenObjects opens a filesystem object store for tests.
func MustOpenObjects(t testing.TB, cfg *config.Config) *objectstore.Filesystem {
	t.Helper()

	objects, err := objectstore.NewFilesystem(cfg.ObjectStore.Dir)
	if err != nil {
		t.Fatalf("objectstore.NewFilesystem: %v", err)
	}
	return objects
}

// NewUpload records a file with stored bytes for tests.
func NewUpload(t testing.TB, store *catalog.Store, objects objectstore.Store, owner, name, content string) *catalog.File {
	t.Helper()

	ctx := context.Background()
	key, size, err := objects.Put(ctx, strings.NewReader(content))
	if err != nil {
		t.Fatalf("objects.Put: %v", err)
	}
	file := &catalog.File{
		OwnerID:      owner,
		OriginalName: name,
		SizeBytes:    size,
		StorageKey:   key,
		Status:       catalog.FileProcessing,
	}
	if err := store.CreateFile(ctx, file); err != nil {
		t.Fatalf("store.CreateFile: %v", err)
	}
	return file
}
