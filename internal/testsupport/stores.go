package testsupport

import (
	"context"
	"testing"

	"icebox/internal/config"
	"icebox/internal/library"
	"icebox/internal/tasks"
)

// MustOpenLibrary opens a library.Store for tests and registers cleanup.
func MustOpenLibrary(t testing.TB, cfg *config.Config) *library.Store {
	t.Helper()

	store, err := library.Open(cfg)
	if err != nil {
		t.Fatalf("library.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenTasks opens a tasks.Store for tests and registers cleanup.
func MustOpenTasks(t testing.TB, cfg *config.Config) *tasks.Store {
	t.Helper()

	store, err := tasks.Open(cfg)
	if err != nil {
		t.Fatalf("tasks.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewLibrary creates a library row from the config's default library settings.
func NewLibrary(t testing.TB, store *library.Store, cfg *config.Config) *library.Library {
	t.Helper()

	lib, err := store.CreateLibrary(
		context.Background(),
		cfg.Library.Name,
		cfg.Library.RootDir,
		library.StorageMode(cfg.Storage.Mode),
		cfg.CacheBudgetBytes(),
	)
	if err != nil {
		t.Fatalf("store.CreateLibrary: %v", err)
	}
	return lib
}

// NewAsset creates an asset record in the given library for tests.
func NewAsset(t testing.TB, store *library.Store, libraryID int64, relPath string, sizeBytes int64) *library.Asset {
	t.Helper()

	asset, err := store.CreateAsset(context.Background(), &library.Asset{
		LibraryID: libraryID,
		RelPath:   relPath,
		Title:     relPath,
		SizeBytes: sizeBytes,
	})
	if err != nil {
		t.Fatalf("store.CreateAsset: %v", err)
	}
	return asset
}
