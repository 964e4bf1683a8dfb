package testsupport

import (
	"context"
	"testing"

	"icebox/internal/clouddrive/fsdrive"
	"icebox/internal/config"
)

// NewDrive builds an fsdrive rooted at the config's library and mirror
// directories.
func NewDrive(t testing.TB, cfg *config.Config) *fsdrive.Drive {
	t.Helper()

	drive, err := fsdrive.New(cfg.Library.RootDir, cfg.Cloud.MirrorDir)
	if err != nil {
		t.Fatalf("fsdrive.New: %v", err)
	}
	return drive
}

// SeedDriveFile places a file of the requested size into both tiers of the
// drive and returns its library-relative path.
func SeedDriveFile(t testing.TB, drive *fsdrive.Drive, relPath string, size int64) string {
	t.Helper()

	src := t.TempDir() + "/seed-" + SafeName(relPath)
	WriteFile(t, src, size)
	if err := drive.Put(context.Background(), src, relPath); err != nil {
		t.Fatalf("drive.Put %s: %v", relPath, err)
	}
	return relPath
}

// SafeName flattens a relative path into a single filename component.
func SafeName(relPath string) string {
	out := make([]byte, len(relPath))
	for i := 0; i < len(relPath); i++ {
		c := relPath[i]
		if c == '/' || c == '\\' {
			c = '_'
		}
		out[i] = c
	}
	return string(out)
}
