package fsdrive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"icebox/internal/clouddrive"
)

func newTestDrive(t *testing.T) *Drive {
	t.Helper()
	base := t.TempDir()
	drive, err := New(filepath.Join(base, "library"), filepath.Join(base, "mirror"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return drive
}

func writeSource(t *testing.T, contents string) string {
	t.Helper()
	src := filepath.Join(t.TempDir(), "source.mkv")
	if err := os.WriteFile(src, []byte(contents), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return src
}

func waitForLocal(t *testing.T, drive *Drive, relPath string) clouddrive.Info {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		info, err := drive.Stat(context.Background(), relPath)
		if err != nil {
			t.Fatalf("Stat %s: %v", relPath, err)
		}
		if info.LocalPresent && info.Download == clouddrive.DownloadNone {
			return info
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("file %s never became local", relPath)
	return clouddrive.Info{}
}

func TestPutPlacesFileInBothTiers(t *testing.T) {
	drive := newTestDrive(t)
	src := writeSource(t, "episode payload")

	if err := drive.Put(context.Background(), src, "shows/pilot.mkv"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	info, err := drive.Stat(context.Background(), "shows/pilot.mkv")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !info.LocalPresent {
		t.Error("expected file to be local after Put")
	}
	if !info.RemoteReady {
		t.Error("expected durable copy after Put")
	}
	if info.SizeBytes != int64(len("episode payload")) {
		t.Errorf("SizeBytes = %d, want %d", info.SizeBytes, len("episode payload"))
	}
}

func TestEvictLocalKeepsDurableCopy(t *testing.T) {
	drive := newTestDrive(t)
	src := writeSource(t, "evictable")
	if err := drive.Put(context.Background(), src, "movie.mkv"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := drive.EvictLocal(context.Background(), "movie.mkv"); err != nil {
		t.Fatalf("EvictLocal: %v", err)
	}

	info, err := drive.Stat(context.Background(), "movie.mkv")
	if err != nil {
		t.Fatalf("Stat after evict: %v", err)
	}
	if info.LocalPresent {
		t.Error("expected local copy gone after eviction")
	}
	if !info.RemoteReady {
		t.Error("eviction must not touch the durable copy")
	}

	// Evicting a file that is already cloud-only is a no-op.
	if err := drive.EvictLocal(context.Background(), "movie.mkv"); err != nil {
		t.Fatalf("second EvictLocal: %v", err)
	}
}

func TestRequestHydrationRestoresLocalCopy(t *testing.T) {
	drive := newTestDrive(t)
	src := writeSource(t, "bytes to restore")
	if err := drive.Put(context.Background(), src, "clips/short.mp4"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := drive.EvictLocal(context.Background(), "clips/short.mp4"); err != nil {
		t.Fatalf("EvictLocal: %v", err)
	}

	if err := drive.RequestHydration(context.Background(), "clips/short.mp4"); err != nil {
		t.Fatalf("RequestHydration: %v", err)
	}
	info := waitForLocal(t, drive, "clips/short.mp4")
	if info.SizeBytes != int64(len("bytes to restore")) {
		t.Errorf("hydrated size = %d, want %d", info.SizeBytes, len("bytes to restore"))
	}

	contents, err := os.ReadFile(filepath.Join(drive.Root(), "clips/short.mp4"))
	if err != nil {
		t.Fatalf("read hydrated file: %v", err)
	}
	if string(contents) != "bytes to restore" {
		t.Errorf("hydrated contents = %q", contents)
	}
}

func TestRequestHydrationReportsInProgress(t *testing.T) {
	drive := newTestDrive(t)
	drive.HydrateDelay = 200 * time.Millisecond
	src := writeSource(t, "slow download")
	if err := drive.Put(context.Background(), src, "slow.mkv"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := drive.EvictLocal(context.Background(), "slow.mkv"); err != nil {
		t.Fatalf("EvictLocal: %v", err)
	}

	if err := drive.RequestHydration(context.Background(), "slow.mkv"); err != nil {
		t.Fatalf("RequestHydration: %v", err)
	}
	info, err := drive.Stat(context.Background(), "slow.mkv")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Download != clouddrive.DownloadInProgress {
		t.Errorf("Download = %q, want %q", info.Download, clouddrive.DownloadInProgress)
	}

	// A second request while the first is in flight must not error.
	if err := drive.RequestHydration(context.Background(), "slow.mkv"); err != nil {
		t.Fatalf("duplicate RequestHydration: %v", err)
	}
	waitForLocal(t, drive, "slow.mkv")
}

func TestRequestHydrationMissingFile(t *testing.T) {
	drive := newTestDrive(t)
	err := drive.RequestHydration(context.Background(), "never/existed.mkv")
	if err == nil {
		t.Fatal("expected error hydrating a missing file")
	}
}

func TestWalkSeesEvictedFiles(t *testing.T) {
	drive := newTestDrive(t)
	for _, rel := range []string{"a/one.mkv", "a/two.mkv", "b/three.mkv"} {
		src := writeSource(t, "walk "+rel)
		if err := drive.Put(context.Background(), src, rel); err != nil {
			t.Fatalf("Put %s: %v", rel, err)
		}
	}
	if err := drive.EvictLocal(context.Background(), "a/two.mkv"); err != nil {
		t.Fatalf("EvictLocal: %v", err)
	}

	seen := map[string]clouddrive.Info{}
	err := drive.Walk(context.Background(), func(info clouddrive.Info) error {
		if !info.IsDir {
			seen[filepath.ToSlash(info.RelPath)] = info
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}

	if len(seen) != 3 {
		t.Fatalf("Walk saw %d files, want 3", len(seen))
	}
	evicted, ok := seen["a/two.mkv"]
	if !ok {
		t.Fatal("evicted file missing from walk")
	}
	if evicted.LocalPresent {
		t.Error("evicted file reported as local")
	}
	if !evicted.RemoteReady {
		t.Error("evicted file lost its durable copy")
	}
}

func TestStatMissingFile(t *testing.T) {
	drive := newTestDrive(t)
	if _, err := drive.Stat(context.Background(), "ghost.mkv"); err != clouddrive.ErrNotExist {
		t.Fatalf("Stat missing file: err = %v, want ErrNotExist", err)
	}
}
