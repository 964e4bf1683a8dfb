package presence_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"icebox/internal/presence"
	"icebox/internal/services"
	"icebox/internal/testsupport"
)

func TestStatusReportsLocalAndCloudOnly(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLibrary(t, cfg)
	lib := testsupport.NewLibrary(t, store, cfg)
	drive := testsupport.NewDrive(t, cfg)
	tracker := presence.NewTracker(store, drive, nil, presence.Options{})

	testsupport.SeedDriveFile(t, drive, "movie.mkv", 1024)
	asset := testsupport.NewAsset(t, store, lib.ID, "movie.mkv", 1024)

	ctx := context.Background()
	state, err := tracker.Status(ctx, asset.ID)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if state != presence.StateLocal {
		t.Fatalf("state = %q, want local", state)
	}

	if err := drive.EvictLocal(ctx, "movie.mkv"); err != nil {
		t.Fatalf("EvictLocal: %v", err)
	}
	state, err = tracker.Status(ctx, asset.ID)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if state != presence.StateCloudOnly {
		t.Fatalf("state = %q, want cloud_only", state)
	}
}

func TestStatusMissingAsset(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLibrary(t, cfg)
	lib := testsupport.NewLibrary(t, store, cfg)
	drive := testsupport.NewDrive(t, cfg)
	tracker := presence.NewTracker(store, drive, nil, presence.Options{})

	ctx := context.Background()

	// No record at all.
	state, err := tracker.Status(ctx, 9999)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if state != presence.StateMissing {
		t.Fatalf("state = %q, want missing", state)
	}

	// Record exists but the path resolves nowhere.
	asset := testsupport.NewAsset(t, store, lib.ID, "ghost.mkv", 1)
	state, err = tracker.Status(ctx, asset.ID)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if state != presence.StateMissing {
		t.Fatalf("state = %q, want missing", state)
	}
}

func TestEnsureLocalHydratesCloudOnlyAsset(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLibrary(t, cfg)
	lib := testsupport.NewLibrary(t, store, cfg)
	drive := testsupport.NewDrive(t, cfg)
	drive.HydrateDelay = 150 * time.Millisecond
	tracker := presence.NewTracker(store, drive, nil, presence.Options{
		HydrationGrace: 2 * time.Second,
		GracePoll:      10 * time.Millisecond,
	})

	testsupport.SeedDriveFile(t, drive, "cold.mkv", 2048)
	asset := testsupport.NewAsset(t, store, lib.ID, "cold.mkv", 2048)

	ctx := context.Background()
	if err := drive.EvictLocal(ctx, "cold.mkv"); err != nil {
		t.Fatalf("EvictLocal: %v", err)
	}

	if err := tracker.EnsureLocal(ctx, asset.ID); err != nil {
		t.Fatalf("EnsureLocal failed: %v", err)
	}

	set := tracker.DownloadingSet()
	if len(set) != 1 || set[0] != asset.ID {
		t.Fatalf("DownloadingSet = %v, want [%d]", set, asset.ID)
	}

	// Completion is observed via later polls, never awaited by EnsureLocal.
	deadline := time.Now().Add(5 * time.Second)
	for {
		state, err := tracker.Status(ctx, asset.ID)
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if state == presence.StateLocal {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("asset never became local, state %q", state)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(tracker.DownloadingSet()) != 0 {
		t.Fatal("downloading set should be empty after completion")
	}
}

func TestEnsureLocalIsNoopWhenLocal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLibrary(t, cfg)
	lib := testsupport.NewLibrary(t, store, cfg)
	drive := testsupport.NewDrive(t, cfg)
	tracker := presence.NewTracker(store, drive, nil, presence.Options{})

	testsupport.SeedDriveFile(t, drive, "warm.mkv", 64)
	asset := testsupport.NewAsset(t, store, lib.ID, "warm.mkv", 64)

	if err := tracker.EnsureLocal(context.Background(), asset.ID); err != nil {
		t.Fatalf("EnsureLocal failed: %v", err)
	}
	if len(tracker.DownloadingSet()) != 0 {
		t.Fatal("no hydration should be registered for a local asset")
	}
}

func TestEnsureLocalMissingAsset(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLibrary(t, cfg)
	lib := testsupport.NewLibrary(t, store, cfg)
	drive := testsupport.NewDrive(t, cfg)
	tracker := presence.NewTracker(store, drive, nil, presence.Options{})

	asset := testsupport.NewAsset(t, store, lib.ID, "nowhere.mkv", 1)
	err := tracker.EnsureLocal(context.Background(), asset.ID)
	if err == nil {
		t.Fatal("expected error for unresolvable asset")
	}
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound marker", err)
	}
}

func TestSubscribePublishesTransitions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLibrary(t, cfg)
	lib := testsupport.NewLibrary(t, store, cfg)
	drive := testsupport.NewDrive(t, cfg)
	tracker := presence.NewTracker(store, drive, nil, presence.Options{})

	testsupport.SeedDriveFile(t, drive, "observed.mkv", 128)
	asset := testsupport.NewAsset(t, store, lib.ID, "observed.mkv", 128)

	updates, cancel := tracker.Subscribe()
	defer cancel()

	ctx := context.Background()
	if _, err := tracker.Status(ctx, asset.ID); err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	select {
	case update := <-updates:
		if update.Current != presence.StateLocal {
			t.Fatalf("update state = %q, want local", update.Current)
		}
	case <-time.After(time.Second):
		t.Fatal("no update for first probe")
	}

	// Re-probing the same state publishes nothing.
	if _, err := tracker.Status(ctx, asset.ID); err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	select {
	case update := <-updates:
		t.Fatalf("unexpected update %+v for unchanged state", update)
	case <-time.After(100 * time.Millisecond):
	}

	if err := drive.EvictLocal(ctx, "observed.mkv"); err != nil {
		t.Fatalf("EvictLocal: %v", err)
	}
	if _, err := tracker.Status(ctx, asset.ID); err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	select {
	case update := <-updates:
		if update.Previous != presence.StateLocal || update.Current != presence.StateCloudOnly {
			t.Fatalf("update = %+v, want local -> cloud_only", update)
		}
	case <-time.After(time.Second):
		t.Fatal("no update for eviction transition")
	}
}
