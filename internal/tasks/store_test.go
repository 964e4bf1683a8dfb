package tasks_test

import (
	"context"
	"testing"
	"time"

	"icebox/internal/tasks"
	"icebox/internal/testsupport"
)

func TestEnqueueDeduplicates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenTasks(t, cfg)

	ctx := context.Background()
	first, created, err := store.Enqueue(ctx, 7, 1, tasks.KindTranscribe, "")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if !created {
		t.Fatal("expected first enqueue to create a task")
	}

	second, created, err := store.Enqueue(ctx, 7, 1, tasks.KindTranscribe, "")
	if err != nil {
		t.Fatalf("second Enqueue failed: %v", err)
	}
	if created {
		t.Fatal("second enqueue must be a no-op while the first is non-terminal")
	}
	if second.ID != first.ID {
		t.Fatalf("second enqueue returned task %d, want %d", second.ID, first.ID)
	}

	// A different kind for the same asset is independent.
	_, created, err = store.Enqueue(ctx, 7, 1, tasks.KindImport, "")
	if err != nil {
		t.Fatalf("Enqueue import failed: %v", err)
	}
	if !created {
		t.Fatal("different kind should create a new task")
	}

	// Once the first task completes, a fresh enqueue creates a new task.
	if err := store.MarkSucceeded(ctx, first.ID); err != nil {
		t.Fatalf("MarkSucceeded failed: %v", err)
	}
	third, created, err := store.Enqueue(ctx, 7, 1, tasks.KindTranscribe, "")
	if err != nil {
		t.Fatalf("third Enqueue failed: %v", err)
	}
	if !created || third.ID == first.ID {
		t.Fatalf("expected a new task after terminal success, got created=%v id=%d", created, third.ID)
	}
}

func TestClaimNextIsFIFOWithinKind(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenTasks(t, cfg)

	ctx := context.Background()
	older, _, err := store.Enqueue(ctx, 1, 1, tasks.KindImport, "")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	newer, _, err := store.Enqueue(ctx, 2, 1, tasks.KindImport, "")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	claimed, err := store.ClaimNext(ctx, tasks.KindImport, time.Now())
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if claimed == nil || claimed.ID != older.ID {
		t.Fatalf("claimed %#v, want oldest task %d", claimed, older.ID)
	}
	if claimed.Status != tasks.StatusRunning {
		t.Fatalf("claimed status = %q, want running", claimed.Status)
	}
	if claimed.Attempts != 1 {
		t.Fatalf("claimed attempts = %d, want 1", claimed.Attempts)
	}

	next, err := store.ClaimNext(ctx, tasks.KindImport, time.Now())
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if next == nil || next.ID != newer.ID {
		t.Fatalf("second claim %#v, want %d", next, newer.ID)
	}

	none, err := store.ClaimNext(ctx, tasks.KindImport, time.Now())
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if none != nil {
		t.Fatalf("expected no claimable task, got %#v", none)
	}
}

func TestClaimNextHonorsBackoffSchedule(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenTasks(t, cfg)

	ctx := context.Background()
	task, _, err := store.Enqueue(ctx, 3, 1, tasks.KindTranscribe, "")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	claimed, err := store.ClaimNext(ctx, tasks.KindTranscribe, time.Now())
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext = %#v, %v", claimed, err)
	}
	if err := store.Requeue(ctx, task.ID, time.Minute, "transient failure", false); err != nil {
		t.Fatalf("Requeue failed: %v", err)
	}

	now := time.Now()
	early, err := store.ClaimNext(ctx, tasks.KindTranscribe, now)
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if early != nil {
		t.Fatalf("task claimable before backoff elapsed: %#v", early)
	}

	due, err := store.ClaimNext(ctx, tasks.KindTranscribe, now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if due == nil || due.ID != task.ID {
		t.Fatalf("task not claimable after backoff: %#v", due)
	}
	if due.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", due.Attempts)
	}
	if due.LastError != "transient failure" {
		t.Fatalf("last error = %q", due.LastError)
	}
}

func TestRequeueRestoresAttemptForHydrationWait(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenTasks(t, cfg)

	ctx := context.Background()
	task, _, err := store.Enqueue(ctx, 4, 1, tasks.KindTranscribe, "")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := store.ClaimNext(ctx, tasks.KindTranscribe, time.Now()); err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if err := store.Requeue(ctx, task.ID, 0, "waiting for download", true); err != nil {
		t.Fatalf("Requeue failed: %v", err)
	}

	got, err := store.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != tasks.StatusQueued {
		t.Fatalf("status = %q, want queued", got.Status)
	}
	if got.Attempts != 0 {
		t.Fatalf("attempts = %d, want 0 after a hydration wait", got.Attempts)
	}
}

func TestResetRunningAtStartup(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenTasks(t, cfg)

	ctx := context.Background()
	task, _, err := store.Enqueue(ctx, 5, 1, tasks.KindImport, "")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := store.ClaimNext(ctx, tasks.KindImport, time.Now()); err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}

	reset, err := store.ResetRunning(ctx)
	if err != nil {
		t.Fatalf("ResetRunning failed: %v", err)
	}
	if reset != 1 {
		t.Fatalf("ResetRunning reset %d tasks, want 1", reset)
	}

	got, err := store.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != tasks.StatusQueued {
		t.Fatalf("status = %q, want queued after reset", got.Status)
	}
	if got.Attempts != 0 {
		t.Fatalf("attempts = %d, want restored to 0", got.Attempts)
	}
}

func TestReclaimStale(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenTasks(t, cfg)

	ctx := context.Background()
	task, _, err := store.Enqueue(ctx, 6, 1, tasks.KindImport, "")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := store.ClaimNext(ctx, tasks.KindImport, time.Now()); err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}

	// Heartbeat is fresh; nothing should be reclaimed.
	reclaimed, err := store.ReclaimStale(ctx, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("ReclaimStale failed: %v", err)
	}
	if reclaimed != 0 {
		t.Fatalf("reclaimed %d with fresh heartbeat, want 0", reclaimed)
	}

	reclaimed, err = store.ReclaimStale(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("ReclaimStale failed: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("reclaimed %d, want 1", reclaimed)
	}
	got, err := store.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != tasks.StatusQueued {
		t.Fatalf("status = %q, want queued after reclaim", got.Status)
	}
}

func TestRetryFailedAndStats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenTasks(t, cfg)

	ctx := context.Background()
	task, _, err := store.Enqueue(ctx, 8, 1, tasks.KindTranscribe, "")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := store.ClaimNext(ctx, tasks.KindTranscribe, time.Now()); err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if err := store.MarkFailed(ctx, task.ID, "out of retries"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[tasks.KindTranscribe][tasks.StatusFailed] != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}

	retried, err := store.RetryFailed(ctx, task.ID)
	if err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	if retried != 1 {
		t.Fatalf("retried %d tasks, want 1", retried)
	}
	got, err := store.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != tasks.StatusQueued || got.Attempts != 0 || got.LastError != "" {
		t.Fatalf("unexpected retried task: %#v", got)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Total != 1 || health.Queued != 1 {
		t.Fatalf("unexpected health: %#v", health)
	}
}

func TestRetryFailedSkipsSupersededTask(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenTasks(t, cfg)

	ctx := context.Background()
	failed, _, err := store.Enqueue(ctx, 9, 1, tasks.KindTranscribe, "")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := store.ClaimNext(ctx, tasks.KindTranscribe, time.Now()); err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if err := store.MarkFailed(ctx, failed.ID, "tool crashed"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	// A fresh enqueue after the failure occupies the (asset, kind) slot.
	replacement, created, err := store.Enqueue(ctx, 9, 1, tasks.KindTranscribe, "")
	if err != nil || !created {
		t.Fatalf("re-enqueue failed: created=%v err=%v", created, err)
	}

	// The failed task must not be re-queued into the occupied slot,
	// neither by a blanket retry nor by id.
	retried, err := store.RetryFailed(ctx)
	if err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	if retried != 0 {
		t.Fatalf("retried %d tasks, want 0", retried)
	}
	retried, err = store.RetryFailed(ctx, failed.ID)
	if err != nil {
		t.Fatalf("RetryFailed by id failed: %v", err)
	}
	if retried != 0 {
		t.Fatalf("retried %d tasks by id, want 0", retried)
	}

	got, err := store.GetByID(ctx, failed.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != tasks.StatusFailed {
		t.Fatalf("superseded task status = %q, want failed", got.Status)
	}

	// Once the replacement finishes, the failed task retries normally.
	if _, err := store.ClaimNext(ctx, tasks.KindTranscribe, time.Now()); err != nil {
		t.Fatalf("claim replacement failed: %v", err)
	}
	if err := store.MarkSucceeded(ctx, replacement.ID); err != nil {
		t.Fatalf("MarkSucceeded failed: %v", err)
	}
	retried, err = store.RetryFailed(ctx, failed.ID)
	if err != nil {
		t.Fatalf("RetryFailed after completion failed: %v", err)
	}
	if retried != 1 {
		t.Fatalf("retried %d tasks after completion, want 1", retried)
	}
}

func TestActiveAssetIDs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenTasks(t, cfg)

	ctx := context.Background()
	queued, _, err := store.Enqueue(ctx, 10, 1, tasks.KindImport, "")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	done, _, err := store.Enqueue(ctx, 11, 1, tasks.KindImport, "")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := store.MarkSucceeded(ctx, done.ID); err != nil {
		t.Fatalf("MarkSucceeded failed: %v", err)
	}

	active, err := store.ActiveAssetIDs(ctx)
	if err != nil {
		t.Fatalf("ActiveAssetIDs failed: %v", err)
	}
	if _, ok := active[queued.AssetID]; !ok {
		t.Fatalf("asset %d missing from active set", queued.AssetID)
	}
	if _, ok := active[done.AssetID]; ok {
		t.Fatal("terminal task's asset must not be in the active set")
	}
}
