package workflow_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"icebox/internal/config"
	"icebox/internal/library"
	"icebox/internal/services"
	"icebox/internal/tasks"
	"icebox/internal/testsupport"
	"icebox/internal/workflow"
)

type fixture struct {
	cfg     *config.Config
	store   *tasks.Store
	library *library.Store
	lib     *library.Library
	asset   *library.Asset
	manager *workflow.Manager
}

func newFixture(t *testing.T, tune func(cfg *config.Config)) *fixture {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	cfg.Workflow.QueuePollInterval = 1
	cfg.Tasks.RetryBackoffSeconds = 0
	cfg.Tasks.HydrationPollSeconds = 0
	if tune != nil {
		tune(cfg)
	}

	libStore := testsupport.MustOpenLibrary(t, cfg)
	taskStore := testsupport.MustOpenTasks(t, cfg)
	lib := testsupport.NewLibrary(t, libStore, cfg)
	asset := testsupport.NewAsset(t, libStore, lib.ID, "Movies/Heat.mkv", 4096)

	return &fixture{
		cfg:     cfg,
		store:   taskStore,
		library: libStore,
		lib:     lib,
		asset:   asset,
		manager: workflow.NewManager(cfg, taskStore, libStore, nil),
	}
}

func (f *fixture) enqueue(t *testing.T, kind tasks.Kind) *tasks.Task {
	t.Helper()
	task, created, err := f.store.Enqueue(context.Background(), f.asset.ID, f.lib.ID, kind, "")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if !created {
		t.Fatalf("expected new task for kind %s", kind)
	}
	return task
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(f.manager.Stop)
}

func waitForTaskStatus(t *testing.T, store *tasks.Store, id int64, want tasks.Status) *tasks.Task {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		task, err := store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if task != nil && task.Status == want {
			return task
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("task %d never reached status %s", id, want)
	return nil
}

func TestManagerExecutesQueuedTask(t *testing.T) {
	f := newFixture(t, nil)

	var executed atomic.Int32
	f.manager.Register(tasks.KindTranscribe, workflow.HandlerFunc(func(ctx context.Context, task *tasks.Task) error {
		executed.Add(1)
		return nil
	}))

	queued := f.enqueue(t, tasks.KindTranscribe)
	f.start(t)

	done := waitForTaskStatus(t, f.store, queued.ID, tasks.StatusSucceeded)
	if done.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", done.Attempts)
	}
	if got := executed.Load(); got != 1 {
		t.Fatalf("expected handler to run once, ran %d times", got)
	}

	asset, err := f.library.GetAsset(context.Background(), f.asset.ID)
	if err != nil {
		t.Fatalf("GetAsset: %v", err)
	}
	if asset.TranscribeStatus != library.ProcessSucceeded {
		t.Fatalf("expected transcribe status succeeded, got %q", asset.TranscribeStatus)
	}

	status, err := f.manager.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running {
		t.Fatal("expected manager to report running")
	}
	if status.Queue.Succeeded != 1 {
		t.Fatalf("expected 1 succeeded task in summary, got %d", status.Queue.Succeeded)
	}
}

func TestManagerRetriesUntilSuccess(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Tasks.RetryLimit = 3
	})

	var calls atomic.Int32
	f.manager.Register(tasks.KindTranscribe, workflow.HandlerFunc(func(ctx context.Context, task *tasks.Task) error {
		if calls.Add(1) < 3 {
			return services.Wrap(services.ErrTransient, "transcribe", "run", "model busy", nil)
		}
		return nil
	}))

	queued := f.enqueue(t, tasks.KindTranscribe)
	f.start(t)

	done := waitForTaskStatus(t, f.store, queued.ID, tasks.StatusSucceeded)
	if done.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", done.Attempts)
	}
}

func TestManagerMarksFailedAfterRetryLimit(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Tasks.RetryLimit = 2
	})

	f.manager.Register(tasks.KindTranscribe, workflow.HandlerFunc(func(ctx context.Context, task *tasks.Task) error {
		return services.Wrap(services.ErrExternalTool, "transcribe", "run", "exit status 1", nil)
	}))

	queued := f.enqueue(t, tasks.KindTranscribe)
	f.start(t)

	done := waitForTaskStatus(t, f.store, queued.ID, tasks.StatusFailed)
	if done.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", done.Attempts)
	}
	if done.LastError == "" {
		t.Fatal("expected terminal task to retain its error message")
	}

	asset, err := f.library.GetAsset(context.Background(), f.asset.ID)
	if err != nil {
		t.Fatalf("GetAsset: %v", err)
	}
	if asset.TranscribeStatus != library.ProcessFailed {
		t.Fatalf("expected transcribe status failed, got %q", asset.TranscribeStatus)
	}
	if asset.ErrorMessage == "" {
		t.Fatal("expected asset to record the failure message")
	}
}

func TestManagerValidationFailureIsTerminal(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Tasks.RetryLimit = 3
	})

	var calls atomic.Int32
	f.manager.Register(tasks.KindImport, workflow.HandlerFunc(func(ctx context.Context, task *tasks.Task) error {
		calls.Add(1)
		return services.Wrap(services.ErrValidation, "import", "probe", "unsupported container", nil)
	}))

	queued := f.enqueue(t, tasks.KindImport)
	f.start(t)

	done := waitForTaskStatus(t, f.store, queued.ID, tasks.StatusFailed)
	if done.Attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", done.Attempts)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected handler to run once, ran %d times", got)
	}
}

func TestManagerHydrationWaitRestoresAttempt(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Tasks.RetryLimit = 1
	})

	var calls atomic.Int32
	f.manager.Register(tasks.KindTranscribe, workflow.HandlerFunc(func(ctx context.Context, task *tasks.Task) error {
		if calls.Add(1) < 4 {
			return services.Wrap(services.ErrNotReady, "transcribe", "ensure-local", "download in flight", nil)
		}
		return nil
	}))

	queued := f.enqueue(t, tasks.KindTranscribe)
	f.start(t)

	// Three hydration waits must not eat into a retry limit of one.
	done := waitForTaskStatus(t, f.store, queued.ID, tasks.StatusSucceeded)
	if done.Attempts != 1 {
		t.Fatalf("expected hydration waits to restore attempts, got %d", done.Attempts)
	}
	if got := calls.Load(); got != 4 {
		t.Fatalf("expected 4 handler runs, got %d", got)
	}
}

func TestManagerHonorsPerKindConcurrency(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Tasks.TranscribeWorkers = 1
	})

	var mu sync.Mutex
	var active, peak int
	f.manager.Register(tasks.KindTranscribe, workflow.HandlerFunc(func(ctx context.Context, task *tasks.Task) error {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()
		time.Sleep(50 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return nil
	}))

	second := testsupport.NewAsset(t, f.library, f.lib.ID, "Movies/Ronin.mkv", 4096)
	first := f.enqueue(t, tasks.KindTranscribe)
	other, created, err := f.store.Enqueue(context.Background(), second.ID, f.lib.ID, tasks.KindTranscribe, "")
	if err != nil || !created {
		t.Fatalf("Enqueue second: created=%v err=%v", created, err)
	}

	f.start(t)

	waitForTaskStatus(t, f.store, first.ID, tasks.StatusSucceeded)
	waitForTaskStatus(t, f.store, other.ID, tasks.StatusSucceeded)

	mu.Lock()
	defer mu.Unlock()
	if peak != 1 {
		t.Fatalf("expected at most one concurrent transcribe worker, saw %d", peak)
	}
}

func TestManagerStartRequiresHandlers(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.manager.Start(context.Background()); err == nil {
		f.manager.Stop()
		t.Fatal("expected Start to fail with no registered handlers")
	}
}
