package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"icebox/internal/budget"
	"icebox/internal/clouddrive"
	"icebox/internal/clouddrive/fsdrive"
	"icebox/internal/clouddrive/s3drive"
	"icebox/internal/config"
	"icebox/internal/importer"
	"icebox/internal/library"
	"icebox/internal/logging"
	"icebox/internal/notifications"
	"icebox/internal/presence"
	"icebox/internal/reconcile"
	"icebox/internal/tasks"
	"icebox/internal/transcribe"
	"icebox/internal/workflow"
)

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	library  *library.Store
	tasks    *tasks.Store
	drive    clouddrive.Drive
	tracker  *presence.Tracker
	enforcer *budget.Enforcer
	manager  *workflow.Manager
	importer *importer.Importer
	notifier notifications.Service

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	wg      sync.WaitGroup

	mu     sync.RWMutex
	lib    *library.Library
	cancel context.CancelFunc
}

// New constructs a daemon with all dependencies wired from configuration.
// The caller owns Close.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	libStore, err := library.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open library store: %w", err)
	}
	taskStore, err := tasks.Open(cfg)
	if err != nil {
		libStore.Close()
		return nil, fmt.Errorf("open tasks store: %w", err)
	}

	drive, err := buildDrive(ctx, cfg)
	if err != nil {
		taskStore.Close()
		libStore.Close()
		return nil, err
	}

	lib, err := ensureDefaultLibrary(ctx, libStore, cfg)
	if err != nil {
		taskStore.Close()
		libStore.Close()
		return nil, err
	}

	tracker := presence.NewTracker(libStore, drive, logger, presence.Options{
		HydrationGrace: time.Duration(cfg.Tasks.HydrationGraceMillis) * time.Millisecond,
	})
	enforcer := budget.NewEnforcer(libStore, taskStore, drive, tracker, logger, budget.Options{
		FreeSpaceFloor: cfg.Storage.FreeSpaceFloor,
	})
	notifier := notifications.NewService(cfg)
	prober := reconcile.FFprobeProber{Binary: cfg.FFprobeBinary()}

	imp := importer.New(cfg, libStore, taskStore, drive, prober, notifier, logger)
	transcriber := transcribe.New(cfg, libStore, drive, tracker, notifier, logger)

	manager := workflow.NewManagerWithNotifier(cfg, taskStore, libStore, logger, notifier)
	manager.Register(tasks.KindImport, imp.Handler())
	manager.Register(tasks.KindTranscribe, transcriber.Handler())

	lockPath := filepath.Join(cfg.Paths.DataDir, "iceboxd.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		library:  libStore,
		tasks:    taskStore,
		drive:    drive,
		tracker:  tracker,
		enforcer: enforcer,
		manager:  manager,
		importer: imp,
		notifier: notifier,
		lib:      lib,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

func buildDrive(ctx context.Context, cfg *config.Config) (clouddrive.Drive, error) {
	switch cfg.Cloud.Provider {
	case config.ProviderFS:
		return fsdrive.New(cfg.Library.RootDir, cfg.Cloud.MirrorDir)
	case config.ProviderS3:
		return s3drive.New(ctx, cfg.Library.RootDir, s3drive.Options{
			Bucket:          cfg.Cloud.S3Bucket,
			Prefix:          cfg.Cloud.S3Prefix,
			Region:          cfg.Cloud.S3Region,
			Endpoint:        cfg.Cloud.S3Endpoint,
			AccessKeyID:     cfg.Cloud.S3AccessKeyID,
			SecretAccessKey: cfg.Cloud.S3SecretAccessKey,
		})
	default:
		return nil, fmt.Errorf("unknown cloud provider %q", cfg.Cloud.Provider)
	}
}

func ensureDefaultLibrary(ctx context.Context, store *library.Store, cfg *config.Config) (*library.Library, error) {
	lib, err := store.GetLibraryByName(ctx, cfg.Library.Name)
	if err != nil {
		return nil, fmt.Errorf("look up library: %w", err)
	}
	if lib != nil {
		return lib, nil
	}
	lib, err = store.CreateLibrary(ctx, cfg.Library.Name, cfg.Library.RootDir,
		library.StorageMode(cfg.Storage.Mode), cfg.CacheBudgetBytes())
	if err != nil {
		return nil, fmt.Errorf("create library: %w", err)
	}
	return lib, nil
}

// Start acquires the instance lock and launches workers plus the policy loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another icebox daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.manager.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		return fmt.Errorf("start workflow: %w", err)
	}
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()
	d.running.Store(true)

	d.wg.Add(1)
	go d.runPolicyLoop(runCtx)

	d.maybeReconcile(runCtx)

	lib := d.Library()
	d.logger.Info("icebox daemon started",
		logging.String("lock", d.lockPath),
		logging.Int64(logging.FieldLibraryID, lib.ID),
		logging.String("storage_mode", string(lib.StorageMode)),
	)
	return nil
}

// Stop halts background processing and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.mu.Unlock()
	d.manager.Stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("icebox daemon stopped")
}

// Close stops the daemon and closes both stores.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if d.tasks != nil {
		errs = append(errs, d.tasks.Close())
	}
	if d.library != nil {
		errs = append(errs, d.library.Close())
	}
	return errors.Join(errs...)
}

// Library returns the daemon's default library record.
func (d *Daemon) Library() *library.Library {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lib
}

func (d *Daemon) libID() int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lib.ID
}

// LogPath returns the daemon log file path, or empty when file logging is
// disabled.
func (d *Daemon) LogPath() string {
	if d.cfg.Paths.LogDir == "" {
		return ""
	}
	return filepath.Join(d.cfg.Paths.LogDir, "icebox.log")
}

// runPolicyLoop applies the storage policy on the configured interval.
func (d *Daemon) runPolicyLoop(ctx context.Context) {
	defer d.wg.Done()

	interval := time.Duration(d.cfg.Workflow.PolicyApplyInterval) * time.Second
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := d.enforcer.ApplyPolicy(ctx, d.libID())
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				d.logger.Warn("periodic policy apply failed", logging.Error(err))
				continue
			}
			if report.Evicted > 0 {
				if err := d.notifier.NotifyPolicyApplied(ctx, report.Evicted, report.EvictedBytes); err != nil {
					d.logger.Debug("policy notification not delivered", logging.Error(err))
				}
			}
		}
	}
}

// maybeReconcile rebuilds metadata from the cloud tree when the store has no
// assets for the library, covering a reset or first run against an existing
// drive.
func (d *Daemon) maybeReconcile(ctx context.Context) {
	assets, err := d.library.AssetsByLibrary(ctx, d.libID())
	if err != nil {
		d.logger.Warn("startup reconcile check failed", logging.Error(err))
		return
	}
	if len(assets) > 0 {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		report, err := d.reconciler().Run(ctx, d.libID())
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				d.logger.Warn("startup reconcile failed", logging.Error(err))
			}
			return
		}
		if report.Imported > 0 || report.Failed > 0 {
			d.logger.Info("startup reconcile finished",
				logging.Int("imported", report.Imported),
				logging.Int("failed", report.Failed),
			)
		}
	}()
}

func (d *Daemon) reconciler() *reconcile.Reconciler {
	prober := reconcile.FFprobeProber{Binary: d.cfg.FFprobeBinary()}
	return reconcile.New(d.library, d.tasks, d.drive, prober, d.logger)
}
