// Package reconcile rebuilds metadata records from the cloud-drive tree.
// It is the recovery path for a reset or suspect metadata store: every media
// file in the tree that has no record gets one, with best-effort metadata,
// and a transcribe task is enqueued for it exactly as an interactive import
// would do.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"icebox/internal/clouddrive"
	"icebox/internal/library"
	"icebox/internal/logging"
	"icebox/internal/media/ffprobe"
	"icebox/internal/services"
	"icebox/internal/tasks"
	"icebox/internal/textutil"
)

// Prober reads duration metadata from a local media file. Probing is
// best-effort: a failed probe never blocks the scan.
type Prober interface {
	Inspect(ctx context.Context, path string) (ffprobe.Result, error)
}

// FFprobeProber adapts the ffprobe wrapper to the Prober interface.
type FFprobeProber struct {
	Binary string
}

func (p FFprobeProber) Inspect(ctx context.Context, path string) (ffprobe.Result, error) {
	return ffprobe.Inspect(ctx, p.Binary, path)
}

// Reconciler scans a library's cloud tree and re-seeds missing records.
type Reconciler struct {
	store  *library.Store
	tasks  *tasks.Store
	drive  clouddrive.Drive
	prober Prober
	logger *slog.Logger
}

// Report counts the outcome of one reconciliation run.
type Report struct {
	Scanned  int
	Existing int
	Imported int
	Failed   int
}

// New builds a Reconciler. prober may be nil, in which case durations are
// left at zero.
func New(store *library.Store, taskStore *tasks.Store, drive clouddrive.Drive, prober Prober, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Reconciler{
		store:  store,
		tasks:  taskStore,
		drive:  drive,
		prober: prober,
		logger: logging.NewComponentLogger(logger, "reconcile"),
	}
}

// Run scans the cloud tree for the library and creates records plus
// transcribe tasks for unrepresented media files. Per-file failures are
// isolated and counted; only an unreachable cloud root fails the run.
func (r *Reconciler) Run(ctx context.Context, libraryID int64) (Report, error) {
	report := Report{}
	lib, err := r.store.GetLibrary(ctx, libraryID)
	if err != nil {
		return report, fmt.Errorf("load library: %w", err)
	}
	if lib == nil {
		return report, services.Wrap(services.ErrNotFound, "reconcile", "run", fmt.Sprintf("library %d not found", libraryID), nil)
	}

	start := time.Now()
	var files []clouddrive.Info
	err = r.drive.Walk(ctx, func(info clouddrive.Info) error {
		if info.IsDir || !clouddrive.IsMediaPath(info.RelPath) {
			return nil
		}
		files = append(files, info)
		return nil
	})
	if err != nil {
		return report, services.Wrap(services.ErrCloudUnavailable, "reconcile", "run", "enumerate cloud tree", err)
	}

	for _, info := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++
		imported, err := r.reconcileFile(ctx, lib, info)
		if err != nil {
			report.Failed++
			r.logger.Warn("file reconciliation failed",
				logging.String("rel_path", info.RelPath),
				logging.Error(err))
			continue
		}
		if imported {
			report.Imported++
		} else {
			report.Existing++
		}
	}

	r.logger.Info("reconciliation finished",
		logging.Int64(logging.FieldLibraryID, lib.ID),
		logging.Int("scanned", report.Scanned),
		logging.Int("imported", report.Imported),
		logging.Int("existing", report.Existing),
		logging.Int("failed", report.Failed),
		logging.Duration("elapsed", time.Since(start)))
	return report, nil
}

// reconcileFile creates a record and transcribe task for one file unless a
// record already exists. Returns true when a new record was created.
func (r *Reconciler) reconcileFile(ctx context.Context, lib *library.Library, info clouddrive.Info) (bool, error) {
	existing, err := r.store.FindAssetByRelPath(ctx, lib.ID, info.RelPath)
	if err != nil {
		return false, fmt.Errorf("lookup record: %w", err)
	}
	if existing != nil {
		return false, nil
	}

	asset := &library.Asset{
		LibraryID:       lib.ID,
		RelPath:         info.RelPath,
		Title:           textutil.DisplayTitle(info.RelPath),
		SizeBytes:       info.SizeBytes,
		DurationSeconds: r.probeDuration(ctx, info),
	}
	created, err := r.store.CreateAsset(ctx, asset)
	if err != nil {
		return false, fmt.Errorf("create record: %w", err)
	}
	if _, _, err := r.tasks.Enqueue(ctx, created.ID, lib.ID, tasks.KindTranscribe, ""); err != nil {
		return false, fmt.Errorf("enqueue transcribe: %w", err)
	}
	return true, nil
}

// probeDuration reads the file's duration when the bytes are local. For
// cloud-only files it requests hydration so a later pass can fill the
// duration in, and returns zero now rather than stalling the scan.
func (r *Reconciler) probeDuration(ctx context.Context, info clouddrive.Info) float64 {
	if r.prober == nil {
		return 0
	}
	if !info.LocalPresent {
		if err := r.drive.RequestHydration(ctx, info.RelPath); err != nil {
			r.logger.Debug("hydration request during scan failed",
				logging.String("rel_path", info.RelPath),
				logging.Error(err))
		}
		return 0
	}
	result, err := r.prober.Inspect(ctx, filepath.Join(r.drive.Root(), info.RelPath))
	if err != nil {
		r.logger.Debug("duration probe failed",
			logging.String("rel_path", info.RelPath),
			logging.Error(err))
		return 0
	}
	return result.DurationSeconds()
}
