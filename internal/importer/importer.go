// Package importer brings new source files into a library.
//
// EnqueueImport is the batch entry point: for each readable source it creates
// an asset record and queues an import task. The import task handler copies
// the bytes into the library's cloud-synced tree, probes metadata, and chains
// a transcribe task, so slow copies and probes never block the caller.
// One bad source never aborts the rest of the batch.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"icebox/internal/clouddrive"
	"icebox/internal/config"
	"icebox/internal/library"
	"icebox/internal/logging"
	"icebox/internal/media/ffprobe"
	"icebox/internal/notifications"
	"icebox/internal/services"
	"icebox/internal/tasks"
	"icebox/internal/textutil"
)

// Prober reads duration metadata from a local media file.
type Prober interface {
	Inspect(ctx context.Context, path string) (ffprobe.Result, error)
}

// Importer creates asset records for new sources and runs the import task.
type Importer struct {
	cfg      *config.Config
	store    *library.Store
	tasks    *tasks.Store
	drive    clouddrive.Drive
	prober   Prober
	notifier notifications.Service
	logger   *slog.Logger
}

// Result reports the outcome for one source in a batch.
type Result struct {
	Source string
	Asset  *library.Asset
	Task   *tasks.Task
	Err    error
}

// payload is the durable task payload carrying the source path across
// daemon restarts.
type payload struct {
	Source string `json:"source"`
}

// New builds an Importer. prober and notifier may be nil.
func New(cfg *config.Config, store *library.Store, taskStore *tasks.Store, drive clouddrive.Drive, prober Prober, notifier notifications.Service, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	return &Importer{
		cfg:      cfg,
		store:    store,
		tasks:    taskStore,
		drive:    drive,
		prober:   prober,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "importer"),
	}
}

// EnqueueImport creates an asset record and an import task per readable
// source. Failures are isolated per source and reported in the returned
// results; the error return covers whole-batch preconditions only.
func (i *Importer) EnqueueImport(ctx context.Context, libraryID int64, sources []string) ([]Result, error) {
	lib, err := i.store.GetLibrary(ctx, libraryID)
	if err != nil {
		return nil, fmt.Errorf("load library: %w", err)
	}
	if lib == nil {
		return nil, services.Wrap(services.ErrNotFound, "importer", "enqueue", fmt.Sprintf("library %d not found", libraryID), nil)
	}

	results := make([]Result, 0, len(sources))
	created, failed := 0, 0
	for _, source := range sources {
		result := i.enqueueOne(ctx, lib, source)
		if result.Err != nil {
			failed++
			i.logger.Warn("import source rejected",
				logging.String("source", source),
				logging.Error(result.Err),
			)
		} else {
			created++
		}
		results = append(results, result)
	}

	i.logger.Info("import batch queued",
		logging.Int64(logging.FieldLibraryID, libraryID),
		logging.Int("created", created),
		logging.Int("failed", failed),
	)
	if err := i.notifier.NotifyImportBatchCompleted(ctx, created, failed); err != nil {
		i.logger.Debug("import batch notification not delivered", logging.Error(err))
	}
	return results, nil
}

func (i *Importer) enqueueOne(ctx context.Context, lib *library.Library, source string) Result {
	result := Result{Source: source}

	info, err := os.Stat(source)
	if err != nil {
		result.Err = services.Wrap(services.ErrValidation, "importer", "stat source", source, err)
		return result
	}
	if info.IsDir() {
		result.Err = services.Wrap(services.ErrValidation, "importer", "stat source", fmt.Sprintf("%s is a directory", source), nil)
		return result
	}
	if !clouddrive.IsMediaPath(source) {
		result.Err = services.Wrap(services.ErrValidation, "importer", "stat source", fmt.Sprintf("%s is not a media file", source), nil)
		return result
	}
	// Readability check up front so a permission problem surfaces in the
	// batch report instead of as a background task failure.
	file, err := os.Open(source)
	if err != nil {
		result.Err = services.Wrap(services.ErrValidation, "importer", "open source", source, err)
		return result
	}
	file.Close()

	relPath, err := i.uniqueRelPath(ctx, lib.ID, source)
	if err != nil {
		result.Err = err
		return result
	}

	asset, err := i.store.CreateAsset(ctx, &library.Asset{
		LibraryID:    lib.ID,
		RelPath:      relPath,
		Title:        textutil.DisplayTitle(relPath),
		SizeBytes:    info.Size(),
		ImportStatus: library.ProcessQueued,
	})
	if err != nil {
		result.Err = fmt.Errorf("create asset record: %w", err)
		return result
	}
	result.Asset = asset

	body, err := json.Marshal(payload{Source: source})
	if err != nil {
		result.Err = fmt.Errorf("encode task payload: %w", err)
		return result
	}
	task, _, err := i.tasks.Enqueue(ctx, asset.ID, lib.ID, tasks.KindImport, string(body))
	if err != nil {
		result.Err = fmt.Errorf("enqueue import task: %w", err)
		return result
	}
	result.Task = task
	return result
}

// uniqueRelPath derives a sanitized library-relative destination for source,
// suffixing a counter when the name is already taken.
func (i *Importer) uniqueRelPath(ctx context.Context, libraryID int64, source string) (string, error) {
	base := textutil.SanitizeFileName(filepath.Base(source))
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	candidate := base
	for n := 2; ; n++ {
		existing, err := i.store.FindAssetByRelPath(ctx, libraryID, candidate)
		if err != nil {
			return "", fmt.Errorf("check destination %q: %w", candidate, err)
		}
		if existing == nil {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s (%d)%s", stem, n, ext)
	}
}
