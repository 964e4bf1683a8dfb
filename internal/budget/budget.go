package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"icebox/internal/clouddrive"
	"icebox/internal/library"
	"icebox/internal/logging"
	"icebox/internal/presence"
	"icebox/internal/services"
	"icebox/internal/tasks"
)

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (total uint64, free uint64, err error)

// Options tune the enforcer.
type Options struct {
	// FreeSpaceFloor is the minimum free-space ratio allowed on the cache
	// volume before eviction continues past the byte budget.
	FreeSpaceFloor float64
}

// Enforcer owns the eviction policy for all libraries. Safe for concurrent
// use; concurrent policy applications for the same library are coalesced.
type Enforcer struct {
	store   *library.Store
	tasks   *tasks.Store
	drive   clouddrive.Drive
	tracker *presence.Tracker
	logger  *slog.Logger
	floor   float64
	statfs  statfsFunc

	mu       sync.Mutex
	applying map[int64]bool
	inUse    map[int64]int
}

// Report summarizes one policy pass.
type Report struct {
	Mode            library.StorageMode
	Coalesced       bool
	Hydrated        int
	Examined        int
	Evicted         int
	EvictedBytes    int64
	Skipped         int
	FinalLocalBytes int64
}

// NewEnforcer builds an Enforcer over the given stores and drive.
func NewEnforcer(store *library.Store, taskStore *tasks.Store, drive clouddrive.Drive, tracker *presence.Tracker, logger *slog.Logger, opts Options) *Enforcer {
	if logger == nil {
		logger = logging.NewNop()
	}
	floor := opts.FreeSpaceFloor
	if floor < 0 || floor >= 1 {
		floor = 0
	}
	return &Enforcer{
		store:    store,
		tasks:    taskStore,
		drive:    drive,
		tracker:  tracker,
		logger:   logging.NewComponentLogger(logger, "budget"),
		floor:    floor,
		statfs:   realStatfs,
		applying: make(map[int64]bool),
		inUse:    make(map[int64]int),
	}
}

// MarkInUse registers an asset as open for playback, excluding it from
// eviction until the matching MarkIdle.
func (e *Enforcer) MarkInUse(assetID int64) {
	e.mu.Lock()
	e.inUse[assetID]++
	e.mu.Unlock()
}

// MarkIdle releases one playback reference taken by MarkInUse.
func (e *Enforcer) MarkIdle(assetID int64) {
	e.mu.Lock()
	if e.inUse[assetID] > 1 {
		e.inUse[assetID]--
	} else {
		delete(e.inUse, assetID)
	}
	e.mu.Unlock()
}

// IsApplyingPolicy reports whether a policy pass is in flight for the
// library.
func (e *Enforcer) IsApplyingPolicy(libraryID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applying[libraryID]
}

// ApplyPolicy runs one policy pass for the library. A request arriving while
// a pass is already in flight for the same library is dropped; the returned
// report carries Coalesced=true and nothing else.
func (e *Enforcer) ApplyPolicy(ctx context.Context, libraryID int64) (Report, error) {
	e.mu.Lock()
	if e.applying[libraryID] {
		e.mu.Unlock()
		return Report{Coalesced: true}, nil
	}
	e.applying[libraryID] = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.applying, libraryID)
		e.mu.Unlock()
	}()

	lib, err := e.store.GetLibrary(ctx, libraryID)
	if err != nil {
		return Report{}, fmt.Errorf("load library: %w", err)
	}
	if lib == nil {
		return Report{}, services.Wrap(services.ErrNotFound, "budget", "apply-policy", fmt.Sprintf("library %d not found", libraryID), nil)
	}

	// The policy is read once; a concurrent mode change lands on the next
	// pass. Per-asset steps below are individually atomic.
	switch lib.StorageMode {
	case library.ModeKeepAllLocal:
		return e.applyKeepAllLocal(ctx, lib)
	case library.ModeOptimizeStorage:
		return e.applyOptimizeStorage(ctx, lib)
	default:
		return Report{}, services.Wrap(services.ErrConfiguration, "budget", "apply-policy", fmt.Sprintf("library %d has unknown storage mode %q", lib.ID, lib.StorageMode), nil)
	}
}

func (e *Enforcer) applyKeepAllLocal(ctx context.Context, lib *library.Library) (Report, error) {
	report := Report{Mode: library.ModeKeepAllLocal}
	assets, err := e.store.AssetsByLibrary(ctx, lib.ID)
	if err != nil {
		return report, fmt.Errorf("list assets: %w", err)
	}
	for _, asset := range assets {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Examined++
		state, err := e.tracker.Status(ctx, asset.ID)
		if err != nil {
			// Probe failures are isolated to the asset; the pass continues.
			e.logger.Warn("presence probe failed during policy pass",
				logging.Int64(logging.FieldAssetID, asset.ID),
				logging.Error(err))
			continue
		}
		if state != presence.StateCloudOnly {
			continue
		}
		if err := e.tracker.EnsureLocal(ctx, asset.ID); err != nil {
			e.logger.Warn("hydration request failed during policy pass",
				logging.Int64(logging.FieldAssetID, asset.ID),
				logging.Error(err))
			continue
		}
		report.Hydrated++
	}
	return report, nil
}

// candidate is a local asset eligible for eviction, carrying the fields the
// deterministic ordering needs.
type candidate struct {
	asset        *library.Asset
	sizeBytes    int64
	lastAccessed time.Time
}

func (e *Enforcer) applyOptimizeStorage(ctx context.Context, lib *library.Library) (Report, error) {
	report := Report{Mode: library.ModeOptimizeStorage}
	budgetBytes := lib.CacheBudgetBytes
	if budgetBytes <= 0 {
		return report, services.Wrap(services.ErrConfiguration, "budget", "apply-policy", fmt.Sprintf("library %d has no cache budget", lib.ID), nil)
	}

	assets, err := e.store.AssetsByLibrary(ctx, lib.ID)
	if err != nil {
		return report, fmt.Errorf("list assets: %w", err)
	}
	activeAssets, err := e.tasks.ActiveAssetIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("active tasks: %w", err)
	}

	var (
		usage      int64
		candidates []candidate
	)
	for _, asset := range assets {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Examined++
		info, err := e.drive.Stat(ctx, asset.RelPath)
		if errors.Is(err, clouddrive.ErrNotExist) {
			continue
		}
		if err != nil {
			e.logger.Warn("stat failed during policy pass",
				logging.Int64(logging.FieldAssetID, asset.ID),
				logging.Error(err))
			continue
		}
		if !info.LocalPresent {
			continue
		}
		if asset.Pinned {
			continue
		}
		if _, active := activeAssets[asset.ID]; active {
			continue
		}
		if e.isInUse(asset.ID) {
			continue
		}
		usage += info.SizeBytes
		accessed := time.Time{}
		if asset.LastAccessed != nil {
			accessed = *asset.LastAccessed
		}
		candidates = append(candidates, candidate{asset: asset, sizeBytes: info.SizeBytes, lastAccessed: accessed})
	}
	report.FinalLocalBytes = usage

	// Deterministic order: least recently accessed first, then smaller
	// files, then asset UUID. Never-accessed assets sort oldest.
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].lastAccessed.Equal(candidates[j].lastAccessed) {
			return candidates[i].lastAccessed.Before(candidates[j].lastAccessed)
		}
		if candidates[i].sizeBytes != candidates[j].sizeBytes {
			return candidates[i].sizeBytes < candidates[j].sizeBytes
		}
		return candidates[i].asset.UUID < candidates[j].asset.UUID
	})

	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		freeOK, err := e.freeSpaceOK()
		if err != nil {
			return report, err
		}
		if usage <= budgetBytes && freeOK {
			break
		}

		// Confirm the cloud copy immediately before deleting; an
		// unconfirmed copy is skipped, never removed.
		info, err := e.drive.Stat(ctx, cand.asset.RelPath)
		if err != nil || !info.RemoteReady {
			report.Skipped++
			e.logger.Warn("eviction skipped, cloud copy unconfirmed",
				logging.Int64(logging.FieldAssetID, cand.asset.ID),
				logging.String("rel_path", cand.asset.RelPath),
				logging.Error(err))
			continue
		}
		if err := e.drive.EvictLocal(ctx, cand.asset.RelPath); err != nil {
			report.Skipped++
			e.logger.Warn("eviction failed",
				logging.Int64(logging.FieldAssetID, cand.asset.ID),
				logging.Error(err))
			continue
		}
		usage -= cand.sizeBytes
		report.Evicted++
		report.EvictedBytes += cand.sizeBytes
		report.FinalLocalBytes = usage
		// Re-probe so the tracker publishes the local -> cloud_only
		// transition to subscribers.
		if _, err := e.tracker.Status(ctx, cand.asset.ID); err != nil {
			e.logger.Warn("post-eviction probe failed",
				logging.Int64(logging.FieldAssetID, cand.asset.ID),
				logging.Error(err))
		}
		e.logger.Info("evicted local copy",
			logging.Int64(logging.FieldAssetID, cand.asset.ID),
			logging.String("rel_path", cand.asset.RelPath),
			logging.Int64("size_bytes", cand.sizeBytes))
	}
	return report, nil
}

func (e *Enforcer) isInUse(assetID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inUse[assetID] > 0
}

func (e *Enforcer) freeSpaceOK() (bool, error) {
	if e.floor <= 0 {
		return true, nil
	}
	total, free, err := e.statfs(e.drive.Root())
	if err != nil {
		return false, fmt.Errorf("statfs: %w", err)
	}
	if total == 0 {
		return true, nil
	}
	return float64(free)/float64(total) >= e.floor, nil
}

func realStatfs(path string) (uint64, uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	return total, free, nil
}
