package daemon

import (
	"context"
	"errors"
	"time"

	"icebox/internal/budget"
	"icebox/internal/importer"
	"icebox/internal/library"
	"icebox/internal/logging"
	"icebox/internal/presence"
	"icebox/internal/reconcile"
	"icebox/internal/tasks"
)

// Import runs the batch import entry point against the default library.
func (d *Daemon) Import(ctx context.Context, sources []string) ([]importer.Result, error) {
	if len(sources) == 0 {
		return nil, errors.New("import requires at least one source path")
	}
	return d.importer.EnqueueImport(ctx, d.libID(), sources)
}

// Reconcile scans the cloud tree and re-seeds missing metadata records.
func (d *Daemon) Reconcile(ctx context.Context) (reconcile.Report, error) {
	return d.reconciler().Run(ctx, d.libID())
}

// ApplyPolicy runs one storage-policy pass against the default library.
func (d *Daemon) ApplyPolicy(ctx context.Context) (budget.Report, error) {
	return d.enforcer.ApplyPolicy(ctx, d.libID())
}

// SetStoragePolicy persists a new storage mode and budget, then applies it.
func (d *Daemon) SetStoragePolicy(ctx context.Context, mode string, budgetBytes int64) (budget.Report, error) {
	lib, err := d.library.UpdatePolicy(ctx, d.libID(), library.StorageMode(mode), budgetBytes)
	if err != nil {
		return budget.Report{}, err
	}
	d.mu.Lock()
	d.lib = lib
	d.mu.Unlock()
	d.logger.Info("storage policy changed",
		logging.String("storage_mode", mode),
		logging.Int64("budget_bytes", budgetBytes),
	)
	return d.enforcer.ApplyPolicy(ctx, lib.ID)
}

// Fetch requests the asset's bytes on local disk and reports the resulting
// presence state. Completion is observed by polling AssetState.
func (d *Daemon) Fetch(ctx context.Context, assetID int64) (presence.State, error) {
	if err := d.tracker.EnsureLocal(ctx, assetID); err != nil {
		return presence.StateError, err
	}
	return d.tracker.Status(ctx, assetID)
}

// AssetState reports the asset's current presence state.
func (d *Daemon) AssetState(ctx context.Context, assetID int64) (presence.State, error) {
	return d.tracker.Status(ctx, assetID)
}

// Assets lists every asset in the default library.
func (d *Daemon) Assets(ctx context.Context) ([]*library.Asset, error) {
	return d.library.AssetsByLibrary(ctx, d.libID())
}

// Asset returns one asset record, or nil when absent.
func (d *Daemon) Asset(ctx context.Context, assetID int64) (*library.Asset, error) {
	return d.library.GetAsset(ctx, assetID)
}

// SetPinned marks or unmarks an asset as exempt from eviction.
func (d *Daemon) SetPinned(ctx context.Context, assetID int64, pinned bool) error {
	return d.library.SetPinned(ctx, assetID, pinned)
}

// PlaybackStarted registers an open playback session: the asset is touched
// for recency and shielded from eviction until PlaybackEnded.
func (d *Daemon) PlaybackStarted(ctx context.Context, assetID int64) error {
	d.enforcer.MarkInUse(assetID)
	return d.library.TouchAccessed(ctx, assetID, time.Now().UTC())
}

// PlaybackEnded releases the playback hold on an asset.
func (d *Daemon) PlaybackEnded(assetID int64) {
	d.enforcer.MarkIdle(assetID)
}

// ListTasks returns tasks filtered by optional statuses.
func (d *Daemon) ListTasks(ctx context.Context, statuses ...tasks.Status) ([]*tasks.Task, error) {
	return d.tasks.List(ctx, statuses...)
}

// RetryTasks re-queues failed tasks; an empty id list retries all of them.
func (d *Daemon) RetryTasks(ctx context.Context, ids []int64) (int64, error) {
	return d.tasks.RetryFailed(ctx, ids...)
}

// ClearTasks removes every task record.
func (d *Daemon) ClearTasks(ctx context.Context) (int64, error) {
	return d.tasks.Clear(ctx)
}

// ClearSucceededTasks removes succeeded task records.
func (d *Daemon) ClearSucceededTasks(ctx context.Context) (int64, error) {
	return d.tasks.ClearSucceeded(ctx)
}

// ClearFailedTasks removes failed task records.
func (d *Daemon) ClearFailedTasks(ctx context.Context) (int64, error) {
	return d.tasks.ClearFailed(ctx)
}

// TasksHealth returns aggregate queue counts.
func (d *Daemon) TasksHealth(ctx context.Context) (tasks.HealthSummary, error) {
	return d.tasks.Health(ctx)
}

// TestNotification sends a test push through the configured notifier.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, err.Error(), err
	}
	return true, "notification sent", nil
}
