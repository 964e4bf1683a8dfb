package daemon

import (
	"context"
	"os"
	"path/filepath"

	"icebox/internal/budget"
	"icebox/internal/deps"
	"icebox/internal/workflow"
)

// Status represents daemon runtime information for diagnostics and the CLI.
type Status struct {
	Running          bool
	PID              int
	LockPath         string
	LibraryDBPath    string
	TasksDBPath      string
	LibraryID        int64
	LibraryName      string
	StorageMode      string
	CacheBudgetBytes int64
	Usage            budget.Snapshot
	ApplyingPolicy   bool
	Downloading      []int64
	Workflow         workflow.Status
	Dependencies     []deps.Status
}

// Status assembles a point-in-time snapshot across all subsystems.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	status := Status{
		Running:        d.running.Load(),
		PID:            os.Getpid(),
		LockPath:       d.lockPath,
		LibraryDBPath:  filepath.Join(d.cfg.Paths.DataDir, "library.db"),
		TasksDBPath:    filepath.Join(d.cfg.Paths.DataDir, "tasks.db"),
		ApplyingPolicy: d.enforcer.IsApplyingPolicy(d.libID()),
		Downloading:    d.tracker.DownloadingSet(),
		Dependencies:   deps.CheckBinaries(deps.ForConfig(d.cfg)),
	}

	lib, err := d.library.GetLibrary(ctx, d.libID())
	if err != nil {
		return status, err
	}
	if lib != nil {
		status.LibraryID = lib.ID
		status.LibraryName = lib.Name
		status.StorageMode = string(lib.StorageMode)
		status.CacheBudgetBytes = lib.CacheBudgetBytes
	}

	usage, err := d.enforcer.UsageSnapshot(ctx, d.libID())
	if err != nil {
		return status, err
	}
	status.Usage = usage

	wf, err := d.manager.Status(ctx)
	if err != nil {
		return status, err
	}
	status.Workflow = wf
	return status, nil
}
