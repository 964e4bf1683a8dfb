package budget

import (
	"context"
	"errors"
	"fmt"

	"icebox/internal/clouddrive"
)

// Snapshot is a point-in-time usage summary for one library. It is derived
// by probing every asset and is never cached: a snapshot taken after a
// policy pass reflects that pass's evictions.
type Snapshot struct {
	AssetCount     int
	LocalBytes     int64
	LocalCount     int
	CloudOnlyCount int
	Downloading    int
}

// UsageSnapshot recomputes the library's usage from the drive.
func (e *Enforcer) UsageSnapshot(ctx context.Context, libraryID int64) (Snapshot, error) {
	var snap Snapshot
	assets, err := e.store.AssetsByLibrary(ctx, libraryID)
	if err != nil {
		return snap, fmt.Errorf("list assets: %w", err)
	}
	for _, asset := range assets {
		if err := ctx.Err(); err != nil {
			return snap, err
		}
		snap.AssetCount++
		info, err := e.drive.Stat(ctx, asset.RelPath)
		if errors.Is(err, clouddrive.ErrNotExist) {
			continue
		}
		if err != nil {
			continue
		}
		switch {
		case info.LocalPresent:
			snap.LocalCount++
			snap.LocalBytes += info.SizeBytes
		case info.Download == clouddrive.DownloadInProgress:
			snap.Downloading++
		case info.RemoteReady:
			snap.CloudOnlyCount++
		}
	}
	return snap, nil
}

// CurrentLocalUsageBytes sums the on-disk size of the library's local
// assets.
func (e *Enforcer) CurrentLocalUsageBytes(ctx context.Context, libraryID int64) (int64, error) {
	snap, err := e.UsageSnapshot(ctx, libraryID)
	if err != nil {
		return 0, err
	}
	return snap.LocalBytes, nil
}

// CurrentCloudOnlyCount counts the library's assets whose bytes exist only
// in the cloud tier.
func (e *Enforcer) CurrentCloudOnlyCount(ctx context.Context, libraryID int64) (int, error) {
	snap, err := e.UsageSnapshot(ctx, libraryID)
	if err != nil {
		return 0, err
	}
	return snap.CloudOnlyCount, nil
}
