package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"icebox/internal/library"
	"icebox/internal/logging"
	"icebox/internal/services"
	"icebox/internal/tasks"
	"icebox/internal/workflow"
)

// Handler returns the workflow handler that executes import tasks: copy the
// source into both tiers, probe metadata, then chain a transcribe task.
func (i *Importer) Handler() workflow.Handler {
	return workflow.HandlerFunc(i.runImport)
}

func (i *Importer) runImport(ctx context.Context, task *tasks.Task) error {
	asset, err := i.store.GetAsset(ctx, task.AssetID)
	if err != nil {
		return fmt.Errorf("load asset: %w", err)
	}
	if asset == nil {
		return services.Wrap(services.ErrNotFound, "importer", "run", fmt.Sprintf("asset %d not found", task.AssetID), nil)
	}

	var body payload
	if err := json.Unmarshal([]byte(task.PayloadJSON), &body); err != nil {
		return services.Wrap(services.ErrValidation, "importer", "run", "malformed task payload", err)
	}
	if strings.TrimSpace(body.Source) == "" {
		return services.Wrap(services.ErrValidation, "importer", "run", "task payload missing source path", nil)
	}

	if err := i.drive.Put(ctx, body.Source, asset.RelPath); err != nil {
		return services.Wrap(services.ErrCloudUnavailable, "importer", "put", asset.RelPath, err)
	}

	// Probe is best-effort: a file ffprobe cannot read still imports, it
	// just carries no duration.
	if i.prober != nil {
		localPath := filepath.Join(i.drive.Root(), asset.RelPath)
		if probe, err := i.prober.Inspect(ctx, localPath); err != nil {
			i.logger.Warn("metadata probe failed",
				logging.Int64(logging.FieldAssetID, asset.ID),
				logging.Error(err),
			)
		} else {
			asset.DurationSeconds = probe.DurationSeconds()
			if size := probe.SizeBytes(); size > 0 {
				asset.SizeBytes = size
			}
		}
	}
	if err := i.store.UpdateAsset(ctx, asset); err != nil {
		return fmt.Errorf("persist asset metadata: %w", err)
	}

	if _, _, err := i.tasks.Enqueue(ctx, asset.ID, asset.LibraryID, tasks.KindTranscribe, ""); err != nil {
		return fmt.Errorf("enqueue transcribe task: %w", err)
	}
	if err := i.store.SetProcessingStatus(ctx, asset.ID, "transcribe", library.ProcessQueued, ""); err != nil {
		i.logger.Warn("failed to persist transcribe queued status", logging.Error(err))
	}

	i.logger.Info("asset imported",
		logging.Int64(logging.FieldAssetID, asset.ID),
		logging.String("rel_path", asset.RelPath),
		logging.Int64("size_bytes", asset.SizeBytes),
	)
	if err := i.notifier.NotifyImportCompleted(ctx, asset.Title); err != nil {
		i.logger.Debug("import notification not delivered", logging.Error(err))
	}
	return nil
}
