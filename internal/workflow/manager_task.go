package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"icebox/internal/library"
	"icebox/internal/logging"
	"icebox/internal/services"
	"icebox/internal/tasks"
)

func (m *Manager) processTask(ctx context.Context, workerLogger *slog.Logger, task *tasks.Task) error {
	handler := m.Handler(task.Kind)
	if handler == nil {
		// ClaimNext only runs for registered kinds, so this indicates a
		// handler was deregistered mid-run.
		err := errors.New("task handler unavailable")
		m.failTask(ctx, workerLogger, task, err.Error())
		m.setLastError(err)
		return err
	}

	taskCtx := services.WithTaskID(ctx, task.ID)
	taskCtx = services.WithAssetID(taskCtx, strconv.FormatInt(task.AssetID, 10))
	taskCtx = services.WithKind(taskCtx, string(task.Kind))
	taskCtx = services.WithRequestID(taskCtx, uuid.NewString())

	logger := logging.WithContext(taskCtx, workerLogger)

	if err := m.library.SetProcessingStatus(ctx, task.AssetID, string(task.Kind), library.ProcessRunning, ""); err != nil {
		logger.Warn("failed to persist running status", logging.Error(err))
	}

	start := time.Now()
	logger.Info("task started",
		logging.String(logging.FieldEventType, "task_start"),
		logging.Int("attempt", task.Attempts),
	)

	execErr := m.executeWithHeartbeat(taskCtx, handler, task)
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) {
			logger.Debug("task interrupted by shutdown")
			return execErr
		}
		m.handleTaskFailure(ctx, logger, task, execErr)
		return execErr
	}

	if err := m.store.MarkSucceeded(ctx, task.ID); err != nil {
		logger.Error("failed to persist task success", logging.Error(err))
		m.setLastError(err)
		return err
	}
	if err := m.library.SetProcessingStatus(ctx, task.AssetID, string(task.Kind), library.ProcessSucceeded, ""); err != nil {
		logger.Warn("failed to persist succeeded status", logging.Error(err))
	}

	logger.Info("task completed",
		logging.String(logging.FieldEventType, "task_complete"),
		logging.Duration("task_duration", time.Since(start)),
	)
	return nil
}

// executeWithHeartbeat runs the handler while a background loop keeps the
// task's heartbeat fresh so the reclaimer treats it as alive.
func (m *Manager) executeWithHeartbeat(ctx context.Context, handler Handler, task *tasks.Task) error {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, task.ID)

	execErr := handler.Execute(ctx, task)
	hbCancel()
	hbWG.Wait()
	return execErr
}
