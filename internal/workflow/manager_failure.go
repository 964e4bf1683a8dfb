package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"icebox/internal/library"
	"icebox/internal/logging"
	"icebox/internal/services"
	"icebox/internal/tasks"
)

const maxRetryBackoff = time.Hour

func (m *Manager) handleTaskFailure(ctx context.Context, logger *slog.Logger, task *tasks.Task, execErr error) {
	message := failureMessage(execErr)

	switch {
	case errors.Is(execErr, services.ErrNotReady):
		// Waiting on hydration is not a failure: re-queue with a short
		// delay and give the attempt back.
		delay := time.Duration(m.cfg.Tasks.HydrationPollSeconds) * time.Second
		if err := m.store.Requeue(ctx, task.ID, delay, message, true); err != nil {
			logger.Error("failed to re-queue waiting task", logging.Error(err))
			m.setLastError(err)
			return
		}
		if err := m.library.SetProcessingStatus(ctx, task.AssetID, string(task.Kind), library.ProcessQueued, ""); err != nil {
			logger.Warn("failed to persist queued status", logging.Error(err))
		}
		logger.Debug("task waiting on hydration",
			logging.String(logging.FieldEventType, "task_waiting"),
			logging.Duration("delay", delay),
		)
		return

	case services.Retryable(execErr) && task.Attempts < m.cfg.Tasks.RetryLimit:
		delay := m.backoffFor(task.Attempts)
		if err := m.store.Requeue(ctx, task.ID, delay, message, false); err != nil {
			logger.Error("failed to re-queue task for retry", logging.Error(err))
			m.setLastError(err)
			return
		}
		if err := m.library.SetProcessingStatus(ctx, task.AssetID, string(task.Kind), library.ProcessQueued, ""); err != nil {
			logger.Warn("failed to persist queued status", logging.Error(err))
		}
		logger.Warn("task failed, retry scheduled",
			logging.Error(execErr),
			logging.String(logging.FieldEventType, "task_retry"),
			logging.Int("attempt", task.Attempts),
			logging.Int("retry_limit", m.cfg.Tasks.RetryLimit),
			logging.Duration("delay", delay),
		)

	default:
		m.failTask(ctx, logger, task, message)
		logger.Error("task failed",
			logging.Error(execErr),
			logging.String(logging.FieldEventType, "task_failure"),
			logging.Int("attempt", task.Attempts),
		)
		if m.notifier != nil {
			if err := m.notifier.NotifyError(ctx, execErr, string(task.Kind)); err != nil {
				logger.Debug("failure notification not delivered", logging.Error(err))
			}
		}
	}

	m.setLastError(execErr)
}

// failTask records a terminal failure on both the task and the asset so
// presentation layers never see an asset stuck between "still processing"
// and "gave up".
func (m *Manager) failTask(ctx context.Context, logger *slog.Logger, task *tasks.Task, message string) {
	if err := m.store.MarkFailed(ctx, task.ID, message); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not persist task failure")
		} else {
			logger.Error("failed to persist task failure", logging.Error(err))
		}
	}
	if err := m.library.SetProcessingStatus(ctx, task.AssetID, string(task.Kind), library.ProcessFailed, message); err != nil {
		logger.Warn("failed to persist failed status", logging.Error(err))
	}
}

// backoffFor doubles the configured base delay per consumed attempt, capped
// at an hour. attempts is the count including the run that just failed.
func (m *Manager) backoffFor(attempts int) time.Duration {
	base := time.Duration(m.cfg.Tasks.RetryBackoffSeconds) * time.Second
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= maxRetryBackoff {
			return maxRetryBackoff
		}
	}
	return delay
}

func failureMessage(err error) string {
	if err == nil {
		return "task failed without error detail"
	}
	message := strings.TrimSpace(err.Error())
	if message == "" {
		return "task failed"
	}
	return message
}
