package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"icebox/internal/logging"
	"icebox/internal/tasks"
)

// Start begins background processing. Tasks left running by a previous
// process are returned to the queue before any worker claims.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	kinds := make([]tasks.Kind, 0, len(m.handlers))
	for _, kind := range tasks.Kinds() {
		if m.handlers[kind] != nil {
			kinds = append(kinds, kind)
		}
	}
	if len(kinds) == 0 {
		m.mu.Unlock()
		return errors.New("workflow handlers not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	if reset, err := m.store.ResetRunning(runCtx); err != nil {
		m.logger.Warn("reset orphaned running tasks failed", logging.Error(err))
	} else if reset > 0 {
		m.logger.Info("returned orphaned tasks to queue", logging.Int64("count", reset))
	}

	total := 0
	for _, kind := range kinds {
		workers := m.workersFor(kind)
		total += workers
		for slot := 0; slot < workers; slot++ {
			m.wg.Add(1)
			go m.runWorker(runCtx, kind, slot)
		}
	}
	m.wg.Add(1)
	go m.runReclaimer(runCtx)

	m.logger.Info("workflow started",
		logging.Int("workers", total),
		logging.Int("kinds", len(kinds)),
	)
	return nil
}

// Stop terminates background processing and waits for workers to drain.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) runWorker(ctx context.Context, kind tasks.Kind, slot int) {
	defer m.wg.Done()

	logger := m.logger.With(
		logging.String(logging.FieldKind, string(kind)),
		logging.Int("worker", slot),
	)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := m.store.ClaimNext(ctx, kind, time.Now().UTC())
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.handleClaimError(ctx, logger, err)
			continue
		}
		if task == nil {
			m.waitForTaskOrShutdown(ctx)
			continue
		}

		if err := m.processTask(ctx, logger, task); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
		}
	}
}

func (m *Manager) runReclaimer(ctx context.Context) {
	defer m.wg.Done()

	interval := m.heartbeat.heartbeatInterval
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
			if err := m.heartbeat.ReclaimStaleTasks(ctx, m.logger); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				m.logger.Warn("reclaim stale tasks failed; stuck tasks may remain",
					logging.Error(err),
					logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
					logging.String(logging.FieldErrorHint, "check tasks database access"),
				)
			}
		}
	}
}

func (m *Manager) handleClaimError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	logger.Error("failed to claim next task",
		logging.Error(err),
		logging.String(logging.FieldEventType, "task_claim_failed"),
		logging.String(logging.FieldErrorHint, "check tasks database access"),
	)
	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(m.cfg.Workflow.ErrorRetryInterval) * time.Second):
	}
}

func (m *Manager) waitForTaskOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(m.pollInterval):
	}
}
