package tasks

import (
	"context"
	"fmt"
	"time"
)

// ResetRunning returns every running task to the queue. Called once at
// startup: a task found running from a previous process is resumable, not
// lost. The attempt consumed by the interrupted claim is restored.
func (s *Store) ResetRunning(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks
         SET status = ?, attempts = MAX(attempts - 1, 0), last_heartbeat = NULL,
             next_run_at = ?, updated_at = ?
         WHERE status = ?`,
		StatusQueued,
		now,
		now,
		StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("reset running tasks: %w", err)
	}
	return res.RowsAffected()
}

// ReclaimStale returns running tasks whose heartbeat predates the cutoff to
// the queue. Covers workers that died mid-task without a clean shutdown.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks
         SET status = ?, attempts = MAX(attempts - 1, 0), last_heartbeat = NULL,
             next_run_at = ?, updated_at = ?
         WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StatusQueued,
		now,
		now,
		StatusRunning,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale tasks: %w", err)
	}
	return res.RowsAffected()
}

// noActiveSibling excludes failed tasks whose (asset, kind) slot is already
// occupied by an active task, which would otherwise trip idx_tasks_active on
// re-queue. Such tasks stay failed; the active task supersedes them.
const noActiveSibling = ` AND NOT EXISTS (
            SELECT 1 FROM tasks t2
            WHERE t2.asset_id = tasks.asset_id AND t2.kind = tasks.kind
              AND t2.status IN ('queued', 'running'))`

// RetryFailed moves failed tasks back to the queue with a fresh attempt
// budget. With no ids, every failed task is retried.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if len(ids) == 0 {
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE tasks
             SET status = ?, attempts = 0, last_error = NULL, next_run_at = ?, updated_at = ?
             WHERE status = ?`+noActiveSibling,
			StatusQueued,
			now,
			now,
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed tasks: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+3)
	args = append(args, StatusQueued, now, now)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE tasks
        SET status = ?, attempts = 0, last_error = NULL, next_run_at = ?, updated_at = ?
        WHERE id IN (` + placeholders + `) AND status = '` + string(StatusFailed) + `'` + noActiveSibling
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected tasks: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a per-kind count of tasks grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Kind]map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, status, COUNT(1) FROM tasks GROUP BY kind, status`)
	if err != nil {
		return nil, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Kind]map[Status]int)
	for rows.Next() {
		var (
			kind   Kind
			status Status
			count  int
		)
		if err := rows.Scan(&kind, &status, &count); err != nil {
			return nil, err
		}
		if stats[kind] == nil {
			stats[kind] = make(map[Status]int)
		}
		stats[kind][status] = count
	}
	return stats, rows.Err()
}

// Health aggregates queue state across kinds for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for _, byStatus := range stats {
		for status, count := range byStatus {
			health.Total += count
			switch status {
			case StatusQueued:
				health.Queued += count
			case StatusRunning:
				health.Running += count
			case StatusSucceeded:
				health.Succeeded += count
			case StatusFailed:
				health.Failed += count
			}
		}
	}
	return health, nil
}

// Remove deletes a task by identifier.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearSucceeded removes only succeeded tasks.
func (s *Store) ClearSucceeded(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE status = ?`, StatusSucceeded)
	if err != nil {
		return 0, fmt.Errorf("clear succeeded: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailed removes only failed tasks.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE status = ?`, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear failed: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all tasks.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks`)
	if err != nil {
		return 0, fmt.Errorf("clear tasks: %w", err)
	}
	return res.RowsAffected()
}
