package workflow

import (
	"context"

	"icebox/internal/tasks"
)

// Status is a point-in-time snapshot of workflow state for diagnostics.
type Status struct {
	Running   bool
	LastError string
	Queue     tasks.HealthSummary
	Stats     map[tasks.Kind]map[tasks.Status]int
}

// Status reports whether processing is active plus aggregate queue counts.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	health, err := m.store.Health(ctx)
	if err != nil {
		return Status{}, err
	}
	stats, err := m.store.Stats(ctx)
	if err != nil {
		return Status{}, err
	}

	status := Status{
		Running: m.Running(),
		Queue:   health,
		Stats:   stats,
	}
	if lastErr := m.LastError(); lastErr != nil {
		status.LastError = lastErr.Error()
	}
	return status, nil
}
