package workflow

import (
	"context"

	"icebox/internal/tasks"
)

// Handler describes the contract the manager needs from each task kind.
//
// Execute performs the work for a single claimed task. Returning an error
// wrapped with services.ErrNotReady re-queues the task with a short delay
// without consuming a retry attempt; any other retryable error consumes one.
type Handler interface {
	Execute(ctx context.Context, task *tasks.Task) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, task *tasks.Task) error

// Execute implements Handler.
func (f HandlerFunc) Execute(ctx context.Context, task *tasks.Task) error {
	return f(ctx, task)
}
