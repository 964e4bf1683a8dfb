// Package workflow coordinates background task execution.
//
// The Manager runs a bounded pool of workers per task kind. Each worker claims
// the oldest queued task of its kind, keeps a heartbeat alive while the
// handler runs, and routes the outcome: success marks the task succeeded,
// retryable failures re-queue with exponential backoff up to the configured
// retry ceiling, and tasks waiting on cloud hydration re-queue with a short
// delay without consuming a retry attempt. A reclaimer loop returns tasks
// whose heartbeats have gone stale (crashed or wedged workers) to the queue.
package workflow
