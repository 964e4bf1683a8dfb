// Package tasks persists the background task queue in SQLite. It enforces
// the queue's core invariant — at most one non-terminal task per (asset,
// kind) pair — at the schema level, and provides claim-based FIFO dispatch
// per kind with scheduled retry, heartbeats, and stale-task reclaim.
//
// The store schedules nothing itself; the workflow manager owns workers,
// concurrency caps, and retry ceilings.
package tasks
