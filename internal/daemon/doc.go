// Package daemon assembles and supervises the icebox background services.
//
// The daemon owns the composition root: it opens both SQLite stores, selects
// the cloud drive implementation from configuration, wires the presence
// tracker, budget enforcer, workflow manager, importer, and transcriber, and
// enforces single-instance execution with a file lock. Start launches the
// task workers and the periodic policy loop; a fresh metadata store triggers
// a one-shot reconciliation of the cloud tree.
package daemon
