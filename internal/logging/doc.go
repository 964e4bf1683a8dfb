// Package logging wraps log/slog with the handlers and helpers icebox uses
// everywhere: a console handler for interactive use, a JSON handler for
// machine consumption, a noop handler for tests, Attr aliases, and
// context-derived field extraction (task, asset, kind, correlation).
//
// Construct loggers through New or NewFromConfig so output format and level
// stay consistent between the daemon and the CLI.
package logging
