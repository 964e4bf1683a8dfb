// Package config loads, normalizes, and validates icebox configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob the
// daemon and CLI need: library root and cloud tier selection, the storage
// policy, task queue tuning, and workflow intervals.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical storage modes, and clear validation errors.
package config
