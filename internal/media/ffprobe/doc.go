// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Inspect executes ffprobe and returns a parsed Result; helper methods expose
// the container duration, size, and whether a video stream is present. The
// reconciler and importer use it for best-effort metadata probing.
package ffprobe
