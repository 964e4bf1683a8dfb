package main

import (
	"path/filepath"
	"testing"

	"icebox/internal/config"
)

func TestSocketPath(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.SocketPath = filepath.Join(t.TempDir(), "iceboxd.sock")
	if got := socketPath(&cfg); got != cfg.Paths.SocketPath {
		t.Fatalf("expected configured socket path %q, got %q", cfg.Paths.SocketPath, got)
	}

	cfg.Paths.SocketPath = ""
	cfg.Paths.DataDir = t.TempDir()
	expected := filepath.Join(cfg.Paths.DataDir, "iceboxd.sock")
	if got := socketPath(&cfg); got != expected {
		t.Fatalf("expected fallback socket path %q, got %q", expected, got)
	}

	if got := socketPath(nil); got != filepath.Join("", "iceboxd.sock") {
		t.Fatalf("unexpected nil-config socket path %q", got)
	}
}
