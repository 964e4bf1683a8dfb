package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"icebox/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "icebox")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Library.RootDir != filepath.Join(tempHome, "icebox") {
		t.Fatalf("unexpected library root: %q", cfg.Library.RootDir)
	}
	if cfg.Storage.Mode != config.ModeKeepAllLocal {
		t.Fatalf("expected keep_all_local default, got %q", cfg.Storage.Mode)
	}
	if cfg.Cloud.Provider != config.ProviderFS {
		t.Fatalf("expected fs provider default, got %q", cfg.Cloud.Provider)
	}
	if cfg.Cloud.MirrorDir != filepath.Join(wantData, "mirror") {
		t.Fatalf("unexpected mirror dir: %q", cfg.Cloud.MirrorDir)
	}
	if cfg.Tasks.TranscribeWorkers != 1 {
		t.Fatalf("expected single transcribe worker by default, got %d", cfg.Tasks.TranscribeWorkers)
	}
	if cfg.Workflow.HeartbeatTimeout != config.Default().Workflow.HeartbeatTimeout {
		t.Fatalf("unexpected heartbeat timeout: %d", cfg.Workflow.HeartbeatTimeout)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.CacheDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "icebox.toml")

	type payload struct {
		Storage struct {
			Mode           string `toml:"mode"`
			CacheBudgetGiB int    `toml:"cache_budget_gib"`
		} `toml:"storage"`
	}
	var body payload
	body.Storage.Mode = "optimize_storage"
	body.Storage.CacheBudgetGiB = 10

	raw, err := toml.Marshal(body)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, raw, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected config at %q to be used, got %q exists=%v", configPath, resolved, exists)
	}
	if cfg.Storage.Mode != config.ModeOptimizeStorage {
		t.Fatalf("unexpected storage mode: %q", cfg.Storage.Mode)
	}
	if cfg.CacheBudgetBytes() != 10*1024*1024*1024 {
		t.Fatalf("unexpected budget bytes: %d", cfg.CacheBudgetBytes())
	}
}

func TestValidateRejectsBadStorageMode(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Mode = "archive_everything"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown storage mode")
	}
}

func TestValidateRejectsZeroBudget(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Mode = config.ModeOptimizeStorage
	cfg.Storage.CacheBudgetGiB = 0
	cfg.Library.RootDir = "/tmp/lib"
	cfg.Cloud.MirrorDir = "/tmp/mirror"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for zero cache budget")
	}
}

func TestValidateS3RequiresBucket(t *testing.T) {
	cfg := config.Default()
	cfg.Library.RootDir = "/tmp/lib"
	cfg.Cloud.Provider = config.ProviderS3
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for missing s3 bucket")
	}
}
