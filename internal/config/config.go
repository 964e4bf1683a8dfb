package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and socket configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	CacheDir   string `toml:"cache_dir"`
	LogDir     string `toml:"log_dir"`
	SocketPath string `toml:"socket_path"`
}

// Library contains configuration for the default media library.
type Library struct {
	Name    string `toml:"name"`
	RootDir string `toml:"root_dir"`
}

// Storage contains the local cache policy applied to the default library.
type Storage struct {
	Mode           string `toml:"mode"`
	CacheBudgetGiB int    `toml:"cache_budget_gib"`
	FreeSpaceFloor float64 `toml:"free_space_floor"`
}

// Storage policy modes.
const (
	ModeKeepAllLocal    = "keep_all_local"
	ModeOptimizeStorage = "optimize_storage"
)

// Cloud contains configuration for the cloud tier backing the library.
type Cloud struct {
	Provider string `toml:"provider"`
	// MirrorDir backs the "fs" provider: a second directory (typically a
	// provider-synced mount) holding the durable copy of every asset.
	MirrorDir string `toml:"mirror_dir"`
	// S3 settings back the "s3" provider. When the access key pair is left
	// empty the AWS default credential chain is used.
	S3Bucket          string `toml:"s3_bucket"`
	S3Prefix          string `toml:"s3_prefix"`
	S3Region          string `toml:"s3_region"`
	S3Endpoint        string `toml:"s3_endpoint"`
	S3AccessKeyID     string `toml:"s3_access_key_id"`
	S3SecretAccessKey string `toml:"s3_secret_access_key"`
}

// Cloud provider names.
const (
	ProviderFS = "fs"
	ProviderS3 = "s3"
)

// Tasks contains tuning for the background task queue.
type Tasks struct {
	ImportWorkers        int `toml:"import_workers"`
	TranscribeWorkers    int `toml:"transcribe_workers"`
	RetryLimit           int `toml:"retry_limit"`
	RetryBackoffSeconds  int `toml:"retry_backoff_seconds"`
	HydrationPollSeconds int `toml:"hydration_poll_seconds"`
	HydrationGraceMillis int `toml:"hydration_grace_millis"`
}

// Transcription contains settings for the external transcriber invocation.
type Transcription struct {
	Binary string `toml:"binary"`
	Model  string `toml:"model"`
	// Language pins the spoken language instead of letting the tool
	// auto-detect. Accepts ISO 639-1/639-2 codes or full names.
	Language       string `toml:"language"`
	OutputDir      string `toml:"output_dir"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Workflow contains daemon timing and interval settings.
type Workflow struct {
	QueuePollInterval   int `toml:"queue_poll_interval"`
	ErrorRetryInterval  int `toml:"error_retry_interval"`
	HeartbeatInterval   int `toml:"heartbeat_interval"`
	HeartbeatTimeout    int `toml:"heartbeat_timeout"`
	PolicyApplyInterval int `toml:"policy_apply_interval"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Imports        bool   `toml:"imports"`
	Transcription  bool   `toml:"transcription"`
	Policy         bool   `toml:"policy"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for icebox.
//
// Configuration sections by subsystem:
//   - Paths: data, cache, and log directories plus the IPC socket
//   - Library: the default library name and its cloud-synced root
//   - Storage: local cache policy (keep_all_local or optimize_storage)
//   - Cloud: which cloud tier backs the library (fs mirror or s3)
//   - Tasks: worker counts per task kind, retry ceiling, backoff curve
//   - Transcription: external transcriber binary and output location
//   - Workflow: daemon polling intervals and heartbeat timing
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Library       Library       `toml:"library"`
	Storage       Storage       `toml:"storage"`
	Cloud         Cloud         `toml:"cloud"`
	Tasks         Tasks         `toml:"tasks"`
	Transcription Transcription `toml:"transcription"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/icebox/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/icebox/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("icebox.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// The library root is created on a best-effort basis so the daemon can run
// when the synced mount is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.CacheDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Library.RootDir) != "" {
		_ = os.MkdirAll(c.Library.RootDir, 0o755)
	}
	if strings.TrimSpace(c.Transcription.OutputDir) != "" {
		if err := os.MkdirAll(c.Transcription.OutputDir, 0o755); err != nil {
			return fmt.Errorf("create transcripts directory %q: %w", c.Transcription.OutputDir, err)
		}
	}
	return nil
}

// CacheBudgetBytes returns the configured cache budget in bytes.
func (c *Config) CacheBudgetBytes() int64 {
	return int64(c.Storage.CacheBudgetGiB) * 1024 * 1024 * 1024
}

// FFprobeBinary returns the ffprobe executable name used for media probing.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
