package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeLibrary(); err != nil {
		return err
	}
	c.normalizeStorage()
	if err := c.normalizeCloud(); err != nil {
		return err
	}
	c.normalizeTasks()
	if err := c.normalizeTranscription(); err != nil {
		return err
	}
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		name  string
		value *string
	}{
		{"data_dir", &c.Paths.DataDir},
		{"cache_dir", &c.Paths.CacheDir},
		{"log_dir", &c.Paths.LogDir},
		{"socket_path", &c.Paths.SocketPath},
	}
	for _, field := range fields {
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("normalize %s: %w", field.name, err)
		}
		*field.value = expanded
	}
	return nil
}

func (c *Config) normalizeLibrary() error {
	c.Library.Name = strings.TrimSpace(c.Library.Name)
	if c.Library.Name == "" {
		c.Library.Name = defaultLibraryName
	}
	expanded, err := expandPath(strings.TrimSpace(c.Library.RootDir))
	if err != nil {
		return fmt.Errorf("normalize library root_dir: %w", err)
	}
	c.Library.RootDir = expanded
	return nil
}

func (c *Config) normalizeStorage() {
	c.Storage.Mode = strings.ToLower(strings.TrimSpace(c.Storage.Mode))
	if c.Storage.Mode == "" {
		c.Storage.Mode = defaultStorageMode
	}
	if c.Storage.FreeSpaceFloor <= 0 || c.Storage.FreeSpaceFloor >= 1 {
		c.Storage.FreeSpaceFloor = defaultFreeSpaceFloor
	}
}

func (c *Config) normalizeCloud() error {
	c.Cloud.Provider = strings.ToLower(strings.TrimSpace(c.Cloud.Provider))
	if c.Cloud.Provider == "" {
		c.Cloud.Provider = defaultCloudProvider
	}
	if strings.TrimSpace(c.Cloud.MirrorDir) != "" {
		expanded, err := expandPath(strings.TrimSpace(c.Cloud.MirrorDir))
		if err != nil {
			return fmt.Errorf("normalize cloud mirror_dir: %w", err)
		}
		c.Cloud.MirrorDir = expanded
	} else if c.Cloud.Provider == ProviderFS {
		c.Cloud.MirrorDir = filepath.Join(c.Paths.DataDir, "mirror")
	}
	c.Cloud.S3Bucket = strings.TrimSpace(c.Cloud.S3Bucket)
	c.Cloud.S3Prefix = strings.Trim(strings.TrimSpace(c.Cloud.S3Prefix), "/")
	c.Cloud.S3Region = strings.TrimSpace(c.Cloud.S3Region)
	c.Cloud.S3Endpoint = strings.TrimSpace(c.Cloud.S3Endpoint)
	return nil
}

func (c *Config) normalizeTasks() {
	if c.Tasks.ImportWorkers <= 0 {
		c.Tasks.ImportWorkers = defaultImportWorkers
	}
	if c.Tasks.TranscribeWorkers <= 0 {
		c.Tasks.TranscribeWorkers = defaultTranscribeWorkers
	}
	if c.Tasks.RetryLimit <= 0 {
		c.Tasks.RetryLimit = defaultRetryLimit
	}
	if c.Tasks.RetryBackoffSeconds <= 0 {
		c.Tasks.RetryBackoffSeconds = defaultRetryBackoffSeconds
	}
	if c.Tasks.HydrationPollSeconds <= 0 {
		c.Tasks.HydrationPollSeconds = defaultHydrationPollSeconds
	}
	if c.Tasks.HydrationGraceMillis <= 0 {
		c.Tasks.HydrationGraceMillis = defaultHydrationGraceMillis
	}
}

func (c *Config) normalizeTranscription() error {
	c.Transcription.Binary = strings.TrimSpace(c.Transcription.Binary)
	if c.Transcription.Binary == "" {
		c.Transcription.Binary = defaultTranscriberBinary
	}
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultTranscriberModel
	}
	if strings.TrimSpace(c.Transcription.OutputDir) != "" {
		expanded, err := expandPath(strings.TrimSpace(c.Transcription.OutputDir))
		if err != nil {
			return fmt.Errorf("normalize transcription output_dir: %w", err)
		}
		c.Transcription.OutputDir = expanded
	} else {
		c.Transcription.OutputDir = filepath.Join(c.Paths.DataDir, "transcripts")
	}
	if c.Transcription.TimeoutSeconds <= 0 {
		c.Transcription.TimeoutSeconds = defaultTranscribeTimeout
	}
	return nil
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		c.Workflow.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		c.Workflow.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	if c.Workflow.PolicyApplyInterval <= 0 {
		c.Workflow.PolicyApplyInterval = defaultPolicyApplyInterval
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
