package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLibrary(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateCloud(); err != nil {
		return err
	}
	if err := c.validateTasks(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLibrary() error {
	if c.Library.RootDir == "" {
		return errors.New("library.root_dir must be set")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Mode {
	case ModeKeepAllLocal:
		return nil
	case ModeOptimizeStorage:
		if c.Storage.CacheBudgetGiB <= 0 {
			return errors.New("storage.cache_budget_gib must be positive when storage.mode is optimize_storage")
		}
		return nil
	default:
		return fmt.Errorf("storage.mode: unsupported value %q (expected %s or %s)", c.Storage.Mode, ModeKeepAllLocal, ModeOptimizeStorage)
	}
}

func (c *Config) validateCloud() error {
	switch c.Cloud.Provider {
	case ProviderFS:
		if c.Cloud.MirrorDir == "" {
			return errors.New("cloud.mirror_dir must be set when cloud.provider is fs")
		}
		return nil
	case ProviderS3:
		if c.Cloud.S3Bucket == "" {
			return errors.New("cloud.s3_bucket must be set when cloud.provider is s3")
		}
		if c.Cloud.S3Region == "" && c.Cloud.S3Endpoint == "" {
			return errors.New("cloud.s3_region (or cloud.s3_endpoint) must be set when cloud.provider is s3")
		}
		return nil
	default:
		return fmt.Errorf("cloud.provider: unsupported value %q (expected %s or %s)", c.Cloud.Provider, ProviderFS, ProviderS3)
	}
}

func (c *Config) validateTasks() error {
	if c.Tasks.TranscribeWorkers > 4 {
		return errors.New("tasks.transcribe_workers must not exceed 4; transcription is resource-heavy")
	}
	return nil
}
