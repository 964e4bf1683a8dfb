package config

const (
	defaultDataDir              = "~/.local/share/icebox"
	defaultCacheDir             = "~/.cache/icebox"
	defaultLogDir               = "~/.local/share/icebox/logs"
	defaultSocketPath           = "~/.local/share/icebox/iceboxd.sock"
	defaultLibraryName          = "Library"
	defaultLibraryRootDir       = "~/icebox"
	defaultStorageMode          = ModeKeepAllLocal
	defaultCacheBudgetGiB       = 50
	defaultFreeSpaceFloor       = 0.10
	defaultCloudProvider        = ProviderFS
	defaultImportWorkers        = 4
	defaultTranscribeWorkers    = 1
	defaultRetryLimit           = 3
	defaultRetryBackoffSeconds  = 30
	defaultHydrationPollSeconds = 5
	defaultHydrationGraceMillis = 2000
	defaultTranscriberBinary    = "whisperx"
	defaultTranscriberModel     = "large-v3-turbo"
	defaultTranscribeTimeout    = 7200
	defaultQueuePollInterval    = 5
	defaultErrorRetryInterval   = 10
	defaultHeartbeatInterval    = 15
	defaultHeartbeatTimeout     = 120
	defaultPolicyApplyInterval  = 900
	defaultNotifyTimeout        = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			CacheDir:   defaultCacheDir,
			LogDir:     defaultLogDir,
			SocketPath: defaultSocketPath,
		},
		Library: Library{
			Name:    defaultLibraryName,
			RootDir: defaultLibraryRootDir,
		},
		Storage: Storage{
			Mode:           defaultStorageMode,
			CacheBudgetGiB: defaultCacheBudgetGiB,
			FreeSpaceFloor: defaultFreeSpaceFloor,
		},
		Cloud: Cloud{
			Provider: defaultCloudProvider,
		},
		Tasks: Tasks{
			ImportWorkers:        defaultImportWorkers,
			TranscribeWorkers:    defaultTranscribeWorkers,
			RetryLimit:           defaultRetryLimit,
			RetryBackoffSeconds:  defaultRetryBackoffSeconds,
			HydrationPollSeconds: defaultHydrationPollSeconds,
			HydrationGraceMillis: defaultHydrationGraceMillis,
		},
		Transcription: Transcription{
			Binary:         defaultTranscriberBinary,
			Model:          defaultTranscriberModel,
			TimeoutSeconds: defaultTranscribeTimeout,
		},
		Workflow: Workflow{
			QueuePollInterval:   defaultQueuePollInterval,
			ErrorRetryInterval:  defaultErrorRetryInterval,
			HeartbeatInterval:   defaultHeartbeatInterval,
			HeartbeatTimeout:    defaultHeartbeatTimeout,
			PolicyApplyInterval: defaultPolicyApplyInterval,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Imports:        true,
			Transcription:  true,
			Policy:         false,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
