package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"icebox/internal/config"
	"icebox/internal/library"
	"icebox/internal/logging"
	"icebox/internal/notifications"
	"icebox/internal/tasks"
)

// Manager coordinates task processing using registered per-kind handlers.
type Manager struct {
	cfg          *config.Config
	store        *tasks.Store
	library      *library.Store
	logger       *slog.Logger
	notifier     notifications.Service
	pollInterval time.Duration

	heartbeat *HeartbeatMonitor

	handlers map[tasks.Kind]Handler

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// NewManager constructs a new workflow manager.
func NewManager(cfg *config.Config, store *tasks.Store, libStore *library.Store, logger *slog.Logger) *Manager {
	return NewManagerWithNotifier(cfg, store, libStore, logger, notifications.NewService(cfg))
}

// NewManagerWithNotifier constructs a workflow manager with a custom notifier (used in tests).
func NewManagerWithNotifier(cfg *config.Config, store *tasks.Store, libStore *library.Store, logger *slog.Logger, notifier notifications.Service) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	pollInterval := time.Duration(cfg.Workflow.QueuePollInterval) * time.Second
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Manager{
		cfg:          cfg,
		store:        store,
		library:      libStore,
		logger:       logging.NewComponentLogger(logger, "workflow"),
		notifier:     notifier,
		pollInterval: pollInterval,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
		handlers: make(map[tasks.Kind]Handler),
	}
}

// Register installs the handler responsible for a task kind. Kinds without a
// registered handler are never claimed.
func (m *Manager) Register(kind tasks.Kind, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[kind] = handler
}

// Handler returns the registered handler for kind, or nil.
func (m *Manager) Handler(kind tasks.Kind) Handler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.handlers[kind]
}

func (m *Manager) workersFor(kind tasks.Kind) int {
	var count int
	switch kind {
	case tasks.KindImport:
		count = m.cfg.Tasks.ImportWorkers
	case tasks.KindTranscribe:
		count = m.cfg.Tasks.TranscribeWorkers
	}
	if count <= 0 {
		count = 1
	}
	return count
}

// Running reports whether background processing is active.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// LastError returns the most recent worker-loop error, if any.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
