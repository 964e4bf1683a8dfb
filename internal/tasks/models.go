package tasks

import (
	"strings"
	"time"
)

// Kind is the category of background work. It scopes de-duplication and the
// per-kind concurrency caps.
type Kind string

const (
	KindImport     Kind = "import"
	KindTranscribe Kind = "transcribe"
)

// Kinds lists every known task kind in dispatch order.
func Kinds() []Kind {
	return []Kind{KindImport, KindTranscribe}
}

// ValidKind reports whether kind names known background work.
func ValidKind(kind Kind) bool {
	switch kind {
	case KindImport, KindTranscribe:
		return true
	}
	return false
}

// Status is the lifecycle state of a task.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether a status ends the task's lifecycle.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case StatusQueued, StatusRunning, StatusSucceeded, StatusFailed:
		return normalized, true
	}
	return "", false
}

// ParseKind converts a string into a known Kind.
func ParseKind(value string) (Kind, bool) {
	normalized := Kind(strings.ToLower(strings.TrimSpace(value)))
	if !ValidKind(normalized) {
		return "", false
	}
	return normalized, true
}

// Task is one unit of background work against a single asset.
type Task struct {
	ID            int64
	AssetID       int64
	LibraryID     int64
	Kind          Kind
	Status        Status
	Attempts      int
	LastError     string
	PayloadJSON   string
	NextRunAt     time.Time
	LastHeartbeat *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HealthSummary aggregates queue state for diagnostic output.
type HealthSummary struct {
	Total     int
	Queued    int
	Running   int
	Succeeded int
	Failed    int
}
