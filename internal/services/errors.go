package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers used to classify failures across the storage and task
// subsystems. Wrap tags an error with one of these so callers can route on
// errors.Is without parsing messages.
var (
	// ErrCloudUnavailable indicates the cloud tier root is unreachable. Fatal
	// to the operation that required it, never to the process.
	ErrCloudUnavailable = errors.New("cloud unavailable")
	// ErrProbeFailed indicates a single asset's presence or metadata probe
	// failed. Isolated to that asset.
	ErrProbeFailed = errors.New("probe failed")
	// ErrHydrationFailed indicates a download request was rejected or stalled
	// beyond the acceptance grace window.
	ErrHydrationFailed = errors.New("hydration failed")
	// ErrNotReady indicates a task cannot run yet (typically waiting on
	// hydration); the workflow re-queues with backoff instead of failing.
	ErrNotReady = errors.New("not ready")
	// ErrValidation indicates bad input or state that retrying cannot fix.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration indicates missing or invalid configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound indicates a referenced record or file does not exist.
	ErrNotFound = errors.New("not found")
	// ErrExternalTool indicates an invoked external binary failed.
	ErrExternalTool = errors.New("external tool error")
	// ErrTransient is the default marker for retryable failures.
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether a task failure should consume a retry attempt.
// Validation and configuration failures are terminal immediately.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration), errors.Is(err, ErrNotFound):
		return false
	default:
		return true
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
