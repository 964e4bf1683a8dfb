package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"icebox/internal/config"

	"github.com/dustin/go-humanize"
)

const userAgent = "Icebox-Go/0.1.0"

// Service defines the notification surface exposed to daemon components.
type Service interface {
	NotifyImportCompleted(ctx context.Context, title string) error
	NotifyImportBatchCompleted(ctx context.Context, imported, failed int) error
	NotifyTranscriptionCompleted(ctx context.Context, title string) error
	NotifyPolicyApplied(ctx context.Context, evicted int, reclaimedBytes int64) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint:      topic,
		client:        client,
		imports:       cfg.Notifications.Imports,
		transcription: cfg.Notifications.Transcription,
		policy:        cfg.Notifications.Policy,
		errors:        cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint      string
	client        *http.Client
	imports       bool
	transcription bool
	policy        bool
	errors        bool
}

func (n *ntfyService) NotifyImportCompleted(ctx context.Context, title string) error {
	if !n.imports {
		return nil
	}
	title = strings.TrimSpace(title)
	data := payload{
		title:   "Icebox - Imported",
		message: fmt.Sprintf("Imported: %s", title),
		tags:    []string{"icebox", "import", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyImportBatchCompleted(ctx context.Context, imported, failed int) error {
	if !n.imports {
		return nil
	}
	var title, message string
	if failed == 0 {
		title = "Icebox - Import Complete"
		message = fmt.Sprintf("Import complete: %d items added", imported)
	} else {
		title = "Icebox - Import Complete (with errors)"
		message = fmt.Sprintf("Import complete: %d added, %d failed", imported, failed)
	}
	data := payload{
		title:   title,
		message: message,
		tags:    []string{"icebox", "import", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyTranscriptionCompleted(ctx context.Context, title string) error {
	if !n.transcription {
		return nil
	}
	title = strings.TrimSpace(title)
	data := payload{
		title:   "Icebox - Transcribed",
		message: fmt.Sprintf("Transcript ready: %s", title),
		tags:    []string{"icebox", "transcribe", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyPolicyApplied(ctx context.Context, evicted int, reclaimedBytes int64) error {
	if !n.policy {
		return nil
	}
	if evicted == 0 {
		return nil
	}
	data := payload{
		title: "Icebox - Storage Optimized",
		message: fmt.Sprintf("Evicted %d items, reclaimed %s",
			evicted, humanize.IBytes(uint64(reclaimedBytes))),
		tags: []string{"icebox", "policy", "applied"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Icebox - Error",
		message:  builder.String(),
		tags:     []string{"icebox", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Icebox - Test",
		message:  "Notification system test",
		tags:     []string{"icebox", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyImportCompleted(context.Context, string) error          { return nil }
func (noopService) NotifyImportBatchCompleted(context.Context, int, int) error   { return nil }
func (noopService) NotifyTranscriptionCompleted(context.Context, string) error   { return nil }
func (noopService) NotifyPolicyApplied(context.Context, int, int64) error        { return nil }
func (noopService) NotifyError(context.Context, error, string) error             { return nil }
func (noopService) TestNotification(context.Context) error                       { return nil }
