package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"icebox/internal/config"
	"icebox/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyImportCompleted(context.Background(), "Example"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		notify         func(svc notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "import completed",
			notify: func(svc notifications.Service) error {
				return svc.NotifyImportCompleted(context.Background(), "Heat")
			},
			expectTitle:   "Icebox - Imported",
			expectMessage: "Imported: Heat",
			expectTags:    "icebox,import,completed",
		},
		{
			name: "import batch with failures",
			notify: func(svc notifications.Service) error {
				return svc.NotifyImportBatchCompleted(context.Background(), 4, 1)
			},
			expectTitle:   "Icebox - Import Complete (with errors)",
			expectMessage: "Import complete: 4 added, 1 failed",
			expectTags:    "icebox,import,completed",
		},
		{
			name: "transcription completed",
			notify: func(svc notifications.Service) error {
				return svc.NotifyTranscriptionCompleted(context.Background(), "Arrival")
			},
			expectTitle:   "Icebox - Transcribed",
			expectMessage: "Transcript ready: Arrival",
			expectTags:    "icebox,transcribe,completed",
		},
		{
			name: "policy applied",
			notify: func(svc notifications.Service) error {
				return svc.NotifyPolicyApplied(context.Background(), 3, 5<<30)
			},
			expectTitle:   "Icebox - Storage Optimized",
			expectMessage: "Evicted 3 items, reclaimed 5.0 GiB",
			expectTags:    "icebox,policy,applied",
		},
		{
			name: "error",
			notify: func(svc notifications.Service) error {
				return svc.NotifyError(context.Background(), errors.New("disk full"), "transcribe")
			},
			expectTitle:    "Icebox - Error",
			expectMessage:  "Error with transcribe: disk full",
			expectTags:     "icebox,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5
			cfg.Notifications.Policy = true

			svc := notifications.NewService(&cfg)
			if err := tc.notify(svc); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceHonorsCategoryToggles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for disabled category: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Imports = false
	cfg.Notifications.Transcription = false
	cfg.Notifications.Policy = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(&cfg)
	ctx := context.Background()
	if err := svc.NotifyImportCompleted(ctx, "suppressed"); err != nil {
		t.Fatalf("suppressed import notification: %v", err)
	}
	if err := svc.NotifyTranscriptionCompleted(ctx, "suppressed"); err != nil {
		t.Fatalf("suppressed transcription notification: %v", err)
	}
	if err := svc.NotifyPolicyApplied(ctx, 1, 1024); err != nil {
		t.Fatalf("suppressed policy notification: %v", err)
	}
	if err := svc.NotifyError(ctx, errors.New("boom"), "test"); err != nil {
		t.Fatalf("suppressed error notification: %v", err)
	}
}

func TestNtfyServiceSkipsEmptyPolicyPass(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for empty policy pass: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Policy = true

	svc := notifications.NewService(&cfg)
	if err := svc.NotifyPolicyApplied(context.Background(), 0, 0); err != nil {
		t.Fatalf("empty policy pass notification: %v", err)
	}
}
