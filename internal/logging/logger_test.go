package logging_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"icebox/internal/logging"
	"icebox/internal/services"
)

func TestNewWritesToFile(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "icebox.log")

	logger, err := logging.New(logging.Options{
		Level:       "debug",
		Format:      "json",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info("hydration requested", logging.String("asset_id", "abc"))

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, `"msg":"hydration requested"`) {
		t.Fatalf("expected message in log output, got %q", content)
	}
	if !strings.Contains(content, `"asset_id":"abc"`) {
		t.Fatalf("expected attribute in log output, got %q", content)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := services.WithTaskID(context.Background(), 42)
	ctx = services.WithAssetID(ctx, "asset-1")
	ctx = services.WithKind(ctx, "transcribe")

	fields := logging.ContextFields(ctx)
	keys := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		keys[field.Key] = struct{}{}
	}
	for _, want := range []string{logging.FieldTaskID, logging.FieldAssetID, logging.FieldKind} {
		if _, ok := keys[want]; !ok {
			t.Fatalf("expected field %q in context fields, got %v", want, keys)
		}
	}
}

func TestNewNopDiscards(t *testing.T) {
	logger := logging.NewNop()
	// Must not panic or write anywhere.
	logger.Error("ignored", logging.Error(nil))
}
