// Package transcribe runs the external transcriber against local assets.
//
// The handler requires the asset's bytes on local disk before invoking the
// tool: a cold asset triggers hydration through the presence tracker and the
// task re-queues until the download lands, without holding a worker slot or
// consuming a retry attempt.
package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"icebox/internal/clouddrive"
	"icebox/internal/config"
	"icebox/internal/language"
	"icebox/internal/library"
	"icebox/internal/logging"
	"icebox/internal/notifications"
	"icebox/internal/presence"
	"icebox/internal/services"
	"icebox/internal/tasks"
	"icebox/internal/workflow"
)

// Runner invokes the transcriber binary. Split out so tests can stub the
// tool without a real model download.
type Runner func(ctx context.Context, binary string, args []string) error

// Option configures optional Transcriber behavior.
type Option func(*Transcriber)

// WithRunner replaces the default exec-based tool invocation.
func WithRunner(run Runner) Option {
	return func(t *Transcriber) {
		t.run = run
	}
}

// Transcriber executes transcribe tasks.
type Transcriber struct {
	cfg      *config.Config
	store    *library.Store
	drive    clouddrive.Drive
	tracker  *presence.Tracker
	notifier notifications.Service
	logger   *slog.Logger
	run      Runner
}

// New builds a Transcriber. notifier may be nil.
func New(cfg *config.Config, store *library.Store, drive clouddrive.Drive, tracker *presence.Tracker, notifier notifications.Service, logger *slog.Logger, opts ...Option) *Transcriber {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	t := &Transcriber{
		cfg:      cfg,
		store:    store,
		drive:    drive,
		tracker:  tracker,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "transcribe"),
		run:      runTool,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Handler returns the workflow handler that executes transcribe tasks.
func (t *Transcriber) Handler() workflow.Handler {
	return workflow.HandlerFunc(t.runTranscribe)
}

func (t *Transcriber) runTranscribe(ctx context.Context, task *tasks.Task) error {
	asset, err := t.store.GetAsset(ctx, task.AssetID)
	if err != nil {
		return fmt.Errorf("load asset: %w", err)
	}
	if asset == nil {
		return services.Wrap(services.ErrNotFound, "transcribe", "run", fmt.Sprintf("asset %d not found", task.AssetID), nil)
	}

	if err := t.tracker.EnsureLocal(ctx, asset.ID); err != nil {
		return err
	}
	state, err := t.tracker.Status(ctx, asset.ID)
	if err != nil {
		return err
	}
	if state != presence.StateLocal {
		return services.Wrap(services.ErrNotReady, "transcribe", "run",
			fmt.Sprintf("asset %d is %s, waiting for local bytes", asset.ID, state), nil)
	}

	localPath := filepath.Join(t.drive.Root(), asset.RelPath)
	outputDir := t.outputDir()
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create transcript directory: %w", err)
	}
	transcriptPath := t.transcriptPath(outputDir, asset.RelPath)

	runCtx := ctx
	if timeout := time.Duration(t.cfg.Transcription.TimeoutSeconds) * time.Second; timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	args := []string{
		localPath,
		"--model", t.cfg.Transcription.Model,
		"--output_dir", outputDir,
		"--output_format", "srt",
	}
	if lang := language.ToISO2(t.cfg.Transcription.Language); lang != "" {
		args = append(args, "--language", lang)
	}
	start := time.Now()
	if err := t.run(runCtx, t.cfg.Transcription.Binary, args); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrExternalTool, "transcribe", "run tool", asset.RelPath, err)
	}
	if _, err := os.Stat(transcriptPath); err != nil {
		return services.Wrap(services.ErrExternalTool, "transcribe", "run tool",
			fmt.Sprintf("%s produced no transcript at %s", t.cfg.Transcription.Binary, transcriptPath), err)
	}

	if err := t.store.SetTranscriptPath(ctx, asset.ID, transcriptPath); err != nil {
		return fmt.Errorf("persist transcript path: %w", err)
	}
	// Transcription read the media file, which counts as an access for the
	// eviction ordering.
	if err := t.store.TouchAccessed(ctx, asset.ID, time.Now().UTC()); err != nil {
		t.logger.Warn("failed to record access time", logging.Error(err))
	}

	t.logger.Info("transcript ready",
		logging.Int64(logging.FieldAssetID, asset.ID),
		logging.String("transcript", transcriptPath),
		logging.Duration("tool_duration", time.Since(start)),
	)
	if err := t.notifier.NotifyTranscriptionCompleted(ctx, asset.Title); err != nil {
		t.logger.Debug("transcription notification not delivered", logging.Error(err))
	}
	return nil
}

func (t *Transcriber) outputDir() string {
	if dir := strings.TrimSpace(t.cfg.Transcription.OutputDir); dir != "" {
		return dir
	}
	return filepath.Join(t.cfg.Paths.DataDir, "transcripts")
}

// transcriptPath mirrors the tool's own naming: input stem plus .srt inside
// the output directory.
func (t *Transcriber) transcriptPath(outputDir, relPath string) string {
	base := filepath.Base(relPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outputDir, stem+".srt")
}

func runTool(ctx context.Context, binary string, args []string) error {
	cmd := exec.CommandContext(ctx, binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", binary, err, strings.TrimSpace(string(output)))
	}
	return nil
}
