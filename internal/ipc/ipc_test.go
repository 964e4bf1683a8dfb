package ipc_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"icebox/internal/daemon"
	"icebox/internal/ipc"
	"icebox/internal/library"
	"icebox/internal/logging"
	"icebox/internal/tasks"
	"icebox/internal/testsupport"
)

func TestIPCServerClient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	d, err := daemon.New(ctx, cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		if err := d.Close(); err != nil {
			t.Errorf("daemon.Close: %v", err)
		}
	})

	socket := filepath.Join(cfg.Paths.LogDir, "icebox.sock")
	srv, err := ipc.NewServer(ctx, socket, d, logging.NewNop())
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	time.Sleep(50 * time.Millisecond)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if status.Running {
		t.Fatal("expected stopped daemon")
	}
	if status.LibraryName != cfg.Library.Name {
		t.Fatalf("expected library %q, got %q", cfg.Library.Name, status.LibraryName)
	}
	if status.StorageMode != string(library.ModeKeepAllLocal) {
		t.Fatalf("unexpected storage mode %q", status.StorageMode)
	}

	source := filepath.Join(t.TempDir(), "Arrival.mkv")
	testsupport.WriteFile(t, source, 2048)

	importResp, err := client.Import([]string{source})
	if err != nil {
		t.Fatalf("Import RPC failed: %v", err)
	}
	if len(importResp.Results) != 1 {
		t.Fatalf("expected one import result, got %d", len(importResp.Results))
	}
	result := importResp.Results[0]
	if result.Error != "" {
		t.Fatalf("unexpected import error: %s", result.Error)
	}
	if result.AssetID <= 0 || result.TaskID <= 0 {
		t.Fatalf("expected asset and task ids, got %+v", result)
	}

	queued, err := client.QueueList([]string{string(tasks.StatusQueued)})
	if err != nil {
		t.Fatalf("QueueList RPC failed: %v", err)
	}
	if len(queued.Tasks) != 1 || queued.Tasks[0].Kind != string(tasks.KindImport) {
		t.Fatalf("unexpected queued tasks: %+v", queued.Tasks)
	}

	health, err := client.QueueHealth()
	if err != nil {
		t.Fatalf("QueueHealth RPC failed: %v", err)
	}
	if health.Queued != 1 || health.Total != 1 {
		t.Fatalf("unexpected queue health: %+v", health)
	}

	if _, err := client.Pin(result.AssetID, true); err != nil {
		t.Fatalf("Pin RPC failed: %v", err)
	}
	assetsResp, err := client.Assets(true)
	if err != nil {
		t.Fatalf("Assets RPC failed: %v", err)
	}
	if len(assetsResp.Assets) != 1 {
		t.Fatalf("expected one asset, got %d", len(assetsResp.Assets))
	}
	asset := assetsResp.Assets[0]
	if !asset.Pinned {
		t.Fatal("expected pinned asset")
	}
	if asset.Presence == "" {
		t.Fatal("expected presence annotation")
	}

	stateResp, err := client.AssetState(result.AssetID)
	if err != nil {
		t.Fatalf("AssetState RPC failed: %v", err)
	}
	if stateResp.State != asset.Presence {
		t.Fatalf("presence mismatch: %s vs %s", stateResp.State, asset.Presence)
	}

	if _, err := client.PolicySet("sideways", 0); err == nil {
		t.Fatal("expected error for unknown storage mode")
	}
	policyResp, err := client.PolicySet(string(library.ModeOptimizeStorage), 5<<30)
	if err != nil {
		t.Fatalf("PolicySet RPC failed: %v", err)
	}
	if policyResp.Mode != string(library.ModeOptimizeStorage) {
		t.Fatalf("unexpected policy mode %q", policyResp.Mode)
	}
	applyResp, err := client.PolicyApply()
	if err != nil {
		t.Fatalf("PolicyApply RPC failed: %v", err)
	}
	if applyResp.Mode != string(library.ModeOptimizeStorage) {
		t.Fatalf("unexpected apply mode %q", applyResp.Mode)
	}

	retryResp, err := client.QueueRetry(nil)
	if err != nil {
		t.Fatalf("QueueRetry RPC failed: %v", err)
	}
	if retryResp.Updated != 0 {
		t.Fatalf("expected no retried tasks, got %d", retryResp.Updated)
	}
	clearResp, err := client.QueueClear("failed")
	if err != nil {
		t.Fatalf("QueueClear RPC failed: %v", err)
	}
	if clearResp.Removed != 0 {
		t.Fatalf("expected nothing cleared, got %d", clearResp.Removed)
	}
	if _, err := client.QueueClear("bogus"); err == nil {
		t.Fatal("expected error for unknown clear scope")
	}

	logPath := d.LogPath()
	if logPath == "" {
		t.Fatal("expected configured log path")
	}
	if err := os.WriteFile(logPath, []byte("first\nsecond\nthird\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	tailResp, err := client.LogTail(ipc.LogTailRequest{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("LogTail RPC failed: %v", err)
	}
	if len(tailResp.Lines) != 2 || tailResp.Lines[1] != "third" {
		t.Fatalf("unexpected log lines: %#v", tailResp.Lines)
	}

	notifyResp, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification RPC failed: %v", err)
	}
	if !notifyResp.Sent {
		t.Fatalf("expected notification sent, got %+v", notifyResp)
	}
}

func TestDialMissingSocket(t *testing.T) {
	if _, err := ipc.Dial(filepath.Join(t.TempDir(), "absent.sock")); err == nil {
		t.Fatal("expected dial error for missing socket")
	}
}
