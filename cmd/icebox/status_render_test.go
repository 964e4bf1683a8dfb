package main

import (
	"strings"
	"testing"

	"icebox/internal/ipc"
)

func TestRenderStatusLine(t *testing.T) {
	line := renderStatusLine("Workers", statusOK, "pid 42", false)
	if !strings.Contains(line, "Workers:") || !strings.Contains(line, "[OK] pid 42") {
		t.Fatalf("unexpected status line: %q", line)
	}

	colored := renderStatusLine("Workers", statusError, "", true)
	if !strings.HasPrefix(colored, ansiRed) || !strings.HasSuffix(colored, ansiReset) {
		t.Fatalf("expected colored line, got %q", colored)
	}
}

func TestBuildStatusLines(t *testing.T) {
	status := &ipc.StatusResponse{
		Running:          true,
		PID:              99,
		LibraryID:        1,
		LibraryName:      "Movies",
		StorageMode:      "optimize_storage",
		CacheBudgetBytes: 10 << 30,
		AssetCount:       4,
		LocalCount:       3,
		CloudOnlyCount:   1,
		LocalBytes:       12 << 30,
		Downloading:      []int64{7},
		Queue:            ipc.QueueHealthResponse{Queued: 2, Failed: 1, Total: 3},
		QueueStats: map[string]map[string]int{
			"import": {"queued": 2},
		},
	}

	joined := strings.Join(buildStatusLines(status, false), "\n")
	for _, want := range []string{
		"Movies (id 1)",
		"Optimize Storage",
		"4 total, 3 local, 1 cloud-only",
		"10 GiB budget",
		"[WARN] 12 GiB of 10 GiB budget",
		"Hydrating",
		"2 queued",
		"1 failed",
		"Import",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("status output missing %q:\n%s", want, joined)
		}
	}
}
