package main

import (
	"strings"
	"testing"
	"time"

	"icebox/internal/ipc"
)

func TestBuildQueueListRowsSortsByRecency(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	items := []ipc.Task{
		{ID: 1, AssetID: 10, Kind: "import", Status: "succeeded", Attempts: 1, UpdatedAt: base},
		{ID: 2, AssetID: 11, Kind: "transcribe", Status: "failed", Attempts: 3, UpdatedAt: base.Add(time.Hour), LastError: strings.Repeat("x", 100)},
	}

	rows := buildQueueListRows(items)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "2" {
		t.Fatalf("expected most recent task first, got id %s", rows[0][0])
	}
	if rows[0][2] != "Transcribe" || rows[0][3] != "Failed" {
		t.Fatalf("unexpected kind/status: %v", rows[0])
	}
	if got := rows[0][6]; len(got) != maxErrorColumnWidth || !strings.HasSuffix(got, "...") {
		t.Fatalf("expected truncated error, got %q (%d)", got, len(got))
	}
	if rows[1][6] != "-" {
		t.Fatalf("expected dash for empty error, got %q", rows[1][6])
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"3", " 7 "})
	if err != nil || len(ids) != 2 || ids[0] != 3 || ids[1] != 7 {
		t.Fatalf("unexpected parse result %v (err %v)", ids, err)
	}
	if _, err := parseIDs([]string{"zero"}); err == nil {
		t.Fatal("expected error for non-numeric id")
	}
	if _, err := parseIDs([]string{"-4"}); err == nil {
		t.Fatal("expected error for negative id")
	}
}

func TestFormatStatusLabel(t *testing.T) {
	cases := map[string]string{
		"optimize_storage": "Optimize Storage",
		"queued":           "Queued",
		"":                 "Unknown",
	}
	for in, want := range cases {
		if got := formatStatusLabel(in); got != want {
			t.Fatalf("formatStatusLabel(%q) = %q, want %q", in, got, want)
		}
	}
}
