package main

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"mux/internal/daemonctl"
	"mux/internal/deps"
	"mux/internal/mixer"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Mux", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Mux:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Mux", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestDependencyLines(t *testing.T) {
	statuses := []deps.Status{
		{Name: "pactl", Available: false},
		{Name: "pw-cli", Available: true, Command: "pw-cli"},
		{Name: "udev", Available: false, Optional: true, Detail: "netlink unavailable"},
	}
	lines := dependencyLines(statuses, daemonctl.BuildDependencySummary(statuses), false)
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "[ERROR]") || !strings.Contains(lines[0], "Summary") {
		t.Fatalf("expected summary line first, got %q", lines[0])
	}
	if !strings.Contains(lines[1], "[ERROR] not available") {
		t.Fatalf("expected error detail in second line, got %q", lines[1])
	}
	if !strings.Contains(lines[2], "[OK] Ready (command: pw-cli)") {
		t.Fatalf("expected ready detail in third line, got %q", lines[2])
	}
	if !strings.Contains(lines[3], "[WARN] netlink unavailable") {
		t.Fatalf("expected warn detail in fourth line, got %q", lines[3])
	}
	if !strings.Contains(lines[4], "pactl, udev") {
		t.Fatalf("expected missing dependencies summary, got %q", lines[4])
	}
}

func TestChannelRows(t *testing.T) {
	rows := channelRows([]mixer.ChannelState{
		{Channel: mixer.Game, Volume: 40, StreamVolume: 100, Muted: true},
	})
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0][0] != "Game" || rows[0][1] != "40" || rows[0][2] != "yes" {
		t.Fatalf("unexpected row %v", rows[0])
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}
