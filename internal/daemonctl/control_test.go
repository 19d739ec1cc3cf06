package daemonctl_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mux/internal/daemonctl"
	"mux/internal/deps"
	"mux/internal/preflight"
	"mux/internal/testsupport"
)

func TestDeriveLogDir(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	tests := []struct {
		name     string
		lockPath string
		logPath  string
		want     string
	}{
		{name: "lock path wins", lockPath: "/a/muxd.lock", logPath: "/b/mux.log", want: "/a"},
		{name: "log path", logPath: "/b/mux.log", want: "/b"},
		{name: "config fallback", want: cfg.Paths.LogDir},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := daemonctl.DeriveLogDir(tt.lockPath, tt.logPath, cfg); got != tt.want {
				t.Fatalf("DeriveLogDir() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestForceKillProcessRejectsSelf(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, daemonctl.PIDFileName)
	if err := os.WriteFile(pidPath, []byte("  "), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := daemonctl.ForceKillProcess(pidPath, "", os.Getpid()); err == nil || !strings.Contains(err.Error(), "refusing") {
		t.Fatalf("expected refusal, got %v", err)
	}
}

func TestForceKillProcessWithoutPID(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), daemonctl.PIDFileName)
	if _, err := daemonctl.ForceKillProcess(pidPath, "", 0); err == nil {
		t.Fatal("expected error when no pid is known")
	}
}

func TestStopAndTerminateWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, err := daemonctl.StopAndTerminate(filepath.Join(t.TempDir(), "absent.sock"), cfg, time.Second)
	if !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("err = %v, want ErrDaemonNotRunning", err)
	}
}

func TestProcessInfoWithoutDaemon(t *testing.T) {
	alive, pid, err := daemonctl.ProcessInfo(filepath.Join(t.TempDir(), "absent.sock"))
	if err != nil || alive || pid != 0 {
		t.Fatalf("ProcessInfo() = %v, %d, %v", alive, pid, err)
	}
}

func TestWaitForShutdownWithoutDaemon(t *testing.T) {
	if err := daemonctl.WaitForShutdown(filepath.Join(t.TempDir(), "absent.sock"), time.Second); err != nil {
		t.Fatalf("WaitForShutdown: %v", err)
	}
}

func TestBuildDependencySummary(t *testing.T) {
	empty := daemonctl.BuildDependencySummary(nil)
	if empty.Severity != "info" {
		t.Fatalf("empty summary = %+v", empty)
	}

	summary := daemonctl.BuildDependencySummary([]deps.Status{
		{Name: "pactl", Available: true},
		{Name: "extra", Optional: true},
	})
	if summary.Severity != "warn" || summary.Available != 1 || summary.MissingOptional != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.Detail != "1/2 available (missing: 0 required, 1 optional)" {
		t.Fatalf("detail = %q", summary.Detail)
	}

	missing := daemonctl.BuildDependencySummary([]deps.Status{{Name: "pactl"}})
	if missing.Severity != "error" || missing.MissingRequired != 1 {
		t.Fatalf("summary = %+v", missing)
	}
}

func TestBuildSystemChecks(t *testing.T) {
	up := preflight.ServerProbe{Reachable: true, SocketOK: true}
	lines := daemonctl.BuildSystemChecks(true, false, true, up)
	if len(lines) != 4 {
		t.Fatalf("lines = %+v", lines)
	}
	if lines[0].Severity != "ok" || lines[1].Label != "Audio Server" || lines[1].Severity != "ok" {
		t.Fatalf("lines = %+v", lines)
	}
	if lines[3].Label != "Hot-plug" || lines[3].Severity != "warn" {
		t.Fatalf("hot-plug line = %+v", lines[3])
	}

	down := daemonctl.BuildSystemChecks(false, false, false, preflight.ServerProbe{Socket: "/nope"})
	if len(down) != 3 || down[1].Severity != "error" || down[2].Detail != "Disabled" {
		t.Fatalf("lines = %+v", down)
	}
}
