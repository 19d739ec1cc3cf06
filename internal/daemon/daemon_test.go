package daemon_test

import (
	"context"
	"strings"
	"testing"

	"mux/internal/config"
	"mux/internal/daemon"
	"mux/internal/engine"
	"mux/internal/testsupport"
)

func newDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	fake := testsupport.NewFakeServer()
	fake.AddHardwareSink("HW1", "Headphones")
	eng, err := engine.New(engine.Options{Config: cfg, Executor: fake})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	d, err := daemon.New(cfg, eng, nil, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutJournal())
	d := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if !strings.HasSuffix(status.LockFilePath, "muxd.lock") {
		t.Fatalf("unexpected lock path %q", status.LockFilePath)
	}
	if status.JournalPath != "" {
		t.Fatalf("journal path reported while disabled: %q", status.JournalPath)
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonLockExcludesSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutJournal())
	first := newDaemon(t, cfg)
	second := newDaemon(t, cfg)

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	err := second.Start(ctx)
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("second Start err = %v, want lock conflict", err)
	}
}

func TestRequestShutdownIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutJournal())
	d := newDaemon(t, cfg)
	d.RequestShutdown()
	d.RequestShutdown()
	select {
	case <-d.ShutdownRequested():
	default:
		t.Fatal("shutdown channel not closed")
	}
}
