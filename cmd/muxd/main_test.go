package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigSocketOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	path := filepath.Join(dir, "config.toml")
	content := "[paths]\nlog_dir = \"" + filepath.Join(dir, "logs") + "\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadConfig(daemonFlags{config: path})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if want := filepath.Join(dir, "logs", "mux.sock"); cfg.Paths.SocketPath != want {
		t.Fatalf("socket = %q, want %q", cfg.Paths.SocketPath, want)
	}

	override := filepath.Join(dir, "other.sock")
	cfg, err = loadConfig(daemonFlags{config: path, socket: override})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Paths.SocketPath != override {
		t.Fatalf("socket = %q, want %q", cfg.Paths.SocketPath, override)
	}
}

func TestRunOptions(t *testing.T) {
	opts := runOptions(daemonFlags{verbose: true, cleanup: true})
	if opts.LogLevel != "debug" || !opts.Cleanup {
		t.Fatalf("opts = %+v", opts)
	}
	if opts := runOptions(daemonFlags{}); opts.LogLevel != "" || opts.Cleanup {
		t.Fatalf("opts = %+v", opts)
	}
}

func TestRootCommandRejectsArgs(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"extra"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected positional args to be rejected")
	}
}
