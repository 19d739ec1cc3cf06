package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mux/internal/config"
	"mux/internal/daemon"
	"mux/internal/engine"
	"mux/internal/ipc"
	"mux/internal/logging"
	"mux/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	fake       *testsupport.FakeServer
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	base := testsupport.BaseDir(cfg)
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	cfg.Paths.APIBind = ""

	configPath := filepath.Join(homeDir, ".config", "mux", "config.toml")
	writeTestConfig(t, configPath, cfg)
	testsupport.WriteFile(t, cfg.Paths.StateFile, `{"selected_output": "HW1"}`)

	fake := testsupport.NewFakeServer()
	fake.AddHardwareSink("HW1", "Headphones")
	fake.AddHardwareSink("HW2", "Speakers")
	fake.AddHardwareSource("MIC1", "USB Microphone")
	fake.AddApp("Firefox", "Playback", "HW1")

	logger := logging.NewNop()
	eng, err := engine.New(engine.Options{
		Config:   cfg,
		Logger:   logger,
		Executor: fake,
		Journal:  testsupport.MustOpenJournal(t, cfg),
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	d, err := daemon.New(cfg, eng, logger, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon.Start: %v", err)
	}
	srv, err := ipc.NewServer(ctx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		cancel()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	env := &cliTestEnv{
		cfg:        cfg,
		fake:       fake,
		daemon:     d,
		server:     srv,
		socketPath: cfg.Paths.SocketPath,
		configPath: configPath,
	}

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})

	return env
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func (env *cliTestEnv) run(t *testing.T, args ...string) string {
	t.Helper()
	out, stderr, err := runCLI(t, args, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("mux %s: %v (stderr: %s)", strings.Join(args, " "), err, stderr)
	}
	return out
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nstate_file = %q\nlog_dir = %q\nsocket_path = %q\njournal_path = %q\napi_bind = \"\"\n\n[hotplug]\nenabled = false\n",
		cfg.Paths.StateFile,
		cfg.Paths.LogDir,
		cfg.Paths.SocketPath,
		cfg.Paths.JournalPath,
	)
	testsupport.WriteFile(t, path, content)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
