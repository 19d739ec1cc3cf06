package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"mux/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	if cfg.Paths.StateFile != filepath.Join(tempHome, ".mux_config.json") {
		t.Fatalf("unexpected state file: %q", cfg.Paths.StateFile)
	}
	wantLogDir := filepath.Join(tempHome, ".local", "share", "mux", "logs")
	if cfg.Paths.LogDir != wantLogDir {
		t.Fatalf("unexpected log dir: got %q want %q", cfg.Paths.LogDir, wantLogDir)
	}
	if cfg.Paths.SocketPath != filepath.Join(wantLogDir, "mux.sock") {
		t.Fatalf("unexpected socket path: %q", cfg.Paths.SocketPath)
	}
	if cfg.Paths.JournalPath != filepath.Join(wantLogDir, "journal.db") {
		t.Fatalf("unexpected journal path: %q", cfg.Paths.JournalPath)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7489" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.PactlBinary() != "pactl" {
		t.Fatalf("unexpected pactl binary: %q", cfg.PactlBinary())
	}
	if cfg.PollInterval() != time.Second {
		t.Fatalf("unexpected poll interval: %s", cfg.PollInterval())
	}
	if cfg.SaveDebounce() != 500*time.Millisecond {
		t.Fatalf("unexpected save debounce: %s", cfg.SaveDebounce())
	}
	if cfg.Routing.UserLatencyMS != 40 || cfg.Routing.StreamLatencyMS != 60 || cfg.Routing.MicLatencyMS != 40 {
		t.Fatalf("unexpected latencies: %+v", cfg.Routing)
	}
	if cfg.Hotkeys.VolumeStep != 5 {
		t.Fatalf("unexpected volume step: %d", cfg.Hotkeys.VolumeStep)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "mux.toml")

	type payload struct {
		Paths struct {
			StateFile string `toml:"state_file"`
			APIBind   string `toml:"api_bind"`
		} `toml:"paths"`
		Routing struct {
			StreamLatencyMS int `toml:"stream_latency_ms"`
		} `toml:"routing"`
		Sync struct {
			PollIntervalMS int `toml:"poll_interval_ms"`
		} `toml:"sync"`
	}
	custom := payload{}
	custom.Paths.StateFile = filepath.Join(tempDir, "state.json")
	custom.Paths.APIBind = ""
	custom.Routing.StreamLatencyMS = 80
	custom.Sync.PollIntervalMS = 250
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Paths.StateFile != filepath.Join(tempDir, "state.json") {
		t.Fatalf("expected state file override, got %q", cfg.Paths.StateFile)
	}
	if cfg.Paths.APIBind != "" {
		t.Fatalf("expected empty api bind to disable the API, got %q", cfg.Paths.APIBind)
	}
	if cfg.Routing.StreamLatencyMS != 80 {
		t.Fatalf("expected stream latency 80, got %d", cfg.Routing.StreamLatencyMS)
	}
	if cfg.Routing.UserLatencyMS != 40 {
		t.Fatalf("expected untouched user latency default, got %d", cfg.Routing.UserLatencyMS)
	}
	if cfg.PollInterval() != 250*time.Millisecond {
		t.Fatalf("expected poll interval 250ms, got %s", cfg.PollInterval())
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.toml")
	if err := os.WriteFile(path, []byte("[routing\nuser_latency_ms = "), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "[routing]") {
		t.Fatalf("sample config missing routing section: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if cfg.Pulse.Binary != "pactl" {
		t.Fatalf("expected sample pactl binary, got %q", cfg.Pulse.Binary)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample config does not validate: %v", err)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"command timeout", func(c *config.Config) { c.Pulse.CommandTimeoutMS = 0 }},
		{"user latency", func(c *config.Config) { c.Routing.UserLatencyMS = 0 }},
		{"stream latency", func(c *config.Config) { c.Routing.StreamLatencyMS = -1 }},
		{"settle", func(c *config.Config) { c.Routing.SettleMS = -5 }},
		{"poll interval", func(c *config.Config) { c.Sync.PollIntervalMS = 0 }},
		{"volume step", func(c *config.Config) { c.Hotkeys.VolumeStep = 101 }},
		{"journal retention", func(c *config.Config) { c.Journal.RetentionDays = 0 }},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }},
		{"log level", func(c *config.Config) { c.Logging.Level = "loud" }},
	}
	for _, tc := range cases {
		cfg := config.Default()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.StateFile = filepath.Join(base, "state", "mux.json")
	cfg.Paths.SocketPath = filepath.Join(base, "run", "mux.sock")
	cfg.Paths.JournalPath = filepath.Join(base, "db", "journal.db")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{"logs", "state", "run", "db"} {
		if info, err := os.Stat(filepath.Join(base, dir)); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s to exist: %v", dir, err)
		}
	}
}
