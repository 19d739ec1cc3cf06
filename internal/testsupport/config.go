package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"mux/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Settle delays are zeroed so reconciliation tests run instantly; options
// may restore them.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StateFile = filepath.Join(base, "state", "mux_config.json")
	cfgVal.Paths.SocketPath = filepath.Join(base, "logs", "mux.sock")
	cfgVal.Paths.JournalPath = filepath.Join(base, "logs", "journal.db")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Routing.SettleMS = 0
	cfgVal.Routing.DeviceSettleMS = 0
	cfgVal.Routing.StreamDefaultsDelayMS = 0
	cfgVal.Sync.SaveDebounceMS = 20
	cfgVal.Hotplug.Enabled = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithSettle restores a link settle delay in milliseconds.
func WithSettle(ms int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Routing.SettleMS = ms
	}
}

// WithoutJournal disables the SQLite journal.
func WithoutJournal() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Journal.Enabled = false
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, pactl is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"pactl"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.LogDir)
}
