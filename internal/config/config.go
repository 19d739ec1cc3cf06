package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains file locations and bind addresses.
type Paths struct {
	StateFile   string `toml:"state_file"`
	LogDir      string `toml:"log_dir"`
	SocketPath  string `toml:"socket_path"`
	JournalPath string `toml:"journal_path"`
	APIBind     string `toml:"api_bind"`
	// APIToken, when set, is required as a bearer token on the HTTP API.
	APIToken string `toml:"api_token"`
}

// Pulse contains settings for the external audio-server command surface.
type Pulse struct {
	Binary           string `toml:"binary"`
	CommandTimeoutMS int    `toml:"command_timeout_ms"`
}

// Routing contains latency budgets and settle delays for reconciliation passes.
type Routing struct {
	UserLatencyMS         int `toml:"user_latency_ms"`
	StreamLatencyMS       int `toml:"stream_latency_ms"`
	MicLatencyMS          int `toml:"mic_latency_ms"`
	SettleMS              int `toml:"settle_ms"`
	DeviceSettleMS        int `toml:"device_settle_ms"`
	StreamDefaultsDelayMS int `toml:"stream_defaults_delay_ms"`
}

// Sync contains state synchronizer timing.
type Sync struct {
	PollIntervalMS int `toml:"poll_interval_ms"`
	SaveDebounceMS int `toml:"save_debounce_ms"`
}

// Hotkeys contains hotkey behaviour knobs.
type Hotkeys struct {
	VolumeStep int `toml:"volume_step"`
}

// Hotplug contains udev hot-plug monitoring settings.
type Hotplug struct {
	Enabled  bool `toml:"enabled"`
	SettleMS int  `toml:"settle_ms"`
}

// Journal contains reconciliation journal settings.
type Journal struct {
	Enabled       bool `toml:"enabled"`
	RetentionDays int  `toml:"retention_days"`
}

// Metrics toggles the Prometheus endpoint on the API listener.
type Metrics struct {
	Enabled bool `toml:"enabled"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all daemon settings for mux.
//
// Configuration sections by subsystem:
//   - Paths: state document, logs, control socket, journal, HTTP bind
//   - Pulse: pactl binary and per-command timeout
//   - Routing: link latencies and settle delays around topology changes
//   - Sync: poll interval and debounce for state document writes
//   - Hotkeys: volume step for hotkey actions
//   - Hotplug: udev-triggered re-reconciliation
//   - Journal: SQLite history of reconciliation passes
//   - Metrics: Prometheus endpoint
//   - Logging: log format and level
//
// The mixer state itself (routing intent, bindings, volumes) lives in the
// JSON document at Paths.StateFile and is owned by the store package.
type Config struct {
	Paths   Paths   `toml:"paths"`
	Pulse   Pulse   `toml:"pulse"`
	Routing Routing `toml:"routing"`
	Sync    Sync    `toml:"sync"`
	Hotkeys Hotkeys `toml:"hotkeys"`
	Hotplug Hotplug `toml:"hotplug"`
	Journal Journal `toml:"journal"`
	Metrics Metrics `toml:"metrics"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("mux.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.LogDir, filepath.Dir(c.Paths.StateFile), filepath.Dir(c.Paths.SocketPath)}
	if c.Journal.Enabled {
		dirs = append(dirs, filepath.Dir(c.Paths.JournalPath))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// PactlBinary returns the audio-server control executable name.
func (c *Config) PactlBinary() string {
	if binary := strings.TrimSpace(c.Pulse.Binary); binary != "" {
		return binary
	}
	return defaultPulseBinary
}

// CommandTimeout bounds every external audio-server call.
func (c *Config) CommandTimeout() time.Duration {
	return millis(c.Pulse.CommandTimeoutMS)
}

// PollInterval is the state synchronizer tick period.
func (c *Config) PollInterval() time.Duration {
	return millis(c.Sync.PollIntervalMS)
}

// SaveDebounce is the quiet period before the state document is written.
func (c *Config) SaveDebounce() time.Duration {
	return millis(c.Sync.SaveDebounceMS)
}

// LinkSettle is the wait between the last link creation and unmuting the hardware output.
func (c *Config) LinkSettle() time.Duration {
	return millis(c.Routing.SettleMS)
}

// DeviceSettle is the wait between creating the mic bus and remapping its monitor.
func (c *Config) DeviceSettle() time.Duration {
	return millis(c.Routing.DeviceSettleMS)
}

// StreamDefaultsDelay is the wait before stream link volumes are restored after a pass.
func (c *Config) StreamDefaultsDelay() time.Duration {
	return millis(c.Routing.StreamDefaultsDelayMS)
}

// HotplugSettle is the coalescing window for udev sound events.
func (c *Config) HotplugSettle() time.Duration {
	return millis(c.Hotplug.SettleMS)
}

func millis(v int) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// Sample returns the commented sample configuration.
func Sample() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
