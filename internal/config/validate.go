package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePulse(); err != nil {
		return err
	}
	if err := c.validateRouting(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateHotkeys(); err != nil {
		return err
	}
	if err := c.validateHotplug(); err != nil {
		return err
	}
	if err := c.validateJournal(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePulse() error {
	if c.Pulse.CommandTimeoutMS <= 0 {
		return errors.New("pulse.command_timeout_ms must be positive")
	}
	return nil
}

func (c *Config) validateRouting() error {
	latencies := []struct {
		name  string
		value int
	}{
		{"routing.user_latency_ms", c.Routing.UserLatencyMS},
		{"routing.stream_latency_ms", c.Routing.StreamLatencyMS},
		{"routing.mic_latency_ms", c.Routing.MicLatencyMS},
	}
	for _, l := range latencies {
		if l.value <= 0 {
			return fmt.Errorf("%s must be positive", l.name)
		}
	}
	if c.Routing.SettleMS < 0 {
		return errors.New("routing.settle_ms must be >= 0")
	}
	if c.Routing.DeviceSettleMS < 0 {
		return errors.New("routing.device_settle_ms must be >= 0")
	}
	if c.Routing.StreamDefaultsDelayMS < 0 {
		return errors.New("routing.stream_defaults_delay_ms must be >= 0")
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.PollIntervalMS <= 0 {
		return errors.New("sync.poll_interval_ms must be positive")
	}
	if c.Sync.SaveDebounceMS < 0 {
		return errors.New("sync.save_debounce_ms must be >= 0")
	}
	return nil
}

func (c *Config) validateHotkeys() error {
	if c.Hotkeys.VolumeStep <= 0 || c.Hotkeys.VolumeStep > 100 {
		return errors.New("hotkeys.volume_step must be between 1 and 100")
	}
	return nil
}

func (c *Config) validateHotplug() error {
	if c.Hotplug.Enabled && c.Hotplug.SettleMS < 0 {
		return errors.New("hotplug.settle_ms must be >= 0")
	}
	return nil
}

func (c *Config) validateJournal() error {
	if c.Journal.Enabled && c.Journal.RetentionDays <= 0 {
		return errors.New("journal.retention_days must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
