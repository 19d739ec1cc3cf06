package config

const (
	defaultConfigPath            = "~/.config/mux/config.toml"
	defaultStateFile             = "~/.mux_config.json"
	defaultLogDir                = "~/.local/share/mux/logs"
	defaultSocketName            = "mux.sock"
	defaultJournalName           = "journal.db"
	defaultAPIBind               = "127.0.0.1:7489"
	defaultPulseBinary           = "pactl"
	defaultCommandTimeoutMS      = 3000
	defaultUserLatencyMS         = 40
	defaultStreamLatencyMS       = 60
	defaultMicLatencyMS          = 40
	defaultSettleMS              = 300
	defaultDeviceSettleMS        = 100
	defaultStreamDefaultsDelayMS = 150
	defaultPollIntervalMS        = 1000
	defaultSaveDebounceMS        = 500
	defaultVolumeStep            = 5
	defaultHotplugSettleMS       = 1500
	defaultJournalRetentionDays  = 30
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateFile: defaultStateFile,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		Pulse: Pulse{
			Binary:           defaultPulseBinary,
			CommandTimeoutMS: defaultCommandTimeoutMS,
		},
		Routing: Routing{
			UserLatencyMS:         defaultUserLatencyMS,
			StreamLatencyMS:       defaultStreamLatencyMS,
			MicLatencyMS:          defaultMicLatencyMS,
			SettleMS:              defaultSettleMS,
			DeviceSettleMS:        defaultDeviceSettleMS,
			StreamDefaultsDelayMS: defaultStreamDefaultsDelayMS,
		},
		Sync: Sync{
			PollIntervalMS: defaultPollIntervalMS,
			SaveDebounceMS: defaultSaveDebounceMS,
		},
		Hotkeys: Hotkeys{
			VolumeStep: defaultVolumeStep,
		},
		Hotplug: Hotplug{
			Enabled:  true,
			SettleMS: defaultHotplugSettleMS,
		},
		Journal: Journal{
			Enabled:       true,
			RetentionDays: defaultJournalRetentionDays,
		},
		Metrics: Metrics{
			Enabled: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
