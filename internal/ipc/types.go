package ipc

import (
	"mux/internal/deps"
	"mux/internal/dispatch"
	"mux/internal/engine"
	"mux/internal/journal"
	"mux/internal/mixer"
	"mux/internal/pulse"
	"mux/internal/routing"
)

// serviceName prefixes every RPC method.
const serviceName = "Mux"

// Empty is used by calls that take or return nothing.
type Empty struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusResponse combines daemon and mixer state.
type StatusResponse struct {
	Running          bool                 `json:"running"`
	PID              int                  `json:"pid"`
	LockPath         string               `json:"lock_path"`
	SocketPath       string               `json:"socket_path"`
	JournalPath      string               `json:"journal_path"`
	LogPath          string               `json:"log_path"`
	StatePath        string               `json:"state_path"`
	HotplugMonitored bool                 `json:"hotplug_monitored"`
	Intent           mixer.RoutingIntent  `json:"intent"`
	Channels         []mixer.ChannelState `json:"channels"`
	Hotkeys          engine.HotkeyStatus  `json:"hotkeys"`
	LastPass         *routing.Result      `json:"last_pass,omitempty"`
	LinksResolved    int                  `json:"links_resolved"`
	Dependencies     []deps.Status        `json:"dependencies"`
}

// VolumeRequest sets or adjusts a track. Track defaults to user.
type VolumeRequest struct {
	Channel string `json:"channel"`
	Track   string `json:"track"`
	Value   int    `json:"value"`
	// Relative treats Value as a delta.
	Relative bool `json:"relative"`
}

// MuteRequest toggles a track's mute flag.
type MuteRequest struct {
	Channel string `json:"channel"`
	Track   string `json:"track"`
}

// MoveRequest attaches a third-party stream to a channel.
type MoveRequest struct {
	InputID string `json:"input_id"`
	Channel string `json:"channel"`
}

// OutcomeResponse reports what a volume, mute, or move command did.
type OutcomeResponse struct {
	Outcome dispatch.Outcome `json:"outcome"`
}

// ModeRequest sets streamer mode. Toggle ignores Enabled.
type ModeRequest struct {
	Enabled bool `json:"enabled"`
	Toggle  bool `json:"toggle"`
}

// DevicesRequest selects hardware. Empty names clear the selection.
type DevicesRequest struct {
	Output string `json:"output"`
	Input  string `json:"input"`
}

// ReconcileRequest re-applies the current intent.
type ReconcileRequest struct {
	Reason string `json:"reason"`
}

// PassResponse carries the result of a reconciliation pass.
type PassResponse struct {
	Result routing.Result `json:"result"`
}

// HardwareResponse lists selectable hardware.
type HardwareResponse struct {
	Outputs []pulse.Device `json:"outputs"`
	Inputs  []pulse.Device `json:"inputs"`
}

// BindRequest binds a combo to a channel action. An empty combo unbinds.
type BindRequest struct {
	Channel string `json:"channel"`
	Action  string `json:"action"`
	Combo   string `json:"combo"`
}

// BindResponse echoes the stored binding.
type BindResponse struct {
	Binding mixer.HotkeyBinding `json:"binding"`
}

// TriggerRequest injects a key combo.
type TriggerRequest struct {
	Combo string `json:"combo"`
}

// TriggerResponse reports how many bindings ran.
type TriggerResponse struct {
	Fired int `json:"fired"`
}

// HotkeysResponse lists bindings and listener state.
type HotkeysResponse struct {
	Hotkeys engine.HotkeyStatus `json:"hotkeys"`
}

// InteractionRequest marks a slider drag. An empty channel with App set
// reports an application drag instead.
type InteractionRequest struct {
	Channel string `json:"channel"`
	Track   string `json:"track"`
	App     bool   `json:"app"`
	Active  bool   `json:"active"`
}

// HistoryRequest limits journal listings.
type HistoryRequest struct {
	Limit int `json:"limit"`
}

// HistoryResponse lists journaled passes, newest first.
type HistoryResponse struct {
	Passes []journal.Pass `json:"passes"`
}

// EventsResponse lists journaled drift and hot-plug events, newest first.
type EventsResponse struct {
	Events []journal.Event `json:"events"`
}

// LogTailRequest fetches daemon log lines.
type LogTailRequest struct {
	Offset     int64  `json:"offset"`
	Limit      int    `json:"limit"`
	Follow     bool   `json:"follow"`
	WaitMillis int    `json:"wait_millis"`
	Component  string `json:"component"`
}

// LogTailResponse carries log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}
