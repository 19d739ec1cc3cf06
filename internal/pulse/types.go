package pulse

// ShortEntry is one row of a flat "list short" listing.
type ShortEntry struct {
	ID     string
	Name   string
	Driver string
	State  string
}

// Device is a sink or source from a verbose listing.
type Device struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// SinkInput is one routed stream attached to a sink.
type SinkInput struct {
	ID          string `json:"id"`
	OwnerModule string `json:"owner_module,omitempty"`
	SinkID      string `json:"sink_id"`
	MediaName   string `json:"media_name"`
	AppName     string `json:"app_name"`
	IconName    string `json:"icon_name"`
}

// Module is a loaded server module.
type Module struct {
	ID   string
	Name string
	Args string
}

// LoopbackSpec describes a loopback module to load.
type LoopbackSpec struct {
	Source    string
	Sink      string
	LatencyMS int
	MediaName string
}

// DeviceProps are the descriptive properties attached to a provisioned device.
type DeviceProps struct {
	Description string
	IconName    string
}

// ServerInfo is the subset of "pactl info" the daemon reports.
type ServerInfo struct {
	ServerName    string `json:"server_name"`
	ServerVersion string `json:"server_version"`
	DefaultSink   string `json:"default_sink"`
	DefaultSource string `json:"default_source"`
}
