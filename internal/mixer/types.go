package mixer

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"mux/internal/naming"
)

// Channel is one of the fixed mixer strips.
type Channel string

const (
	Game  Channel = "Game"
	Chat  Channel = "Chat"
	Media Channel = "Media"
	Mic   Channel = "Mic"
)

// AllChannels lists every channel in display order.
var AllChannels = []Channel{Game, Chat, Media, Mic}

var titleCaser = cases.Title(language.English)

// ParseChannel accepts any casing of a channel name.
func ParseChannel(value string) (Channel, error) {
	normalized := Channel(titleCaser.String(strings.ToLower(strings.TrimSpace(value))))
	for _, ch := range AllChannels {
		if ch == normalized {
			return ch, nil
		}
	}
	return "", fmt.Errorf("unknown channel %q", value)
}

// HasDevice reports whether the channel owns a virtual sink. Mic does not; it
// is fed from the selected hardware input.
func (c Channel) HasDevice() bool {
	return naming.IsChannelDevice(string(c))
}

// Track selects the user-audible or stream-audible path of a channel.
type Track string

const (
	TrackUser   Track = "user"
	TrackStream Track = "stream"
)

// ParseTrack accepts "user" or "stream" in any casing; empty means user.
func ParseTrack(value string) (Track, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "user":
		return TrackUser, nil
	case "stream":
		return TrackStream, nil
	}
	return "", fmt.Errorf("unknown track %q", value)
}

// LinkFor maps a channel track onto its link name. Mic's user track is the
// Mic->Chat sub-route.
func LinkFor(ch Channel, track Track) naming.LinkName {
	if ch == Mic {
		if track == TrackStream {
			return naming.LinkName{Category: naming.CategoryMic, Target: naming.MicTargetStream}
		}
		return naming.LinkName{Category: naming.CategoryMic, Target: naming.MicTargetChat}
	}
	if track == TrackStream {
		return naming.LinkName{Category: naming.CategoryStream, Target: string(ch)}
	}
	return naming.LinkName{Category: naming.CategoryUser, Target: string(ch)}
}

// ChannelTrackFor is the inverse of LinkFor.
func ChannelTrackFor(name naming.LinkName) (Channel, Track, bool) {
	switch name.Category {
	case naming.CategoryMic:
		switch name.Target {
		case naming.MicTargetChat:
			return Mic, TrackUser, true
		case naming.MicTargetStream:
			return Mic, TrackStream, true
		}
	case naming.CategoryUser:
		if naming.IsChannelDevice(name.Target) {
			return Channel(name.Target), TrackUser, true
		}
	case naming.CategoryStream:
		if naming.IsChannelDevice(name.Target) {
			return Channel(name.Target), TrackStream, true
		}
	}
	return "", "", false
}

// Action is a hotkey action. Values double as the persisted JSON keys.
type Action string

const (
	ActionUp         Action = "up"
	ActionDown       Action = "down"
	ActionMute       Action = "mute"
	ActionStreamUp   Action = "stream_up"
	ActionStreamDown Action = "stream_down"
	ActionStreamMute Action = "stream_mute"
)

// AllActions lists actions in persisted-document order.
var AllActions = []Action{ActionUp, ActionDown, ActionMute, ActionStreamUp, ActionStreamDown, ActionStreamMute}

// ParseAction validates an action name.
func ParseAction(value string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range AllActions {
		if known == a {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", value)
}

// IsStream reports whether the action targets the stream track.
func (a Action) IsStream() bool {
	return strings.HasPrefix(string(a), "stream_")
}

// Track returns the track an action applies to.
func (a Action) Track() Track {
	if a.IsStream() {
		return TrackStream
	}
	return TrackUser
}

// Delta returns the signed volume change for a volume action, 0 for mutes.
func (a Action) Delta(step int) int {
	switch a {
	case ActionUp, ActionStreamUp:
		return step
	case ActionDown, ActionStreamDown:
		return -step
	}
	return 0
}

// AttachedApp is a third-party stream currently playing into a channel.
type AttachedApp struct {
	DisplayName string `json:"display_name"`
	InputID     string `json:"input_id"`
	IconHint    string `json:"icon_hint"`
}

// RoutingIntent is the sole input of a reconciliation pass.
type RoutingIntent struct {
	Output       string `json:"selected_output,omitempty"`
	Input        string `json:"selected_input,omitempty"`
	StreamerMode bool   `json:"streamer_mode"`
}

// DeviceKind distinguishes sinks from sources.
type DeviceKind string

const (
	KindSink   DeviceKind = "sink"
	KindSource DeviceKind = "source"
)

// DevicePurpose records why a virtual device exists.
type DevicePurpose string

const (
	PurposeChannelOutput DevicePurpose = "channel_output"
	PurposeStreamMix     DevicePurpose = "stream_mix"
	PurposeMicBus        DevicePurpose = "mic_processing_bus"
	PurposeMicPublic     DevicePurpose = "mic_public"
)

// VirtualDevice is a server-side node the daemon provisions, known by name only.
type VirtualDevice struct {
	Name        string
	Description string
	Kind        DeviceKind
	Purpose     DevicePurpose
}

// HotkeyBinding maps a key combo to a channel action. An empty combo is unbound.
type HotkeyBinding struct {
	Channel Channel `json:"channel"`
	Action  Action  `json:"action"`
	Combo   string  `json:"combo"`
}

// Clamp limits a volume to [0, 100].
func Clamp(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
