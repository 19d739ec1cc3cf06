// Package naming encodes link identity into loopback stream names so the
// daemon can recognise its own links after a restart. The server assigns new
// numeric ids on every run; the name is the only durable handle.
//
// Grammar: "Link_" category "_" target, exactly three "_"-separated
// segments. For category Mic the target is a sub-route (Chat or Stream), not
// a channel: Link_Mic_Chat feeds the public microphone that chat applications
// record from, and Link_Mic_Stream feeds the stream mix. The token "Chat" is
// therefore shared with the Chat channel on purpose.
package naming

import "strings"

// Prefix marks every protocol-owned link.
const Prefix = "Link_"

// Category is the first segment after the prefix.
type Category string

const (
	CategoryUser   Category = "User"
	CategoryStream Category = "Stream"
	CategoryMic    Category = "Mic"
)

// Mic sub-route targets.
const (
	MicTargetChat   = "Chat"
	MicTargetStream = "Stream"
)

// Device names owned by the provisioner.
const (
	DeviceGame         = "Game"
	DeviceChat         = "Chat"
	DeviceMedia        = "Media"
	DeviceStreamMix    = "Stream_Mix"
	DeviceMicBus       = "Internal_Mic_Processing"
	DeviceMicPublic    = "Mux_Mic"
	MicPublicLabel     = "Mux Mic"
	StreamMixLabel     = "Stream Mix"
	MicBusLabel        = "INTERNAL"
	MicPublicIcon      = "audio-input-microphone"
	monitorSuffix      = ".monitor"
	linkSegmentCount   = 3
	segmentSeparator   = "_"
	internalNameMarker = "Internal"
)

// ChannelDevices lists the per-channel sinks in display order.
var ChannelDevices = []string{DeviceGame, DeviceChat, DeviceMedia}

// LinkName identifies one managed link.
type LinkName struct {
	Category Category
	Target   string
}

// String encodes the link name.
func (n LinkName) String() string {
	return Prefix + string(n.Category) + segmentSeparator + n.Target
}

// Encode is shorthand for LinkName{category, target}.String().
func Encode(category Category, target string) string {
	return LinkName{Category: category, Target: target}.String()
}

// Parse decodes a protocol-owned name. Any other shape returns false.
func Parse(name string) (LinkName, bool) {
	if !strings.HasPrefix(name, Prefix) {
		return LinkName{}, false
	}
	parts := strings.Split(name, segmentSeparator)
	if len(parts) != linkSegmentCount {
		return LinkName{}, false
	}
	category := Category(parts[1])
	target := parts[2]
	if target == "" {
		return LinkName{}, false
	}
	switch category {
	case CategoryUser, CategoryStream:
		if !IsChannelDevice(target) {
			return LinkName{}, false
		}
	case CategoryMic:
		if target != MicTargetChat && target != MicTargetStream {
			return LinkName{}, false
		}
	default:
		return LinkName{}, false
	}
	return LinkName{Category: category, Target: target}, true
}

// IsOwned reports whether a stream name belongs to the protocol's namespace.
// Ownership is decided by prefix and segment count alone, so a stale link
// from an older build with an unknown category is still torn down.
func IsOwned(name string) bool {
	return strings.HasPrefix(name, Prefix) && len(strings.Split(name, segmentSeparator)) == linkSegmentCount
}

// IsChannelDevice reports whether name is one of the per-channel sinks.
func IsChannelDevice(name string) bool {
	for _, dev := range ChannelDevices {
		if dev == name {
			return true
		}
	}
	return false
}

// Monitor returns the monitor source name of a sink.
func Monitor(sink string) string {
	return sink + monitorSuffix
}

// IsVirtualSink reports whether a sink name belongs to the daemon or is
// internal plumbing that must never be offered as a hardware output.
func IsVirtualSink(name string) bool {
	return IsChannelDevice(name) ||
		strings.Contains(name, DeviceStreamMix) ||
		strings.Contains(name, DeviceMicBus) ||
		strings.Contains(name, internalNameMarker)
}

// IsVirtualSource reports whether a source name must not be offered as a
// hardware input.
func IsVirtualSource(name string) bool {
	return strings.Contains(name, DeviceMicPublic) ||
		strings.HasSuffix(name, monitorSuffix) ||
		strings.Contains(name, internalNameMarker)
}
