package pulse

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	// UnknownApp is the display name used when a stream has no application.name.
	UnknownApp = "Unknown"
	// DefaultIcon is the icon hint used when nothing better is known.
	DefaultIcon = "audio-card"
)

var (
	percentPattern  = regexp.MustCompile(`(\d+)%`)
	propertyPattern = regexp.MustCompile(`^([A-Za-z0-9_.\-]+) = "(.*)"$`)
)

var iconHints = []struct {
	needle string
	icon   string
}{
	{"brave", "brave-browser"},
	{"discord", "discord"},
	{"firefox", "firefox"},
	{"chrome", "google-chrome"},
	{"spotify", "spotify-client"},
}

// ParseShortList parses "pactl list short sinks|sources" output.
func ParseShortList(output string) []ShortEntry {
	var entries []ShortEntry
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) < 2 {
			continue
		}
		entry := ShortEntry{ID: strings.TrimSpace(parts[0]), Name: strings.TrimSpace(parts[1])}
		if entry.ID == "" || entry.Name == "" {
			continue
		}
		if len(parts) > 2 {
			entry.Driver = strings.TrimSpace(parts[2])
		}
		if len(parts) > 4 {
			entry.State = strings.TrimSpace(parts[4])
		}
		entries = append(entries, entry)
	}
	return entries
}

// ParseModules parses "pactl list short modules" output.
func ParseModules(output string) []Module {
	var modules []Module
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) < 2 {
			continue
		}
		mod := Module{ID: strings.TrimSpace(parts[0]), Name: strings.TrimSpace(parts[1])}
		if mod.ID == "" {
			continue
		}
		if len(parts) == 3 {
			mod.Args = strings.TrimSpace(parts[2])
		}
		modules = append(modules, mod)
	}
	return modules
}

// ParseDevices parses "pactl list sinks|sources" verbose output. header is the
// record prefix, "Sink #" or "Source #".
func ParseDevices(output, header string) []Device {
	var devices []Device
	for _, block := range splitBlocks(output, header) {
		dev := Device{ID: block.id}
		for _, line := range block.lines {
			trimmed := strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(trimmed, "Name:"):
				dev.Name = strings.TrimSpace(strings.TrimPrefix(trimmed, "Name:"))
			case strings.HasPrefix(trimmed, "Description:"):
				dev.Description = strings.TrimSpace(strings.TrimPrefix(trimmed, "Description:"))
			}
		}
		if dev.Name == "" {
			continue
		}
		if dev.Description == "" {
			dev.Description = dev.Name
		}
		devices = append(devices, dev)
	}
	return devices
}

// ParseSinkInputs parses "pactl list sink-inputs" verbose output. Blocks
// without a media.name property are dropped.
func ParseSinkInputs(output string) []SinkInput {
	var inputs []SinkInput
	for _, block := range splitBlocks(output, "Sink Input #") {
		in := SinkInput{ID: block.id}
		props := map[string]string{}
		for _, line := range block.lines {
			trimmed := strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(trimmed, "Owner Module:"):
				in.OwnerModule = strings.TrimSpace(strings.TrimPrefix(trimmed, "Owner Module:"))
			case strings.HasPrefix(trimmed, "Sink:"):
				in.SinkID = strings.TrimSpace(strings.TrimPrefix(trimmed, "Sink:"))
			default:
				if m := propertyPattern.FindStringSubmatch(trimmed); m != nil {
					if _, seen := props[m[1]]; !seen {
						props[m[1]] = m[2]
					}
				}
			}
		}
		in.MediaName = props["media.name"]
		if in.MediaName == "" {
			continue
		}
		if in.OwnerModule == "n/a" {
			in.OwnerModule = ""
		}
		in.AppName = props["application.name"]
		if in.AppName == "" {
			in.AppName = UnknownApp
		}
		in.IconName = props["application.icon_name"]
		if in.IconName == "" {
			in.IconName = IconFor(in.AppName)
		}
		inputs = append(inputs, in)
	}
	return inputs
}

// IconFor guesses an icon hint from an application name.
func IconFor(appName string) string {
	lower := strings.ToLower(appName)
	for _, hint := range iconHints {
		if strings.Contains(lower, hint.needle) {
			return hint.icon
		}
	}
	return DefaultIcon
}

// ParseVolume extracts the first channel percentage from a get-*-volume reply.
func ParseVolume(output string) (int, bool) {
	m := percentPattern.FindStringSubmatch(output)
	if m == nil {
		return 0, false
	}
	value, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return value, true
}

// ParseMute interprets a get-*-mute reply ("Mute: yes").
func ParseMute(output string) (bool, bool) {
	trimmed := strings.ToLower(strings.TrimSpace(output))
	if trimmed == "" {
		return false, false
	}
	trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "mute:"))
	switch trimmed {
	case "yes", "1", "true":
		return true, true
	case "no", "0", "false":
		return false, true
	}
	return false, false
}

type rawBlock struct {
	id    string
	lines []string
}

func splitBlocks(output, header string) []rawBlock {
	var blocks []rawBlock
	var current *rawBlock
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, header) {
			id := strings.TrimSpace(strings.TrimPrefix(line, header))
			if isDigits(id) {
				blocks = append(blocks, rawBlock{id: id})
				current = &blocks[len(blocks)-1]
				continue
			}
			current = nil
			continue
		}
		if current != nil {
			current.lines = append(current.lines, line)
		}
	}
	return blocks
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ParseServerInfo reads the "Key: value" lines of "pactl info". Unknown keys
// are ignored.
func ParseServerInfo(output string) ServerInfo {
	var info ServerInfo
	for _, line := range strings.Split(output, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "Server Name":
			info.ServerName = value
		case "Server Version":
			info.ServerVersion = value
		case "Default Sink":
			info.DefaultSink = value
		case "Default Source":
			info.DefaultSource = value
		}
	}
	return info
}
