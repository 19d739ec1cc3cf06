package pulse_test

import (
	"testing"

	"mux/internal/pulse"
)

const sinkInputsFixture = `Sink Input #42
	Driver: PipeWire
	Owner Module: 17
	Client: 3
	Sink: 1
	Sample Specification: float32le 2ch 48000Hz
	Mute: no
	Volume: front-left: 65536 / 100% / 0.00 dB,   front-right: 65536 / 100% / 0.00 dB
	Properties:
		media.name = "Link_User_Game"
		node.name = "loopback-17"

Sink Input #57
	Driver: PipeWire
	Owner Module: n/a
	Client: 88
	Sink: 2
	Properties:
		media.name = "Playback"
		application.name = "Firefox"

Sink Input #60
	Owner Module: n/a
	Sink: 2
	Properties:
		application.name = "No Media Name"

Sink Input #61
	Owner Module: n/a
	Sink: 3
	Properties:
		media.name = "Audio"
		application.name = "Spotify"
		application.icon_name = "custom-icon"

Sink Input #62
	Sink: 3
	Properties:
		media.name = "mystery"
`

func TestParseSinkInputs(t *testing.T) {
	inputs := pulse.ParseSinkInputs(sinkInputsFixture)
	if len(inputs) != 4 {
		t.Fatalf("expected 4 records (one dropped for missing media.name), got %d: %#v", len(inputs), inputs)
	}

	link := inputs[0]
	if link.ID != "42" || link.OwnerModule != "17" || link.SinkID != "1" || link.MediaName != "Link_User_Game" {
		t.Fatalf("unexpected link record: %#v", link)
	}
	if link.AppName != pulse.UnknownApp || link.IconName != pulse.DefaultIcon {
		t.Fatalf("expected unknown app defaults, got %#v", link)
	}

	firefox := inputs[1]
	if firefox.ID != "57" || firefox.OwnerModule != "" || firefox.AppName != "Firefox" || firefox.IconName != "firefox" {
		t.Fatalf("unexpected firefox record: %#v", firefox)
	}

	if inputs[2].IconName != "custom-icon" {
		t.Fatalf("expected explicit icon to win, got %q", inputs[2].IconName)
	}
	if inputs[3].ID != "62" || inputs[3].AppName != pulse.UnknownApp {
		t.Fatalf("unexpected trailing record: %#v", inputs[3])
	}
}

func TestParseShortList(t *testing.T) {
	output := "1\tGame\tmodule-null-sink.c\ts16le 2ch 44100Hz\tSUSPENDED\n" +
		"2\talsa_output.pci.analog-stereo\tmodule-alsa-card.c\ts16le 2ch 44100Hz\tRUNNING\n" +
		"garbage line\n\n"
	entries := pulse.ParseShortList(output)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ID != "1" || entries[0].Name != "Game" || entries[0].State != "SUSPENDED" {
		t.Fatalf("unexpected first entry: %#v", entries[0])
	}
	if entries[1].Driver != "module-alsa-card.c" {
		t.Fatalf("unexpected driver: %q", entries[1].Driver)
	}
}

func TestParseModules(t *testing.T) {
	output := "17\tmodule-loopback\tsource=Game.monitor sink=hw latency_msec=40\n" +
		"18\tmodule-null-sink\tsink_name=Stream_Mix sink_properties=\"device.description='Stream Mix'\"\n" +
		"19\tmodule-native-protocol-unix\t\n"
	modules := pulse.ParseModules(output)
	if len(modules) != 3 {
		t.Fatalf("expected 3 modules, got %d", len(modules))
	}
	if modules[1].Name != "module-null-sink" || modules[1].Args == "" {
		t.Fatalf("unexpected module: %#v", modules[1])
	}
	if modules[2].Args != "" {
		t.Fatalf("expected empty args, got %q", modules[2].Args)
	}
}

func TestParseDevices(t *testing.T) {
	output := `Sink #1
	State: SUSPENDED
	Name: Game
	Description: Game
	Driver: module-null-sink.c

Sink #2
	State: RUNNING
	Name: alsa_output.usb-headset
	Description: USB Headset Analog Stereo

Sink #3
	State: RUNNING
	Name: bare_sink
`
	devices := pulse.ParseDevices(output, "Sink #")
	if len(devices) != 3 {
		t.Fatalf("expected 3 devices, got %d", len(devices))
	}
	if devices[1].ID != "2" || devices[1].Description != "USB Headset Analog Stereo" {
		t.Fatalf("unexpected device: %#v", devices[1])
	}
	if devices[2].Description != "bare_sink" {
		t.Fatalf("expected description to fall back to name, got %q", devices[2].Description)
	}
}

func TestParseVolumeAndMute(t *testing.T) {
	v, ok := pulse.ParseVolume("Volume: front-left: 42598 /  65% / -11.23 dB,   front-right: 42598 /  65% / -11.23 dB\n        balance 0.00\n")
	if !ok || v != 65 {
		t.Fatalf("ParseVolume = %d, %v", v, ok)
	}
	if _, ok := pulse.ParseVolume("Failed to get sink input volume"); ok {
		t.Fatal("expected no volume")
	}

	cases := map[string]struct {
		muted bool
		ok    bool
	}{
		"Mute: yes\n": {true, true},
		"Mute: no":    {false, true},
		"":            {false, false},
		"Mute: maybe": {false, false},
	}
	for input, want := range cases {
		muted, ok := pulse.ParseMute(input)
		if muted != want.muted || ok != want.ok {
			t.Fatalf("ParseMute(%q) = %v, %v; want %v, %v", input, muted, ok, want.muted, want.ok)
		}
	}
}

func TestIconFor(t *testing.T) {
	cases := map[string]string{
		"Brave Browser":  "brave-browser",
		"discord":        "discord",
		"Google Chrome":  "google-chrome",
		"Spotify":        "spotify-client",
		"mpv":            pulse.DefaultIcon,
		pulse.UnknownApp: pulse.DefaultIcon,
	}
	for app, want := range cases {
		if got := pulse.IconFor(app); got != want {
			t.Fatalf("IconFor(%q) = %q, want %q", app, got, want)
		}
	}
}

func TestParseServerInfo(t *testing.T) {
	out := `Server String: /run/user/1000/pulse/native
Library Protocol Version: 35
Server Name: PulseAudio (on PipeWire 1.0.5)
Server Version: 15.0.0
Default Sink: alsa_output.usb-headset
Default Source: alsa_input.usb-headset
Cookie: 1234:abcd
`
	info := pulse.ParseServerInfo(out)
	if info.ServerName != "PulseAudio (on PipeWire 1.0.5)" || info.ServerVersion != "15.0.0" {
		t.Fatalf("server = %+v", info)
	}
	if info.DefaultSink != "alsa_output.usb-headset" || info.DefaultSource != "alsa_input.usb-headset" {
		t.Fatalf("defaults = %+v", info)
	}
}
