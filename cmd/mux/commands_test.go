package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"mux/internal/mixer"
)

func TestStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out := env.run(t, "status")
	requireContains(t, out, "== System Status ==")
	requireContains(t, out, "[OK] Running")
	requireContains(t, out, "== Channels ==")
	requireContains(t, out, "HW1")
	requireContains(t, out, "Game")

	out = env.run(t, "--json", "status")
	var decoded struct {
		Running bool `json:"running"`
		Intent  struct {
			Output string `json:"selected_output"`
		} `json:"intent"`
		SystemChecks []struct {
			Label string `json:"label"`
		} `json:"system_checks"`
	}
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("decode status JSON: %v\n%s", err, out)
	}
	if !decoded.Running || decoded.Intent.Output != "HW1" || len(decoded.SystemChecks) == 0 {
		t.Fatalf("status JSON = %+v", decoded)
	}
}

func TestVolumeAndMuteCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	requireContains(t, env.run(t, "volume", "game", "40"), "Game (user): volume 40")
	requireContains(t, env.run(t, "volume", "game", "--", "-15"), "Game (user): volume 25")
	requireContains(t, env.run(t, "mute", "chat"), ", muted")

	if _, _, err := runCLI(t, []string{"volume", "voice", "10"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected unknown channel to fail")
	}
	if _, _, err := runCLI(t, []string{"volume", "game", "loud"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected invalid volume to fail")
	}

	status := env.daemon.Engine().Status()
	for _, ch := range status.Channels {
		if ch.Channel == mixer.Game && ch.Volume != 25 {
			t.Fatalf("Game volume = %d, want 25", ch.Volume)
		}
	}
}

func TestDevicesCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out := env.run(t, "devices")
	requireContains(t, out, "HW2")
	requireContains(t, out, "USB Microphone")

	requireContains(t, env.run(t, "devices", "select", "--input", "MIC1"), "(device_selection)")
	intent := env.daemon.Engine().Status().Intent
	if intent.Output != "HW1" || intent.Input != "MIC1" {
		t.Fatalf("intent = %+v", intent)
	}

	if _, _, err := runCLI(t, []string{"devices", "select"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected select without flags to fail")
	}
}

func TestMoveAndModeCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	id := env.fake.AddApp("Discord", "Voice", "HW1")
	requireContains(t, env.run(t, "move", id, "chat"), "Moved application "+id+" to Chat")
	if got := env.fake.AppSink(id); got != "Chat" {
		t.Fatalf("app sink = %q, want Chat", got)
	}

	requireContains(t, env.run(t, "mode"), "Streamer mode: off")
	requireContains(t, env.run(t, "mode", "toggle"), "(streamer_mode)")
	requireContains(t, env.run(t, "mode"), "Streamer mode: on")
	if _, _, err := runCLI(t, []string{"mode", "sideways"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected unknown mode to fail")
	}
}

func TestHotkeyCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	requireContains(t, env.run(t, "hotkey", "bind", "game", "down", "ctrl+d"), "Bound <ctrl>+d to Game down")
	requireContains(t, env.run(t, "hotkey", "trigger", "<ctrl>+d"), "Fired 1 binding(s)")
	out := env.run(t, "hotkey", "list")
	requireContains(t, out, "<ctrl>+d")
	requireContains(t, out, "Listener:")
	requireContains(t, env.run(t, "hotkey", "bind", "game", "down"), "Unbound Game down")
	requireContains(t, env.run(t, "hotkey", "list"), "No hotkeys bound")
}

func TestHistoryAndReconcileCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	requireContains(t, env.run(t, "reconcile"), "(manual)")
	out := env.run(t, "history")
	requireContains(t, out, "startup")
	requireContains(t, out, "manual")
}

func TestLogsCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	logPath := env.daemon.LogPath()
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(logPath, []byte("one\ntwo\nthree\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := env.run(t, "logs", "-n", "2")
	if out != "two\nthree\n" {
		t.Fatalf("logs output = %q", out)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	requireContains(t, env.run(t, "config", "validate"), "Configuration valid")

	target := filepath.Join(t.TempDir(), "config.toml")
	requireContains(t, env.run(t, "config", "init", "--path", target), "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected init to refuse overwriting")
	}

	requireContains(t, env.run(t, "config", "show"), "[paths]")
}

func TestCommandsWithoutDaemon(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", "")
	socket := filepath.Join(t.TempDir(), "absent.sock")
	_, _, err := runCLI(t, []string{"volume", "game", "10"}, socket, filepath.Join(t.TempDir(), "none.toml"))
	if err == nil {
		t.Fatal("expected dial failure")
	}
	requireContains(t, err.Error(), "mux start")
}

func TestParseVolumeArg(t *testing.T) {
	tests := []struct {
		raw      string
		value    int
		relative bool
		wantErr  bool
	}{
		{raw: "40", value: 40},
		{raw: "+5", value: 5, relative: true},
		{raw: "-10", value: -10, relative: true},
		{raw: "55%", value: 55},
		{raw: "", wantErr: true},
		{raw: "abc", wantErr: true},
	}
	for _, tt := range tests {
		value, relative, err := parseVolumeArg(tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("parseVolumeArg(%q) expected error", tt.raw)
			}
			continue
		}
		if err != nil || value != tt.value || relative != tt.relative {
			t.Fatalf("parseVolumeArg(%q) = %d, %v, %v", tt.raw, value, relative, err)
		}
	}
}

func TestConfigValidateRejectsBrokenMixerDocument(t *testing.T) {
	env := setupCLITestEnv(t)

	if err := os.WriteFile(env.cfg.Paths.StateFile, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, _, err := runCLI(t, []string{"config", "validate"}, env.socketPath, env.configPath)
	if err == nil {
		t.Fatal("expected validate to fail on a malformed mixer document")
	}
	requireContains(t, err.Error(), "mixer document")
}

func TestConfigInitStdout(t *testing.T) {
	env := setupCLITestEnv(t)
	requireContains(t, env.run(t, "config", "init", "--stdout"), "[paths]")
}
