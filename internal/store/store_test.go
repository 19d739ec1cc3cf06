package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"mux/internal/mixer"
	"mux/internal/services"
	"mux/internal/store"
	"mux/internal/testsupport"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	doc, err := store.Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.StreamerMode || doc.SelectedOutput != nil || doc.SelectedInput != nil {
		t.Fatalf("unexpected defaults: %+v", doc)
	}
	for _, ch := range mixer.AllChannels {
		if len(doc.Hotkeys[string(ch)]) != len(mixer.AllActions) {
			t.Fatalf("channel %s missing default actions", ch)
		}
		if _, ok := doc.UserVolume(ch); ok {
			t.Fatalf("channel %s should have no persisted volume", ch)
		}
	}
}

func TestLoadCorruptFileFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	testsupport.WriteFile(t, path, "{not json")
	doc, err := store.Load(path)
	if err == nil || !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if len(doc.Hotkeys) != len(mixer.AllChannels) {
		t.Fatalf("expected default hotkeys, got %v", doc.Hotkeys)
	}

	s := store.Open(path, store.Options{})
	if got := s.Snapshot().Intent(); got != (mixer.RoutingIntent{}) {
		t.Fatalf("expected empty intent, got %+v", got)
	}
}

func TestDecodeModernDocument(t *testing.T) {
	doc, err := store.Decode([]byte(`{
		"hotkeys": {"Game": {"up": "<ctrl>+<f1>", "down": 7}},
		"selected_output": "alsa_output.usb",
		"selected_input": null,
		"streamer_mode": true,
		"user_volumes": {"Game": 55, "Chat": "30", "Media": "loud", "Mic": null},
		"stream_volumes": {"Game": 20}
	}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	intent := doc.Intent()
	if intent.Output != "alsa_output.usb" || intent.Input != "" || !intent.StreamerMode {
		t.Fatalf("unexpected intent: %+v", intent)
	}
	if doc.Hotkeys["Game"]["up"] != "<ctrl>+<f1>" || doc.Hotkeys["Game"]["down"] != "7" {
		t.Fatalf("unexpected hotkeys: %v", doc.Hotkeys["Game"])
	}
	if doc.Hotkeys["Game"]["stream_mute"] != "" {
		t.Fatal("missing actions should default to empty")
	}
	checks := []struct {
		ch    mixer.Channel
		track mixer.Track
		want  int
		ok    bool
	}{
		{mixer.Game, mixer.TrackUser, 55, true},
		{mixer.Chat, mixer.TrackUser, 30, true},
		{mixer.Media, mixer.TrackUser, 0, false},
		{mixer.Mic, mixer.TrackUser, 0, false},
		{mixer.Game, mixer.TrackStream, 20, true},
		{mixer.Chat, mixer.TrackStream, 0, false},
	}
	for _, c := range checks {
		got, ok := doc.TrackVolume(c.ch, c.track)
		if got != c.want || ok != c.ok {
			t.Fatalf("%s/%s = (%d,%v), want (%d,%v)", c.ch, c.track, got, ok, c.want, c.ok)
		}
	}
}

func TestDecodeLegacyHotkeyMap(t *testing.T) {
	doc, err := store.Decode([]byte(`{"Chat": {"mute": "<ctrl>+m"}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if doc.Hotkeys["Chat"]["mute"] != "<ctrl>+m" {
		t.Fatalf("legacy binding lost: %v", doc.Hotkeys["Chat"])
	}
	if doc.StreamerMode || doc.SelectedOutput != nil {
		t.Fatal("legacy format must leave other fields at defaults")
	}
	if len(doc.Hotkeys["Game"]) != len(mixer.AllActions) {
		t.Fatal("legacy document should gain default channels")
	}
}

func TestDecodePartialDocumentKeepsIntent(t *testing.T) {
	doc, err := store.Decode([]byte(`{"selected_output":"HW1","streamer_mode":true,"user_volumes":{"Game":30}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if doc.SelectedOutput == nil || *doc.SelectedOutput != "HW1" {
		t.Fatalf("selected output = %v, want HW1", doc.SelectedOutput)
	}
	if !doc.StreamerMode {
		t.Fatal("streamer mode lost")
	}
	if got, ok := doc.TrackVolume(mixer.Game, mixer.TrackUser); !ok || got != 30 {
		t.Fatalf("game volume = (%d,%v), want (30,true)", got, ok)
	}
	if _, ok := doc.Hotkeys["selected_output"]; ok {
		t.Fatal("document keys must not be read as channels")
	}
	if len(doc.Hotkeys["Chat"]) != len(mixer.AllActions) {
		t.Fatal("missing hotkeys should fall back to defaults")
	}
}

func TestDecodeMixedDocumentIsCurrentFormat(t *testing.T) {
	doc, err := store.Decode([]byte(`{"stream_volumes":{"Chat":80},"Chat":{"mute":"<ctrl>+m"}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got, ok := doc.TrackVolume(mixer.Chat, mixer.TrackStream); !ok || got != 80 {
		t.Fatalf("chat stream volume = (%d,%v), want (80,true)", got, ok)
	}
	if doc.Hotkeys["Chat"]["mute"] != "" {
		t.Fatal("bare channel key must be ignored in the current format")
	}
}

func TestEncodeWritesSchemaKeys(t *testing.T) {
	doc := store.Default()
	doc.SetIntent(mixer.RoutingIntent{Output: "HW1", StreamerMode: true})
	doc.SetTrackVolume(mixer.Game, mixer.TrackUser, 140)
	data, err := store.Encode(doc)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"hotkeys", "selected_output", "selected_input", "streamer_mode", "user_volumes", "stream_volumes"} {
		if _, ok := raw[key]; !ok {
			t.Fatalf("missing key %q in %s", key, data)
		}
	}
	if raw["selected_input"] != nil {
		t.Fatalf("unset input should encode as null, got %v", raw["selected_input"])
	}
	if v := raw["user_volumes"].(map[string]any)["Game"]; v != float64(100) {
		t.Fatalf("volume should be clamped to 100, got %v", v)
	}
}

func TestSetTrackVolumeReportsChange(t *testing.T) {
	doc := store.Default()
	if !doc.SetTrackVolume(mixer.Chat, mixer.TrackStream, 40) {
		t.Fatal("first set should report a change")
	}
	if doc.SetTrackVolume(mixer.Chat, mixer.TrackStream, 40) {
		t.Fatal("same value should not report a change")
	}
	if v, _ := doc.StreamVolume(mixer.Chat); v != 40 {
		t.Fatalf("stream volume = %d", v)
	}
}

func TestScheduleSaveCoalescesBursts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := store.Open(path, store.Options{Debounce: 50 * time.Millisecond})

	for v := 10; v <= 50; v += 10 {
		volume := v
		s.Update(func(doc *store.Document) bool {
			return doc.SetTrackVolume(mixer.Media, mixer.TrackUser, volume)
		})
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("document written before the quiet period elapsed")
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.Pending() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.Pending() {
		t.Fatal("scheduled save never ran")
	}
	doc, err := store.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if v, ok := doc.UserVolume(mixer.Media); !ok || v != 50 {
		t.Fatalf("expected last value 50, got %d (%v)", v, ok)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(path), ".state.json.new")); !os.IsNotExist(err) {
		t.Fatal("temp file left behind")
	}
}

func TestFlushWritesPendingSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	s := store.Open(path, store.Options{Debounce: time.Hour})
	s.Update(func(doc *store.Document) bool {
		doc.SetBinding(mixer.Game, mixer.ActionMute, " <ctrl>+g ")
		return true
	})
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if s.Pending() {
		t.Fatal("flush should clear the pending flag")
	}
	doc, err := store.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Hotkeys["Game"]["mute"] != "<ctrl>+g" {
		t.Fatalf("binding not persisted: %v", doc.Hotkeys["Game"])
	}
}

func TestUpdateWithoutChangeDoesNotSchedule(t *testing.T) {
	s := store.Open(filepath.Join(t.TempDir(), "state.json"), store.Options{})
	s.Update(func(*store.Document) bool { return false })
	if s.Pending() {
		t.Fatal("unchanged update scheduled a save")
	}
}

func TestWatchReloadsExternalEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	var reloads atomic.Int32
	s := store.Open(path, store.Options{
		OnReload: func(store.Document) { reloads.Add(1) },
	})
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()

	external := `{"hotkeys": {}, "selected_output": "HW9", "streamer_mode": true}`
	deadline := time.Now().Add(3 * time.Second)
	for reloads.Load() == 0 && time.Now().Before(deadline) {
		testsupport.WriteFile(t, path, external)
		time.Sleep(150 * time.Millisecond)
	}
	if reloads.Load() == 0 {
		t.Fatal("external edit never reloaded")
	}
	if got := s.Snapshot().Intent(); got.Output != "HW9" || !got.StreamerMode {
		t.Fatalf("reloaded intent = %+v", got)
	}

	before := reloads.Load()
	s.Update(func(doc *store.Document) bool {
		return doc.SetTrackVolume(mixer.Game, mixer.TrackUser, 12)
	})
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	time.Sleep(400 * time.Millisecond)
	if reloads.Load() != before {
		t.Fatal("own save triggered a reload")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Watch: %v", err)
	}
}
