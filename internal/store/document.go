package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"mux/internal/mixer"
)

// Document mirrors the persisted JSON schema. Nullable values are pointers so
// that "unknown" survives a round trip.
type Document struct {
	Hotkeys        map[string]map[string]string `json:"hotkeys"`
	SelectedOutput *string                      `json:"selected_output"`
	SelectedInput  *string                      `json:"selected_input"`
	StreamerMode   bool                         `json:"streamer_mode"`
	UserVolumes    map[string]*int              `json:"user_volumes"`
	StreamVolumes  map[string]*int              `json:"stream_volumes"`
}

// Default returns a document with every channel and action present and
// nothing selected.
func Default() Document {
	doc := Document{
		Hotkeys:       make(map[string]map[string]string, len(mixer.AllChannels)),
		UserVolumes:   make(map[string]*int, len(mixer.AllChannels)),
		StreamVolumes: make(map[string]*int, len(mixer.AllChannels)),
	}
	doc.fillDefaults()
	return doc
}

func (d *Document) fillDefaults() {
	if d.Hotkeys == nil {
		d.Hotkeys = make(map[string]map[string]string, len(mixer.AllChannels))
	}
	if d.UserVolumes == nil {
		d.UserVolumes = make(map[string]*int, len(mixer.AllChannels))
	}
	if d.StreamVolumes == nil {
		d.StreamVolumes = make(map[string]*int, len(mixer.AllChannels))
	}
	for _, ch := range mixer.AllChannels {
		name := string(ch)
		actions := d.Hotkeys[name]
		if actions == nil {
			actions = make(map[string]string, len(mixer.AllActions))
			d.Hotkeys[name] = actions
		}
		for _, a := range mixer.AllActions {
			if _, ok := actions[string(a)]; !ok {
				actions[string(a)] = ""
			}
		}
		if _, ok := d.UserVolumes[name]; !ok {
			d.UserVolumes[name] = nil
		}
		if _, ok := d.StreamVolumes[name]; !ok {
			d.StreamVolumes[name] = nil
		}
	}
}

// Clone returns a deep copy.
func (d Document) Clone() Document {
	out := Document{
		Hotkeys:        make(map[string]map[string]string, len(d.Hotkeys)),
		SelectedOutput: clonePtr(d.SelectedOutput),
		SelectedInput:  clonePtr(d.SelectedInput),
		StreamerMode:   d.StreamerMode,
		UserVolumes:    make(map[string]*int, len(d.UserVolumes)),
		StreamVolumes:  make(map[string]*int, len(d.StreamVolumes)),
	}
	for ch, actions := range d.Hotkeys {
		copied := make(map[string]string, len(actions))
		for k, v := range actions {
			copied[k] = v
		}
		out.Hotkeys[ch] = copied
	}
	for ch, v := range d.UserVolumes {
		out.UserVolumes[ch] = clonePtr(v)
	}
	for ch, v := range d.StreamVolumes {
		out.StreamVolumes[ch] = clonePtr(v)
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Intent returns the routing intent recorded in the document.
func (d Document) Intent() mixer.RoutingIntent {
	intent := mixer.RoutingIntent{StreamerMode: d.StreamerMode}
	if d.SelectedOutput != nil {
		intent.Output = *d.SelectedOutput
	}
	if d.SelectedInput != nil {
		intent.Input = *d.SelectedInput
	}
	return intent
}

// SetIntent records intent; empty selections are stored as null.
func (d *Document) SetIntent(intent mixer.RoutingIntent) {
	d.SelectedOutput = optionalString(intent.Output)
	d.SelectedInput = optionalString(intent.Input)
	d.StreamerMode = intent.StreamerMode
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// Bindings returns the bound combos in channel then action order.
func (d Document) Bindings() []mixer.HotkeyBinding {
	var out []mixer.HotkeyBinding
	for _, ch := range mixer.AllChannels {
		for _, a := range mixer.AllActions {
			combo := d.Hotkeys[string(ch)][string(a)]
			if combo == "" {
				continue
			}
			out = append(out, mixer.HotkeyBinding{Channel: ch, Action: a, Combo: combo})
		}
	}
	return out
}

// SetBinding stores combo for the channel action. An empty combo unbinds.
func (d *Document) SetBinding(ch mixer.Channel, action mixer.Action, combo string) {
	d.fillDefaults()
	d.Hotkeys[string(ch)][string(action)] = strings.TrimSpace(combo)
}

// UserVolume returns the persisted user volume, if any.
func (d Document) UserVolume(ch mixer.Channel) (int, bool) {
	return lookupVolume(d.UserVolumes, ch)
}

// StreamVolume returns the persisted stream volume, if any.
func (d Document) StreamVolume(ch mixer.Channel) (int, bool) {
	return lookupVolume(d.StreamVolumes, ch)
}

// TrackVolume returns the persisted volume for a channel track.
func (d Document) TrackVolume(ch mixer.Channel, track mixer.Track) (int, bool) {
	if track == mixer.TrackStream {
		return d.StreamVolume(ch)
	}
	return d.UserVolume(ch)
}

// SetTrackVolume stores a clamped volume and reports whether it changed.
func (d *Document) SetTrackVolume(ch mixer.Channel, track mixer.Track, volume int) bool {
	d.fillDefaults()
	target := d.UserVolumes
	if track == mixer.TrackStream {
		target = d.StreamVolumes
	}
	volume = mixer.Clamp(volume)
	if cur := target[string(ch)]; cur != nil && *cur == volume {
		return false
	}
	target[string(ch)] = &volume
	return true
}

func lookupVolume(m map[string]*int, ch mixer.Channel) (int, bool) {
	v := m[string(ch)]
	if v == nil {
		return 0, false
	}
	return *v, true
}

// documentKeys are the top-level keys of the current format.
var documentKeys = []string{"hotkeys", "selected_output", "selected_input", "streamer_mode", "user_volumes", "stream_volumes"}

// isLegacy reports whether raw is the old format, where the whole object is
// the hotkey map: no current key and only object values.
func isLegacy(raw map[string]json.RawMessage) bool {
	for _, key := range documentKeys {
		if _, ok := raw[key]; ok {
			return false
		}
	}
	for _, value := range raw {
		trimmed := bytes.TrimSpace(value)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			return false
		}
	}
	return len(raw) > 0
}

// Decode parses a persisted document. Every field is optional; a field
// that cannot be read keeps its default. Volumes that are not integers are
// treated as unknown.
func Decode(data []byte) (Document, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Default(), fmt.Errorf("decode mixer document: %w", err)
	}
	doc := Document{}
	if isLegacy(raw) {
		hotkeys, err := decodeHotkeys(data)
		if err != nil {
			return Default(), err
		}
		doc.Hotkeys = hotkeys
		doc.fillDefaults()
		return doc, nil
	}

	if hotkeys, err := decodeHotkeys(raw["hotkeys"]); err == nil {
		doc.Hotkeys = hotkeys
	}
	doc.SelectedOutput = decodeOptionalString(raw["selected_output"])
	doc.SelectedInput = decodeOptionalString(raw["selected_input"])
	var streamer bool
	if err := json.Unmarshal(raw["streamer_mode"], &streamer); err == nil {
		doc.StreamerMode = streamer
	}
	doc.UserVolumes = decodeVolumes(raw["user_volumes"])
	doc.StreamVolumes = decodeVolumes(raw["stream_volumes"])
	doc.fillDefaults()
	return doc, nil
}

func decodeHotkeys(data []byte) (map[string]map[string]string, error) {
	var raw map[string]map[string]json.RawMessage
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return map[string]map[string]string{}, nil
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode hotkeys: %w", err)
	}
	out := make(map[string]map[string]string, len(raw))
	for ch, actions := range raw {
		converted := make(map[string]string, len(actions))
		for action, value := range actions {
			converted[action] = rawText(value)
		}
		out[ch] = converted
	}
	return out, nil
}

func rawText(value json.RawMessage) string {
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		return s
	}
	trimmed := strings.TrimSpace(string(value))
	if trimmed == "null" {
		return ""
	}
	return trimmed
}

func decodeOptionalString(value json.RawMessage) *string {
	if len(value) == 0 {
		return nil
	}
	var s *string
	if err := json.Unmarshal(value, &s); err != nil || s == nil || *s == "" {
		return nil
	}
	return s
}

func decodeVolumes(value json.RawMessage) map[string]*int {
	out := map[string]*int{}
	if len(value) == 0 {
		return out
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(value, &raw); err != nil {
		return out
	}
	for ch, v := range raw {
		out[ch] = parseVolume(v)
	}
	return out
}

func parseVolume(value json.RawMessage) *int {
	var n json.Number
	if err := json.Unmarshal(value, &n); err != nil {
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return nil
		}
		n = json.Number(strings.TrimSpace(s))
	}
	i, err := strconv.Atoi(n.String())
	if err != nil {
		return nil
	}
	return &i
}

// Encode renders the document with stable key order.
func Encode(doc Document) ([]byte, error) {
	doc = doc.Clone()
	doc.fillDefaults()
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("encode mixer document: %w", err)
	}
	return append(data, '\n'), nil
}
