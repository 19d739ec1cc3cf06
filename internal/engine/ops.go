package engine

import (
	"context"
	"fmt"
	"strings"

	"mux/internal/dispatch"
	"mux/internal/hotkeys"
	"mux/internal/journal"
	"mux/internal/logging"
	"mux/internal/mixer"
	"mux/internal/naming"
	"mux/internal/pulse"
	"mux/internal/routing"
	"mux/internal/services"
	"mux/internal/store"
)

// HotkeyStatus describes the listener and its active table.
type HotkeyStatus struct {
	State    hotkeys.State         `json:"state"`
	Active   []mixer.HotkeyBinding `json:"active"`
	Bindings []mixer.HotkeyBinding `json:"bindings"`
}

// Status is the snapshot served by `mux status`.
type Status struct {
	Intent    mixer.RoutingIntent  `json:"intent"`
	Channels  []mixer.ChannelState `json:"channels"`
	Hotkeys   HotkeyStatus         `json:"hotkeys"`
	LastPass  *routing.Result      `json:"last_pass,omitempty"`
	StatePath string               `json:"state_path"`
	Links     int                  `json:"links_resolved"`
}

// Status returns the current mixer snapshot.
func (e *Engine) Status() Status {
	doc := e.store.Snapshot()
	st := Status{
		Intent:   doc.Intent(),
		Channels: e.state.All(),
		Hotkeys: HotkeyStatus{
			State:    e.hotkeys.State(),
			Active:   e.hotkeys.Active(),
			Bindings: doc.Bindings(),
		},
		StatePath: e.store.Path(),
		Links:     e.res.Len(),
	}
	if last, ok := e.rec.Last(); ok {
		st.LastPass = &last
	}
	return st
}

// SetVolume sets one track of a channel.
func (e *Engine) SetVolume(ctx context.Context, ch mixer.Channel, track mixer.Track, value int) (dispatch.Outcome, error) {
	return e.disp.SetVolume(ctx, ch, track, value)
}

// AdjustVolume moves one track of a channel by delta.
func (e *Engine) AdjustVolume(ctx context.Context, ch mixer.Channel, track mixer.Track, delta int) (dispatch.Outcome, error) {
	return e.disp.AdjustVolume(ctx, ch, track, delta)
}

// ToggleMute flips the mute flag of one track.
func (e *Engine) ToggleMute(ctx context.Context, ch mixer.Channel, track mixer.Track) (dispatch.Outcome, error) {
	return e.disp.ToggleMute(ctx, ch, track)
}

// MoveApplication attaches a third-party stream to a channel.
func (e *Engine) MoveApplication(ctx context.Context, inputID string, target mixer.Channel) (dispatch.Outcome, error) {
	return e.disp.MoveApplication(ctx, inputID, target)
}

// SetInteraction marks a track as being dragged, which keeps state sync from
// overwriting the value being dragged.
func (e *Engine) SetInteraction(ch mixer.Channel, track mixer.Track, active bool) {
	e.state.SetInteraction(ch, track, active)
}

// SetAppDrag pauses attached-app list updates while an app is dragged.
func (e *Engine) SetAppDrag(active bool) {
	e.state.SetAppDrag(active)
}

// SetStreamerMode persists the mode and runs a pass.
func (e *Engine) SetStreamerMode(ctx context.Context, enabled bool) (routing.Result, error) {
	return e.changeIntent(ctx, "streamer_mode", func(intent *mixer.RoutingIntent) {
		intent.StreamerMode = enabled
	})
}

// ToggleStreamerMode flips the mode and runs a pass.
func (e *Engine) ToggleStreamerMode(ctx context.Context) (routing.Result, error) {
	return e.changeIntent(ctx, "streamer_mode", func(intent *mixer.RoutingIntent) {
		intent.StreamerMode = !intent.StreamerMode
	})
}

// SelectDevices records the hardware output and input and runs a pass. An
// empty name clears the selection.
func (e *Engine) SelectDevices(ctx context.Context, output, input string) (routing.Result, error) {
	output, input = strings.TrimSpace(output), strings.TrimSpace(input)
	if output != "" && naming.IsVirtualSink(output) {
		return routing.Result{}, services.Wrap(services.ErrValidation, "engine", "select devices",
			fmt.Sprintf("%q is a mixer device, not hardware", output), nil)
	}
	if input != "" && naming.IsVirtualSource(input) {
		return routing.Result{}, services.Wrap(services.ErrValidation, "engine", "select devices",
			fmt.Sprintf("%q is a mixer device, not hardware", input), nil)
	}
	return e.changeIntent(ctx, "device_selection", func(intent *mixer.RoutingIntent) {
		intent.Output = output
		intent.Input = input
	})
}

// changeIntent saves the new intent immediately, runs a pass, and rebuilds
// the hotkey table, since streamer mode gates the stream actions.
func (e *Engine) changeIntent(ctx context.Context, reason string, mutate func(*mixer.RoutingIntent)) (routing.Result, error) {
	e.intentMu.Lock()
	defer e.intentMu.Unlock()

	var intent mixer.RoutingIntent
	e.store.Update(func(doc *store.Document) bool {
		intent = doc.Intent()
		mutate(&intent)
		doc.SetIntent(intent)
		return false
	})
	if err := e.store.Save(); err != nil {
		e.logger.Warn("routing intent save failed", logging.Error(err))
	}

	res, err := e.applyLocked(ctx, intent, reason)
	if hkErr := e.rebuildHotkeys(); hkErr != nil {
		e.logger.Warn("hotkey rebuild failed", logging.Error(hkErr))
	}
	return res, err
}

// Reconcile runs a pass for the current intent.
func (e *Engine) Reconcile(ctx context.Context, reason string) (routing.Result, error) {
	e.intentMu.Lock()
	defer e.intentMu.Unlock()
	if reason == "" {
		reason = "manual"
	}
	return e.applyLocked(ctx, e.store.Snapshot().Intent(), reason)
}

// Devices lists hardware sinks and sources, excluding everything the
// mixer provisions.
type Devices struct {
	Outputs []pulse.Device `json:"outputs"`
	Inputs  []pulse.Device `json:"inputs"`
}

// HardwareDevices lists the selectable hardware.
func (e *Engine) HardwareDevices(ctx context.Context) (Devices, error) {
	sinks, err := e.client.ListSinks(ctx)
	if err != nil {
		return Devices{}, err
	}
	sources, err := e.client.ListSources(ctx)
	if err != nil {
		return Devices{}, err
	}
	var out Devices
	for _, s := range sinks {
		if !naming.IsVirtualSink(s.Name) {
			out.Outputs = append(out.Outputs, s)
		}
	}
	for _, s := range sources {
		if !naming.IsVirtualSource(s.Name) {
			out.Inputs = append(out.Inputs, s)
		}
	}
	return out, nil
}

// BindHotkey records a combo for a channel action and rebuilds the table. An
// empty combo unbinds the action.
func (e *Engine) BindHotkey(ch mixer.Channel, action mixer.Action, combo string) (mixer.HotkeyBinding, error) {
	ch, err := mixer.ParseChannel(string(ch))
	if err != nil {
		return mixer.HotkeyBinding{}, services.Wrap(services.ErrValidation, "engine", "bind hotkey", err.Error(), nil)
	}
	action, err = mixer.ParseAction(string(action))
	if err != nil {
		return mixer.HotkeyBinding{}, services.Wrap(services.ErrValidation, "engine", "bind hotkey", err.Error(), nil)
	}
	normalized := hotkeys.NormalizeCombo(combo)
	if strings.TrimSpace(combo) != "" && normalized == "" {
		return mixer.HotkeyBinding{}, services.Wrap(services.ErrValidation, "engine", "bind hotkey",
			fmt.Sprintf("combo %q has no key", combo), nil)
	}
	e.store.Update(func(doc *store.Document) bool {
		doc.SetBinding(ch, action, normalized)
		return true
	})
	if err := e.rebuildHotkeys(); err != nil {
		return mixer.HotkeyBinding{}, err
	}
	return mixer.HotkeyBinding{Channel: ch, Action: action, Combo: normalized}, nil
}

// TriggerHotkey fires a combo through the built-in listener and returns how
// many bindings ran.
func (e *Engine) TriggerHotkey(ctx context.Context, combo string) (int, error) {
	if e.trigger == nil {
		return 0, services.Wrap(services.ErrValidation, "engine", "trigger hotkey",
			"the configured listener does not accept injected combos", nil)
	}
	return e.trigger.Trigger(ctx, combo), nil
}

// Hotkeys returns the listener state with every binding in document order.
func (e *Engine) Hotkeys() HotkeyStatus {
	return HotkeyStatus{
		State:    e.hotkeys.State(),
		Active:   e.hotkeys.Active(),
		Bindings: e.store.Snapshot().Bindings(),
	}
}

// History returns the newest journaled passes.
func (e *Engine) History(ctx context.Context, limit int) ([]journal.Pass, error) {
	if e.journal == nil {
		return nil, services.Wrap(services.ErrConfiguration, "engine", "history", "journal is disabled", nil)
	}
	return e.journal.History(ctx, limit)
}

// Events returns the newest journaled drift and hot-plug events.
func (e *Engine) Events(ctx context.Context, limit int) ([]journal.Event, error) {
	if e.journal == nil {
		return nil, services.Wrap(services.ErrConfiguration, "engine", "events", "journal is disabled", nil)
	}
	return e.journal.Events(ctx, limit)
}

// RecordHotplug journals an audio device hot-plug notice.
func (e *Engine) RecordHotplug(ctx context.Context, detail string) {
	if e.journal == nil {
		return
	}
	if _, err := e.journal.RecordEvent(ctx, journal.Event{Kind: journal.EventHotplug, Detail: detail}); err != nil {
		e.logger.Debug("hotplug event not journaled", logging.Error(err))
	}
}
