// Package dispatch turns user intents into audio server commands against the
// currently resolved link ids.
//
// Server failures are logged and counted rather than returned; the next sync
// tick shows the caller what actually happened. Only caller mistakes come
// back as errors, wrapped in services.ErrValidation.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"mux/internal/logging"
	"mux/internal/metrics"
	"mux/internal/mixer"
	"mux/internal/naming"
	"mux/internal/resolver"
	"mux/internal/services"
	"mux/internal/store"
)

// Server is the slice of the audio server the dispatcher commands.
type Server interface {
	SetSinkInputVolume(ctx context.Context, id string, percent int) error
	SetSinkInputMute(ctx context.Context, id string, muted bool) error
	MoveSinkInput(ctx context.Context, id, sink string) error
}

// Skip reasons reported in Outcome.Skipped.
const (
	SkipStreamerModeOff = "streamer_mode_off"
	SkipLinkMissing     = "link_missing"
	SkipServerFailure   = "server_failure"
)

// Outcome describes what a command did.
type Outcome struct {
	Channel mixer.Channel `json:"channel"`
	Track   mixer.Track   `json:"track,omitempty"`
	Volume  int           `json:"volume"`
	Muted   bool          `json:"muted"`
	// Applied is true when the server accepted the command.
	Applied bool   `json:"applied"`
	Skipped string `json:"skipped,omitempty"`
}

// Options configure a Dispatcher.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// StreamerMode reports the current mode; stream-track commands are
	// ignored while it returns false. Nil means streamer mode is off.
	StreamerMode func() bool
}

// Dispatcher executes volume, mute, and move commands.
type Dispatcher struct {
	srv   Server
	res   *resolver.Resolver
	state *mixer.State
	store *store.Store
	opts  Options

	// chMu serialises commands per channel so that read-modify-write
	// commands see each other's results.
	chMu map[mixer.Channel]*sync.Mutex

	logger *slog.Logger
}

// New builds a dispatcher.
func New(srv Server, res *resolver.Resolver, state *mixer.State, st *store.Store, opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	chMu := make(map[mixer.Channel]*sync.Mutex, len(mixer.AllChannels))
	for _, ch := range mixer.AllChannels {
		chMu[ch] = &sync.Mutex{}
	}
	return &Dispatcher{srv: srv, res: res, state: state, store: st, opts: opts, chMu: chMu, logger: logger}
}

// lock takes the command lock for a validated channel.
func (d *Dispatcher) lock(ch mixer.Channel) func() {
	mu := d.chMu[ch]
	mu.Lock()
	return mu.Unlock
}

func (d *Dispatcher) streamerMode() bool {
	return d.opts.StreamerMode != nil && d.opts.StreamerMode()
}

func validateChannelTrack(ch mixer.Channel, track mixer.Track) error {
	if !slices.Contains(mixer.AllChannels, ch) {
		return services.Wrap(services.ErrValidation, "dispatch", "validate", "unknown channel", fmt.Errorf("%q", ch))
	}
	if track != mixer.TrackUser && track != mixer.TrackStream {
		return services.Wrap(services.ErrValidation, "dispatch", "validate", "unknown track", fmt.Errorf("%q", track))
	}
	return nil
}

// SetVolume sets a track to value clamped to [0,100] and unmutes it. The
// in-memory and persisted volumes are updated even when the link is absent,
// so the value is applied after the next reconciliation.
func (d *Dispatcher) SetVolume(ctx context.Context, ch mixer.Channel, track mixer.Track, value int) (Outcome, error) {
	if err := validateChannelTrack(ch, track); err != nil {
		return Outcome{}, err
	}
	defer d.lock(ch)()
	return d.setVolume(ctx, ch, track, value), nil
}

func (d *Dispatcher) setVolume(ctx context.Context, ch mixer.Channel, track mixer.Track, value int) Outcome {
	if track == mixer.TrackStream && !d.streamerMode() {
		return d.skip(d.current(ch, track), SkipStreamerModeOff)
	}
	d.opts.Metrics.Command("set_volume")

	volume := mixer.Clamp(value)
	d.state.Update(ch, func(cs *mixer.ChannelState) {
		if track == mixer.TrackStream {
			cs.StreamVolume = volume
		} else {
			cs.Volume = volume
		}
	})
	d.store.Update(func(doc *store.Document) bool {
		return doc.SetTrackVolume(ch, track, volume)
	})

	applied, err := d.withLink(ctx, mixer.LinkFor(ch, track), "set_volume", func(id string) error {
		if err := d.srv.SetSinkInputVolume(ctx, id, volume); err != nil {
			return err
		}
		return d.srv.SetSinkInputMute(ctx, id, false)
	})
	return d.finish(ch, track, "set_volume", applied, err, func(cs *mixer.ChannelState) {
		if track == mixer.TrackStream {
			cs.StreamMuted = false
		} else {
			cs.Muted = false
		}
	})
}

// AdjustVolume moves a track by delta from its current in-memory value.
func (d *Dispatcher) AdjustVolume(ctx context.Context, ch mixer.Channel, track mixer.Track, delta int) (Outcome, error) {
	if err := validateChannelTrack(ch, track); err != nil {
		return Outcome{}, err
	}
	defer d.lock(ch)()
	current := d.state.Snapshot(ch).TrackVolume(track)
	return d.setVolume(ctx, ch, track, current+delta), nil
}

// ToggleMute flips a track's mute flag.
func (d *Dispatcher) ToggleMute(ctx context.Context, ch mixer.Channel, track mixer.Track) (Outcome, error) {
	if err := validateChannelTrack(ch, track); err != nil {
		return Outcome{}, err
	}
	if track == mixer.TrackStream && !d.streamerMode() {
		return d.skip(d.current(ch, track), SkipStreamerModeOff), nil
	}
	defer d.lock(ch)()
	d.opts.Metrics.Command("toggle_mute")

	muted := !d.state.Snapshot(ch).TrackMuted(track)
	applied, err := d.withLink(ctx, mixer.LinkFor(ch, track), "toggle_mute", func(id string) error {
		return d.srv.SetSinkInputMute(ctx, id, muted)
	})
	return d.finish(ch, track, "toggle_mute", applied, err, func(cs *mixer.ChannelState) {
		if track == mixer.TrackStream {
			cs.StreamMuted = muted
		} else {
			cs.Muted = muted
		}
	}), nil
}

// Restore pushes a known volume and mute flag onto a freshly created link
// and records them in memory. It is used after reconciliation passes, which
// recreate every link at full volume. Nothing is persisted or counted.
func (d *Dispatcher) Restore(ctx context.Context, ch mixer.Channel, track mixer.Track, volume int, muted bool) (bool, error) {
	if err := validateChannelTrack(ch, track); err != nil {
		return false, err
	}
	defer d.lock(ch)()
	volume = mixer.Clamp(volume)
	applied, err := d.withLink(ctx, mixer.LinkFor(ch, track), "restore", func(id string) error {
		if err := d.srv.SetSinkInputVolume(ctx, id, volume); err != nil {
			return err
		}
		return d.srv.SetSinkInputMute(ctx, id, muted)
	})
	if err != nil {
		d.failure("restore", err, logging.Channel(ch), logging.Track(track))
		return false, nil
	}
	if applied {
		d.state.Update(ch, func(cs *mixer.ChannelState) {
			if track == mixer.TrackStream {
				cs.StreamVolume, cs.StreamMuted = volume, muted
			} else {
				cs.Volume, cs.Muted = volume, muted
			}
		})
	}
	return applied, nil
}

// MoveApplication attaches a third-party stream to a channel's device. Mic
// has no device and is rejected.
func (d *Dispatcher) MoveApplication(ctx context.Context, inputID string, target mixer.Channel) (Outcome, error) {
	inputID = strings.TrimSpace(inputID)
	if inputID == "" {
		return Outcome{}, services.Wrap(services.ErrValidation, "dispatch", "move", "application id is required", nil)
	}
	if !target.HasDevice() {
		return Outcome{}, services.Wrap(services.ErrValidation, "dispatch", "move",
			"target must be one of "+strings.Join(naming.ChannelDevices, ", "), fmt.Errorf("%q", target))
	}
	d.opts.Metrics.Command("move_application")

	out := Outcome{Channel: target}
	if err := d.srv.MoveSinkInput(ctx, inputID, string(target)); err != nil {
		d.failure("move_application", err, logging.String("input_id", inputID), logging.Channel(target))
		return d.skip(out, SkipServerFailure), nil
	}
	out.Applied = true
	d.logger.Info("application moved",
		logging.String(logging.FieldEventType, "app_moved"),
		logging.String("input_id", inputID),
		logging.Channel(target),
	)
	return out, nil
}

// withLink runs fn against the link's current stream id. A failure forces a
// fresh listing and one retry, covering ids that went stale after a pass.
func (d *Dispatcher) withLink(ctx context.Context, name naming.LinkName, op string, fn func(id string) error) (bool, error) {
	ref, ok, err := d.res.Lookup(ctx, name)
	if err != nil {
		return false, err
	}
	if !ok {
		d.logger.Debug("link not present; command skipped",
			logging.Link(name.String()),
			logging.String("op", op),
		)
		return false, nil
	}
	if err := fn(ref.InputID); err == nil {
		return true, nil
	}

	d.res.Invalidate()
	ref, ok, err = d.res.Lookup(ctx, name)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := fn(ref.InputID); err != nil {
		return false, err
	}
	return true, nil
}

func (d *Dispatcher) current(ch mixer.Channel, track mixer.Track) Outcome {
	snap := d.state.Snapshot(ch)
	return Outcome{Channel: ch, Track: track, Volume: snap.TrackVolume(track), Muted: snap.TrackMuted(track)}
}

// finish applies onApplied to the channel when the command went through and
// reports the resulting channel track state.
func (d *Dispatcher) finish(ch mixer.Channel, track mixer.Track, op string, applied bool, err error, onApplied func(*mixer.ChannelState)) Outcome {
	switch {
	case err != nil:
		d.failure(op, err, logging.Channel(ch), logging.Track(track))
		return d.skip(d.current(ch, track), SkipServerFailure)
	case !applied:
		return d.skip(d.current(ch, track), SkipLinkMissing)
	}
	d.state.Update(ch, onApplied)
	out := d.current(ch, track)
	out.Applied = true
	return out
}

func (d *Dispatcher) skip(out Outcome, reason string) Outcome {
	out.Applied = false
	out.Skipped = reason
	if reason == SkipStreamerModeOff {
		d.logger.Debug("stream track command ignored outside streamer mode",
			logging.Channel(out.Channel),
		)
	}
	return out
}

func (d *Dispatcher) failure(op string, err error, attrs ...logging.Attr) {
	d.opts.Metrics.ExternalFailure("dispatch")
	attrs = append(attrs,
		logging.String("op", op),
		logging.Error(err),
		logging.String(logging.FieldImpact, "the change will not be audible until retried"),
	)
	logging.WarnWithContext(d.logger, "audio server rejected command", "dispatch_failed", attrs...)
}
