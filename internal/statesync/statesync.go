// Package statesync polls the audio server and folds what it finds back into
// the in-memory channel state and the persisted mixer document.
package statesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mux/internal/logging"
	"mux/internal/metrics"
	"mux/internal/mixer"
	"mux/internal/naming"
	"mux/internal/pulse"
	"mux/internal/resolver"
	"mux/internal/services"
	"mux/internal/store"
)

// DefaultInterval is the poll period when none is configured.
const DefaultInterval = time.Second

// Server is the slice of the audio server the synchronizer reads.
type Server interface {
	ListSinksShort(ctx context.Context) ([]pulse.ShortEntry, error)
	GetSinkInputVolume(ctx context.Context, id string) (int, error)
	GetSinkInputMute(ctx context.Context, id string) (bool, error)
}

// DriftKind names what changed outside the daemon.
type DriftKind string

const (
	DriftVolume DriftKind = "volume"
	DriftMute   DriftKind = "mute"
)

// Drift is an externally caused change picked up by a tick.
type Drift struct {
	Channel mixer.Channel
	Track   mixer.Track
	Kind    DriftKind
	From    string
	To      string
}

// Options configure a Synchronizer.
type Options struct {
	Interval time.Duration
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	// OnDrift runs for every drift found by a tick.
	OnDrift func(ctx context.Context, d Drift)
}

// TickResult summarises one poll.
type TickResult struct {
	Observed    int
	Drifts      []Drift
	Dirty       bool
	AppsUpdated bool
	Failures    int
}

// Synchronizer owns the poll loop.
type Synchronizer struct {
	srv   Server
	res   *resolver.Resolver
	state *mixer.State
	store *store.Store
	opts  Options

	logger *slog.Logger

	mu       sync.Mutex
	degraded bool
}

// New builds a synchronizer.
func New(srv Server, res *resolver.Resolver, state *mixer.State, st *store.Store, opts Options) *Synchronizer {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Synchronizer{
		srv:    srv,
		res:    res,
		state:  state,
		store:  st,
		opts:   opts,
		logger: logger,
	}
}

// Run ticks until ctx is cancelled. Tick failures are logged and the loop
// carries on.
func (s *Synchronizer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Suspended runs fn with ticks held off. Reconciliation passes use it so a
// tick never reads links between their creation and volume restore.
func (s *Synchronizer) Suspended(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// Tick performs one poll.
func (s *Synchronizer) Tick(ctx context.Context) TickResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result TickResult
	s.opts.Metrics.SyncTick()

	inputs, err := s.res.Refresh(ctx)
	if err != nil {
		result.Failures++
		s.noteFailure("list routed streams", err)
		return result
	}

	for _, ch := range mixer.AllChannels {
		for _, track := range []mixer.Track{mixer.TrackUser, mixer.TrackStream} {
			ok, err := s.observeTrack(ctx, ch, track, &result)
			if err != nil {
				result.Failures++
				s.noteFailure(fmt.Sprintf("read %s %s link", ch, track), err)
				continue
			}
			if ok {
				result.Observed++
			}
		}
	}

	if !s.state.AppDragActive() {
		if err := s.updateApps(ctx, inputs); err != nil {
			result.Failures++
			s.noteFailure("list sinks", err)
		} else {
			result.AppsUpdated = true
		}
	}

	if result.Dirty {
		s.store.ScheduleSave()
	}
	if result.Failures == 0 && s.degraded {
		s.degraded = false
		s.logger.Info("state sync recovered", logging.String(logging.FieldEventType, "sync_recovered"))
	}
	return result
}

// observeTrack reads one link back. It returns false with no error when the
// link does not exist, which is normal for stream links outside streamer mode.
func (s *Synchronizer) observeTrack(ctx context.Context, ch mixer.Channel, track mixer.Track, result *TickResult) (bool, error) {
	name := mixer.LinkFor(ch, track)
	ref, ok := s.res.Cached(name)
	if !ok {
		return false, nil
	}

	volume, muted, err := s.read(ctx, ref.InputID)
	if errors.Is(err, services.ErrNotFound) || errors.Is(err, services.ErrExternalTool) {
		// The id went stale between the listing and the read.
		s.res.Invalidate()
		ref, ok, err = s.res.Lookup(ctx, name)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		volume, muted, err = s.read(ctx, ref.InputID)
	}
	if err != nil {
		return false, err
	}

	obs := s.state.Observe(ch, track, volume, muted)
	if obs.PrevMuted != muted {
		s.drift(ctx, result, Drift{
			Channel: ch, Track: track, Kind: DriftMute,
			From: fmt.Sprint(obs.PrevMuted), To: fmt.Sprint(muted),
		})
	}
	if !obs.VolumeApplied {
		return true, nil
	}

	var previous *int
	changed := s.store.Update(func(doc *store.Document) bool {
		if v, known := doc.TrackVolume(ch, track); known {
			previous = &v
		}
		return doc.SetTrackVolume(ch, track, volume)
	})
	if changed {
		result.Dirty = true
		if previous != nil {
			s.drift(ctx, result, Drift{
				Channel: ch, Track: track, Kind: DriftVolume,
				From: fmt.Sprint(*previous), To: fmt.Sprint(volume),
			})
		}
	}
	return true, nil
}

func (s *Synchronizer) read(ctx context.Context, inputID string) (int, bool, error) {
	volume, err := s.srv.GetSinkInputVolume(ctx, inputID)
	if err != nil {
		return 0, false, err
	}
	muted, err := s.srv.GetSinkInputMute(ctx, inputID)
	if err != nil {
		return 0, false, err
	}
	return volume, muted, nil
}

func (s *Synchronizer) drift(ctx context.Context, result *TickResult, d Drift) {
	result.Drifts = append(result.Drifts, d)
	s.opts.Metrics.SyncDrift(string(d.Channel))
	s.logger.Info("external change picked up",
		logging.String(logging.FieldEventType, "sync_drift"),
		logging.Channel(d.Channel),
		logging.Track(d.Track),
		logging.String("kind", string(d.Kind)),
		logging.String("from", d.From),
		logging.String("to", d.To),
	)
	if s.opts.OnDrift != nil {
		s.opts.OnDrift(ctx, d)
	}
}

// updateApps rebuilds attached application lists from the routed-stream
// listing. Protocol-owned streams are plumbing and never count as apps.
func (s *Synchronizer) updateApps(ctx context.Context, inputs []pulse.SinkInput) error {
	sinks, err := s.srv.ListSinksShort(ctx)
	if err != nil {
		return err
	}
	channelBySinkID := make(map[string]mixer.Channel, len(naming.ChannelDevices))
	for _, sink := range sinks {
		if naming.IsChannelDevice(sink.Name) {
			channelBySinkID[sink.ID] = mixer.Channel(sink.Name)
		}
	}

	apps := make(map[mixer.Channel][]mixer.AttachedApp, len(mixer.AllChannels))
	for _, in := range inputs {
		if naming.IsOwned(in.MediaName) {
			continue
		}
		ch, ok := channelBySinkID[in.SinkID]
		if !ok {
			continue
		}
		apps[ch] = append(apps[ch], mixer.AttachedApp{
			DisplayName: in.AppName,
			InputID:     in.ID,
			IconHint:    in.IconName,
		})
	}
	for _, ch := range mixer.AllChannels {
		s.state.SetApps(ch, apps[ch])
	}
	return nil
}

// noteFailure logs the first failure of a streak at WARN and the rest at DEBUG.
func (s *Synchronizer) noteFailure(what string, err error) {
	s.opts.Metrics.ExternalFailure("sync")
	if s.degraded {
		s.logger.Debug("state sync step failed", logging.String("step", what), logging.Error(err))
		return
	}
	s.degraded = true
	logging.WarnWithContext(s.logger, "state sync step failed; retrying next tick", "sync_failed",
		logging.String("step", what),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check that the audio server is running"),
		logging.String(logging.FieldImpact, "channel state may be stale until the next successful tick"),
	)
}
