package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"mux/internal/config"
	"mux/internal/dispatch"
	"mux/internal/hotkeys"
	"mux/internal/journal"
	"mux/internal/logging"
	"mux/internal/metrics"
	"mux/internal/mixer"
	"mux/internal/provision"
	"mux/internal/pulse"
	"mux/internal/resolver"
	"mux/internal/routing"
	"mux/internal/statesync"
	"mux/internal/store"
)

// Options carries the collaborators an Engine is built from. Only Config is
// required.
type Options struct {
	Config *config.Config
	Logger *slog.Logger
	// Executor replaces the real pactl runner, typically with a fake server.
	Executor pulse.Executor
	Journal  *journal.Journal
	Metrics  *metrics.Metrics
	// Listener replaces the built-in TriggerListener.
	Listener hotkeys.Listener
}

// Engine is the daemon's mixer context.
type Engine struct {
	cfg     *config.Config
	logger  *slog.Logger
	journal *journal.Journal
	metrics *metrics.Metrics

	client  *pulse.Client
	res     *resolver.Resolver
	prov    *provision.Provisioner
	rec     *routing.Reconciler
	state   *mixer.State
	store   *store.Store
	sync    *statesync.Synchronizer
	disp    *dispatch.Dispatcher
	hotkeys *hotkeys.Manager
	trigger *hotkeys.TriggerListener

	// intentMu serialises intent changes together with the pass they cause.
	intentMu sync.Mutex
	started  bool
}

// New wires an engine. Nothing touches the audio server until Start.
func New(opts Options) (*Engine, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("engine requires a config")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	e := &Engine{
		cfg:     cfg,
		logger:  logging.NewComponentLogger(logger, "engine"),
		journal: opts.Journal,
		metrics: opts.Metrics,
		state:   mixer.NewState(),
	}

	clientOpts := []pulse.Option{
		pulse.WithTimeout(cfg.CommandTimeout()),
		pulse.WithFailureHook(func(op string, _ error) { e.metrics.ExternalFailure(op) }),
	}
	if opts.Executor != nil {
		clientOpts = append(clientOpts, pulse.WithExecutor(opts.Executor))
	}
	e.client = pulse.NewClient(cfg.PactlBinary(), clientOpts...)
	e.res = resolver.New(e.client)
	e.prov = provision.New(e.client, logging.NewComponentLogger(logger, "provision"), cfg.DeviceSettle())
	e.rec = routing.New(e.client, e.prov, e.res, routing.Options{
		Latencies: mixer.Latencies{
			User:   cfg.Routing.UserLatencyMS,
			Stream: cfg.Routing.StreamLatencyMS,
			Mic:    cfg.Routing.MicLatencyMS,
		},
		Settle:     cfg.LinkSettle(),
		Observer:   e,
		AfterLinks: e.linksBuilt,
		Logger:     logger,
	})
	e.store = store.Open(cfg.Paths.StateFile, store.Options{
		Debounce: cfg.SaveDebounce(),
		Logger:   logging.NewComponentLogger(logger, "store"),
		OnReload: e.documentReloaded,
	})
	e.sync = statesync.New(e.client, e.res, e.state, e.store, statesync.Options{
		Interval: cfg.PollInterval(),
		Logger:   logging.NewComponentLogger(logger, "statesync"),
		Metrics:  e.metrics,
		OnDrift:  e.driftObserved,
	})
	e.disp = dispatch.New(e.client, e.res, e.state, e.store, dispatch.Options{
		Logger:       logging.NewComponentLogger(logger, "dispatch"),
		Metrics:      e.metrics,
		StreamerMode: e.streamerMode,
	})

	listener := opts.Listener
	if listener == nil {
		e.trigger = hotkeys.NewTriggerListener()
		listener = e.trigger
	} else if tl, ok := listener.(*hotkeys.TriggerListener); ok {
		e.trigger = tl
	}
	step := cfg.Hotkeys.VolumeStep
	e.hotkeys = hotkeys.NewManager(listener,
		hotkeys.DispatchHandler(e.disp, step, logging.NewComponentLogger(logger, "hotkeys")),
		logging.NewComponentLogger(logger, "hotkeys"))

	return e, nil
}

func (e *Engine) streamerMode() bool {
	return e.store.Snapshot().StreamerMode
}

// Start runs the startup sequence: remove leftovers from a previous run,
// apply the persisted intent, restore saved volumes, and start hotkeys.
// Audio server failures are logged; the next pass or tick recovers.
func (e *Engine) Start(ctx context.Context) error {
	e.intentMu.Lock()
	defer e.intentMu.Unlock()
	if e.started {
		return errors.New("engine already started")
	}
	e.started = true

	e.pruneJournal(ctx)

	removed, err := e.rec.Cleanup(ctx)
	if err != nil {
		logging.WarnWithContext(e.logger, "startup cleanup failed", "startup_cleanup_failed",
			logging.Error(err))
	} else if removed > 0 {
		e.logger.Info("removed links left by a previous run",
			logging.String(logging.FieldEventType, "startup_cleanup"),
			logging.Int("links_removed", removed))
	}

	doc := e.store.Snapshot()
	if _, err := e.applyLocked(ctx, doc.Intent(), "startup"); err != nil {
		logging.WarnWithContext(e.logger, "startup reconciliation failed", "startup_pass_failed",
			logging.Error(err))
	}
	if err := e.rebuildHotkeys(); err != nil {
		logging.WarnWithContext(e.logger, "hotkey listener unavailable", "hotkeys_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "hotkeys will not fire until bindings change"))
	}
	return nil
}

// Run drives the background loops until ctx is cancelled, then flushes any
// pending document save.
func (e *Engine) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.sync.Run(gctx) })
	g.Go(func() error {
		if err := e.store.Watch(gctx); err != nil {
			logging.WarnWithContext(e.logger, "state file watch unavailable", "store_watch_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "external edits to the mixer document are ignored"))
		}
		return nil
	})
	err := g.Wait()
	if flushErr := e.store.Flush(); flushErr != nil {
		e.logger.Warn("final document save failed", logging.Error(flushErr))
	}
	return err
}

// Close stops hotkeys and writes any pending save.
func (e *Engine) Close() error {
	if err := e.hotkeys.Stop(); err != nil {
		e.logger.Debug("hotkey stop failed", logging.Error(err))
	}
	return e.store.Flush()
}

// Shutdown removes every link and the stream mix, for `muxd --cleanup`
// exits. Channel devices are left in place.
func (e *Engine) Shutdown(ctx context.Context) (int, error) {
	e.intentMu.Lock()
	defer e.intentMu.Unlock()
	return e.rec.Cleanup(ctx)
}

func (e *Engine) pruneJournal(ctx context.Context) {
	if e.journal == nil || e.cfg.Journal.RetentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -e.cfg.Journal.RetentionDays)
	n, err := e.journal.Prune(ctx, cutoff)
	if err != nil {
		e.logger.Warn("journal prune failed", logging.Error(err),
			logging.String(logging.FieldEventType, "journal_prune_failed"))
		return
	}
	if n > 0 {
		e.logger.Info("journal pruned", logging.Int64("rows", n))
	}
}

// applyLocked runs one pass with ticks suspended. intentMu must be held.
func (e *Engine) applyLocked(ctx context.Context, intent mixer.RoutingIntent, reason string) (routing.Result, error) {
	var (
		res routing.Result
		err error
	)
	e.sync.Suspended(func() {
		res, err = e.rec.Apply(ctx, intent, reason)
	})
	if err != nil {
		e.metrics.ObservePass(metrics.ResultFailed, 0, 0)
		return res, fmt.Errorf("reconcile: %w", err)
	}
	return res, nil
}

// linksBuilt restores volumes on the new links while the output is still
// muted.
func (e *Engine) linksBuilt(ctx context.Context, res routing.Result) {
	e.restoreUserVolumes(ctx)
	if res.Intent.StreamerMode && len(res.Links) > 0 {
		if err := sleepContext(ctx, e.cfg.StreamDefaultsDelay()); err != nil {
			return
		}
		e.applyStreamDefaults(ctx)
	}
}

// restoreUserVolumes pushes the persisted user volume of each channel, or the
// last observed one, onto the new user links.
func (e *Engine) restoreUserVolumes(ctx context.Context) {
	doc := e.store.Snapshot()
	for _, ch := range mixer.AllChannels {
		current := e.state.Snapshot(ch)
		volume, ok := doc.UserVolume(ch)
		if !ok {
			volume = current.Volume
		}
		muted := current.Muted
		if _, err := e.disp.Restore(ctx, ch, mixer.TrackUser, volume, muted); err != nil {
			e.logger.Debug("user volume restore skipped", logging.Error(err))
		}
	}
}

// applyStreamDefaults sets each stream link to its persisted stream volume,
// falling back to the channel's user volume, which is then persisted.
func (e *Engine) applyStreamDefaults(ctx context.Context) {
	for _, ch := range mixer.AllChannels {
		target, ok := e.store.Snapshot().StreamVolume(ch)
		if !ok {
			target = e.state.Snapshot(ch).Volume
			e.store.Update(func(doc *store.Document) bool {
				return doc.SetTrackVolume(ch, mixer.TrackStream, target)
			})
		}
		muted := e.state.Snapshot(ch).StreamMuted
		if _, err := e.disp.Restore(ctx, ch, mixer.TrackStream, target, muted); err != nil {
			e.logger.Debug("stream default skipped", logging.Error(err))
		}
	}
}

func (e *Engine) rebuildHotkeys() error {
	doc := e.store.Snapshot()
	return e.hotkeys.Rebuild(doc.Bindings(), doc.StreamerMode)
}

// documentReloaded reacts to an external edit of the mixer document.
func (e *Engine) documentReloaded(doc store.Document) {
	ctx := context.Background()
	if err := e.rebuildHotkeys(); err != nil {
		logging.WarnWithContext(e.logger, "hotkey rebuild after reload failed", "hotkeys_failed", logging.Error(err))
	}
	e.intentMu.Lock()
	defer e.intentMu.Unlock()
	last, ok := e.rec.Last()
	if ok && last.Intent == doc.Intent() {
		return
	}
	if _, err := e.applyLocked(ctx, doc.Intent(), "document_reload"); err != nil {
		logging.WarnWithContext(e.logger, "reconciliation after reload failed", "reload_pass_failed", logging.Error(err))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
