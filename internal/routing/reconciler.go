package routing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"mux/internal/logging"
	"mux/internal/mixer"
	"mux/internal/naming"
	"mux/internal/provision"
	"mux/internal/pulse"
	"mux/internal/resolver"
	"mux/internal/services"
)

// Server is the slice of the audio server the reconciler drives directly.
type Server interface {
	ListSinkInputs(ctx context.Context) ([]pulse.SinkInput, error)
	ListSinksShort(ctx context.Context) ([]pulse.ShortEntry, error)
	UnloadModule(ctx context.Context, id string) error
	LoadLoopback(ctx context.Context, spec pulse.LoopbackSpec) (string, error)
	SetSinkMute(ctx context.Context, sink string, muted bool) error
	SetDefaultSink(ctx context.Context, sink string) error
	SetDefaultSource(ctx context.Context, source string) error
}

// Observer is told about every finished pass.
type Observer interface {
	PassCompleted(ctx context.Context, res Result)
}

// Result summarises one reconciliation pass.
type Result struct {
	PassID       string              `json:"pass_id"`
	Reason       string              `json:"reason"`
	Intent       mixer.RoutingIntent `json:"intent"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   time.Time           `json:"finished_at"`
	LinksRemoved int                 `json:"links_removed"`
	LinksCreated int                 `json:"links_created"`
	Links        []string            `json:"links"`
	StreamMix    bool                `json:"stream_mix"`
	Failures     int                 `json:"failures"`
	// OutputMissing is set when an output was selected but is not present.
	OutputMissing bool `json:"output_missing,omitempty"`
}

// Duration is the wall time of the pass.
func (r Result) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Options configures a Reconciler.
type Options struct {
	Latencies mixer.Latencies
	Settle    time.Duration
	Observer  Observer
	Logger    *slog.Logger
	// AfterLinks runs once the new links exist and before the output is
	// unmuted, so volumes can be restored while the device is still silent.
	AfterLinks func(ctx context.Context, res Result)
}

// ReasonHotplug marks passes triggered by a device change. They are never
// coalesced with a pass already in flight, which may have listed devices
// before the change.
const ReasonHotplug = "hotplug"

// Reconciler runs reconciliation passes.
type Reconciler struct {
	srv      Server
	prov     *provision.Provisioner
	res      *resolver.Resolver
	lat      mixer.Latencies
	settle   time.Duration
	observer Observer
	after    func(ctx context.Context, res Result)
	logger   *slog.Logger

	mu    sync.Mutex
	group singleflight.Group
	last  *Result
}

// New constructs a Reconciler.
func New(srv Server, prov *provision.Provisioner, res *resolver.Resolver, opts Options) *Reconciler {
	lat := opts.Latencies
	if lat.User <= 0 || lat.Stream <= 0 || lat.Mic <= 0 {
		lat = mixer.DefaultLatencies
	}
	return &Reconciler{
		srv:      srv,
		prov:     prov,
		res:      res,
		lat:      lat,
		settle:   opts.Settle,
		observer: opts.Observer,
		after:    opts.AfterLinks,
		logger:   logging.NewComponentLogger(opts.Logger, "routing"),
	}
}

// Last returns the most recent pass result, if any.
func (r *Reconciler) Last() (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return Result{}, false
	}
	return *r.last, true
}

// Apply runs one pass for intent. The returned error is non-nil only when
// the pass could not start; partial failures are counted in Result.Failures.
func (r *Reconciler) Apply(ctx context.Context, intent mixer.RoutingIntent, reason string) (Result, error) {
	if reason == ReasonHotplug {
		return r.run(ctx, intent, reason)
	}
	key := fmt.Sprintf("%s\x00%s\x00%t", intent.Output, intent.Input, intent.StreamerMode)
	v, err, _ := r.group.Do(key, func() (any, error) {
		return r.run(ctx, intent, reason)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

// run serialises passes; mu is held for the whole pass.
func (r *Reconciler) run(ctx context.Context, intent mixer.RoutingIntent, reason string) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, err := r.apply(ctx, intent, reason)
	if err == nil {
		r.last = &res
	}
	return res, err
}

func (r *Reconciler) apply(ctx context.Context, intent mixer.RoutingIntent, reason string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, services.Wrap(services.ErrTransient, "routing", "apply", "cancelled before start", err)
	}

	res := Result{
		PassID:    uuid.NewString(),
		Reason:    reason,
		Intent:    intent,
		StartedAt: time.Now(),
		StreamMix: intent.StreamerMode,
	}
	ctx = services.WithPassID(ctx, res.PassID)
	logger := logging.WithContext(ctx, r.logger)
	logger.Debug("reconciliation pass starting",
		logging.String("reason", reason),
		logging.String("output", intent.Output),
		logging.String("input", intent.Input),
		logging.Bool("streamer_mode", intent.StreamerMode),
	)

	output := r.presentOutput(ctx, logger, intent.Output)
	if intent.Output != "" && output == "" {
		res.OutputMissing = true
	}

	if output != "" {
		if err := r.srv.SetSinkMute(ctx, output, true); err != nil {
			res.Failures++
			logging.WarnWithContext(logger, "hardware output not muted before rebuild", "output_mute_failed",
				logging.String("output", output), logging.Error(err),
				logging.String(logging.FieldImpact, "a short pop may be audible"))
		}
	}

	removed, failures, err := r.teardown(ctx, logger)
	res.LinksRemoved = removed
	res.Failures += failures
	if err != nil {
		res.Failures++
		logging.WarnWithContext(logger, "link teardown skipped", "teardown_failed", logging.Error(err))
	}
	r.res.Invalidate()

	inv, err := r.prov.EnsureBase(ctx)
	if err != nil {
		res.Failures++
		logging.WarnWithContext(logger, "device provisioning incomplete", "provision_failed", logging.Error(err))
	}
	r.reconcileStreamMix(ctx, logger, intent.StreamerMode, &inv, &res)

	if output == "" {
		logger.Info("no hardware output selected; link creation skipped",
			logging.String(logging.FieldEventType, "links_skipped"))
	} else {
		effective := intent
		effective.Output = output
		r.createLinks(ctx, logger, mixer.PlanFor(effective, r.lat), inv, &res)
	}

	r.setDefaults(ctx, logger, inv, &res)

	if _, err := r.res.Refresh(ctx); err != nil {
		logger.Debug("link cache refresh failed", logging.Error(err))
	}

	if r.after != nil {
		r.after(ctx, res)
	}

	if output != "" {
		if err := sleepContext(ctx, r.settle); err != nil {
			logger.Debug("settle interrupted", logging.Error(err))
		}
		r.unmute(ctx, logger, output, &res)
	}

	res.FinishedAt = time.Now()
	logger.Info("reconciliation pass complete",
		logging.String(logging.FieldEventType, "reconcile_complete"),
		logging.String("reason", res.Reason),
		logging.Int("links_removed", res.LinksRemoved),
		logging.Int("links_created", res.LinksCreated),
		logging.Int("failures", res.Failures),
		logging.Bool("stream_mix", res.StreamMix),
		logging.Duration("duration", res.Duration()),
	)
	if r.observer != nil {
		r.observer.PassCompleted(ctx, res)
	}
	return res, nil
}

func (r *Reconciler) presentOutput(ctx context.Context, logger *slog.Logger, output string) string {
	if output == "" {
		return ""
	}
	sinks, err := r.srv.ListSinksShort(ctx)
	if err != nil {
		// cannot verify; trust the selection
		return output
	}
	for _, s := range sinks {
		if s.Name == output {
			return output
		}
	}
	logging.WarnWithContext(logger, "selected hardware output not present", "output_missing",
		logging.String("output", output),
		logging.String(logging.FieldImpact, "channels are not audible until the device returns"),
		logging.String(logging.FieldErrorHint, "reconnect the device or run mux setup"),
	)
	return ""
}

func (r *Reconciler) unmute(ctx context.Context, logger *slog.Logger, output string, res *Result) {
	if err := r.srv.SetSinkMute(context.WithoutCancel(ctx), output, false); err != nil {
		res.Failures++
		logging.ErrorWithContext(logger, "hardware output left muted", "output_unmute_failed",
			logging.String("output", output), logging.Error(err),
			logging.String(logging.FieldErrorHint, "run mux reconcile or unmute the device manually"))
	}
}

// teardown unloads every protocol-owned loopback. Foreign streams are left alone.
func (r *Reconciler) teardown(ctx context.Context, logger *slog.Logger) (int, int, error) {
	inputs, err := r.srv.ListSinkInputs(ctx)
	if err != nil {
		return 0, 0, err
	}
	seen := map[string]bool{}
	removed, failures := 0, 0
	for _, in := range inputs {
		if !naming.IsOwned(in.MediaName) || in.OwnerModule == "" || seen[in.OwnerModule] {
			continue
		}
		seen[in.OwnerModule] = true
		if err := r.srv.UnloadModule(ctx, in.OwnerModule); err != nil {
			failures++
			logging.WarnWithContext(logger, "link not removed", "link_unload_failed",
				logging.Link(in.MediaName), logging.Error(err))
			continue
		}
		removed++
	}
	return removed, failures, nil
}

// Cleanup removes every protocol-owned link and any stream mix left from an
// earlier run. Used once at startup.
func (r *Reconciler) Cleanup(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	logger := logging.WithContext(ctx, r.logger)
	removed, _, err := r.teardown(ctx, logger)
	if err != nil {
		return removed, err
	}
	r.res.Invalidate()
	if _, err := r.prov.Remove(ctx, mixer.StreamMixDevice()); err != nil {
		return removed, err
	}
	if removed > 0 {
		logger.Info("stale links removed", logging.String(logging.FieldEventType, "startup_cleanup"), logging.Int("links_removed", removed))
	}
	return removed, nil
}

func (r *Reconciler) reconcileStreamMix(ctx context.Context, logger *slog.Logger, want bool, inv *provision.Inventory, res *Result) {
	dev := mixer.StreamMixDevice()
	if want {
		if _, err := r.prov.Ensure(ctx, dev); err != nil {
			res.Failures++
			res.StreamMix = false
			logging.WarnWithContext(logger, "stream mix not provisioned", "stream_mix_failed", logging.Error(err),
				logging.String(logging.FieldImpact, "stream links are skipped this pass"))
			return
		}
		if inv.Sinks != nil {
			inv.Sinks[dev.Name] = true
		}
		return
	}
	if _, err := r.prov.Remove(ctx, dev); err != nil {
		res.Failures++
		logging.WarnWithContext(logger, "stream mix not removed", "stream_mix_failed", logging.Error(err))
		return
	}
	if inv.Sinks != nil {
		delete(inv.Sinks, dev.Name)
	}
}

func (r *Reconciler) createLinks(ctx context.Context, logger *slog.Logger, plan mixer.Plan, inv provision.Inventory, res *Result) {
	for _, link := range plan.Links {
		name := link.Name.String()
		if !r.endpointsPresent(link, inv) {
			logger.Debug("link skipped; endpoint missing",
				logging.Link(name),
				logging.String("source", link.Source),
				logging.String("sink", link.Sink),
			)
			continue
		}
		_, err := r.srv.LoadLoopback(ctx, pulse.LoopbackSpec{
			Source:    link.Source,
			Sink:      link.Sink,
			LatencyMS: link.LatencyMS,
			MediaName: name,
		})
		if err != nil {
			res.Failures++
			logging.WarnWithContext(logger, "link not created", "link_load_failed",
				logging.Link(name), logging.Error(err))
			continue
		}
		res.LinksCreated++
		res.Links = append(res.Links, name)
	}
}

// endpointsPresent enforces that links only reference confirmed devices. A
// failed listing leaves the inventory empty, so nothing is created.
func (r *Reconciler) endpointsPresent(link mixer.Link, inv provision.Inventory) bool {
	return inv.Sinks[link.Sink] && inv.Sources[link.Source]
}

func (r *Reconciler) setDefaults(ctx context.Context, logger *slog.Logger, inv provision.Inventory, res *Result) {
	if inv.Sinks[naming.DeviceGame] {
		if err := r.srv.SetDefaultSink(ctx, naming.DeviceGame); err != nil {
			res.Failures++
			logging.WarnWithContext(logger, "default sink not set", "default_sink_failed", logging.Error(err))
		}
	}
	if inv.Sources[naming.DeviceMicPublic] {
		if err := r.srv.SetDefaultSource(ctx, naming.DeviceMicPublic); err != nil {
			res.Failures++
			logging.WarnWithContext(logger, "default source not set", "default_source_failed", logging.Error(err))
		}
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
