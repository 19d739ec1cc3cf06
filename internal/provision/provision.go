// Package provision idempotently creates and removes the daemon's virtual
// devices. Every call re-reads the server listing; the server, not this
// process, owns device lifecycles across restarts.
package provision

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mux/internal/logging"
	"mux/internal/mixer"
	"mux/internal/naming"
	"mux/internal/pulse"
	"mux/internal/services"
)

// Server is the slice of the audio server the provisioner drives.
type Server interface {
	ListSinksShort(ctx context.Context) ([]pulse.ShortEntry, error)
	ListSourcesShort(ctx context.Context) ([]pulse.ShortEntry, error)
	ListModules(ctx context.Context) ([]pulse.Module, error)
	LoadNullSink(ctx context.Context, name string, props pulse.DeviceProps) (string, error)
	LoadRemapSource(ctx context.Context, master, name string, props pulse.DeviceProps) (string, error)
	UnloadModule(ctx context.Context, id string) error
	SetSinkVolume(ctx context.Context, sink string, percent int) error
	SetSinkMute(ctx context.Context, sink string, muted bool) error
}

// Provisioner ensures virtual devices exist.
type Provisioner struct {
	srv          Server
	logger       *slog.Logger
	deviceSettle time.Duration
}

// New constructs a Provisioner. deviceSettle is the pause between creating
// the microphone bus and remapping its monitor.
func New(srv Server, logger *slog.Logger, deviceSettle time.Duration) *Provisioner {
	return &Provisioner{
		srv:          srv,
		logger:       logging.NewComponentLogger(logger, "provision"),
		deviceSettle: deviceSettle,
	}
}

// Inventory is the set of device names currently present.
type Inventory struct {
	Sinks   map[string]bool
	Sources map[string]bool
}

// Has reports whether a device of the given kind is present.
func (i Inventory) Has(kind mixer.DeviceKind, name string) bool {
	if kind == mixer.KindSource {
		return i.Sources[name]
	}
	return i.Sinks[name]
}

// Inventory lists current sinks and sources.
func (p *Provisioner) Inventory(ctx context.Context) (Inventory, error) {
	inv := Inventory{Sinks: map[string]bool{}, Sources: map[string]bool{}}
	sinks, err := p.srv.ListSinksShort(ctx)
	if err != nil {
		return inv, err
	}
	for _, s := range sinks {
		inv.Sinks[s.Name] = true
	}
	sources, err := p.srv.ListSourcesShort(ctx)
	if err != nil {
		return inv, err
	}
	for _, s := range sources {
		inv.Sources[s.Name] = true
	}
	return inv, nil
}

// Ensure creates dev when it is absent and confirms it afterwards. The
// returned bool reports whether a creation happened.
func (p *Provisioner) Ensure(ctx context.Context, dev mixer.VirtualDevice) (bool, error) {
	inv, err := p.Inventory(ctx)
	if err != nil {
		return false, err
	}
	return p.ensureWith(ctx, inv, dev)
}

func (p *Provisioner) ensureWith(ctx context.Context, inv Inventory, dev mixer.VirtualDevice) (bool, error) {
	if inv.Has(dev.Kind, dev.Name) {
		return false, nil
	}

	switch dev.Purpose {
	case mixer.PurposeMicPublic:
		if err := p.ensureMicBus(ctx, inv); err != nil {
			return false, err
		}
		props := pulse.DeviceProps{Description: dev.Description, IconName: naming.MicPublicIcon}
		if _, err := p.srv.LoadRemapSource(ctx, naming.Monitor(naming.DeviceMicBus), dev.Name, props); err != nil {
			return false, err
		}
	default:
		if _, err := p.srv.LoadNullSink(ctx, dev.Name, pulse.DeviceProps{Description: dev.Description}); err != nil {
			return false, err
		}
	}

	confirmed, err := p.Inventory(ctx)
	if err != nil {
		return true, err
	}
	if !confirmed.Has(dev.Kind, dev.Name) {
		return true, services.Wrap(services.ErrNotFound, "provision", "ensure", fmt.Sprintf("%s not present after creation", dev.Name), nil)
	}

	if dev.Kind == mixer.KindSink {
		if err := p.srv.SetSinkVolume(ctx, dev.Name, 100); err != nil {
			logging.WarnWithContext(p.logger, "initial sink volume not applied", "device_defaults_failed",
				logging.String("device", dev.Name), logging.Error(err))
		}
		if err := p.srv.SetSinkMute(ctx, dev.Name, false); err != nil {
			logging.WarnWithContext(p.logger, "initial sink unmute not applied", "device_defaults_failed",
				logging.String("device", dev.Name), logging.Error(err))
		}
	}
	p.logger.Info("virtual device created",
		logging.String(logging.FieldEventType, "device_created"),
		logging.String("device", dev.Name),
		logging.String("purpose", string(dev.Purpose)),
	)
	return true, nil
}

func (p *Provisioner) ensureMicBus(ctx context.Context, inv Inventory) error {
	if inv.Sinks[naming.DeviceMicBus] {
		return nil
	}
	bus := mixer.VirtualDevice{Name: naming.DeviceMicBus, Description: naming.MicBusLabel, Kind: mixer.KindSink, Purpose: mixer.PurposeMicBus}
	if _, err := p.ensureWith(ctx, inv, bus); err != nil {
		return err
	}
	return sleepContext(ctx, p.deviceSettle)
}

// EnsureBase provisions the channel sinks and the two-step microphone. It
// returns the inventory after provisioning. Individual failures are logged
// and skipped so a single broken device does not block the rest.
func (p *Provisioner) EnsureBase(ctx context.Context) (Inventory, error) {
	inv, err := p.Inventory(ctx)
	if err != nil {
		return inv, err
	}
	for _, dev := range mixer.BaseDevices() {
		if dev.Purpose == mixer.PurposeMicBus {
			// created together with the public mic so the settle pause applies
			continue
		}
		created, err := p.ensureWith(ctx, inv, dev)
		if err != nil {
			logging.WarnWithContext(p.logger, "virtual device not provisioned", "device_provision_failed",
				logging.String("device", dev.Name),
				logging.Error(err),
				logging.String(logging.FieldImpact, "links through this device are skipped until the next pass"),
			)
			continue
		}
		if created {
			if inv, err = p.Inventory(ctx); err != nil {
				return inv, err
			}
		}
	}
	return inv, nil
}

// Remove unloads every module that created dev. It returns how many modules
// were unloaded.
func (p *Provisioner) Remove(ctx context.Context, dev mixer.VirtualDevice) (int, error) {
	modules, err := p.srv.ListModules(ctx)
	if err != nil {
		return 0, err
	}
	key := "sink_name=" + dev.Name
	if dev.Kind == mixer.KindSource {
		key = "source_name=" + dev.Name
	}
	removed := 0
	for _, mod := range modules {
		if !hasArg(mod.Args, key) {
			continue
		}
		if err := p.srv.UnloadModule(ctx, mod.ID); err != nil {
			return removed, err
		}
		removed++
	}
	if removed > 0 {
		p.logger.Info("virtual device removed",
			logging.String(logging.FieldEventType, "device_removed"),
			logging.String("device", dev.Name),
			logging.Int("modules", removed),
		)
	}
	return removed, nil
}

func hasArg(args, key string) bool {
	for _, field := range strings.Fields(args) {
		if field == key {
			return true
		}
	}
	return false
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
