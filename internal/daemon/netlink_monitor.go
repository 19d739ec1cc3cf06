package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pilebones/go-udev/netlink"

	"mux/internal/logging"
)

const defaultHotplugSettle = 1500 * time.Millisecond

// netlinkMonitor listens for udev sound events and, once a burst has settled,
// asks for one re-reconciliation so a re-plugged device regains its links.
type netlinkMonitor struct {
	logger  *slog.Logger
	settle  time.Duration
	handler func(ctx context.Context, summary string)

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
	timer   *time.Timer
	pending map[string]struct{}
}

// newNetlinkMonitor creates a monitor that calls handler after each settled
// burst of sound-device events.
func newNetlinkMonitor(logger *slog.Logger, settle time.Duration, handler func(ctx context.Context, summary string)) *netlinkMonitor {
	if settle <= 0 {
		settle = defaultHotplugSettle
	}
	return &netlinkMonitor{
		logger:  logging.NewComponentLogger(logger, "netlink-monitor"),
		settle:  settle,
		handler: handler,
		pending: map[string]struct{}{},
	}
}

// Start begins listening for udev netlink events. A connect failure is logged
// and the daemon keeps running on polling alone.
func (m *netlinkMonitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("failed to connect to netlink socket; device hot-plug will not trigger reconciliation",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the daemon may open netlink sockets, or run mux reconcile after plugging devices"),
			logging.String(logging.FieldImpact, "re-plugged devices stay unlinked until the next manual pass"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, quit)

	m.logger.Info("netlink monitor started",
		logging.String(logging.FieldEventType, "netlink_monitor_started"),
		logging.Duration("settle", m.settle),
	)
	return nil
}

// Stop shuts down the netlink monitor and drops any unsettled burst.
func (m *netlinkMonitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.pending = map[string]struct{}{}
	m.running = false

	m.logger.Info("netlink monitor stopped",
		logging.String(logging.FieldEventType, "netlink_monitor_stopped"),
	)
}

// Running reports whether the netlink monitor is active.
func (m *netlinkMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *netlinkMonitor) monitorLoop(ctx context.Context, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(queue, errs, m.buildMatcher())
	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(ctx, uevent)
		case err := <-errs:
			m.logger.Warn("netlink monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "netlink_monitor_error"),
				logging.String(logging.FieldImpact, "a device change may be missed"),
			)
		}
	}
}

// buildMatcher matches SUBSYSTEM=sound with ACTION=add|remove.
func (m *netlinkMonitor) buildMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "sound",
		},
	})
	return rules
}

// handleEvent records a matched uevent and restarts the settle timer.
func (m *netlinkMonitor) handleEvent(ctx context.Context, uevent netlink.UEvent) {
	device := eventDevice(uevent)
	m.logger.Debug("sound device event",
		logging.String("action", string(uevent.Action)),
		logging.String("device", device),
	)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[fmt.Sprintf("%s %s", uevent.Action, device)] = struct{}{}
	if m.timer != nil {
		m.timer.Reset(m.settle)
		return
	}
	m.timer = time.AfterFunc(m.settle, func() { m.flush(ctx) })
}

// flush hands the settled burst to the handler.
func (m *netlinkMonitor) flush(ctx context.Context) {
	m.mu.Lock()
	if len(m.pending) == 0 {
		m.timer = nil
		m.mu.Unlock()
		return
	}
	changes := make([]string, 0, len(m.pending))
	for change := range m.pending {
		changes = append(changes, change)
	}
	m.pending = map[string]struct{}{}
	m.timer = nil
	handler := m.handler
	m.mu.Unlock()

	sort.Strings(changes)
	summary := strings.Join(changes, ", ")
	m.logger.Info("sound devices changed",
		logging.String(logging.FieldEventType, "hotplug_settled"),
		logging.Int("events", len(changes)),
		logging.String("changes", summary),
	)
	if handler != nil && ctx.Err() == nil {
		handler(ctx, summary)
	}
}

// eventDevice names the card or node behind a uevent.
func eventDevice(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		return devname
	}
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		devpath = uevent.KObj
	}
	if devpath == "" {
		return "unknown"
	}
	parts := strings.Split(strings.TrimRight(devpath, "/"), "/")
	return parts[len(parts)-1]
}
