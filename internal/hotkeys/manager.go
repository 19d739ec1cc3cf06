package hotkeys

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"mux/internal/logging"
	"mux/internal/mixer"
)

// State is the manager's listener state.
type State string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
)

// FireFunc is handed to a listener; it runs every binding of combo and
// returns how many matched.
type FireFunc func(ctx context.Context, combo string) int

// Listener delivers key combos between Start and Stop.
type Listener interface {
	Start(combos []string, fire FireFunc) error
	Stop() error
}

// Handler executes one binding.
type Handler func(ctx context.Context, binding mixer.HotkeyBinding)

// Manager rebuilds the binding table and restarts the listener around it.
type Manager struct {
	listener Listener
	handler  Handler
	logger   *slog.Logger

	mu    sync.Mutex
	state State
	table map[string][]mixer.HotkeyBinding
}

// NewManager returns an idle manager.
func NewManager(listener Listener, handler Handler, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		listener: listener,
		handler:  handler,
		logger:   logger,
		state:    StateIdle,
		table:    map[string][]mixer.HotkeyBinding{},
	}
}

// Rebuild stops the current listener, recomputes the table from bindings,
// and starts a new listener when anything is bound. Stream actions are left
// out while streamer mode is off.
func (m *Manager) Rebuild(bindings []mixer.HotkeyBinding, streamerMode bool) error {
	table := BuildTable(bindings, streamerMode)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateListening {
		if err := m.listener.Stop(); err != nil {
			m.logger.Warn("hotkey listener stop failed",
				logging.String(logging.FieldEventType, "hotkey_stop_failed"),
				logging.Error(err),
			)
		}
		m.state = StateIdle
	}
	m.table = table
	if len(table) == 0 {
		m.logger.Debug("no hotkeys bound; listener idle")
		return nil
	}

	combos := make([]string, 0, len(table))
	for combo := range table {
		combos = append(combos, combo)
	}
	sort.Strings(combos)
	if err := m.listener.Start(combos, m.fire); err != nil {
		return fmt.Errorf("start hotkey listener: %w", err)
	}
	m.state = StateListening
	m.logger.Info("hotkey listener started",
		logging.String(logging.FieldEventType, "hotkeys_rebuilt"),
		logging.Int("combos", len(combos)),
		logging.Bool("streamer_mode", streamerMode),
	)
	return nil
}

// BuildTable maps normalized combos to their bindings.
func BuildTable(bindings []mixer.HotkeyBinding, streamerMode bool) map[string][]mixer.HotkeyBinding {
	table := map[string][]mixer.HotkeyBinding{}
	for _, b := range bindings {
		combo := NormalizeCombo(b.Combo)
		if combo == "" {
			continue
		}
		if b.Action.IsStream() && !streamerMode {
			continue
		}
		b.Combo = combo
		table[combo] = append(table[combo], b)
	}
	return table
}

// Stop shuts the listener down and leaves the manager idle.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateListening {
		return nil
	}
	m.state = StateIdle
	m.table = map[string][]mixer.HotkeyBinding{}
	return m.listener.Stop()
}

// State reports whether a listener is running.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Active returns the bindings in the live table ordered by combo.
func (m *Manager) Active() []mixer.HotkeyBinding {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mixer.HotkeyBinding
	for _, bindings := range m.table {
		out = append(out, bindings...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Combo != out[j].Combo {
			return out[i].Combo < out[j].Combo
		}
		if out[i].Channel != out[j].Channel {
			return out[i].Channel < out[j].Channel
		}
		return out[i].Action < out[j].Action
	})
	return out
}

func (m *Manager) fire(ctx context.Context, combo string) int {
	combo = NormalizeCombo(combo)
	m.mu.Lock()
	bindings := append([]mixer.HotkeyBinding(nil), m.table[combo]...)
	m.mu.Unlock()

	for _, b := range bindings {
		m.logger.Debug("hotkey fired",
			logging.String("combo", combo),
			logging.Channel(b.Channel),
			logging.String("action", string(b.Action)),
		)
		m.handler(ctx, b)
	}
	return len(bindings)
}
