package hotkeys

import (
	"context"
	"sync"
)

// TriggerListener is a Listener whose combos arrive through Trigger calls,
// typically from the control socket.
type TriggerListener struct {
	mu     sync.Mutex
	fire   FireFunc
	combos map[string]struct{}
}

// NewTriggerListener returns a stopped listener.
func NewTriggerListener() *TriggerListener {
	return &TriggerListener{}
}

// Start implements Listener.
func (l *TriggerListener) Start(combos []string, fire FireFunc) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fire = fire
	l.combos = make(map[string]struct{}, len(combos))
	for _, c := range combos {
		l.combos[c] = struct{}{}
	}
	return nil
}

// Stop implements Listener.
func (l *TriggerListener) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fire = nil
	l.combos = nil
	return nil
}

// Trigger delivers a combo and returns the number of bindings it ran. A
// stopped listener or an unbound combo runs nothing.
func (l *TriggerListener) Trigger(ctx context.Context, combo string) int {
	combo = NormalizeCombo(combo)
	l.mu.Lock()
	fire := l.fire
	_, bound := l.combos[combo]
	l.mu.Unlock()
	if fire == nil || !bound {
		return 0
	}
	return fire(ctx, combo)
}

// Listening reports whether Start has been called without a matching Stop.
func (l *TriggerListener) Listening() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fire != nil
}
