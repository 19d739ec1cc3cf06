package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"mux/internal/logging"
	"mux/internal/services"
)

// DefaultDebounce is the quiet period before a scheduled save is written.
const DefaultDebounce = 500 * time.Millisecond

const reloadDelay = 100 * time.Millisecond

// Options configure a Store.
type Options struct {
	Debounce time.Duration
	Logger   *slog.Logger
	// OnReload runs after an external edit replaced the in-memory document.
	OnReload func(Document)
}

// Store owns the in-memory mixer document and its file.
type Store struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger

	mu          sync.Mutex
	doc         Document
	timer       *time.Timer
	pending     bool
	lastWritten []byte
	onReload    func(Document)

	writeMu sync.Mutex
}

// Load reads the document at path. A missing file yields the defaults and no
// error; a malformed one yields the defaults and the decode error.
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Default(), services.Wrap(services.ErrConfiguration, "store", "load", "read mixer document", err)
	}
	doc, err := Decode(data)
	if err != nil {
		return Default(), services.Wrap(services.ErrConfiguration, "store", "load", "parse mixer document", err)
	}
	return doc, nil
}

// Open loads path and returns a store around it. Load problems are logged and
// the defaults are used.
func Open(path string, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	doc, err := Load(path)
	if err != nil {
		logging.WarnWithContext(logger, "mixer document unreadable; using defaults", "store_load_failed",
			logging.String("state_path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix or delete the file; it will be rewritten on the next change"),
		)
	}
	return &Store{
		path:     path,
		debounce: debounce,
		logger:   logger,
		doc:      doc,
		onReload: opts.OnReload,
	}
}

// Path returns the document location.
func (s *Store) Path() string { return s.path }

// Snapshot returns a deep copy of the current document.
func (s *Store) Snapshot() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// Update mutates the document under lock. When fn reports a change a save is
// scheduled.
func (s *Store) Update(fn func(doc *Document) bool) bool {
	s.mu.Lock()
	changed := fn(&s.doc)
	s.mu.Unlock()
	if changed {
		s.ScheduleSave()
	}
	return changed
}

// ScheduleSave writes the document once no further call has arrived for the
// debounce period.
func (s *Store) ScheduleSave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = true
	if s.timer != nil {
		s.timer.Reset(s.debounce)
		return
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		if err := s.Flush(); err != nil {
			logging.WarnWithContext(s.logger, "scheduled save failed", "store_save_failed",
				logging.String("state_path", s.path),
				logging.Error(err),
			)
		}
	})
}

// Pending reports whether a scheduled save has not been written yet.
func (s *Store) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Flush writes a pending save immediately.
func (s *Store) Flush() error {
	s.mu.Lock()
	pending := s.pending
	s.mu.Unlock()
	if !pending {
		return nil
	}
	return s.Save()
}

// Save writes the current document now and cancels any pending save.
func (s *Store) Save() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = false
	data, err := Encode(s.doc)
	s.mu.Unlock()
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "store", "save", "encode mixer document", err)
	}
	if err := writeFile(s.path, data); err != nil {
		return services.Wrap(services.ErrConfiguration, "store", "save", "write mixer document", err)
	}

	s.mu.Lock()
	s.lastWritten = data
	s.mu.Unlock()
	s.logger.Debug("mixer document saved", logging.String("state_path", s.path))
	return nil
}

// writeFile replaces path atomically via a hidden sibling temp file.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, "."+filepath.Base(path)+".new")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp, path)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Watch reloads the document when another program rewrites it, until ctx is
// done. Events caused by our own saves are ignored by content comparison.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start state file watcher: %w", err)
	}
	defer watcher.Close()

	// The directory is watched because saves replace the file by rename.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(s.path), err)
	}

	target := filepath.Clean(s.path)
	var chanReload <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-chanReload:
			chanReload = nil
			s.reload()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			chanReload = time.After(reloadDelay)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Debug("state file watcher error", logging.Error(err))
		}
	}
}

func (s *Store) reload() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Debug("state file reload skipped", logging.Error(err))
		}
		return
	}

	s.mu.Lock()
	own := bytes.Equal(data, s.lastWritten)
	s.mu.Unlock()
	if own {
		return
	}

	doc, err := Decode(data)
	if err != nil {
		logging.WarnWithContext(s.logger, "external edit to mixer document is malformed; keeping current state", "store_reload_failed",
			logging.String("state_path", s.path),
			logging.Error(err),
		)
		return
	}

	s.mu.Lock()
	s.doc = doc
	s.lastWritten = data
	callback := s.onReload
	s.mu.Unlock()

	s.logger.Info("mixer document reloaded after external edit", logging.String("state_path", s.path))
	if callback != nil {
		callback(doc.Clone())
	}
}

// SetReloadHandler replaces the callback run after an external edit.
func (s *Store) SetReloadHandler(fn func(Document)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReload = fn
}
