package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"mux/internal/config"
	"mux/internal/deps"
	"mux/internal/engine"
	"mux/internal/logging"
	"mux/internal/metrics"
	"mux/internal/routing"
)

// Daemon owns the engine lifecycle and enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	engine  *engine.Engine
	metrics *metrics.Metrics
	logPath string

	lockPath string
	lock     *flock.Flock

	hotplug *netlinkMonitor
	api     *apiServer

	running  atomic.Bool
	mu       sync.Mutex
	cancel   context.CancelFunc
	loopDone chan struct{}

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

// Status represents daemon runtime information.
type Status struct {
	Running          bool          `json:"running"`
	PID              int           `json:"pid"`
	LockFilePath     string        `json:"lock_path"`
	SocketPath       string        `json:"socket_path"`
	JournalPath      string        `json:"journal_path,omitempty"`
	LogPath          string        `json:"log_path"`
	HotplugMonitored bool          `json:"hotplug_monitored"`
	Engine           engine.Status `json:"engine"`
	Dependencies     []deps.Status `json:"dependencies"`
}

// New constructs a daemon around an engine. The lock file lives in the log
// directory.
func New(cfg *config.Config, eng *engine.Engine, logger *slog.Logger, m *metrics.Metrics) (*Daemon, error) {
	if cfg == nil || eng == nil {
		return nil, errors.New("daemon requires config and engine")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "muxd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		engine:   eng,
		metrics:  m,
		logPath:  filepath.Join(cfg.Paths.LogDir, logging.FileName),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		shutdown: make(chan struct{}),
	}
	if cfg.Hotplug.Enabled {
		d.hotplug = newNetlinkMonitor(logger, cfg.HotplugSettle(), d.onHotplug)
	}
	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the lock, runs the engine startup sequence, and launches the
// background loops, the hot-plug monitor, and the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another mux daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.engine.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start engine: %w", err)
	}

	d.cancel = cancel
	d.loopDone = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		if err := d.engine.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("engine loop stopped", logging.Error(err),
				logging.String(logging.FieldEventType, "engine_loop_failed"))
		}
	}(d.loopDone)

	if err := d.hotplug.Start(runCtx); err != nil {
		d.logger.Warn("hot-plug monitor unavailable", logging.Error(err))
	}
	if err := d.api.start(runCtx); err != nil {
		logging.WarnWithContext(d.logger, "http api unavailable", "api_start_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "status and metrics are only available over the socket"),
			logging.String(logging.FieldErrorHint, "check paths.api_bind"),
		)
	}

	d.running.Store(true)
	d.logger.Info("mux daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath))
	return nil
}

// Stop halts the background loops, flushes pending state, and releases the
// lock. The engine cannot be restarted afterwards.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.hotplug.Stop()
	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.loopDone != nil {
		<-d.loopDone
		d.loopDone = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("mux daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and releases the engine.
func (d *Daemon) Close() error {
	d.Stop()
	return d.engine.Close()
}

// RequestShutdown asks the hosting process to exit. It is safe to call more
// than once.
func (d *Daemon) RequestShutdown() {
	d.shutdownOnce.Do(func() { close(d.shutdown) })
}

// ShutdownRequested is closed once RequestShutdown has been called.
func (d *Daemon) ShutdownRequested() <-chan struct{} {
	return d.shutdown
}

// Engine exposes the mixer operations.
func (d *Daemon) Engine() *engine.Engine {
	return d.engine
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	st := Status{
		Running:          d.running.Load(),
		PID:              os.Getpid(),
		LockFilePath:     d.lockPath,
		SocketPath:       d.cfg.Paths.SocketPath,
		LogPath:          d.logPath,
		HotplugMonitored: d.hotplug.Running(),
		Engine:           d.engine.Status(),
		Dependencies:     deps.Resolve(ctx, d.cfg),
	}
	if d.cfg.Journal.Enabled {
		st.JournalPath = d.cfg.Paths.JournalPath
	}
	return st
}

func (d *Daemon) onHotplug(ctx context.Context, summary string) {
	d.engine.RecordHotplug(ctx, summary)
	if _, err := d.engine.Reconcile(ctx, routing.ReasonHotplug); err != nil {
		logging.WarnWithContext(d.logger, "reconciliation after hot-plug failed", "hotplug_pass_failed",
			logging.Error(err))
	}
}
