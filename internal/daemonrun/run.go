package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"mux/internal/config"
	"mux/internal/daemon"
	"mux/internal/daemonctl"
	"mux/internal/engine"
	"mux/internal/ipc"
	"mux/internal/journal"
	"mux/internal/logging"
	"mux/internal/metrics"
	"mux/internal/preflight"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// Cleanup removes every link on exit instead of leaving routing intact
	// for the next start.
	Cleanup bool
}

// Run starts the mux daemon and blocks until a signal arrives or a client
// asks it to stop.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}
	baseLogger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer baseLogger.Close()
	logger := baseLogger.Logger

	pidPath := filepath.Join(cfg.Paths.LogDir, daemonctl.PIDFileName)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	runPreflight(signalCtx, logger, cfg)

	var jrnl *journal.Journal
	if cfg.Journal.Enabled {
		jrnl, err = journal.Open(cfg.Paths.JournalPath)
		if err != nil {
			logger.Warn("journal unavailable",
				logging.Error(err),
				logging.String("journal_path", cfg.Paths.JournalPath),
				logging.String(logging.FieldEventType, "journal_open_failed"),
				logging.String(logging.FieldImpact, "reconciliation history will not be recorded"),
				logging.String(logging.FieldErrorHint, "check permissions on the journal path or disable [journal]"),
			)
			jrnl = nil
		} else {
			defer jrnl.Close()
		}
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	eng, err := engine.New(engine.Options{
		Config:  cfg,
		Logger:  logger,
		Journal: jrnl,
		Metrics: m,
	})
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	d, err := daemon.New(cfg, eng, logger, m)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check that no other muxd instance holds the lock"),
			logging.String(logging.FieldImpact, "routing is not being reconciled"),
		)
	}

	select {
	case <-signalCtx.Done():
	case <-d.ShutdownRequested():
	}
	logger.Info("mux daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))

	d.Stop()
	if !opts.Cleanup {
		return nil
	}
	// Cleanup gets its own deadline; the signal context is already done.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.CommandTimeout()*4)
	defer shutdownCancel()
	if removed, err := eng.Shutdown(shutdownCtx); err != nil {
		logger.Warn("link cleanup incomplete",
			logging.Error(err),
			logging.Int("removed", removed),
			logging.String(logging.FieldEventType, "shutdown_cleanup_failed"),
			logging.String(logging.FieldImpact, "leftover links are removed on next start"),
		)
	}
	return nil
}

func runPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	for _, result := range preflight.RunAll(ctx, cfg, nil) {
		if result.Passed {
			logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail))
			continue
		}
		logger.Warn("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldEventType, "preflight_failed"),
			logging.String(logging.FieldImpact, "reconciliation may fail until this is fixed"),
		)
	}
	for _, dep := range preflight.CheckSystemDeps(ctx, cfg) {
		logger.Info("dependency snapshot",
			logging.String(logging.FieldEventType, "dependency_snapshot"),
			logging.String("name", dep.Name),
			logging.String("command", dep.Command),
			logging.Bool("available", dep.Available),
			logging.String("version", dep.Version),
		)
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
