package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jrick/logrotate/rotator"

	"mux/internal/config"
)

// FileName is the daemon log file inside the log directory.
const FileName = "mux.log"

const (
	rotateKB       = 1024
	maxRolledFiles = 8
)

// Options describes logger construction parameters.
type Options struct {
	Level       string
	Format      string
	Development bool
	// Stdout mirrors output to the terminal. File, when set, receives a
	// rotated copy of every line.
	Stdout bool
	File   string
	// Writer overrides every other destination. Used by tests.
	Writer io.Writer
}

// Logger bundles the slog logger with the resources backing it.
type Logger struct {
	*slog.Logger
	rotator *rotator.Rotator
}

// Close flushes and closes the rotated log file, if any.
func (l *Logger) Close() error {
	if l == nil || l.rotator == nil {
		return nil
	}
	return l.rotator.Close()
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*Logger, error) {
	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(opts.Level))

	writer, rot, err := openWriter(opts)
	if err != nil {
		return nil, err
	}

	addSource := opts.Development || levelVar.Level() <= slog.LevelDebug

	var handler slog.Handler
	switch format := strings.ToLower(strings.TrimSpace(opts.Format)); format {
	case "json":
		handler = newJSONHandler(writer, levelVar, addSource)
	case "console", "":
		handler = newPrettyHandler(writer, levelVar, addSource)
	default:
		if rot != nil {
			rot.Close()
		}
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	return &Logger{Logger: slog.New(handler), rotator: rot}, nil
}

// NewFromConfig creates the daemon logger: terminal output plus a rotated
// file under the configured log directory.
func NewFromConfig(cfg *config.Config) (*Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info", Format: "console", Stdout: true})
	}
	opts := Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Stdout: true,
	}
	if dir := strings.TrimSpace(cfg.Paths.LogDir); dir != "" {
		opts.File = filepath.Join(dir, FileName)
	}
	return New(opts)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openWriter(opts Options) (io.Writer, *rotator.Rotator, error) {
	if opts.Writer != nil {
		return opts.Writer, nil, nil
	}

	var writers []io.Writer
	if opts.Stdout {
		writers = append(writers, os.Stdout)
	}

	var rot *rotator.Rotator
	if path := strings.TrimSpace(opts.File); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("ensure log directory: %w", err)
		}
		var err error
		rot, err = rotator.New(path, rotateKB, false, maxRolledFiles)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %s: %w", path, err)
		}
		writers = append(writers, rot)
	}

	switch len(writers) {
	case 0:
		return os.Stderr, nil, nil
	case 1:
		return writers[0], rot, nil
	default:
		return io.MultiWriter(writers...), rot, nil
	}
}
