// Package logging assembles structured slog loggers and formatting helpers
// used across the mux daemon and CLI.
//
// It owns the console and JSON handlers, rotates the daemon log file, and
// exposes context-aware helpers so reconciliation code automatically tags
// log lines with pass identifiers and correlation IDs. A no-op logger is
// provided for tests and wiring code that cannot fail.
package logging
