// Package logs reads the daemon log file for `mux logs`.
//
// Tail returns the last N lines or everything after a byte offset, and can
// wait for new lines in follow mode. The returned offset is the cursor for the
// next call, so the CLI can poll over the control socket without holding the
// file open.
package logs
