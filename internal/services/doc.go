// Package services defines shared utilities consumed by the routing engine
// components and the external audio-server integration.
//
// Key responsibilities:
//   - Context helpers that stamp reconciliation pass IDs, component names, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so callers can tell
//     transient audio-server failures (retry next tick) from caller mistakes.
//
// Use these helpers when wiring new engine logic so operational behaviour
// (error handling, observability, retries) stays uniform across components.
package services
