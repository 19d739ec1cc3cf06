// Package config loads, normalizes, and validates mux daemon settings.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes the knobs the
// daemon and CLI need: where the mixer state document and control socket live,
// how long each pactl call may block, link latencies, and poll cadence.
//
// The mixer's own persisted state (routing intent, hotkeys, volumes) is a
// separate JSON document handled by the store package.
package config
