// Package daemon coordinates the long-running mux process and its system
// integration points.
//
// It wraps the mixer engine in a lifecycle with flock-based locking so only one
// daemon drives the audio server, subscribes to udev sound events so a
// re-plugged device regains its links, and serves a small HTTP API with status
// and Prometheus metrics.
//
// Mixer behaviour lives in the engine and the packages beneath it; the daemon
// only starts, stops, and exposes them.
package daemon
