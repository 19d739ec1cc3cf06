// Package main hosts the mux CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into IPC calls
// against muxd: volume and mute changes, application moves, device selection,
// streamer mode, hotkey bindings, journal listings, and log tailing. Daemon
// lifecycle commands launch or stop the muxd process. Configuration
// resolution and socket discovery live here so subcommands stay small.
package main
