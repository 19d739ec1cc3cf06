// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships the
// matching client used by the CLI.
//
// It owns socket lifecycle management and the request/response DTOs. Channel,
// track, and action names travel as strings and are parsed on the server, so
// the CLI never needs to know the accepted spellings.
package ipc
