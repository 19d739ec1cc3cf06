// Package store persists the mixer document: routing intent, hotkey
// bindings, and the last known per-channel volumes.
//
// The document is JSON so that the desktop front-ends can read it directly.
// Loading never fails the process; a missing or malformed file yields the
// defaults. Writes go through a temp file and a rename, and bursts of changes
// are coalesced by a trailing debounce timer. Watch reloads the document when
// another program edits it.
package store
