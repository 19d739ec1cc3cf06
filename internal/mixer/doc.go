// Package mixer holds the entity model shared by every engine component:
// channels and tracks, routing intent, the desired link set for an intent,
// hotkey bindings, and the lock-guarded in-memory channel state.
package mixer
