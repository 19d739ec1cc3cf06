// Package hotkeys keeps the live combo -> (channel, action) table and the
// listener that feeds it.
//
// Key capture itself happens outside the daemon. The built-in
// TriggerListener receives combos over the control socket; any other
// Listener implementation can be plugged into the Manager.
package hotkeys
