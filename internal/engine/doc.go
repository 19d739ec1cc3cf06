// Package engine holds the explicit context that ties the mixer together:
// channel state, the persisted document, the resolved-id cache, and every
// component that reads or writes them.
//
// One Engine exists per daemon. It owns the startup sequence (cleanup,
// first pass, volume restore), the background loops (state sync and the
// document watcher), and the control operations served over the socket.
package engine
