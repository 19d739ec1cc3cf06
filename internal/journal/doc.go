// Package journal records reconciliation passes and drift corrections in a
// small SQLite database so that `mux history` can explain what the daemon
// did and when.
//
// The journal is diagnostic only. Callers log write failures and carry on;
// nothing in the routing path depends on it.
package journal
