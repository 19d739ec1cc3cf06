// Package preflight provides readiness checks for the audio server and the
// filesystem paths the mixer daemon depends on.
//
// These checks run in two contexts:
//   - daemonrun calls RunAll once at startup and logs failures. A failed
//     check never stops the daemon; the next reconciliation pass retries.
//   - The CLI "mux status" command uses individual check functions
//     (CheckAudioServer, CheckDirectoryAccess) to display system health.
package preflight
