// Package routing applies a RoutingIntent to the audio server.
//
// Each pass is a full teardown and rebuild of the protocol-owned link set,
// wrapped in a mute of the selected hardware output so module churn is not
// audible. Passes never overlap: identical concurrent requests share one
// pass, different ones queue behind it.
package routing
