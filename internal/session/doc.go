// Package session owns the camera stream session lifecycle: one session
// per occupied grid slot, each with retry/backoff, stall detection, and
// startup sequencing.
//
// All session state is confined to the Manager's loop goroutine. Public
// Manager methods post closures onto that loop; timers fire back onto it.
// Nothing in this package takes a lock around session state because only
// one goroutine ever touches it.
package session
