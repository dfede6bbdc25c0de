// Package port finds free TCP ports for the diagnostic service and tells
// which process owns an existing listener.
//
// Availability is only ever decided by binding: the Scanner listens on the
// loopback address and closes the socket right away. The Resolver draws
// random candidates from a range with an explicitly owned generator and
// gives up after as many checks as the range has ports, so the search always
// terminates.
//
// Listener ownership is advisory. ListenerLookup implementations parse
// platform tool output or the socket table, and report "not found" on any
// failure instead of returning an error.
package port
