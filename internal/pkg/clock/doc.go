// Package clock provides a tiny time abstraction.
//
// TOTP counters are derived from the current instant, so the verifier depends
// on Clocker instead of calling time.Now directly. Tests use Fixed to place a
// request at an exact time step.
package clock
