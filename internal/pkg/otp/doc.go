// Package otp computes and searches time-based one-time passwords (TOTP).
//
// The HMAC truncation itself comes from github.com/pquerna/otp. This package
// layers the parts the rest of the service depends on: an immutable Params
// value that is frozen into every stored secret, counter arithmetic, a
// drift-window search that reports which counter matched (so callers can run
// replay checks against it), and otpauth:// provisioning URIs.
package otp
