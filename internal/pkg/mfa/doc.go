// Package mfa seals TOTP shared secrets at rest.
//
// A KeyRing holds one or more symmetric keys addressed by id. The Codec mints
// random secrets and wraps them in a self-describing Envelope that records the
// key id and the token parameters, so secrets stay readable across key
// rotation and parameter changes.
package mfa
