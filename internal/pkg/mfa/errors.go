package mfa

import "errors"

var (
	// ErrInvalidConfig indicates an empty or malformed key ring. It is returned
	// at construction time, never at first use.
	ErrInvalidConfig = errors.New("mfa: invalid key ring configuration")
	// ErrUnknownKey indicates an envelope tagged with a key id that is no longer
	// in the key ring. The secret must be re-enrolled.
	ErrUnknownKey = errors.New("mfa: unknown key id")
	// ErrDecrypt indicates a ciphertext integrity failure (tampering or corruption).
	ErrDecrypt = errors.New("mfa: decrypt failed")
	// ErrEntropy indicates the random source failed. It is not retried.
	ErrEntropy = errors.New("mfa: random source failed")
	// ErrMalformedEnvelope indicates an envelope that cannot be decoded.
	ErrMalformedEnvelope = errors.New("mfa: malformed envelope")
	// ErrUnsupportedEnvelope indicates an unknown envelope version or type.
	ErrUnsupportedEnvelope = errors.New("mfa: unsupported envelope")
)
