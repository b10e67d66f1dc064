package config

import (
	"io"
	"time"
)

// EnvPrefix is prepended to upper-cased, underscore-joined keys when looking
// up environment overrides, e.g. mfa.keyring.keys -> OTPGUARD_MFA_KEYRING_KEYS.
const EnvPrefix = "OTPGUARD"

// Config defines read access to layered configuration (file, then environment).
//
// Getters never fail. A missing key or an unconvertible value yields the zero
// value, so callers validate what they read at startup.
type Config interface {
	io.Closer

	// GetBool retrieves the value for key as a bool.
	GetBool(key string) bool

	// GetInt retrieves the value for key as an int.
	GetInt(key string) int

	// GetInt32 retrieves the value for key as an int32.
	GetInt32(key string) int32

	// GetInt64 retrieves the value for key as an int64.
	GetInt64(key string) int64

	// GetUint retrieves the value for key as a uint.
	GetUint(key string) uint

	// GetFloat64 retrieves the value for key as a float64.
	GetFloat64(key string) float64

	// GetString retrieves the value for key as a string.
	GetString(key string) string

	// GetSecond retrieves the value for key as a number of seconds.
	GetSecond(key string) time.Duration

	// GetArray retrieves the value for key as a slice of strings.
	// Values are stored as <element1>,<element2>,...
	GetArray(key string) []string
}
