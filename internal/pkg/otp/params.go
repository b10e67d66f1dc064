package otp

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pquerna/otp"
)

const (
	// DefaultPeriod is the RFC 6238 time step in seconds.
	DefaultPeriod uint = 30
	// DefaultSecretSize is the RFC 4226 recommended secret length in bytes.
	DefaultSecretSize uint = 20
	// MinSecretSize is the shortest secret accepted for generation.
	MinSecretSize uint = 16
)

// ErrInvalidParams indicates a Params value that cannot drive token math.
var ErrInvalidParams = errors.New("otp: invalid params")

// Params is the token configuration frozen into each encrypted secret.
//
// A Params value is never read from global state at verification time, so a
// change to the service defaults does not alter how already-issued secrets
// are interpreted.
type Params struct {
	Issuer     string
	Algorithm  otp.Algorithm
	Digits     otp.Digits
	Period     uint
	SecretSize uint
}

// DefaultParams returns SHA1 / 6 digits / 30 seconds for issuer.
func DefaultParams(issuer string) Params {
	return Params{
		Issuer:     issuer,
		Algorithm:  otp.AlgorithmSHA1,
		Digits:     otp.DigitsSix,
		Period:     DefaultPeriod,
		SecretSize: DefaultSecretSize,
	}
}

// Validate reports whether p can be used to generate and verify codes.
func (p Params) Validate() error {
	if strings.TrimSpace(p.Issuer) == "" {
		return fmt.Errorf("%w: issuer is required", ErrInvalidParams)
	}
	if strings.Contains(p.Issuer, ":") {
		return fmt.Errorf("%w: issuer must not contain ':'", ErrInvalidParams)
	}
	if p.Digits != otp.DigitsSix && p.Digits != otp.DigitsEight {
		return fmt.Errorf("%w: digits must be 6 or 8, got %d", ErrInvalidParams, int(p.Digits))
	}
	if p.Period == 0 {
		return fmt.Errorf("%w: period must be positive", ErrInvalidParams)
	}
	switch p.Algorithm {
	case otp.AlgorithmSHA1, otp.AlgorithmSHA256, otp.AlgorithmSHA512:
	default:
		return fmt.Errorf("%w: unsupported algorithm %d", ErrInvalidParams, int(p.Algorithm))
	}
	if p.SecretSize != 0 && p.SecretSize < MinSecretSize {
		return fmt.Errorf("%w: secret size must be at least %d bytes", ErrInvalidParams, MinSecretSize)
	}
	return nil
}

// WithDefaults fills zero-valued fields with the RFC 6238 defaults.
// Algorithm is left alone because its zero value is SHA1.
func (p Params) WithDefaults() Params {
	if p.Digits == 0 {
		p.Digits = otp.DigitsSix
	}
	if p.Period == 0 {
		p.Period = DefaultPeriod
	}
	if p.SecretSize == 0 {
		p.SecretSize = DefaultSecretSize
	}
	return p
}

// ParseAlgorithm maps "SHA1", "SHA256" or "SHA512" (any case) to an otp.Algorithm.
func ParseAlgorithm(s string) (otp.Algorithm, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "SHA1":
		return otp.AlgorithmSHA1, nil
	case "SHA256":
		return otp.AlgorithmSHA256, nil
	case "SHA512":
		return otp.AlgorithmSHA512, nil
	default:
		return 0, fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidParams, s)
	}
}

// ParseDigits maps 6 or 8 to an otp.Digits.
func ParseDigits(n int) (otp.Digits, error) {
	switch n {
	case 0, 6:
		return otp.DigitsSix, nil
	case 8:
		return otp.DigitsEight, nil
	default:
		return 0, fmt.Errorf("%w: digits must be 6 or 8, got %d", ErrInvalidParams, n)
	}
}
