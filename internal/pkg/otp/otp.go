package otp

import (
	"crypto/subtle"
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
)

// MaxWindowSteps bounds the drift tolerance on either side of the current
// step. Larger windows are rejected so a scan stays cheap and finite.
const MaxWindowSteps int64 = 10

var b32NoPadding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Engine defines the contract for TOTP code computation and window search.
type Engine interface {
	// CodeAt returns the code for secret at counter.
	CodeAt(secret []byte, counter int64, p Params) (string, error)
	// FindMatchingCounter searches [center-window, center+window] for code.
	FindMatchingCounter(secret []byte, code string, center, window int64, p Params) (int64, bool, error)
}

// TOTP implements Engine on top of pquerna/otp's HOTP primitive.
type TOTP struct{}

// NewTOTP returns a stateless TOTP engine.
func NewTOTP() *TOTP {
	return &TOTP{}
}

// CodeAt returns the zero-padded numeric code for secret at counter.
//
// It is a pure function of its arguments.
func (*TOTP) CodeAt(secret []byte, counter int64, p Params) (string, error) {
	if counter < 0 {
		return "", fmt.Errorf("%w: negative counter %d", ErrInvalidParams, counter)
	}
	if len(secret) == 0 {
		return "", fmt.Errorf("%w: empty secret", ErrInvalidParams)
	}

	return hotp.GenerateCodeCustom(b32NoPadding.EncodeToString(secret), uint64(counter), hotp.ValidateOpts{
		Digits:    p.Digits,
		Algorithm: p.Algorithm,
	})
}

// FindMatchingCounter looks for the counter whose code equals code.
//
// Candidates are visited by increasing distance from center (center, -1, +1,
// -2, +2, ...) and the first match in that order is returned. Negative
// counters are skipped. Every candidate in range is computed and compared in
// constant time, so the running time does not reveal where a match was found.
func (e *TOTP) FindMatchingCounter(secret []byte, code string, center, window int64, p Params) (int64, bool, error) {
	if window < 0 {
		window = 0
	}
	if window > MaxWindowSteps {
		return 0, false, fmt.Errorf("%w: window of %d steps exceeds %d", ErrInvalidParams, window, MaxWindowSteps)
	}

	var (
		found   int64
		matched bool
	)
	want := []byte(code)

	for d := int64(0); d <= window; d++ {
		for _, c := range distanceOrder(center, d) {
			if c < 0 {
				continue
			}

			got, err := e.CodeAt(secret, c, p)
			if err != nil {
				return 0, false, err
			}

			if subtle.ConstantTimeCompare([]byte(got), want) == 1 && !matched {
				found = c
				matched = true
			}
		}
	}

	return found, matched, nil
}

func distanceOrder(center, d int64) []int64 {
	if d == 0 {
		return []int64{center}
	}
	return []int64{center - d, center + d}
}

// CounterAt returns floor(unix(t) / period).
func CounterAt(t time.Time, period uint) int64 {
	if period == 0 {
		period = DefaultPeriod
	}
	unix := t.Unix()
	if unix < 0 {
		return 0
	}
	return unix / int64(period)
}

// WindowSteps converts a drift tolerance in seconds to a number of counters,
// rounding down so the accepted window never exceeds what the caller asked for.
func WindowSteps(windowSeconds int64, period uint) int64 {
	if windowSeconds <= 0 || period == 0 {
		return 0
	}
	return windowSeconds / int64(period)
}

// NormalizeCode strips whitespace and checks that code is exactly digits long
// and numeric.
func NormalizeCode(code string, digits otp.Digits) (string, bool) {
	code = strings.Join(strings.Fields(code), "")
	if len(code) != digits.Length() {
		return "", false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return "", false
		}
	}
	return code, true
}
