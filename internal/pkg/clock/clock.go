package clock

import (
	"sync"
	"time"
)

// Clocker abstracts time so verification windows can be pinned in tests.
type Clocker interface {
	Now() time.Time
}

// TimeClocker reads the system wall clock.
type TimeClocker struct{}

// New returns a TimeClocker.
func New() *TimeClocker {
	return &TimeClocker{}
}

// Now returns the current system time.
func (*TimeClocker) Now() time.Time {
	return time.Now()
}

// Fixed is a Clocker that always reports the instant it was last set to.
// It is safe for concurrent use.
type Fixed struct {
	mu  sync.RWMutex
	now time.Time
}

// NewFixed returns a Fixed clock pinned at t.
func NewFixed(t time.Time) *Fixed {
	return &Fixed{now: t}
}

// NewFixedCounter returns a Fixed clock pinned at the first second of the
// given TOTP step.
func NewFixedCounter(counter int64, period uint) *Fixed {
	return NewFixed(time.Unix(counter*int64(period), 0).UTC())
}

// Now returns the pinned instant.
func (f *Fixed) Now() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.now
}

// Advance moves the clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}
