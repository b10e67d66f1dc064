package usecase

import (
	"context"
	"log/slog"

	"github.com/shandysiswandi/otpguard/internal/totp/entity"
)

// GetLastCounterFunc returns the last accepted counter for a user. ok is false
// when the user has never verified.
type GetLastCounterFunc func(ctx context.Context, userID string) (counter int64, ok bool, err error)

// SetLastCounterFunc records counter as the last accepted one for a user.
//
// Implementations must perform the read-check-write atomically per user and
// return entity.ErrStaleCounter when the stored value is already >= counter,
// otherwise two concurrent requests carrying the same code can both succeed.
type SetLastCounterFunc func(ctx context.Context, userID string, counter int64) error

// CounterStore is the interface form of the two collaborators.
type CounterStore interface {
	GetLastCounter(ctx context.Context, userID string) (int64, bool, error)
	SetLastCounter(ctx context.Context, userID string, counter int64) error
}

// ReplayGuard enforces that each counter is accepted at most once per user and
// that accepted counters strictly increase.
//
// When constructed without collaborators the guard is disabled: every
// counter is admissible and Advance does nothing. This matches the behavior
// of an application that never wired a store, and is logged at WARN.
type ReplayGuard struct {
	get GetLastCounterFunc
	set SetLastCounterFunc
}

// NewReplayGuard builds a guard from the two collaborators. Passing both as nil
// disables replay protection. Passing only one is a configuration error.
func NewReplayGuard(get GetLastCounterFunc, set SetLastCounterFunc) (*ReplayGuard, error) {
	if (get == nil) != (set == nil) {
		return nil, entity.ErrInvalidReplayConfig
	}

	if get == nil {
		slog.Warn("totp replay protection is disabled, a code may be accepted more than once within its window")
	}

	return &ReplayGuard{get: get, set: set}, nil
}

// NewReplayGuardFromStore adapts a CounterStore. A nil store disables replay
// protection.
func NewReplayGuardFromStore(store CounterStore) (*ReplayGuard, error) {
	if store == nil {
		return NewReplayGuard(nil, nil)
	}
	return NewReplayGuard(store.GetLastCounter, store.SetLastCounter)
}

// Enabled reports whether a counter store is wired.
func (g *ReplayGuard) Enabled() bool {
	return g.get != nil
}

// LastCounter returns the stored counter, or ok=false in disabled mode.
func (g *ReplayGuard) LastCounter(ctx context.Context, userID string) (int64, bool, error) {
	if !g.Enabled() {
		return 0, false, nil
	}
	return g.get(ctx, userID)
}

// Advance records counter for userID. It is the only mutation the guard makes.
func (g *ReplayGuard) Advance(ctx context.Context, userID string, counter int64) error {
	if !g.Enabled() {
		return nil
	}
	return g.set(ctx, userID, counter)
}

// Admissible reports whether candidate may be accepted given the last accepted
// counter. A user with no history accepts any counter.
func Admissible(candidate, last int64, hasLast bool) bool {
	return !hasLast || candidate > last
}
