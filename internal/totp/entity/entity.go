package entity

import (
	"errors"
	"time"
)

var (
	// ErrStaleCounter is returned by a counter store when its atomic check finds
	// a stored counter greater than or equal to the candidate. The verifier
	// treats it as a replay.
	ErrStaleCounter = errors.New("totp: counter is not newer than the stored one")

	// ErrInvalidReplayConfig indicates exactly one of the last-counter
	// collaborators was supplied.
	ErrInvalidReplayConfig = errors.New("totp: last-counter getter and setter must be supplied together")
)

// Match is the outcome of searching a verification window.
type Match struct {
	Counter int64
	Matched bool
}

// Result labels a verification for metrics and logs.
type Result string

const (
	ResultAccepted Result = "accepted"
	ResultRejected Result = "rejected"
	ResultReplayed Result = "replayed"
	ResultError    Result = "error"
)

// EventKind names a security event.
type EventKind string

const (
	EventReplayRejected EventKind = "totp.replay_rejected"
	EventDecryptFailed  EventKind = "totp.decrypt_failed"
	EventUnknownKey     EventKind = "totp.unknown_key"
)

// SecurityEvent is published when verification sees something an operator
// should know about. It never carries the code or the secret.
type SecurityEvent struct {
	Kind       EventKind
	UserID     string
	KeyID      string
	Counter    int64
	OccurredAt time.Time
}
