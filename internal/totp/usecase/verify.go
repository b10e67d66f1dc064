package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shandysiswandi/otpguard/internal/pkg/goerror"
	"github.com/shandysiswandi/otpguard/internal/pkg/mfa"
	"github.com/shandysiswandi/otpguard/internal/pkg/otp"
	"github.com/shandysiswandi/otpguard/internal/totp/entity"
)

type VerifyInput struct {
	UserID   string `validate:"required,max=255"`
	Code     string
	Envelope []byte `validate:"required"`
	// WindowSeconds is the tolerance on either side of the current step.
	// Negative values are treated as zero. A window wider than
	// otp.MaxWindowSteps periods is rejected as invalid input.
	WindowSeconds int64
}

// Verify reports whether in.Code is valid for the enrolled secret right now
// and has not been accepted before.
//
// A wrong code and a replayed code both return (false, nil); callers cannot
// tell them apart. An error is returned only when the envelope cannot be
// opened or the counter store fails. On success the counter store is written
// exactly once.
func (s *Usecase) Verify(ctx context.Context, in VerifyInput) (bool, error) {
	ctx, span := s.startSpan(ctx, "Verify")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return false, goerror.NewInvalidInput(err)
	}

	env, p, err := s.openEnvelope(ctx, in.Envelope)
	if err != nil {
		s.record(ctx, entity.ResultError)
		return false, err
	}

	window := otp.WindowSteps(in.WindowSeconds, p.Period)
	if window > otp.MaxWindowSteps {
		s.record(ctx, entity.ResultError)
		return false, goerror.NewInvalidInput(nil, "window_seconds",
			fmt.Sprintf("must be at most %d", otp.MaxWindowSteps*int64(p.Period)))
	}

	secret, err := s.decrypt(ctx, in.UserID, env)
	if err != nil {
		s.record(ctx, entity.ResultError)
		return false, err
	}
	defer mfa.Wipe(secret)

	code, valid := otp.NormalizeCode(in.Code, p.Digits)
	if !valid {
		slog.InfoContext(ctx, "totp code rejected", "user_id", in.UserID, "reason", "format")
		s.record(ctx, entity.ResultRejected)
		return false, nil
	}

	center := otp.CounterAt(s.clock.Now(), p.Period)
	match, err := s.findMatch(secret, code, center, window, p)
	if err != nil {
		slog.ErrorContext(ctx, "failed to search totp window", "user_id", in.UserID, "error", err)
		s.record(ctx, entity.ResultError)
		return false, goerror.NewServer(err)
	}
	if !match.Matched {
		slog.InfoContext(ctx, "totp code rejected", "user_id", in.UserID, "reason", "no_match")
		s.record(ctx, entity.ResultRejected)
		return false, nil
	}

	last, hasLast, err := s.guard.LastCounter(ctx, in.UserID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to get last totp counter", "user_id", in.UserID, "error", err)
		s.record(ctx, entity.ResultError)
		return false, goerror.NewUnavailable(err)
	}

	if !Admissible(match.Counter, last, hasLast) {
		s.replayed(ctx, in.UserID, env.Key.KeyID, match.Counter)
		return false, nil
	}

	if err := s.guard.Advance(ctx, in.UserID, match.Counter); err != nil {
		if errors.Is(err, entity.ErrStaleCounter) {
			s.replayed(ctx, in.UserID, env.Key.KeyID, match.Counter)
			return false, nil
		}

		slog.ErrorContext(ctx, "failed to set last totp counter", "user_id", in.UserID, "counter", match.Counter, "error", err)
		s.record(ctx, entity.ResultError)
		return false, goerror.NewUnavailable(err)
	}

	slog.InfoContext(ctx, "totp code accepted", "user_id", in.UserID, "counter", match.Counter, "drift", match.Counter-center)
	s.record(ctx, entity.ResultAccepted)

	return true, nil
}

func (s *Usecase) findMatch(secret []byte, code string, center, window int64, p otp.Params) (entity.Match, error) {
	counter, ok, err := s.engine.FindMatchingCounter(secret, code, center, window, p)
	if err != nil {
		return entity.Match{}, err
	}
	return entity.Match{Counter: counter, Matched: ok}, nil
}

func (s *Usecase) replayed(ctx context.Context, userID, kid string, counter int64) {
	slog.WarnContext(ctx, "totp code replay rejected", "user_id", userID, "counter", counter)
	s.record(ctx, entity.ResultReplayed)
	s.publish(ctx, entity.SecurityEvent{
		Kind:    entity.EventReplayRejected,
		UserID:  userID,
		KeyID:   kid,
		Counter: counter,
	})
}

func (s *Usecase) decrypt(ctx context.Context, userID string, env *mfa.Envelope) ([]byte, error) {
	secret, err := s.codec.Decrypt(env)
	switch {
	case err == nil:
		return secret, nil

	case errors.Is(err, mfa.ErrUnknownKey):
		slog.ErrorContext(ctx, "totp envelope key id is not in the key ring", "user_id", userID, "kid", env.Key.KeyID)
		s.publish(ctx, entity.SecurityEvent{Kind: entity.EventUnknownKey, UserID: userID, KeyID: env.Key.KeyID})

	case errors.Is(err, mfa.ErrDecrypt):
		slog.ErrorContext(ctx, "totp envelope failed integrity check", "user_id", userID, "kid", env.Key.KeyID)
		s.publish(ctx, entity.SecurityEvent{Kind: entity.EventDecryptFailed, UserID: userID, KeyID: env.Key.KeyID})

	default:
		slog.ErrorContext(ctx, "failed to decrypt totp envelope", "user_id", userID, "kid", env.Key.KeyID, "error", err)
	}

	return nil, goerror.NewServer(err)
}
