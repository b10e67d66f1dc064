package usecase

import (
	"context"
	"log/slog"

	"github.com/shandysiswandi/otpguard/internal/pkg/goerror"
	"github.com/shandysiswandi/otpguard/internal/pkg/mfa"
	"github.com/shandysiswandi/otpguard/internal/pkg/otp"
)

type EnrollInput struct {
	AccountName string `validate:"required,max=255,nocolon"`
}

type EnrollOutput struct {
	// Envelope is the JSON envelope the caller stores for the user.
	Envelope []byte
	// URI is the otpauth:// provisioning URI for authenticator apps.
	URI   string
	KeyID string
}

// Enroll mints a new secret, seals it under the current key and renders the
// provisioning URI for it.
func (s *Usecase) Enroll(ctx context.Context, in EnrollInput) (*EnrollOutput, error) {
	ctx, span := s.startSpan(ctx, "Enroll")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	p, err := s.Params()
	if err != nil {
		slog.ErrorContext(ctx, "invalid totp params in config", "error", err)
		return nil, goerror.NewServer(err)
	}

	secret, err := s.codec.GenerateSecret(p)
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate totp secret", "error", err)
		return nil, goerror.NewServer(err)
	}
	defer mfa.Wipe(secret)

	env, err := s.codec.Encrypt(secret, p)
	if err != nil {
		slog.ErrorContext(ctx, "failed to encrypt totp secret", "error", err)
		return nil, goerror.NewServer(err)
	}

	raw, err := env.Marshal()
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal totp envelope", "error", err)
		return nil, goerror.NewServer(err)
	}

	uri, err := otp.ProvisioningURI(in.AccountName, secret, p)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build provisioning uri", "error", err)
		return nil, goerror.NewServer(err)
	}

	slog.InfoContext(ctx, "totp secret enrolled", "kid", env.Key.KeyID, "digits", env.Digits, "period", env.Period)

	return &EnrollOutput{Envelope: raw, URI: uri, KeyID: env.Key.KeyID}, nil
}

// CurrentCode returns the code for the current time step. It is meant for
// operators and tests, never for sending to users.
func (s *Usecase) CurrentCode(ctx context.Context, envelope []byte) (string, error) {
	ctx, span := s.startSpan(ctx, "CurrentCode")
	defer span.End()

	env, p, err := s.openEnvelope(ctx, envelope)
	if err != nil {
		return "", err
	}

	secret, err := s.decrypt(ctx, "", env)
	if err != nil {
		return "", err
	}
	defer mfa.Wipe(secret)

	code, err := s.engine.CodeAt(secret, otp.CounterAt(s.clock.Now(), p.Period), p)
	if err != nil {
		slog.ErrorContext(ctx, "failed to compute totp code", "kid", env.Key.KeyID, "error", err)
		return "", goerror.NewServer(err)
	}

	return code, nil
}

type ProvisioningURIInput struct {
	AccountName string `validate:"required,max=255,nocolon"`
	Envelope    []byte `validate:"required"`
}

// ProvisioningURI renders the otpauth:// URI for an existing envelope using
// the params frozen into it.
func (s *Usecase) ProvisioningURI(ctx context.Context, in ProvisioningURIInput) (string, error) {
	ctx, span := s.startSpan(ctx, "ProvisioningURI")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return "", goerror.NewInvalidInput(err)
	}

	env, p, err := s.openEnvelope(ctx, in.Envelope)
	if err != nil {
		return "", err
	}

	secret, err := s.decrypt(ctx, "", env)
	if err != nil {
		return "", err
	}
	defer mfa.Wipe(secret)

	uri, err := otp.ProvisioningURI(in.AccountName, secret, p)
	if err != nil {
		return "", goerror.NewInvalidInput(err)
	}

	return uri, nil
}

type RotateOutput struct {
	Envelope []byte
	// Rotated is false when the envelope was already sealed under the current key.
	Rotated bool
	KeyID   string
}

// Rotate re-seals an envelope under the current key. Envelopes already on the
// current key are returned unchanged.
func (s *Usecase) Rotate(ctx context.Context, envelope []byte) (*RotateOutput, error) {
	ctx, span := s.startSpan(ctx, "Rotate")
	defer span.End()

	env, _, err := s.openEnvelope(ctx, envelope)
	if err != nil {
		return nil, err
	}

	if !s.codec.NeedsRotation(env) {
		return &RotateOutput{Envelope: envelope, KeyID: env.Key.KeyID}, nil
	}

	// Decrypt first so unknown-key and tamper failures are logged and published.
	secret, err := s.decrypt(ctx, "", env)
	if err != nil {
		return nil, err
	}
	mfa.Wipe(secret)

	rotated, err := s.codec.Rotate(env)
	if err != nil {
		slog.ErrorContext(ctx, "failed to rotate totp envelope", "kid", env.Key.KeyID, "error", err)
		return nil, goerror.NewServer(err)
	}

	raw, err := rotated.Marshal()
	if err != nil {
		return nil, goerror.NewServer(err)
	}

	slog.InfoContext(ctx, "totp envelope rotated", "from_kid", env.Key.KeyID, "to_kid", rotated.Key.KeyID)

	return &RotateOutput{Envelope: raw, Rotated: true, KeyID: rotated.Key.KeyID}, nil
}
