package usecase

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/shandysiswandi/otpguard/internal/pkg/clock"
	"github.com/shandysiswandi/otpguard/internal/pkg/config"
	"github.com/shandysiswandi/otpguard/internal/pkg/goerror"
	"github.com/shandysiswandi/otpguard/internal/pkg/goroutine"
	"github.com/shandysiswandi/otpguard/internal/pkg/instrument"
	"github.com/shandysiswandi/otpguard/internal/pkg/mfa"
	"github.com/shandysiswandi/otpguard/internal/pkg/otp"
	"github.com/shandysiswandi/otpguard/internal/pkg/validator"
	"github.com/shandysiswandi/otpguard/internal/totp/entity"
)

type repoEvent interface {
	PublishSecurityEvent(ctx context.Context, ev entity.SecurityEvent) error
}

type Usecase struct {
	guard     *ReplayGuard
	repoEvent repoEvent
	codec     mfa.SecretCodec
	engine    otp.Engine
	cfg       config.Config
	clock     clock.Clocker
	validator validator.Validator
	ins       instrument.Instrumentation
	goroutine *goroutine.Manager

	verifications metric.Int64Counter
}

type Dependency struct {
	Guard      *ReplayGuard
	RepoEvent  repoEvent
	Codec      mfa.SecretCodec
	Engine     otp.Engine
	Config     config.Config
	Clock      clock.Clocker
	Validator  validator.Validator
	Instrument instrument.Instrumentation
	Goroutine  *goroutine.Manager
}

func New(dep Dependency) (*Usecase, error) {
	verifications, err := dep.Instrument.Meter("totp.usecase").Int64Counter(
		"otpguard.totp.verifications",
		metric.WithDescription("TOTP verification attempts by result"),
	)
	if err != nil {
		return nil, err
	}

	return &Usecase{
		guard:         dep.Guard,
		repoEvent:     dep.RepoEvent,
		codec:         dep.Codec,
		engine:        dep.Engine,
		cfg:           dep.Config,
		clock:         dep.Clock,
		validator:     dep.Validator,
		ins:           dep.Instrument,
		goroutine:     dep.Goroutine,
		verifications: verifications,
	}, nil
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("totp.usecase").Start(ctx, name)
}

func (s *Usecase) record(ctx context.Context, r entity.Result) {
	s.verifications.Add(ctx, 1, metric.WithAttributes(attribute.String("result", string(r))))
}

// publish is best effort and runs in the background: a broker outage must not
// change or delay a verification result.
func (s *Usecase) publish(ctx context.Context, ev entity.SecurityEvent) {
	if s.repoEvent == nil {
		return
	}

	ev.OccurredAt = s.clock.Now()
	s.goroutine.Go(context.WithoutCancel(ctx), func(ctx context.Context) error {
		if err := s.repoEvent.PublishSecurityEvent(ctx, ev); err != nil {
			slog.WarnContext(ctx, "failed to publish security event", "kind", ev.Kind, "user_id", ev.UserID, "error", err)
			return err
		}
		return nil
	})
}

// Params returns the token parameters new enrollments are issued with. They
// are read on every call so a config reload takes effect without a restart;
// existing envelopes keep the params frozen into them.
func (s *Usecase) Params() (otp.Params, error) {
	alg, err := otp.ParseAlgorithm(s.cfg.GetString("mfa.totp.algorithm"))
	if err != nil {
		return otp.Params{}, err
	}
	digits, err := otp.ParseDigits(s.cfg.GetInt("mfa.totp.digits"))
	if err != nil {
		return otp.Params{}, err
	}

	p := otp.Params{
		Issuer:     s.cfg.GetString("mfa.totp.issuer"),
		Algorithm:  alg,
		Digits:     digits,
		Period:     s.cfg.GetUint("mfa.totp.period"),
		SecretSize: s.cfg.GetUint("mfa.totp.secret_size"),
	}.WithDefaults()

	return p, p.Validate()
}

// WindowSeconds returns the configured default verification tolerance.
func (s *Usecase) WindowSeconds() int64 {
	return s.cfg.GetInt64("mfa.totp.window_seconds")
}

// ReplayProtected reports whether a counter store is wired.
func (s *Usecase) ReplayProtected() bool {
	return s.guard.Enabled()
}

func (s *Usecase) openEnvelope(ctx context.Context, raw []byte) (*mfa.Envelope, otp.Params, error) {
	env, err := mfa.ParseEnvelope(raw)
	if err != nil {
		slog.WarnContext(ctx, "failed to parse totp envelope", "error", err)
		return nil, otp.Params{}, goerror.NewInvalidFormat(err, "Invalid envelope")
	}

	p, err := env.Params()
	if err != nil {
		slog.WarnContext(ctx, "totp envelope carries invalid params", "kid", env.Key.KeyID, "error", err)
		return nil, otp.Params{}, goerror.NewInvalidFormat(err, "Invalid envelope")
	}

	return env, p, nil
}
