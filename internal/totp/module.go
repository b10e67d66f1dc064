package totp

import (
	"github.com/urfave/cli/v2"

	"github.com/shandysiswandi/otpguard/internal/pkg/clock"
	"github.com/shandysiswandi/otpguard/internal/pkg/config"
	"github.com/shandysiswandi/otpguard/internal/pkg/goroutine"
	"github.com/shandysiswandi/otpguard/internal/pkg/instrument"
	"github.com/shandysiswandi/otpguard/internal/pkg/messaging"
	"github.com/shandysiswandi/otpguard/internal/pkg/mfa"
	"github.com/shandysiswandi/otpguard/internal/pkg/otp"
	"github.com/shandysiswandi/otpguard/internal/pkg/validator"
	"github.com/shandysiswandi/otpguard/internal/totp/inbound"
	"github.com/shandysiswandi/otpguard/internal/totp/outbound/mq"
	"github.com/shandysiswandi/otpguard/internal/totp/usecase"
)

type Dependency struct {
	// Store is optional. Leaving it nil runs verification without replay
	// protection.
	Store      usecase.CounterStore
	CLI        *cli.App                   `validate:"required"`
	IO         inbound.IO                 `validate:"-"`
	Messaging  messaging.Publisher        `validate:"required"`
	Goroutine  *goroutine.Manager         `validate:"required"`
	Codec      mfa.SecretCodec            `validate:"required"`
	Engine     otp.Engine                 `validate:"required"`
	Config     config.Config              `validate:"required"`
	Clock      clock.Clocker              `validate:"required"`
	Validator  validator.Validator        `validate:"required"`
	Instrument instrument.Instrumentation `validate:"required"`
}

func New(dep Dependency) error {
	if err := dep.Validator.Validate(dep); err != nil {
		return err
	}

	guard, err := usecase.NewReplayGuardFromStore(dep.Store)
	if err != nil {
		return err
	}

	repoEvent := mq.NewMessaging(dep.Messaging, dep.Instrument, dep.Config.GetString("events.nats.subject"))

	uc, err := usecase.New(usecase.Dependency{
		Guard:      guard,
		RepoEvent:  repoEvent,
		Codec:      dep.Codec,
		Engine:     dep.Engine,
		Config:     dep.Config,
		Clock:      dep.Clock,
		Validator:  dep.Validator,
		Instrument: dep.Instrument,
		Goroutine:  dep.Goroutine,
	})
	if err != nil {
		return err
	}

	inbound.RegisterCLICommands(dep.CLI, uc, dep.IO)

	return nil
}
