package app

import (
	"log/slog"
	"os"

	"github.com/shandysiswandi/otpguard/internal/totp"
)

func (a *App) initModules() {
	if err := totp.New(totp.Dependency{
		Store:      a.store,
		CLI:        a.cli,
		IO:         a.stdio(),
		Messaging:  a.messaging,
		Goroutine:  a.goroutine,
		Codec:      a.codec,
		Engine:     a.engine,
		Config:     a.config,
		Clock:      a.clock,
		Validator:  a.validator,
		Instrument: a.ins,
	}); err != nil {
		slog.Error("failed to init module totp", "error", err)
		os.Exit(1)
	}
}
