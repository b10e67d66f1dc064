package app

import (
	"context"
	"io"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"github.com/shandysiswandi/otpguard/internal/pkg/clock"
	"github.com/shandysiswandi/otpguard/internal/pkg/config"
	"github.com/shandysiswandi/otpguard/internal/pkg/goroutine"
	"github.com/shandysiswandi/otpguard/internal/pkg/instrument"
	"github.com/shandysiswandi/otpguard/internal/pkg/messaging"
	"github.com/shandysiswandi/otpguard/internal/pkg/mfa"
	"github.com/shandysiswandi/otpguard/internal/pkg/otp"
	"github.com/shandysiswandi/otpguard/internal/pkg/validator"
	"github.com/shandysiswandi/otpguard/internal/totp/usecase"
)

// App wires dependencies and manages the process lifecycle.
type App struct {
	ctx    context.Context
	cancel context.CancelFunc

	// configuration
	config config.Config
	ins    instrument.Instrumentation

	// libraries
	goroutine *goroutine.Manager
	validator validator.Validator
	clock     clock.Clocker
	engine    otp.Engine
	codec     mfa.SecretCodec

	// resources
	dbConn    *pgxpool.Pool
	cacheConn redis.UniversalClient
	store     usecase.CounterStore
	messaging messaging.Publisher

	// interface
	cli    *cli.App
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	//
	closers []struct {
		name string
		fn   func(context.Context) error
	}
}

// New initializes the application with default wiring and returns an App instance.
func New() *App {
	return newApp(os.Stdin, os.Stdout, os.Stderr)
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *App {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		ctx:    ctx,
		cancel: cancel,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}

	app.initConfig()
	app.initInstrument()
	app.initLibraries()
	app.initReplayStore()
	app.initMessaging()
	app.initCLI()
	app.initModules()
	app.initClosers()

	return app
}
