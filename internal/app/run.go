package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/shandysiswandi/otpguard/internal/pkg/goerror"
	"github.com/shandysiswandi/otpguard/internal/totp/inbound"
)

func (a *App) initCLI() {
	a.cli = &cli.App{
		Name:  "otpguard",
		Usage: "issue and verify TOTP codes with replay protection",
		// Exit codes are decided by Run, not by the library.
		ExitErrHandler: func(*cli.Context, error) {},
		Writer:         a.stdout,
		ErrWriter:      a.stderr,
	}
}

func (a *App) stdio() inbound.IO {
	stdio := inbound.IO{In: a.stdin, Out: a.stdout}

	f, ok := a.stdin.(*os.File)
	if !ok {
		return stdio
	}

	fd := int(f.Fd()) //nolint:gosec // fd fits in int
	if term.IsTerminal(fd) {
		stdio.ReadCode = func() (string, error) {
			fmt.Fprint(a.stderr, "code: ")
			b, err := term.ReadPassword(fd)
			fmt.Fprintln(a.stderr)
			if err != nil {
				return "", err
			}
			return strings.TrimSpace(string(b)), nil
		}
	}

	return stdio
}

// Run executes the command line in args and returns the process exit status.
// Resources are closed before it returns.
func (a *App) Run(args []string) int {
	ctx, stop := signal.NotifyContext(a.ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := a.exec(ctx, args)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.Stop(shutdownCtx)

	return code
}

func (a *App) exec(ctx context.Context, args []string) int {
	err := a.cli.RunContext(ctx, args)
	if err == nil {
		return 0
	}

	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		if msg := ec.Error(); msg != "" {
			fmt.Fprintln(a.cli.ErrWriter, msg)
		}
		return ec.ExitCode()
	}

	// flag parsing and other usage errors
	fmt.Fprintln(a.cli.ErrWriter, err)
	var ge *goerror.Error
	if errors.As(err, &ge) {
		return ge.ExitCode()
	}
	return 2
}

// Stop cancels the root context and closes resources.
func (a *App) Stop(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}

	for _, closer := range a.closers {
		if err := closer.fn(ctx); err != nil {
			slog.ErrorContext(ctx, "failed to close resources", "name", closer.name, "error", err)
		}
	}
}
