package inbound

import (
	"context"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/shandysiswandi/otpguard/internal/totp/usecase"
)

type uc interface {
	Enroll(ctx context.Context, in usecase.EnrollInput) (*usecase.EnrollOutput, error)
	Verify(ctx context.Context, in usecase.VerifyInput) (bool, error)
	CurrentCode(ctx context.Context, envelope []byte) (string, error)
	ProvisioningURI(ctx context.Context, in usecase.ProvisioningURIInput) (string, error)
	Rotate(ctx context.Context, envelope []byte) (*usecase.RotateOutput, error)
	WindowSeconds() int64
}

// IO carries the streams commands read from and write to.
type IO struct {
	In  io.Reader
	Out io.Writer
	// ReadCode prompts for a code without echo. Nil disables prompting.
	ReadCode func() (string, error)
}

func RegisterCLICommands(app *cli.App, uc uc, stdio IO) {
	end := &CLIEndpoint{uc: uc, io: stdio}

	envelopeFlag := &cli.StringFlag{
		Name:    "envelope",
		Aliases: []string{"e"},
		Usage:   "envelope JSON, @path to read a file, or - for stdin",
	}
	accountFlag := &cli.StringFlag{
		Name:     "account",
		Aliases:  []string{"a"},
		Usage:    "account name shown in the authenticator app",
		Required: true,
	}

	app.Commands = append(app.Commands,
		&cli.Command{
			Name:   "keygen",
			Usage:  "print a new key ring entry as kid:base64",
			Action: end.Keygen,
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "id", Usage: "key id, defaults to the current UTC month (2006-01)"},
				&cli.IntFlag{Name: "size", Value: 32, Usage: "key size in bytes"},
			},
		},
		&cli.Command{
			Name:   "enroll",
			Usage:  "mint a secret, print its envelope and provisioning URI",
			Action: end.Enroll,
			Flags:  []cli.Flag{accountFlag},
		},
		&cli.Command{
			Name:   "verify",
			Usage:  "verify a code for a user; exits 1 when rejected",
			Action: end.Verify,
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "user id the last counter is tracked under", Required: true},
				&cli.StringFlag{Name: "code", Aliases: []string{"c"}, Usage: "one-time code, prompted when omitted"},
				&cli.Int64Flag{Name: "window", Aliases: []string{"w"}, Usage: "tolerance in seconds, defaults to mfa.totp.window_seconds"},
				envelopeFlag,
			},
		},
		&cli.Command{
			Name:   "code",
			Usage:  "print the code for the current time step",
			Action: end.Code,
			Flags:  []cli.Flag{envelopeFlag},
		},
		&cli.Command{
			Name:   "uri",
			Usage:  "print the otpauth:// provisioning URI of an envelope",
			Action: end.URI,
			Flags:  []cli.Flag{accountFlag, envelopeFlag},
		},
		&cli.Command{
			Name:   "rotate",
			Usage:  "re-encrypt an envelope under the current key",
			Action: end.Rotate,
			Flags:  []cli.Flag{envelopeFlag},
		},
	)
}
