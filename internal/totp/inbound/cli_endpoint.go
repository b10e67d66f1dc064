package inbound

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/shandysiswandi/otpguard/internal/pkg/goerror"
	"github.com/shandysiswandi/otpguard/internal/pkg/instrument"
	"github.com/shandysiswandi/otpguard/internal/pkg/mfa"
	"github.com/shandysiswandi/otpguard/internal/totp/usecase"
)

// CLIEndpoint exposes the TOTP use cases as CLI actions.
type CLIEndpoint struct {
	uc uc
	io IO
}

// Keygen prints a fresh key ring entry.
func (h *CLIEndpoint) Keygen(c *cli.Context) error {
	size := c.Int("size")
	if size < mfa.MinKeySize {
		return exit(goerror.NewInvalidInput(nil, "size", fmt.Sprintf("must be at least %d", mfa.MinKeySize)))
	}

	id := strings.TrimSpace(c.String("id"))
	if id == "" {
		id = time.Now().UTC().Format("2006-01")
	}

	key := make([]byte, size)
	if _, err := rand.Read(key); err != nil {
		return exit(goerror.NewServer(fmt.Errorf("%w: %w", mfa.ErrEntropy, err)))
	}
	defer mfa.Wipe(key)

	_, err := fmt.Fprintf(h.io.Out, "%s:%s\n", id, base64.StdEncoding.EncodeToString(key))
	return err
}

// Enroll mints and prints a new envelope with its provisioning URI.
func (h *CLIEndpoint) Enroll(c *cli.Context) error {
	ctx := instrument.EnsureCorrelationID(c.Context)

	resp, err := h.uc.Enroll(ctx, usecase.EnrollInput{AccountName: c.String("account")})
	if err != nil {
		return exit(err)
	}

	return h.writeJSON(EnrollResponse{KeyID: resp.KeyID, URI: resp.URI, Envelope: resp.Envelope})
}

// Verify checks a code and exits 1 when it is rejected.
func (h *CLIEndpoint) Verify(c *cli.Context) error {
	ctx := instrument.EnsureCorrelationID(c.Context)

	envelope, err := h.readEnvelope(c)
	if err != nil {
		return exit(err)
	}

	code := c.String("code")
	if code == "" && h.io.ReadCode != nil {
		if code, err = h.io.ReadCode(); err != nil {
			return exit(goerror.NewInvalidFormat(err, "Failed to read code"))
		}
	}

	window := h.uc.WindowSeconds()
	if c.IsSet("window") {
		window = c.Int64("window")
	}

	ok, err := h.uc.Verify(ctx, usecase.VerifyInput{
		UserID:        c.String("user"),
		Code:          code,
		Envelope:      envelope,
		WindowSeconds: window,
	})
	if err != nil {
		return exit(err)
	}

	if err := h.writeJSON(VerifyResponse{User: c.String("user"), Accepted: ok}); err != nil {
		return err
	}
	if !ok {
		return exit(goerror.NewBusiness("code rejected", goerror.CodeUnauthorized))
	}

	return nil
}

// Code prints the code for the current time step.
func (h *CLIEndpoint) Code(c *cli.Context) error {
	ctx := instrument.EnsureCorrelationID(c.Context)

	envelope, err := h.readEnvelope(c)
	if err != nil {
		return exit(err)
	}

	code, err := h.uc.CurrentCode(ctx, envelope)
	if err != nil {
		return exit(err)
	}

	_, err = fmt.Fprintln(h.io.Out, code)
	return err
}

// URI prints the provisioning URI for an existing envelope.
func (h *CLIEndpoint) URI(c *cli.Context) error {
	ctx := instrument.EnsureCorrelationID(c.Context)

	envelope, err := h.readEnvelope(c)
	if err != nil {
		return exit(err)
	}

	uri, err := h.uc.ProvisioningURI(ctx, usecase.ProvisioningURIInput{
		AccountName: c.String("account"),
		Envelope:    envelope,
	})
	if err != nil {
		return exit(err)
	}

	_, err = fmt.Fprintln(h.io.Out, uri)
	return err
}

// Rotate re-encrypts an envelope under the current key.
func (h *CLIEndpoint) Rotate(c *cli.Context) error {
	ctx := instrument.EnsureCorrelationID(c.Context)

	envelope, err := h.readEnvelope(c)
	if err != nil {
		return exit(err)
	}

	resp, err := h.uc.Rotate(ctx, envelope)
	if err != nil {
		return exit(err)
	}

	return h.writeJSON(RotateResponse{KeyID: resp.KeyID, Rotated: resp.Rotated, Envelope: resp.Envelope})
}

func (h *CLIEndpoint) readEnvelope(c *cli.Context) ([]byte, error) {
	v := strings.TrimSpace(c.String("envelope"))

	switch {
	case v == "" || v == "-":
		if h.io.In == nil {
			return nil, goerror.NewInvalidInput(nil, "envelope", "is required")
		}
		b, err := io.ReadAll(h.io.In)
		if err != nil {
			return nil, goerror.NewInvalidFormat(err, "Failed to read envelope")
		}
		return trimEnvelope(b)

	case strings.HasPrefix(v, "@"):
		// #nosec G304 -- path is supplied by the operator.
		b, err := os.ReadFile(strings.TrimPrefix(v, "@"))
		if err != nil {
			return nil, goerror.NewInvalidFormat(err, "Failed to read envelope file")
		}
		return trimEnvelope(b)

	default:
		return []byte(v), nil
	}
}

func trimEnvelope(b []byte) ([]byte, error) {
	b = []byte(strings.TrimSpace(string(b)))
	if len(b) == 0 {
		return nil, goerror.NewInvalidInput(nil, "envelope", "is required")
	}
	return b, nil
}

func (h *CLIEndpoint) writeJSON(v any) error {
	enc := json.NewEncoder(h.io.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// exit turns err into a cli.ExitCoder carrying the goerror exit status.
func exit(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	var ge *goerror.Error
	if errors.As(err, &ge) && len(ge.Fields()) > 0 {
		b, _ := json.Marshal(ge.Fields())
		msg = fmt.Sprintf("%s: %s", ge.Msg(), b)
	}

	return cli.Exit(msg, goerror.ExitCode(err))
}
