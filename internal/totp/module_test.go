package totp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/shandysiswandi/otpguard/internal/pkg/clock"
	"github.com/shandysiswandi/otpguard/internal/pkg/config"
	"github.com/shandysiswandi/otpguard/internal/pkg/goroutine"
	"github.com/shandysiswandi/otpguard/internal/pkg/instrument"
	"github.com/shandysiswandi/otpguard/internal/pkg/messaging"
	"github.com/shandysiswandi/otpguard/internal/pkg/mfa"
	"github.com/shandysiswandi/otpguard/internal/pkg/otp"
	"github.com/shandysiswandi/otpguard/internal/pkg/validator"
	"github.com/shandysiswandi/otpguard/internal/shared/event"
	"github.com/shandysiswandi/otpguard/internal/totp"
	"github.com/shandysiswandi/otpguard/internal/totp/inbound"
	"github.com/shandysiswandi/otpguard/internal/totp/outbound/memory"
)

const moduleConfig = `
mfa:
  totp:
    issuer: ACME
    digits: 6
    period: 30
    window_seconds: 30
events:
  nats:
    subject: acme.totp.security
`

func TestNew_PublishesToConfiguredSubject(t *testing.T) {
	t.Parallel()

	// Arrange
	cfg, err := config.NewViperFromBytes("yaml", []byte(moduleConfig))
	require.NoError(t, err)
	v, err := validator.NewV10Validator()
	require.NoError(t, err)
	ring, err := mfa.NewKeyRing(map[string][]byte{"k1": bytes.Repeat([]byte{7}, 32)}, "")
	require.NoError(t, err)
	codec, err := mfa.NewCodec(ring)
	require.NoError(t, err)

	out := &bytes.Buffer{}
	app := &cli.App{
		Name:           "otpguard",
		Writer:         out,
		ErrWriter:      &bytes.Buffer{},
		ExitErrHandler: func(*cli.Context, error) {},
	}
	events := messaging.NewRecorder()
	gm := goroutine.NewManager(2)

	require.NoError(t, totp.New(totp.Dependency{
		Store:      memory.NewStore(),
		CLI:        app,
		IO:         inbound.IO{In: strings.NewReader(""), Out: out},
		Messaging:  events,
		Goroutine:  gm,
		Codec:      codec,
		Engine:     otp.NewTOTP(),
		Config:     cfg,
		Clock:      clock.NewFixedCounter(1000, 30),
		Validator:  v,
		Instrument: instrument.NewNoop(),
	}))

	run := func(args ...string) string {
		out.Reset()
		_ = app.RunContext(context.Background(), append([]string{"otpguard"}, args...))
		return out.String()
	}

	var enrolled struct {
		Envelope json.RawMessage `json:"envelope"`
	}
	require.NoError(t, json.Unmarshal([]byte(run("enroll", "--account", "alice")), &enrolled))
	envelope := string(enrolled.Envelope)
	code := strings.TrimSpace(run("code", "--envelope", envelope))

	// Act
	run("verify", "-u", "alice", "-c", code, "--envelope", envelope)
	run("verify", "-u", "alice", "-c", code, "--envelope", envelope)
	require.NoError(t, gm.Wait())

	// Assert
	assert.Empty(t, events.Messages(event.TOTPSecurityDestination))
	msgs := events.Messages("acme.totp.security")
	require.Len(t, msgs, 1)

	var ev event.TOTPSecurityMessage
	require.NoError(t, json.Unmarshal(msgs[0].Body, &ev))
	assert.Equal(t, "alice", ev.UserID)
}
