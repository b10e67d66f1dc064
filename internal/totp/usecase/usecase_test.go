package usecase_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/shandysiswandi/otpguard/internal/pkg/clock"
	"github.com/shandysiswandi/otpguard/internal/pkg/config"
	"github.com/shandysiswandi/otpguard/internal/pkg/goerror"
	"github.com/shandysiswandi/otpguard/internal/pkg/goroutine"
	"github.com/shandysiswandi/otpguard/internal/pkg/instrument"
	"github.com/shandysiswandi/otpguard/internal/pkg/messaging"
	"github.com/shandysiswandi/otpguard/internal/pkg/mfa"
	"github.com/shandysiswandi/otpguard/internal/pkg/otp"
	"github.com/shandysiswandi/otpguard/internal/pkg/validator"
	"github.com/shandysiswandi/otpguard/internal/shared/event"
	"github.com/shandysiswandi/otpguard/internal/totp/entity"
	"github.com/shandysiswandi/otpguard/internal/totp/outbound/memory"
	"github.com/shandysiswandi/otpguard/internal/totp/outbound/mq"
	"github.com/shandysiswandi/otpguard/internal/totp/usecase"
)

const testConfig = `
mfa:
  totp:
    issuer: ACME
    algorithm: SHA1
    digits: 6
    period: 30
    secret_size: 20
    window_seconds: 30
`

const center int64 = 1000

type fixture struct {
	uc     *usecase.Usecase
	clock  *clock.Fixed
	codec  *mfa.Codec
	store  *memory.Store
	events *messaging.Recorder
	engine *otp.TOTP
	gm     *goroutine.Manager
}

func newCodec(t *testing.T, keys map[string][]byte) *mfa.Codec {
	t.Helper()

	ring, err := mfa.NewKeyRing(keys, "")
	require.NoError(t, err)
	codec, err := mfa.NewCodec(ring)
	require.NoError(t, err)
	return codec
}

func newFixture(t *testing.T, store usecase.CounterStore) *fixture {
	t.Helper()

	return newFixtureWithCodec(t, store, newCodec(t, map[string][]byte{"k1": bytes.Repeat([]byte{1}, 32)}))
}

func newFixtureWithCodec(t *testing.T, store usecase.CounterStore, codec *mfa.Codec) *fixture {
	t.Helper()

	cfg, err := config.NewViperFromBytes("yaml", []byte(testConfig))
	require.NoError(t, err)

	v, err := validator.NewV10Validator()
	require.NoError(t, err)

	guard, err := usecase.NewReplayGuardFromStore(store)
	require.NoError(t, err)

	f := &fixture{
		clock:  clock.NewFixedCounter(center, 30),
		codec:  codec,
		events: messaging.NewRecorder(),
		engine: otp.NewTOTP(),
		gm:     goroutine.NewManager(4),
	}
	if ms, ok := store.(*memory.Store); ok {
		f.store = ms
	}

	uc, err := usecase.New(usecase.Dependency{
		Guard:      guard,
		RepoEvent:  mq.NewMessaging(f.events, instrument.NewNoop(), ""),
		Codec:      f.codec,
		Engine:     f.engine,
		Config:     cfg,
		Clock:      f.clock,
		Validator:  v,
		Instrument: instrument.NewNoop(),
		Goroutine:  f.gm,
	})
	require.NoError(t, err)
	f.uc = uc

	return f
}

func (f *fixture) enroll(t *testing.T) []byte {
	t.Helper()

	out, err := f.uc.Enroll(context.Background(), usecase.EnrollInput{AccountName: "alice@example.com"})
	require.NoError(t, err)
	return out.Envelope
}

func (f *fixture) codeAt(t *testing.T, envelope []byte, counter int64) string {
	t.Helper()

	env, err := mfa.ParseEnvelope(envelope)
	require.NoError(t, err)
	p, err := env.Params()
	require.NoError(t, err)
	secret, err := f.codec.Decrypt(env)
	require.NoError(t, err)

	code, err := f.engine.CodeAt(secret, counter, p)
	require.NoError(t, err)
	return code
}

func (f *fixture) verify(t *testing.T, envelope []byte, code string, windowSeconds int64) bool {
	t.Helper()

	ok, err := f.uc.Verify(context.Background(), usecase.VerifyInput{
		UserID:        "alice",
		Code:          code,
		Envelope:      envelope,
		WindowSeconds: windowSeconds,
	})
	require.NoError(t, err)
	return ok
}

// securityEvents drains background publishing. Call it once, after the
// verifications under test.
func (f *fixture) securityEvents(t *testing.T) []event.TOTPSecurityMessage {
	t.Helper()

	require.NoError(t, f.gm.Wait())

	var out []event.TOTPSecurityMessage
	for _, m := range f.events.Messages(event.TOTPSecurityDestination) {
		var ev event.TOTPSecurityMessage
		require.NoError(t, json.Unmarshal(m.Body, &ev))
		out = append(out, ev)
	}
	return out
}

func TestVerify_CurrentStepThenReplay(t *testing.T) {
	t.Parallel()

	// Arrange
	f := newFixture(t, memory.NewStore())
	envelope := f.enroll(t)
	code := f.codeAt(t, envelope, center)

	// Act
	first := f.verify(t, envelope, code, 0)
	second := f.verify(t, envelope, code, 0)

	// Assert
	assert.True(t, first)
	assert.False(t, second)

	last, ok, err := f.store.GetLastCounter(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, center, last)

	events := f.securityEvents(t)
	require.Len(t, events, 1)
	assert.Equal(t, string(entity.EventReplayRejected), events[0].Kind)
	assert.Equal(t, center, events[0].Counter)
}

func TestVerify_WindowScenario(t *testing.T) {
	t.Parallel()

	f := newFixture(t, memory.NewStore())
	envelope := f.enroll(t)
	if f.codeAt(t, envelope, center-1) == f.codeAt(t, envelope, center) {
		t.Skip("code collision between adjacent steps")
	}

	// A code from the previous step is accepted with a one-step window.
	assert.True(t, f.verify(t, envelope, f.codeAt(t, envelope, center-1), 30))

	// The current step is newer than 999 and is accepted.
	assert.True(t, f.verify(t, envelope, f.codeAt(t, envelope, center), 30))

	// Going back to 999 is a replay even though it is inside the window.
	assert.False(t, f.verify(t, envelope, f.codeAt(t, envelope, center-1), 30))

	// The next step after the clock moves is accepted.
	f.clock.Advance(30 * time.Second)
	assert.True(t, f.verify(t, envelope, f.codeAt(t, envelope, center+1), 30))
}

func TestVerify_WindowBoundaryIsInclusive(t *testing.T) {
	t.Parallel()

	f := newFixture(t, memory.NewStore())
	envelope := f.enroll(t)

	assert.True(t, f.verify(t, envelope, f.codeAt(t, envelope, center-2), 60))
}

func TestVerify_OutsideWindow(t *testing.T) {
	t.Parallel()

	f := newFixture(t, memory.NewStore())
	envelope := f.enroll(t)

	code := f.codeAt(t, envelope, center-3)
	for c := center - 2; c <= center+2; c++ {
		if f.codeAt(t, envelope, c) == code {
			t.Skip("code collision inside window")
		}
	}

	assert.False(t, f.verify(t, envelope, code, 60))
	assert.Zero(t, f.store.Len())
}

func TestVerify_ZeroWindowRejectsAdjacentStep(t *testing.T) {
	t.Parallel()

	f := newFixture(t, memory.NewStore())
	envelope := f.enroll(t)

	code := f.codeAt(t, envelope, center-1)
	if code == f.codeAt(t, envelope, center) {
		t.Skip("code collision with current step")
	}

	assert.False(t, f.verify(t, envelope, code, 0))
	assert.False(t, f.verify(t, envelope, code, -30))
}

func TestVerify_MalformedCode(t *testing.T) {
	t.Parallel()

	f := newFixture(t, memory.NewStore())
	envelope := f.enroll(t)

	assert.False(t, f.verify(t, envelope, "12ab56", 30))
	assert.False(t, f.verify(t, envelope, "", 30))
	assert.False(t, f.verify(t, envelope, "1234567", 30))
}

func TestVerify_WindowTooWide(t *testing.T) {
	t.Parallel()

	f := newFixture(t, memory.NewStore())
	envelope := f.enroll(t)
	code := f.codeAt(t, envelope, center-otp.MaxWindowSteps)

	for _, seconds := range []int64{(otp.MaxWindowSteps + 1) * 30, math.MaxInt64} {
		ok, err := f.uc.Verify(context.Background(), usecase.VerifyInput{
			UserID: "alice", Code: code, Envelope: envelope, WindowSeconds: seconds,
		})
		assert.False(t, ok)
		var ge *goerror.Error
		require.ErrorAs(t, err, &ge)
		assert.Equal(t, goerror.TypeValidation, ge.Type())
		assert.Equal(t, 2, goerror.ExitCode(err))
	}

	// The widest allowed window still reaches its edge and nothing was
	// recorded by the rejected attempts.
	assert.True(t, f.verify(t, envelope, code, otp.MaxWindowSteps*30))
}

func TestVerify_AcceptsSpacedCode(t *testing.T) {
	t.Parallel()

	f := newFixture(t, memory.NewStore())
	envelope := f.enroll(t)
	code := f.codeAt(t, envelope, center)

	assert.True(t, f.verify(t, envelope, code[:3]+" "+code[3:], 0))
}

func TestVerify_ReplayProtectionDisabled(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	envelope := f.enroll(t)
	code := f.codeAt(t, envelope, center)

	assert.False(t, f.uc.ReplayProtected())
	assert.True(t, f.verify(t, envelope, code, 0))
	assert.True(t, f.verify(t, envelope, code, 0))
}

type staleStore struct{ sets atomic.Int64 }

func (*staleStore) GetLastCounter(context.Context, string) (int64, bool, error) { return 0, false, nil }

func (s *staleStore) SetLastCounter(context.Context, string, int64) error {
	s.sets.Inc()
	return entity.ErrStaleCounter
}

func TestVerify_StaleCounterFromStoreIsReplay(t *testing.T) {
	t.Parallel()

	store := &staleStore{}
	f := newFixture(t, store)
	envelope := f.enroll(t)

	ok, err := f.uc.Verify(context.Background(), usecase.VerifyInput{
		UserID:   "alice",
		Code:     f.codeAt(t, envelope, center),
		Envelope: envelope,
	})

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(1), store.sets.Load())
}

type failingStore struct {
	getErr error
	setErr error
	sets   atomic.Int64
}

func (s *failingStore) GetLastCounter(context.Context, string) (int64, bool, error) {
	return 0, false, s.getErr
}

func (s *failingStore) SetLastCounter(context.Context, string, int64) error {
	s.sets.Inc()
	return s.setErr
}

func TestVerify_StoreFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")

	t.Run("get", func(t *testing.T) {
		store := &failingStore{getErr: boom}
		f := newFixture(t, store)
		envelope := f.enroll(t)

		ok, err := f.uc.Verify(context.Background(), usecase.VerifyInput{
			UserID: "alice", Code: f.codeAt(t, envelope, center), Envelope: envelope,
		})

		assert.False(t, ok)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 69, goerror.ExitCode(err))
		assert.Zero(t, store.sets.Load())
	})

	t.Run("set", func(t *testing.T) {
		store := &failingStore{setErr: boom}
		f := newFixture(t, store)
		envelope := f.enroll(t)

		ok, err := f.uc.Verify(context.Background(), usecase.VerifyInput{
			UserID: "alice", Code: f.codeAt(t, envelope, center), Envelope: envelope,
		})

		assert.False(t, ok)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("no write on wrong code", func(t *testing.T) {
		store := &failingStore{}
		f := newFixture(t, store)
		envelope := f.enroll(t)

		code := "000000"
		for c := center - 1; c <= center+1; c++ {
			if f.codeAt(t, envelope, c) == code {
				t.Skip("code collision")
			}
		}

		ok, err := f.uc.Verify(context.Background(), usecase.VerifyInput{
			UserID: "alice", Code: code, Envelope: envelope, WindowSeconds: 30,
		})

		require.NoError(t, err)
		assert.False(t, ok)
		assert.Zero(t, store.sets.Load())
	})
}

func TestVerify_ConcurrentSameCodeAcceptedOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t, memory.NewStore())
	envelope := f.enroll(t)
	code := f.codeAt(t, envelope, center)

	var accepted atomic.Int64
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := f.uc.Verify(context.Background(), usecase.VerifyInput{
				UserID: "alice", Code: code, Envelope: envelope,
			})
			if err == nil && ok {
				accepted.Inc()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), accepted.Load())
}

func TestVerify_TamperedEnvelope(t *testing.T) {
	t.Parallel()

	f := newFixture(t, memory.NewStore())
	envelope := f.enroll(t)
	code := f.codeAt(t, envelope, center)

	env, err := mfa.ParseEnvelope(envelope)
	require.NoError(t, err)
	env.Key.Ciphertext[0] ^= 0xFF
	tampered, err := env.Marshal()
	require.NoError(t, err)

	ok, err := f.uc.Verify(context.Background(), usecase.VerifyInput{
		UserID: "alice", Code: code, Envelope: tampered,
	})

	assert.False(t, ok)
	assert.ErrorIs(t, err, mfa.ErrDecrypt)
	assert.Zero(t, f.store.Len())

	events := f.securityEvents(t)
	require.Len(t, events, 1)
	assert.Equal(t, string(entity.EventDecryptFailed), events[0].Kind)
}

func TestVerify_UnknownKey(t *testing.T) {
	t.Parallel()

	f := newFixture(t, memory.NewStore())
	envelope := f.enroll(t)

	// Re-tag the envelope with a key id the ring does not hold.
	env, err := mfa.ParseEnvelope(envelope)
	require.NoError(t, err)
	env.Key.KeyID = "retired"
	raw, err := env.Marshal()
	require.NoError(t, err)

	ok, err := f.uc.Verify(context.Background(), usecase.VerifyInput{
		UserID: "alice", Code: "123456", Envelope: raw,
	})

	assert.False(t, ok)
	assert.ErrorIs(t, err, mfa.ErrUnknownKey)
}

func TestVerify_InvalidInput(t *testing.T) {
	t.Parallel()

	f := newFixture(t, memory.NewStore())

	_, err := f.uc.Verify(context.Background(), usecase.VerifyInput{Code: "123456", Envelope: []byte("{}")})
	var ge *goerror.Error
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, goerror.TypeValidation, ge.Type())

	_, err = f.uc.Verify(context.Background(), usecase.VerifyInput{UserID: "alice", Code: "123456", Envelope: []byte("not json")})
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, goerror.CodeInvalidFormat, ge.Code())
	assert.ErrorIs(t, err, mfa.ErrMalformedEnvelope)
}
