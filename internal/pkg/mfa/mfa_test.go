package mfa_test

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"

	libotp "github.com/pquerna/otp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shandysiswandi/otpguard/internal/pkg/mfa"
	"github.com/shandysiswandi/otpguard/internal/pkg/otp"
)

var (
	keyA = bytes.Repeat([]byte{0xA1}, 32)
	keyB = bytes.Repeat([]byte{0xB2}, 32)
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func newCodec(t *testing.T, keys map[string][]byte, current string) *mfa.Codec {
	t.Helper()

	ring, err := mfa.NewKeyRing(keys, current)
	require.NoError(t, err)
	codec, err := mfa.NewCodec(ring)
	require.NoError(t, err)
	return codec
}

func TestCodec_RoundTrip(t *testing.T) {
	t.Parallel()

	// Arrange
	codec := newCodec(t, map[string][]byte{"k1": keyA}, "")
	p := otp.DefaultParams("ACME")

	secret, err := codec.GenerateSecret(p)
	require.NoError(t, err)
	require.Len(t, secret, int(otp.DefaultSecretSize))

	// Act
	env, err := codec.Encrypt(secret, p)
	require.NoError(t, err)

	raw, err := env.Marshal()
	require.NoError(t, err)
	parsed, err := mfa.ParseEnvelope(raw)
	require.NoError(t, err)

	got, err := codec.Decrypt(parsed)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, secret, got)
	assert.Equal(t, "k1", parsed.Key.KeyID)
	assert.NotContains(t, string(raw), base64.StdEncoding.EncodeToString(secret))

	params, err := parsed.Params()
	require.NoError(t, err)
	assert.Equal(t, "ACME", params.Issuer)
	assert.Equal(t, libotp.AlgorithmSHA1, params.Algorithm)
	assert.Equal(t, libotp.DigitsSix, params.Digits)
	assert.Equal(t, uint(30), params.Period)
}

func TestCodec_EncryptIsRandomized(t *testing.T) {
	t.Parallel()

	codec := newCodec(t, map[string][]byte{"k1": keyA}, "")
	p := otp.DefaultParams("ACME")
	secret := []byte("12345678901234567890")

	first, err := codec.Encrypt(secret, p)
	require.NoError(t, err)
	second, err := codec.Encrypt(secret, p)
	require.NoError(t, err)

	assert.NotEqual(t, first.Key.Ciphertext, second.Key.Ciphertext)
}

func TestCodec_DecryptUnknownKey(t *testing.T) {
	t.Parallel()

	// Arrange
	old := newCodec(t, map[string][]byte{"k1": keyA}, "")
	env, err := old.Encrypt([]byte("12345678901234567890"), otp.DefaultParams("ACME"))
	require.NoError(t, err)

	rotated := newCodec(t, map[string][]byte{"k2": keyB}, "")

	// Act
	_, err = rotated.Decrypt(env)

	// Assert
	assert.ErrorIs(t, err, mfa.ErrUnknownKey)
}

func TestCodec_DecryptDetectsTampering(t *testing.T) {
	t.Parallel()

	codec := newCodec(t, map[string][]byte{"k1": keyA}, "")

	tests := []struct {
		name   string
		mutate func(env *mfa.Envelope)
	}{
		{name: "ciphertext bit flip", mutate: func(env *mfa.Envelope) { env.Key.Ciphertext[0] ^= 0x01 }},
		{name: "salt changed", mutate: func(env *mfa.Envelope) { env.Key.Salt[0] ^= 0x01 }},
		{name: "digits changed", mutate: func(env *mfa.Envelope) { env.Digits = 8 }},
		{name: "period changed", mutate: func(env *mfa.Envelope) { env.Period = 60 }},
		{name: "issuer changed", mutate: func(env *mfa.Envelope) { env.Issuer = "EVIL" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := codec.Encrypt([]byte("12345678901234567890"), otp.DefaultParams("ACME"))
			require.NoError(t, err)

			tt.mutate(env)
			_, err = codec.Decrypt(env)

			assert.ErrorIs(t, err, mfa.ErrDecrypt)
		})
	}
}

func TestCodec_DecryptWithWrongKeyMaterial(t *testing.T) {
	t.Parallel()

	codec := newCodec(t, map[string][]byte{"k1": keyA}, "")
	env, err := codec.Encrypt([]byte("12345678901234567890"), otp.DefaultParams("ACME"))
	require.NoError(t, err)

	impostor := newCodec(t, map[string][]byte{"k1": keyB}, "")
	_, err = impostor.Decrypt(env)

	assert.ErrorIs(t, err, mfa.ErrDecrypt)
}

func TestCodec_Rotation(t *testing.T) {
	t.Parallel()

	// Arrange
	old := newCodec(t, map[string][]byte{"2024-01": keyA}, "")
	secret := []byte("12345678901234567890")
	p := otp.DefaultParams("ACME")
	p.Digits = libotp.DigitsEight
	env, err := old.Encrypt(secret, p)
	require.NoError(t, err)

	codec := newCodec(t, map[string][]byte{"2024-01": keyA, "2025-06": keyB}, "")

	// Act
	needs := codec.NeedsRotation(env)
	rotated, err := codec.Rotate(env)

	// Assert
	require.NoError(t, err)
	assert.True(t, needs)
	assert.False(t, codec.NeedsRotation(rotated))
	assert.Equal(t, "2025-06", rotated.Key.KeyID)
	assert.Equal(t, 8, rotated.Digits)

	got, err := codec.Decrypt(rotated)
	require.NoError(t, err)
	assert.Equal(t, secret, got)
}

func TestCodec_EntropyFailure(t *testing.T) {
	t.Parallel()

	ring, err := mfa.NewKeyRing(map[string][]byte{"k1": keyA}, "")
	require.NoError(t, err)
	codec, err := mfa.NewCodec(ring, mfa.WithRandom(failingReader{}))
	require.NoError(t, err)

	_, err = codec.GenerateSecret(otp.DefaultParams("ACME"))
	assert.ErrorIs(t, err, mfa.ErrEntropy)

	_, err = codec.Encrypt([]byte("12345678901234567890"), otp.DefaultParams("ACME"))
	assert.ErrorIs(t, err, mfa.ErrEntropy)
}

func TestNewCodec_RequiresRing(t *testing.T) {
	t.Parallel()

	_, err := mfa.NewCodec(nil)
	assert.ErrorIs(t, err, mfa.ErrInvalidConfig)
}

func TestNewKeyRing(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		_, err := mfa.NewKeyRing(nil, "")
		assert.ErrorIs(t, err, mfa.ErrInvalidConfig)
	})

	t.Run("short key", func(t *testing.T) {
		_, err := mfa.NewKeyRing(map[string][]byte{"k1": []byte("short")}, "")
		assert.ErrorIs(t, err, mfa.ErrInvalidConfig)
	})

	t.Run("blank id", func(t *testing.T) {
		_, err := mfa.NewKeyRing(map[string][]byte{" ": keyA}, "")
		assert.ErrorIs(t, err, mfa.ErrInvalidConfig)
	})

	t.Run("unknown current", func(t *testing.T) {
		_, err := mfa.NewKeyRing(map[string][]byte{"k1": keyA}, "k9")
		assert.ErrorIs(t, err, mfa.ErrInvalidConfig)
	})

	t.Run("greatest id is current by default", func(t *testing.T) {
		ring, err := mfa.NewKeyRing(map[string][]byte{"2024-01": keyA, "2025-06": keyB}, "")
		require.NoError(t, err)
		assert.Equal(t, "2025-06", ring.Current())
		assert.Equal(t, []string{"2024-01", "2025-06"}, ring.IDs())
	})

	t.Run("explicit current", func(t *testing.T) {
		ring, err := mfa.NewKeyRing(map[string][]byte{"2024-01": keyA, "2025-06": keyB}, "2024-01")
		require.NoError(t, err)
		assert.Equal(t, "2024-01", ring.Current())
	})
}

func TestParseKeySpec(t *testing.T) {
	t.Parallel()

	a := base64.StdEncoding.EncodeToString(keyA)
	b := base64.StdEncoding.EncodeToString(keyB)

	keys, err := mfa.ParseKeySpec(" k1:" + a + " , k2:" + b + ",")
	require.NoError(t, err)
	assert.Equal(t, keyA, keys["k1"])
	assert.Equal(t, keyB, keys["k2"])

	tests := []struct {
		name string
		spec string
	}{
		{name: "empty", spec: "  "},
		{name: "missing separator", spec: "k1" + a},
		{name: "bad base64", spec: "k1:!!!"},
		{name: "duplicate", spec: "k1:" + a + ",k1:" + b},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mfa.ParseKeySpec(tt.spec)
			assert.ErrorIs(t, err, mfa.ErrInvalidConfig)
		})
	}
}

func TestParseEnvelope_Rejects(t *testing.T) {
	t.Parallel()

	_, err := mfa.ParseEnvelope([]byte("{not json"))
	assert.ErrorIs(t, err, mfa.ErrMalformedEnvelope)

	_, err = mfa.ParseEnvelope([]byte(`{"v":2,"type":"totp"}`))
	assert.ErrorIs(t, err, mfa.ErrUnsupportedEnvelope)

	_, err = mfa.ParseEnvelope([]byte(`{"v":1,"type":"totp","key":{"kid":"k1"}}`))
	assert.ErrorIs(t, err, mfa.ErrMalformedEnvelope)
}

func TestWipe(t *testing.T) {
	t.Parallel()

	b := []byte("secret")
	mfa.Wipe(b)
	assert.Equal(t, make([]byte, 6), b)
}
