package mfa

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/shandysiswandi/otpguard/internal/pkg/otp"
)

// SecretCodec defines the contract for minting and sealing TOTP secrets.
type SecretCodec interface {
	// GenerateSecret draws p.SecretSize random bytes.
	GenerateSecret(p otp.Params) ([]byte, error)
	// Encrypt seals secret under the current key and freezes p into the envelope.
	Encrypt(secret []byte, p otp.Params) (*Envelope, error)
	// Decrypt opens env with the key it is tagged with.
	Decrypt(env *Envelope) ([]byte, error)
	// Rotate re-seals env under the current key, keeping its params.
	Rotate(env *Envelope) (*Envelope, error)
	// NeedsRotation reports whether env was sealed under a non-current key.
	NeedsRotation(env *Envelope) bool
}

const (
	saltSize     = 16
	gcmNonceSize = 12
	aesKeyLen    = 32
	hkdfInfo     = "otpguard/totp-secret/"
)

// Codec implements SecretCodec with AES-256-GCM.
//
// The per-envelope AES key is derived with HKDF-SHA256 from the key ring entry
// and a random salt, so raw key ring material is never used as a cipher key
// directly and may be of any length >= MinKeySize.
type Codec struct {
	ring *KeyRing
	rand io.Reader
}

// Option configures a Codec.
type Option func(*Codec)

// WithRandom replaces crypto/rand as the entropy source.
func WithRandom(r io.Reader) Option {
	return func(c *Codec) {
		c.rand = r
	}
}

// NewCodec returns a Codec bound to ring.
func NewCodec(ring *KeyRing, opts ...Option) (*Codec, error) {
	if ring == nil || len(ring.keys) == 0 {
		return nil, fmt.Errorf("%w: key ring is required", ErrInvalidConfig)
	}

	c := &Codec{ring: ring, rand: rand.Reader}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GenerateSecret draws a new random secret. Failure to obtain entropy is
// returned as ErrEntropy and is not retried.
func (c *Codec) GenerateSecret(p otp.Params) ([]byte, error) {
	p = p.WithDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}

	secret := make([]byte, p.SecretSize)
	if _, err := io.ReadFull(c.rand, secret); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEntropy, err)
	}
	return secret, nil
}

// Encrypt seals secret under the key ring's current key.
func (c *Codec) Encrypt(secret []byte, p otp.Params) (*Envelope, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("mfa: secret is empty")
	}
	p = p.WithDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}

	kid := c.ring.Current()
	env := newEnvelope(kid, p)

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(c.rand, salt); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEntropy, err)
	}
	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEntropy, err)
	}

	master, _ := c.ring.key(kid)
	gcm, err := newGCM(master, salt, kid)
	if err != nil {
		return nil, err
	}

	env.Key.Salt = salt
	env.Key.Nonce = nonce
	env.Key.Ciphertext = gcm.Seal(nil, nonce, secret, env.additionalData())

	return env, nil
}

// Decrypt opens env. It fails with ErrUnknownKey when the tagged key id is not
// in the ring and ErrDecrypt when the integrity check fails.
func (c *Codec) Decrypt(env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("%w: nil envelope", ErrMalformedEnvelope)
	}
	if err := env.check(); err != nil {
		return nil, err
	}
	if len(env.Key.Nonce) != gcmNonceSize {
		return nil, fmt.Errorf("%w: nonce is %d bytes, want %d", ErrMalformedEnvelope, len(env.Key.Nonce), gcmNonceSize)
	}

	master, ok := c.ring.key(env.Key.KeyID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, env.Key.KeyID)
	}

	gcm, err := newGCM(master, env.Key.Salt, env.Key.KeyID)
	if err != nil {
		return nil, err
	}

	plain, err := gcm.Open(nil, env.Key.Nonce, env.Key.Ciphertext, env.additionalData())
	if err != nil {
		// Do not distinguish wrong key material from tampering.
		return nil, ErrDecrypt
	}
	return plain, nil
}

// Rotate decrypts env and seals the secret again under the current key.
func (c *Codec) Rotate(env *Envelope) (*Envelope, error) {
	p, err := env.Params()
	if err != nil {
		return nil, err
	}

	secret, err := c.Decrypt(env)
	if err != nil {
		return nil, err
	}
	defer Wipe(secret)

	return c.Encrypt(secret, p)
}

// NeedsRotation reports whether env was sealed under a key other than the
// current one.
func (c *Codec) NeedsRotation(env *Envelope) bool {
	return env != nil && env.Key.KeyID != c.ring.Current()
}

// Wipe zeroes b. Callers use it to drop secret material as soon as a single
// generation or verification is done.
func Wipe(b []byte) {
	clear(b)
}

func newGCM(master, salt []byte, kid string) (cipher.AEAD, error) {
	key := make([]byte, aesKeyLen)
	defer Wipe(key)

	if _, err := io.ReadFull(hkdf.New(sha256.New, master, salt, []byte(hkdfInfo+kid)), key); err != nil {
		return nil, fmt.Errorf("mfa: key derivation failed: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("mfa: aes init failed: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("mfa: gcm init failed: %w", err)
	}
	return gcm, nil
}
