package mfa

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/shandysiswandi/otpguard/internal/pkg/otp"
)

const (
	envelopeVersion = 1
	envelopeType    = "totp"
)

// Envelope is the self-describing, encrypted form of a TOTP secret.
//
// Wire form (JSON, byte fields base64):
//
//	{"v":1,"type":"totp","issuer":"ACME","alg":"SHA1","digits":6,"period":30,
//	 "key":{"kid":"2025-01","salt":"...","nonce":"...","ct":"..."}}
//
// Everything outside "key" is bound to the ciphertext as GCM additional data.
// An envelope is produced once and never mutated; re-enrollment creates a new one.
type Envelope struct {
	Version   int         `json:"v"`
	Type      string      `json:"type"`
	Issuer    string      `json:"issuer"`
	Algorithm string      `json:"alg"`
	Digits    int         `json:"digits"`
	Period    uint        `json:"period"`
	Key       EnvelopeKey `json:"key"`
}

// EnvelopeKey carries the key id and the sealed secret.
type EnvelopeKey struct {
	KeyID      string `json:"kid"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ct"`
}

// ParseEnvelope decodes the JSON wire form.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	if err := env.check(); err != nil {
		return nil, err
	}
	return &env, nil
}

// Marshal encodes the envelope to its JSON wire form.
func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Params returns the token parameters frozen at encryption time.
func (e *Envelope) Params() (otp.Params, error) {
	alg, err := otp.ParseAlgorithm(e.Algorithm)
	if err != nil {
		return otp.Params{}, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	digits, err := otp.ParseDigits(e.Digits)
	if err != nil {
		return otp.Params{}, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}

	p := otp.Params{
		Issuer:    e.Issuer,
		Algorithm: alg,
		Digits:    digits,
		Period:    e.Period,
	}
	if err := p.Validate(); err != nil {
		return otp.Params{}, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	return p, nil
}

func (e *Envelope) check() error {
	if e.Version != envelopeVersion || e.Type != envelopeType {
		return fmt.Errorf("%w: version %d type %q", ErrUnsupportedEnvelope, e.Version, e.Type)
	}
	if e.Key.KeyID == "" || len(e.Key.Salt) == 0 || len(e.Key.Nonce) == 0 || len(e.Key.Ciphertext) == 0 {
		return fmt.Errorf("%w: missing key fields", ErrMalformedEnvelope)
	}
	return nil
}

func newEnvelope(kid string, p otp.Params) *Envelope {
	return &Envelope{
		Version:   envelopeVersion,
		Type:      envelopeType,
		Issuer:    p.Issuer,
		Algorithm: p.Algorithm.String(),
		Digits:    p.Digits.Length(),
		Period:    p.Period,
		Key:       EnvelopeKey{KeyID: kid},
	}
}

// additionalData binds the header fields to the ciphertext.
//
// A canonical labeled form is hashed so the AAD length is fixed and field
// boundaries are unambiguous.
func (e *Envelope) additionalData() []byte {
	canonical := fmt.Sprintf("v=%d\ntype=%s\nkid=%s\nissuer=%s\nalg=%s\ndigits=%d\nperiod=%d\n",
		e.Version, e.Type, e.Key.KeyID, e.Issuer, e.Algorithm, e.Digits, e.Period)
	sum := sha256.Sum256([]byte(canonical))
	return sum[:]
}
