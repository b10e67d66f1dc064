package otp

import (
	"fmt"
	"strings"

	"github.com/pquerna/otp/totp"
)

// ProvisioningURI renders the otpauth://totp/ URI understood by authenticator
// applications:
//
//	otpauth://totp/{issuer}:{account}?algorithm=SHA1&digits=6&issuer={issuer}&period=30&secret={base32}
//
// The secret is base32 without padding.
func ProvisioningURI(account string, secret []byte, p Params) (string, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return "", fmt.Errorf("%w: account label is required", ErrInvalidParams)
	}
	if strings.Contains(account, ":") {
		return "", fmt.Errorf("%w: account label must not contain ':'", ErrInvalidParams)
	}
	if len(secret) == 0 {
		return "", fmt.Errorf("%w: empty secret", ErrInvalidParams)
	}
	if err := p.Validate(); err != nil {
		return "", err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      p.Issuer,
		AccountName: account,
		Period:      p.Period,
		Secret:      secret,
		Digits:      p.Digits,
		Algorithm:   p.Algorithm,
	})
	if err != nil {
		return "", err
	}

	return key.URL(), nil
}
