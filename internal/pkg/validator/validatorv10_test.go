package validator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shandysiswandi/otpguard/internal/pkg/validator"
)

type enrollInput struct {
	AccountName string `validate:"required,max=255,nocolon"`
	Issuer      string `validate:"omitempty,max=64,nocolon"`
}

func TestV10Validator(t *testing.T) {
	t.Parallel()

	v, err := validator.NewV10Validator()
	require.NoError(t, err)

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, v.Validate(enrollInput{AccountName: "alice@example.com", Issuer: "ACME Corp"}))
	})

	t.Run("required", func(t *testing.T) {
		err := v.Validate(enrollInput{})

		var verr validator.V10ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Values(), "account_name")
	})

	t.Run("colon in account", func(t *testing.T) {
		err := v.Validate(enrollInput{AccountName: "a:b"})

		var verr validator.V10ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "AccountName must not contain ':'", verr["account_name"])
	})

	t.Run("colon in issuer", func(t *testing.T) {
		err := v.Validate(enrollInput{AccountName: "alice", Issuer: "ACME:Corp"})

		var verr validator.V10ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "Issuer must not contain ':'", verr["issuer"])
		assert.Contains(t, verr.Error(), "issuer")
	})
}
