package common

import (
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeRandHexString_LengthAndHex(t *testing.T) {
	s, err := MakeRandHexString(VerificationTokenSize)
	require.NoError(t, err)
	assert.Len(t, s, VerificationTokenSize*2)

	_, err = hex.DecodeString(s)
	assert.NoError(t, err, "string is not valid hex")
}

func TestMakeRandHexString_ZeroSize(t *testing.T) {
	s, err := MakeRandHexString(0)
	require.NoError(t, err)
	assert.Empty(t, s)
}

func TestMakeRandHexString_Distinct(t *testing.T) {
	seen := make(map[string]struct{}, 64)
	for i := 0; i < 64; i++ {
		s, err := MakeRandHexString(VerificationTokenSize)
		require.NoError(t, err)
		_, dup := seen[s]
		require.False(t, dup, "duplicate token %q", s)
		seen[s] = struct{}{}
	}
}

func TestUniqueViolationError_UnwrapAndMessage(t *testing.T) {
	cause := errors.New("duplicate key")

	err := error(&UniqueViolationError{Field: FieldEmail, Constraint: "accounts_email_unique", Err: cause})
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "email")
	assert.Contains(t, err.Error(), "accounts_email_unique")

	var uv *UniqueViolationError
	require.True(t, errors.As(err, &uv))
	assert.Equal(t, FieldEmail, uv.Field)

	unknown := &UniqueViolationError{Constraint: "something_else", Err: cause}
	assert.Contains(t, unknown.Error(), "something_else")
}
