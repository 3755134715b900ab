package auth

import (
	"github.com/dmitrijs2005/gophaccount/internal/common"
)

// TokenGenerator produces verification tokens: 32 random bytes, hex encoded.
type TokenGenerator struct{}

func (TokenGenerator) Generate() (string, error) {
	return common.MakeRandHexString(common.VerificationTokenSize)
}
