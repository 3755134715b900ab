// Package common contains shared constants and sentinel errors used across
// the account service components.
package common

// VerificationTokenSize is the number of random bytes behind a verification
// token. Hex encoding doubles it, so tokens are 64 characters long.
const VerificationTokenSize = 32
