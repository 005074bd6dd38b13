// Package cryptox holds the password hashing used by the credential store.
package cryptox

import (
	"crypto/subtle"

	"golang.org/x/crypto/argon2"
)

// argon2id parameters: 19 MiB, two passes, one lane.
const (
	argonTime    = 2
	argonMemory  = 19 * 1024
	argonThreads = 1
	argonKeyLen  = 32
)

// HashPassword derives a 32-byte argon2id hash of password under salt.
func HashPassword(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// VerifyPassword recomputes the hash for candidate and compares it with
// stored in constant time.
func VerifyPassword(stored []byte, candidate []byte, salt []byte) bool {
	return subtle.ConstantTimeCompare(stored, HashPassword(candidate, salt)) == 1
}
