// Package crypto implements server-side password hashing and token generation.
package crypto

import (
	"crypto/subtle"
	"encoding/hex"

	"github.com/gofrs/uuid/v5"
	"golang.org/x/crypto/argon2"
)

// Argon2id parameters (tuned for server-side hashing).
const (
	argonTime    uint32 = 3         // iterations
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32
)

// HashPassword returns Argon2id hash of password using the provided salt.
func HashPassword(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// VerifyPassword verifies password against expected Argon2id hash and salt.
func VerifyPassword(password, salt, expected []byte) bool {
	got := HashPassword(password, salt)
	return subtle.ConstantTimeCompare(got, expected) == 1
}

// NewToken returns a random v4 uuid in 32-char hex form, used for session and upload tokens.
func NewToken() (string, error) {
	u, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(u.Bytes()), nil
}
