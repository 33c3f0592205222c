package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// Token lengths in raw bytes before encoding. The owner token gates
// destructive payer operations, so it gets more entropy than the share link
// that is read out loud at a table.
const (
	ownerTokenBytes = 24
	shareTokenBytes = 12
)

// NewOwnerToken returns a fresh URL-safe owner capability token.
func NewOwnerToken() (string, error) {
	return randomToken(ownerTokenBytes)
}

// NewShareToken returns a fresh URL-safe share link token.
func NewShareToken() (string, error) {
	return randomToken(shareTokenBytes)
}

// TokensEqual compares two tokens in constant time.
func TokensEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
