package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// newDeleteToken mints a deletion secret and its bcrypt hash. The plaintext
// is returned to the uploader exactly once; only the hash is stored.
func newDeleteToken() (token, hash string, err error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate delete token: %w", err)
	}
	token = hex.EncodeToString(buf)

	h, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("hash delete token: %w", err)
	}
	return token, string(h), nil
}

// tokenMatches compares a presented token against a stored bcrypt hash.
func tokenMatches(hash, token string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}
