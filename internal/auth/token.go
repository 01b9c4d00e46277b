package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

const tokenBytes = 32

// GenerateAPIToken returns a random token for the API and the hash to put
// in AUTH_TOKEN_HASH. Only the hash is ever configured on the server.
func GenerateAPIToken() (plaintext string, hash string, err error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	plaintext = hex.EncodeToString(buf)
	return plaintext, HashToken(plaintext), nil
}

// HashToken is the hex SHA-256 of token.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// TokenMatches compares a presented token with a stored hash in constant time.
func TokenMatches(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(strings.ToLower(strings.TrimSpace(hash)))) == 1
}
