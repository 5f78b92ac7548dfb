package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const tokenBytes = 32

// RandomTokenSource issues opaque session tokens from crypto/rand.
// Tokens are stored only as SHA-256 hashes, so a leaked session table does
// not yield usable credentials.
type RandomTokenSource struct{}

func NewRandomTokenSource() *RandomTokenSource {
	return &RandomTokenSource{}
}

func (RandomTokenSource) NewToken() (string, string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate session token: %w", err)
	}
	token := hex.EncodeToString(raw)
	return token, hashHex(token), nil
}

func (RandomTokenSource) HashToken(raw string) string {
	return hashHex(raw)
}

func (RandomTokenSource) NewCSRFToken() (string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

func hashHex(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
