package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// GenerateCodeVerifier returns a fresh PKCE code verifier: 24 random bytes,
// hex encoded (48 characters, within RFC 7636's 43-128 bounds).
func GenerateCodeVerifier() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate code verifier: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// CodeChallengeS256 derives the S256 code challenge for a verifier:
// base64url(sha256(verifier)) without padding.
func CodeChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
