package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// RFC 7636: the verifier is 43-128 characters from the unreserved set.
const (
	minVerifierLength = 43
	maxVerifierLength = 128
)

// ComputeChallenge derives the S256 code challenge for a verifier:
// base64url(SHA-256(verifier)), unpadded.
func ComputeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// ValidVerifier reports whether v is a well-formed PKCE code verifier.
func ValidVerifier(v string) bool {
	if len(v) < minVerifierLength || len(v) > maxVerifierLength {
		return false
	}
	for i := 0; i < len(v); i++ {
		if !isVerifierChar(v[i]) {
			return false
		}
	}
	return true
}

// ValidChallenge reports whether c could be an S256 challenge: the unpadded
// base64url form of a SHA-256 digest is always 43 characters.
func ValidChallenge(c string) bool {
	if len(c) != 43 {
		return false
	}
	for i := 0; i < len(c); i++ {
		if !isBase64URLChar(c[i]) {
			return false
		}
	}
	return true
}

// VerifierMatches compares the derived challenge against the stored one in
// constant time.
func VerifierMatches(verifier, storedChallenge string) bool {
	derived := ComputeChallenge(verifier)
	return subtle.ConstantTimeCompare([]byte(derived), []byte(storedChallenge)) == 1
}

func isVerifierChar(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '.' || c == '_' || c == '~':
		return true
	}
	return false
}

func isBase64URLChar(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_':
		return true
	}
	return false
}
