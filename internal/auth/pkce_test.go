package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"contract-secretary/internal/auth"
)

func TestComputeChallengeKnownVector(t *testing.T) {
	// RFC 7636 appendix B
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	require.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", auth.ComputeChallenge(verifier))
}

func TestValidVerifier(t *testing.T) {
	require.True(t, auth.ValidVerifier(strings.Repeat("a", 43)))
	require.True(t, auth.ValidVerifier(strings.Repeat("A0-._~", 20)))
	require.False(t, auth.ValidVerifier(strings.Repeat("a", 42)))
	require.False(t, auth.ValidVerifier(strings.Repeat("a", 129)))
	require.False(t, auth.ValidVerifier(strings.Repeat("a", 42)+"!"))
	require.False(t, auth.ValidVerifier(""))
}

func TestValidChallenge(t *testing.T) {
	verifier := strings.Repeat("v", 43)
	require.True(t, auth.ValidChallenge(auth.ComputeChallenge(verifier)))
	require.False(t, auth.ValidChallenge("too-short"))
	require.False(t, auth.ValidChallenge(strings.Repeat("a", 42)+"+"))
}

func TestVerifierMatches(t *testing.T) {
	verifier := strings.Repeat("v", 50)
	challenge := auth.ComputeChallenge(verifier)

	require.True(t, auth.VerifierMatches(verifier, challenge))
	require.False(t, auth.VerifierMatches(strings.Repeat("w", 50), challenge))
}
