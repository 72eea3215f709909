package crypto

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	keyA = hex.EncodeToString(bytesOf(0x11))
	keyB = hex.EncodeToString(bytesOf(0x22))
)

func bytesOf(b byte) []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = b
	}
	return key
}

// untagged strips the version prefix, producing the historical envelope form.
func untagged(t *testing.T, envelope string) string {
	t.Helper()
	legacy, ok := strings.CutPrefix(envelope, envelopePrefix)
	require.True(t, ok)
	return legacy
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := New(keyA, "", zap.NewNop())
	require.NoError(t, err)
	require.True(t, c.Enabled())

	for _, plaintext := range []string{"token-x", "한글 비밀값", "a", ""} {
		envelope, err := c.Encrypt(plaintext)
		require.NoError(t, err)
		require.Equal(t, plaintext, c.Decrypt(envelope))
		if plaintext != "" {
			require.NotEqual(t, plaintext, envelope)
		}
	}
}

func TestEnvelopeLayout(t *testing.T) {
	c, err := New(keyA, "", zap.NewNop())
	require.NoError(t, err)

	envelope, err := c.Encrypt("secret")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(envelope, "v1:"))

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(envelope, "v1:"))
	require.NoError(t, err)
	// iv(12) + tag(16) + ciphertext(len("secret"))
	require.Len(t, decoded, 12+16+len("secret"))
}

func TestDisabledCipherPassesThrough(t *testing.T) {
	c, err := New("", "", zap.NewNop())
	require.NoError(t, err)
	require.False(t, c.Enabled())

	envelope, err := c.Encrypt("plain")
	require.NoError(t, err)
	require.Equal(t, "plain", envelope)
	require.Equal(t, "plain", c.Decrypt("plain"))
	require.False(t, c.NeedsReEncryption("plain"))
}

func TestDecryptNonEnvelopeReturnsInput(t *testing.T) {
	c, err := New(keyA, "", zap.NewNop())
	require.NoError(t, err)

	for _, input := range []string{
		"legacy-plain-token",
		"not base64 at all!",
		"c2hvcnQ=",      // valid base64 but shorter than iv+tag+1
		"v1:not-base64", // tagged but undecodable
		"",
	} {
		require.Equal(t, input, c.Decrypt(input))
	}
}

func TestDecryptUntaggedEnvelope(t *testing.T) {
	c, err := New(keyA, "", zap.NewNop())
	require.NoError(t, err)

	envelope, err := c.Encrypt("token-x")
	require.NoError(t, err)

	// rows written before the versioned format carry no prefix
	require.Equal(t, "token-x", c.Decrypt(untagged(t, envelope)))
}

func TestDecryptWithPreviousKeyAfterRotation(t *testing.T) {
	old, err := New(keyA, "", zap.NewNop())
	require.NoError(t, err)
	envelope, err := old.Encrypt("token-x")
	require.NoError(t, err)

	rotated, err := New(keyB, keyA, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, "token-x", rotated.Decrypt(envelope))
	require.Equal(t, "token-x", rotated.Decrypt(untagged(t, envelope)))

	// With the old key dropped entirely the envelope is unreadable and the
	// stored value is handed back as-is instead of failing.
	withoutPrevious, err := New(keyB, "", zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, envelope, withoutPrevious.Decrypt(envelope))
}

func TestNeedsReEncryption(t *testing.T) {
	old, err := New(keyA, "", zap.NewNop())
	require.NoError(t, err)
	oldEnvelope, err := old.Encrypt("token-x")
	require.NoError(t, err)

	rotated, err := New(keyB, keyA, zap.NewNop())
	require.NoError(t, err)

	freshEnvelope, err := rotated.Encrypt("token-x")
	require.NoError(t, err)

	require.True(t, rotated.NeedsReEncryption(oldEnvelope))
	require.True(t, rotated.NeedsReEncryption("legacy-plain-token"))
	require.True(t, rotated.NeedsReEncryption(untagged(t, freshEnvelope)))
	require.False(t, rotated.NeedsReEncryption(freshEnvelope))
	require.False(t, rotated.NeedsReEncryption(""))

	// An envelope no configured key opens is left alone rather than
	// re-sealed as if it were plaintext.
	single, err := New(keyB, "", zap.NewNop())
	require.NoError(t, err)
	require.False(t, single.NeedsReEncryption(oldEnvelope))
}

func TestNewRejectsMalformedActiveKey(t *testing.T) {
	_, err := New("zzzz", "", zap.NewNop())
	require.Error(t, err)

	_, err = New(hex.EncodeToString([]byte("short")), "", zap.NewNop())
	require.Error(t, err)
}

func TestMalformedPreviousKeyIgnored(t *testing.T) {
	c, err := New(keyA, "not-hex", zap.NewNop())
	require.NoError(t, err)

	envelope, err := c.Encrypt("v")
	require.NoError(t, err)
	require.Equal(t, "v", c.Decrypt(envelope))
}
