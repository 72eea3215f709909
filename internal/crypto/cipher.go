package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

const (
	keyLength     = 32
	ivLength      = 12
	authTagLength = 16

	// Tag prepended to every envelope this code writes. Rows without it
	// predate the versioned format and go through the legacy heuristic.
	envelopePrefix = "v1:"
)

var base64Pattern = regexp.MustCompile(`^[A-Za-z0-9+/]+=*$`)

var errNotEnvelope = errors.New("not an encrypted envelope")

// Cipher authenticated-encrypts opaque secrets with AES-256-GCM. Envelopes
// are "v1:" + base64(iv[12] || authTag[16] || ciphertext). A previous key
// covers the window after a key rotation while stored rows still reference
// the old key.
//
// Without an active key the cipher is disabled and passes values through
// unchanged, which keeps rows written before encryption was turned on
// readable. Decrypt never fails: input that does not parse as an envelope,
// or that no configured key can open, comes back unchanged.
type Cipher struct {
	active   []byte
	previous []byte
	logger   *zap.Logger
}

// New builds a Cipher from hex-encoded 32-byte keys. An empty activeKeyHex
// yields a disabled cipher. A malformed previous key is ignored with a
// warning rather than failing startup, since it only serves the read path.
func New(activeKeyHex, previousKeyHex string, logger *zap.Logger) (*Cipher, error) {
	c := &Cipher{logger: logger}

	if activeKeyHex == "" {
		logger.Warn("encryption key not set, token encryption disabled")
		return c, nil
	}

	active, err := hex.DecodeString(activeKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	if len(active) != keyLength {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", keyLength, len(active))
	}
	c.active = active

	if previousKeyHex != "" {
		previous, err := hex.DecodeString(previousKeyHex)
		if err != nil || len(previous) != keyLength {
			logger.Warn("ignoring malformed previous encryption key")
		} else {
			c.previous = previous
			logger.Info("key rotation enabled with previous key")
		}
	}

	return c, nil
}

func (c *Cipher) Enabled() bool {
	return c.active != nil
}

// Encrypt seals plaintext under the active key. With encryption disabled the
// plaintext is returned unchanged. Empty input stays empty; an envelope
// always carries at least one ciphertext byte.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if c.active == nil || plaintext == "" {
		return plaintext, nil
	}

	gcm, err := newGCM(c.active)
	if err != nil {
		return "", err
	}

	iv := make([]byte, ivLength)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	ciphertext := sealed[:len(sealed)-authTagLength]
	authTag := sealed[len(sealed)-authTagLength:]

	combined := make([]byte, 0, ivLength+authTagLength+len(ciphertext))
	combined = append(combined, iv...)
	combined = append(combined, authTag...)
	combined = append(combined, ciphertext...)

	return envelopePrefix + base64.StdEncoding.EncodeToString(combined), nil
}

// Decrypt opens an envelope with the active key, falling back to the
// previous key. Untagged input goes through the legacy heuristic: anything
// that does not look like an envelope is treated as plaintext. Anything that
// cannot be opened is returned unchanged.
func (c *Cipher) Decrypt(input string) string {
	if c.active == nil || input == "" {
		return input
	}

	if tagged, ok := strings.CutPrefix(input, envelopePrefix); ok {
		envelope, err := decodeEnvelope(tagged)
		if err != nil {
			c.logger.Warn("malformed envelope, returning value as stored")
			return input
		}
		if plaintext, ok := c.open(envelope); ok {
			return plaintext
		}
		c.logger.Warn("decryption failed, returning value as stored")
		return input
	}

	envelope, ok := parseLegacyEnvelope(input)
	if !ok {
		// legacy plaintext row
		return input
	}
	if plaintext, ok := c.open(envelope); ok {
		return plaintext
	}

	c.logger.Warn("decryption failed, returning value as stored")
	return input
}

// NeedsReEncryption reports whether a stored value should be rewritten under
// the active key: legacy plaintext, an untagged envelope, or an envelope
// that only opens with the previous key. Values no configured key can open
// are left alone.
func (c *Cipher) NeedsReEncryption(input string) bool {
	if c.active == nil || input == "" {
		return false
	}

	if tagged, ok := strings.CutPrefix(input, envelopePrefix); ok {
		envelope, err := decodeEnvelope(tagged)
		if err != nil {
			return false
		}
		if _, err := openEnvelope(envelope, c.active); err == nil {
			return false
		}
		return c.opensWithPrevious(envelope)
	}

	envelope, ok := parseLegacyEnvelope(input)
	if !ok {
		// plaintext row, seal it
		return true
	}
	if _, err := openEnvelope(envelope, c.active); err == nil {
		// readable but still in the untagged format
		return true
	}
	return c.opensWithPrevious(envelope)
}

func (c *Cipher) open(envelope []byte) (string, bool) {
	if plaintext, err := openEnvelope(envelope, c.active); err == nil {
		return plaintext, true
	}
	if c.previous != nil {
		if plaintext, err := openEnvelope(envelope, c.previous); err == nil {
			return plaintext, true
		}
	}
	return "", false
}

func (c *Cipher) opensWithPrevious(envelope []byte) bool {
	if c.previous == nil {
		return false
	}
	_, err := openEnvelope(envelope, c.previous)
	return err == nil
}

func decodeEnvelope(encoded string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	if len(decoded) < ivLength+authTagLength+1 {
		return nil, errNotEnvelope
	}
	return decoded, nil
}

// parseLegacyEnvelope applies the historical plaintext-vs-envelope
// heuristic: base64 shape and at least 29 decoded bytes.
func parseLegacyEnvelope(input string) ([]byte, bool) {
	if !base64Pattern.MatchString(input) {
		return nil, false
	}

	decoded, err := base64.StdEncoding.DecodeString(input)
	if err != nil {
		return nil, false
	}
	if len(decoded) < ivLength+authTagLength+1 {
		return nil, false
	}

	return decoded, true
}

func openEnvelope(envelope, key []byte) (string, error) {
	if len(envelope) < ivLength+authTagLength+1 {
		return "", errNotEnvelope
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	iv := envelope[:ivLength]
	authTag := envelope[ivLength : ivLength+authTagLength]
	ciphertext := envelope[ivLength+authTagLength:]

	// Go's GCM expects the tag appended to the ciphertext.
	sealed := make([]byte, 0, len(ciphertext)+authTagLength)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, authTag...)

	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init aes: %w", err)
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, ivLength)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}

	return gcm, nil
}
