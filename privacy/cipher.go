package privacy

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// CorruptionSentinel is the fixed placeholder returned when a stored PHI
// token fails integrity verification. Rendering code always gets a
// displayable value; the failure itself is logged as an operator signal
// because it points at data-at-rest corruption or a key mismatch.
const CorruptionSentinel = "[DATA CORRUPTION ERROR]"

// Cipher performs authenticated encryption of free-text PHI fields with
// AES-256-GCM. Tokens are base64url strings with the random nonce prepended
// to the sealed payload.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher provisions a fresh data key and returns a cipher bound to it.
// The key lives for the process lifetime only, standing in for a key
// management service; rotation and multi-key support are out of scope.
func NewCipher() (*Cipher, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate data key: %w", err)
	}
	return NewCipherWithKey(key)
}

// NewCipherWithKey builds a cipher around a caller-supplied 32 byte key
func NewCipherWithKey(key []byte) (*Cipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM cipher: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext into a storable token. Empty input returns an
// empty token.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a token produced by Encrypt. Empty tokens return empty
// strings. A token that cannot be decoded or fails authentication never
// surfaces an error to the caller: the corruption sentinel comes back
// instead, and the event is logged.
func (c *Cipher) Decrypt(token string) string {
	if token == "" {
		return ""
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) <= c.aead.NonceSize() {
		zap.S().Errorw("phi token failed to decode, data at rest may be corrupted",
			"tokenLength", len(token),
		)
		return CorruptionSentinel
	}
	ns := c.aead.NonceSize()
	plaintext, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		zap.S().Errorw("phi token failed integrity verification, data at rest may be corrupted or the key rotated",
			"tokenLength", len(token),
		)
		return CorruptionSentinel
	}
	return string(plaintext)
}
