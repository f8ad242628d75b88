// Package crypto seals tenant API keys for storage at rest using
// AES-256-GCM. Sealed values are encoded as "nonce:tag:ciphertext" in hex
// so they remain greppable and column-friendly.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const nonceSize = 12

// ErrBadKey is returned when the provided key is not 32 bytes of hex.
var ErrBadKey = errors.New("crypto: key must be 64 hex characters (32 bytes)")

// Sealer encrypts and decrypts short secrets with a fixed key.
type Sealer struct {
	key []byte
}

// NewSealer builds a Sealer from a hex-encoded 256-bit key.
func NewSealer(hexKey string) (*Sealer, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil || len(key) != 32 {
		return nil, ErrBadKey
	}
	return &Sealer{key: key}, nil
}

// Seal encrypts plaintext. Empty input stays empty so optional columns
// round-trip without noise.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", fmt.Errorf("crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("crypto: new gcm: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("crypto: nonce: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-gcm.Overhead()], sealed[len(sealed)-gcm.Overhead():]
	return fmt.Sprintf("%s:%s:%s",
		hex.EncodeToString(nonce),
		hex.EncodeToString(tag),
		hex.EncodeToString(ct),
	), nil
}

// Open decrypts a value produced by Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	parts := strings.SplitN(sealed, ":", 3)
	if len(parts) != 3 {
		return "", errors.New("crypto: malformed sealed value")
	}
	nonce, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("crypto: decode nonce: %w", err)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("crypto: decode tag: %w", err)
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("crypto: decode ciphertext: %w", err)
	}
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", fmt.Errorf("crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("crypto: new gcm: %w", err)
	}
	plain, err := gcm.Open(nil, nonce, append(ct, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("crypto: open: %w", err)
	}
	return string(plain), nil
}

// OpenLenient decrypts sealed values and passes through anything that does
// not look sealed. Rows written before encryption was introduced hold
// plain text; they are returned unchanged rather than failing the load.
func (s *Sealer) OpenLenient(value string) string {
	if value == "" || strings.Count(value, ":") != 2 {
		return value
	}
	plain, err := s.Open(value)
	if err != nil {
		return value
	}
	return plain
}
