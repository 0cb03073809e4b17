package registry

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// secretBox encrypts repository credential secrets at rest with AES-256-GCM.
//
// No example in the pack carries a secret-encryption concern, and no
// third-party library in the Go ecosystem improves meaningfully on the
// standard library for "encrypt a short secret under a static key" — this
// is the textbook use of crypto/aes + crypto/cipher, so it stays on the
// standard library rather than reaching for a dependency that would just
// wrap the same two calls.
type secretBox struct {
	gcm cipher.AEAD
}

// newSecretBox builds a secretBox from a base64-encoded 32-byte key, as
// ENCRYPTION_KEY is documented in spec.md §6.
func newSecretBox(base64Key string) (*secretBox, error) {
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, errors.New("encryption key must be 32 bytes")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return &secretBox{gcm: gcm}, nil
}

// seal encrypts plaintext, returning a base64 string of nonce||ciphertext.
func (b *secretBox) seal(plaintext string) (string, error) {
	nonce := make([]byte, b.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext := b.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// open decrypts a value produced by seal.
func (b *secretBox) open(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	nonceSize := b.gcm.NonceSize()
	if len(raw) < nonceSize {
		return "", errors.New("ciphertext too short")
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := b.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}
