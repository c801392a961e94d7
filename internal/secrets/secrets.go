package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	apperrors "turnero/internal/errors"
)

// Codec encrypts and decrypts provider credentials at rest with AES-256-GCM.
// The stored format is iv.tag.ciphertext with each part base64-encoded.
type Codec struct {
	key []byte
}

// NewCodec builds a codec from a base64-encoded 32-byte key.
func NewCodec(base64Key string) (*Codec, error) {
	if base64Key == "" {
		return nil, fmt.Errorf("encryption key not set")
	}
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("encryption key must be valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must decode to exactly 32 bytes, got %d", len(key))
	}
	return &Codec{key: key}, nil
}

func (c *Codec) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (c *Codec) Encrypt(plainText string) (string, error) {
	aead, err := c.gcm()
	if err != nil {
		return "", err
	}

	iv := make([]byte, aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}

	sealed := aead.Seal(nil, iv, []byte(plainText), nil)
	tagStart := len(sealed) - 16
	ciphertext, tag := sealed[:tagStart], sealed[tagStart:]

	return strings.Join([]string{
		base64.StdEncoding.EncodeToString(iv),
		base64.StdEncoding.EncodeToString(tag),
		base64.StdEncoding.EncodeToString(ciphertext),
	}, "."), nil
}

// Decrypt reverses Encrypt. Any corruption of the stored value surfaces as
// the undecryptable error class, distinct from "not found".
func (c *Codec) Decrypt(encrypted string) (string, error) {
	parts := strings.Split(encrypted, ".")
	if len(parts) != 3 {
		return "", apperrors.Undecryptable("invalid encrypted secret format", nil)
	}

	iv, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", apperrors.Undecryptable("invalid encrypted secret iv", err)
	}
	tag, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", apperrors.Undecryptable("invalid encrypted secret tag", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return "", apperrors.Undecryptable("invalid encrypted secret ciphertext", err)
	}

	aead, err := c.gcm()
	if err != nil {
		return "", err
	}
	if len(iv) != aead.NonceSize() {
		return "", apperrors.Undecryptable("invalid encrypted secret iv length", nil)
	}

	plain, err := aead.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return "", apperrors.Undecryptable("secret decryption failed", err)
	}
	return string(plain), nil
}
