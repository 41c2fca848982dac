package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

const nonceLen = 12

// ErrSealed is returned by Open when the blob cannot be decrypted, whether
// because the password is wrong or the blob is damaged.
var ErrSealed = errors.New("sealed data could not be opened")

// Seal encrypts plaintext with a key derived from password. The result is
// base64(salt || nonce || ciphertext).
func Seal(plaintext []byte, password string) (string, error) {
	if password == "" {
		return "", ErrEmptyCredential
	}
	buf := make([]byte, saltLen+nonceLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("credential: seal: %w", err)
	}
	salt, nonce := buf[:saltLen], buf[saltLen:]

	aead, err := newAEAD(password, salt)
	if err != nil {
		return "", err
	}
	out := aead.Seal(buf, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func Open(sealed, password string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(raw) < saltLen+nonceLen {
		return nil, ErrSealed
	}
	salt, nonce, ct := raw[:saltLen], raw[saltLen:saltLen+nonceLen], raw[saltLen+nonceLen:]

	aead, err := newAEAD(password, salt)
	if err != nil {
		return nil, err
	}
	plain, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, ErrSealed
	}
	return plain, nil
}

func newAEAD(password string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(derive(password, salt, iterations))
	if err != nil {
		return nil, fmt.Errorf("credential: cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("credential: gcm: %w", err)
	}
	return aead, nil
}
