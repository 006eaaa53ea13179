package krypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// NonceSize is the AES-GCM nonce length in bytes.
const NonceSize = 12

var (
	// ErrAuthentication is returned when a ciphertext fails to authenticate
	// under the given key, nonce and associated data.
	ErrAuthentication = errors.New("message authentication failed")
	// ErrInvalidNonce is returned for nonces that are not NonceSize bytes.
	ErrInvalidNonce = fmt.Errorf("nonce must be %d bytes", NonceSize)
)

// nonceSource is swapped in tests.
var nonceSource io.Reader = rand.Reader

// Seal encrypts plaintext under key with AES-256-GCM. Every call draws a new
// random nonce, which is returned alongside the ciphertext and must be stored
// with it.
func Seal(key *Key, plaintext, aad []byte) (nonce, ciphertext []byte, err error) {
	err = key.withBytes(func(raw []byte) error {
		nonce, ciphertext, err = encryptAESGCM(raw, plaintext, aad)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return nonce, ciphertext, nil
}

// Open authenticates and decrypts ciphertext. Any change to the ciphertext,
// nonce, associated data or key yields ErrAuthentication.
func Open(key *Key, nonce, ciphertext, aad []byte) ([]byte, error) {
	var plaintext []byte
	err := key.withBytes(func(raw []byte) error {
		var err error
		plaintext, err = decryptAESGCM(raw, nonce, ciphertext, aad)
		return err
	})
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeyLength {
		return nil, errors.New("aes-gcm requires a 32-byte key")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

func encryptAESGCM(key, plaintext, aad []byte) (nonce, ciphertext []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, NonceSize)
	if _, err := io.ReadFull(nonceSource, nonce); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext = gcm.Seal(nil, nonce, plaintext, aad)
	return nonce, ciphertext, nil
}

func decryptAESGCM(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != NonceSize {
		return nil, ErrInvalidNonce
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}
