package krypto

import (
	"errors"
	"fmt"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrKeyDestroyed is returned when a destroyed or zero Key is used.
var ErrKeyDestroyed = errors.New("key destroyed")

// Key is an opaque handle to a 256-bit symmetric key.
//
// The key bytes live sealed in a memguard enclave and are only decrypted into
// locked memory for the duration of a Seal or Open call. There is no exported
// accessor for the raw bytes.
type Key struct {
	mu      sync.RWMutex
	enclave *memguard.Enclave
}

// KeyFromBytes seals raw into a new Key. raw must be KeyLength bytes and is
// wiped before KeyFromBytes returns, whether or not it succeeds.
func KeyFromBytes(raw []byte) (*Key, error) {
	if len(raw) != KeyLength {
		memguard.WipeBytes(raw)
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeyLength, len(raw))
	}
	return &Key{enclave: memguard.NewEnclave(raw)}, nil
}

// Destroy drops the enclave. Any later use of k fails with ErrKeyDestroyed.
func (k *Key) Destroy() {
	if k == nil {
		return
	}
	k.mu.Lock()
	k.enclave = nil
	k.mu.Unlock()
}

// Destroyed reports whether k can no longer be used.
func (k *Key) Destroyed() bool {
	if k == nil {
		return true
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.enclave == nil
}

// String keeps keys out of logs and error messages.
func (k *Key) String() string { return "krypto.Key{redacted}" }

// GoString mirrors String for %#v.
func (k *Key) GoString() string { return k.String() }

// withBytes opens the enclave and hands the plaintext key to fn. The buffer is
// destroyed as soon as fn returns; fn must not retain raw.
func (k *Key) withBytes(fn func(raw []byte) error) error {
	if k == nil {
		return ErrKeyDestroyed
	}
	k.mu.RLock()
	enclave := k.enclave
	k.mu.RUnlock()
	if enclave == nil {
		return ErrKeyDestroyed
	}

	buf, err := enclave.Open()
	if err != nil {
		return fmt.Errorf("open key enclave: %w", err)
	}
	defer buf.Destroy()

	return fn(buf.Bytes())
}
