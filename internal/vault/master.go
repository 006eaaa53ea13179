package vault

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/Hussein-Mazeh/genvault/krypto"
)

// VerificationMarker is the known plaintext sealed into the master record.
const VerificationMarker = "genvault verification marker v1"

// Protocol derives the vault key from a passphrase and proves it correct
// against the stored master record, creating that record on first use.
type Protocol struct {
	Store  Store
	Params krypto.PBKDF2Params
	Now    func() time.Time
}

// DeriveAndVerify returns the vault key for passphrase. On an uninitialised
// vault it creates the master record; otherwise it checks the passphrase
// against it and fails with ErrIncorrectPassword or ErrVaultCorrupted.
func (p Protocol) DeriveAndVerify(ctx context.Context, passphrase string) (*krypto.Key, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}

	rec, err := p.Store.Master(ctx)
	switch {
	case errors.Is(err, ErrNotInitialized):
		return p.Initialize(ctx, passphrase)
	case err != nil:
		return nil, fmt.Errorf("load master record: %w", err)
	}
	return p.Verify(ctx, rec, passphrase)
}

// Initialize creates the master record for a new vault. If another writer
// creates it first, the passphrase is verified against theirs instead.
func (p Protocol) Initialize(ctx context.Context, passphrase string) (*krypto.Key, error) {
	salt, err := krypto.NewRandomSalt()
	if err != nil {
		return nil, err
	}

	key, err := p.derive(ctx, passphrase, salt)
	if err != nil {
		return nil, err
	}

	nonce, ciphertext, err := krypto.Seal(key, []byte(VerificationMarker), masterAAD)
	if err != nil {
		key.Destroy()
		return nil, fmt.Errorf("seal verification marker: %w", err)
	}

	// Nothing is written for a cancelled operation.
	if err := ctx.Err(); err != nil {
		key.Destroy()
		return nil, err
	}

	rec := MasterRecord{
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: ciphertext,
		CreatedAt:  p.now().UTC(),
	}
	err = p.Store.CreateMaster(ctx, rec)
	if err != nil {
		key.Destroy()
	}
	if errors.Is(err, ErrAlreadyInitialized) {
		existing, lerr := p.Store.Master(ctx)
		if lerr != nil {
			return nil, fmt.Errorf("load master record: %w", lerr)
		}
		return p.Verify(ctx, existing, passphrase)
	}
	if err != nil {
		return nil, fmt.Errorf("create master record: %w", err)
	}
	return key, nil
}

// Verify derives the key from rec's salt and checks that it opens the
// verification marker.
func (p Protocol) Verify(ctx context.Context, rec MasterRecord, passphrase string) (*krypto.Key, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	key, err := p.derive(ctx, passphrase, rec.Salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := krypto.Open(key, rec.Nonce, rec.Ciphertext, masterAAD)
	if err == nil && subtle.ConstantTimeCompare(plaintext, []byte(VerificationMarker)) != 1 {
		err = krypto.ErrAuthentication
	}
	if err != nil {
		key.Destroy()
		if errors.Is(err, krypto.ErrAuthentication) {
			return nil, ErrIncorrectPassword
		}
		return nil, fmt.Errorf("open verification marker: %w", err)
	}
	return key, nil
}

func (p Protocol) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p Protocol) params() krypto.PBKDF2Params {
	if p.Params.Iterations == 0 {
		return krypto.DefaultPBKDF2Params()
	}
	return p.Params
}

// derive runs the KDF on its own goroutine so a cancelled context returns
// immediately instead of waiting out the iterations.
func (p Protocol) derive(ctx context.Context, passphrase string, salt []byte) (*krypto.Key, error) {
	type result struct {
		key *krypto.Key
		err error
	}
	done := make(chan result, 1)
	params := p.params()

	go func() {
		pw := []byte(passphrase)
		key, err := krypto.DeriveKey(pw, salt, params)
		wipe(pw)
		done <- result{key: key, err: err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-done; r.key != nil {
				r.key.Destroy()
			}
		}()
		return nil, ctx.Err()
	case r := <-done:
		if errors.Is(r.err, krypto.ErrEmptyPassphrase) {
			return nil, ErrEmptyPassphrase
		}
		if r.err != nil {
			return nil, fmt.Errorf("derive key: %w", r.err)
		}
		return r.key, nil
	}
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
