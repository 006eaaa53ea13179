// Package vault holds the master-key protocol, the session key cache and the
// capacity rules of the encrypted history vault, together with the Store port
// that persistence backends implement.
package vault

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Hussein-Mazeh/genvault/krypto"
)

const (
	// MasterRecordID is the fixed key of the singleton master record.
	MasterRecordID = 1
	// MaxEntries caps the number of stored history entries.
	MaxEntries = 100
)

// EntryType tags what kind of secret an entry holds. It is stored in plaintext.
type EntryType string

const (
	EntryPassword   EntryType = "password"
	EntryPassphrase EntryType = "passphrase"
	EntryUsername   EntryType = "username"
)

// Valid reports whether t is one of the known entry types.
func (t EntryType) Valid() bool {
	switch t {
	case EntryPassword, EntryPassphrase, EntryUsername:
		return true
	}
	return false
}

// ParseEntryType converts s into an EntryType.
func ParseEntryType(s string) (EntryType, error) {
	t := EntryType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidEntryType, s)
	}
	return t, nil
}

// MasterRecord is the persisted verification record.
type MasterRecord struct {
	Salt       []byte
	Nonce      []byte
	Ciphertext []byte
	CreatedAt  time.Time
}

// Validate checks the record's shape without touching any key.
func (m MasterRecord) Validate() error {
	switch {
	case len(m.Salt) != krypto.SaltLength:
		return fmt.Errorf("%w: master salt is %d bytes", ErrVaultCorrupted, len(m.Salt))
	case len(m.Nonce) != krypto.NonceSize:
		return fmt.Errorf("%w: master nonce is %d bytes", ErrVaultCorrupted, len(m.Nonce))
	case len(m.Ciphertext) <= gcmTagSize:
		return fmt.Errorf("%w: master ciphertext is %d bytes", ErrVaultCorrupted, len(m.Ciphertext))
	}
	return nil
}

// Entry is one encrypted history record.
type Entry struct {
	ID         int64
	Type       EntryType
	Nonce      []byte
	Ciphertext []byte
	CreatedAt  time.Time
}

// Validate checks the entry's shape.
func (e Entry) Validate() error {
	switch {
	case e.ID <= 0:
		return fmt.Errorf("%w: entry id %d", ErrVaultCorrupted, e.ID)
	case !e.Type.Valid():
		return fmt.Errorf("%w: entry %d has type %q", ErrVaultCorrupted, e.ID, e.Type)
	case len(e.Nonce) != krypto.NonceSize:
		return fmt.Errorf("%w: entry %d nonce is %d bytes", ErrVaultCorrupted, e.ID, len(e.Nonce))
	case len(e.Ciphertext) < gcmTagSize:
		return fmt.Errorf("%w: entry %d ciphertext is %d bytes", ErrVaultCorrupted, e.ID, len(e.Ciphertext))
	}
	return nil
}

const gcmTagSize = 16

// masterAAD binds the verification ciphertext to its role.
var masterAAD = []byte("genvault/meta/" + strconv.Itoa(MasterRecordID))

// EntryAAD binds an entry's ciphertext to its id and type so rows cannot be
// swapped or relabelled without failing authentication.
func EntryAAD(id int64, typ EntryType) []byte {
	return []byte("genvault/entry/" + strconv.FormatInt(id, 10) + "/" + string(typ))
}
