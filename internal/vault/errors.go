package vault

import "errors"

var (
	// ErrIncorrectPassword means the supplied passphrase did not open the
	// verification record. Tag mismatch and marker mismatch are not told apart.
	ErrIncorrectPassword = errors.New("incorrect password or corrupted data")
	// ErrVaultCorrupted means a stored record is structurally invalid.
	ErrVaultCorrupted = errors.New("vault data corrupted")
	// ErrDecryptionFailed means an entry did not authenticate under the key.
	ErrDecryptionFailed = errors.New("entry decryption failed")
	// ErrStorageUnavailable wraps every failure of the persistent store.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrUserCancelled means the passphrase prompt was dismissed.
	ErrUserCancelled = errors.New("cancelled by user")

	ErrNotInitialized     = errors.New("vault not initialised")
	ErrAlreadyInitialized = errors.New("vault already initialised")
	ErrEntryNotFound      = errors.New("entry not found")
	ErrEmptyPassphrase    = errors.New("passphrase cannot be empty")
	ErrInvalidEntryType   = errors.New("invalid entry type")
)
