package vault

import (
	"context"
	"fmt"
	"time"
)

// SealFunc produces the nonce and ciphertext for the entry that will be stored
// under id. It is called inside the store's write transaction.
type SealFunc func(id int64) (nonce, ciphertext []byte, err error)

// Store is the persistent side of the vault: one master record and a set of
// encrypted entries keyed by a monotonic id.
//
// Implementations wrap driver failures with ErrStorageUnavailable.
type Store interface {
	// Master returns the master record or ErrNotInitialized.
	Master(ctx context.Context) (MasterRecord, error)
	// CreateMaster stores rec, failing with ErrAlreadyInitialized if a record
	// already exists.
	CreateMaster(ctx context.Context, rec MasterRecord) error

	// EntryIDs lists every entry id in ascending order.
	EntryIDs(ctx context.Context) ([]int64, error)
	// Entries returns every entry in ascending id order.
	Entries(ctx context.Context) ([]Entry, error)
	// Entry returns a single entry or ErrEntryNotFound.
	Entry(ctx context.Context, id int64) (Entry, error)
	// InsertEntry allocates the next id, calls seal with it and commits the
	// entry atomically. Ids are never reused.
	InsertEntry(ctx context.Context, typ EntryType, createdAt time.Time, seal SealFunc) (Entry, error)
	// DeleteEntry removes one entry or returns ErrEntryNotFound.
	DeleteEntry(ctx context.Context, id int64) error
	// DeleteEntries removes the given ids; unknown ids are ignored.
	DeleteEntries(ctx context.Context, ids []int64) error

	// Reset deletes the master record and every entry. The id counter survives.
	Reset(ctx context.Context) error
	Close() error
}

// StorageError tags err as a storage failure for operation op.
func StorageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}
