package vaulttest

import (
	"context"
	"time"

	"github.com/Hussein-Mazeh/genvault/internal/vault"
)

// FaultyStore wraps a Store and fails selected calls with the configured error.
type FaultyStore struct {
	vault.Store

	EntryIDsErr      error
	DeleteEntriesErr error
	InsertErr        error
	MasterErr        error
}

func (f *FaultyStore) Master(ctx context.Context) (vault.MasterRecord, error) {
	if f.MasterErr != nil {
		return vault.MasterRecord{}, vault.StorageError("load master", f.MasterErr)
	}
	return f.Store.Master(ctx)
}

func (f *FaultyStore) EntryIDs(ctx context.Context) ([]int64, error) {
	if f.EntryIDsErr != nil {
		return nil, vault.StorageError("list entry ids", f.EntryIDsErr)
	}
	return f.Store.EntryIDs(ctx)
}

func (f *FaultyStore) DeleteEntries(ctx context.Context, ids []int64) error {
	if f.DeleteEntriesErr != nil {
		return vault.StorageError("delete entries", f.DeleteEntriesErr)
	}
	return f.Store.DeleteEntries(ctx, ids)
}

func (f *FaultyStore) InsertEntry(ctx context.Context, typ vault.EntryType, createdAt time.Time, seal vault.SealFunc) (vault.Entry, error) {
	if f.InsertErr != nil {
		return vault.Entry{}, vault.StorageError("insert entry", f.InsertErr)
	}
	return f.Store.InsertEntry(ctx, typ, createdAt, seal)
}
