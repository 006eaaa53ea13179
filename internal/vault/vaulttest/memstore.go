// Package vaulttest provides an in-memory vault.Store and a behavioural
// suite that every Store implementation must pass.
package vaulttest

import (
	"bytes"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/Hussein-Mazeh/genvault/internal/vault"
)

// MemStore is a vault.Store kept entirely in memory.
type MemStore struct {
	mu      sync.Mutex
	master  *vault.MasterRecord
	entries map[int64]vault.Entry
	lastID  int64
}

var _ vault.Store = (*MemStore)(nil)

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[int64]vault.Entry)}
}

// Master returns a copy of the master record or vault.ErrNotInitialized.
func (m *MemStore) Master(ctx context.Context) (vault.MasterRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.master == nil {
		return vault.MasterRecord{}, vault.ErrNotInitialized
	}
	return cloneMaster(*m.master), nil
}

// CreateMaster stores rec unless a master record already exists.
func (m *MemStore) CreateMaster(ctx context.Context, rec vault.MasterRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.master != nil {
		return vault.ErrAlreadyInitialized
	}
	rec = cloneMaster(rec)
	m.master = &rec
	return nil
}

// SetMaster overwrites the master record, bypassing the create-once rule.
// Tests use it to plant malformed records.
func (m *MemStore) SetMaster(rec vault.MasterRecord) {
	m.mu.Lock()
	m.master = &rec
	m.mu.Unlock()
}

// EntryIDs returns every entry id in ascending order.
func (m *MemStore) EntryIDs(ctx context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// Entries returns copies of every entry in ascending id order.
func (m *MemStore) Entries(ctx context.Context) ([]vault.Entry, error) {
	ids, _ := m.EntryIDs(ctx)
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]vault.Entry, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneEntry(m.entries[id]))
	}
	return out, nil
}

// Entry returns a copy of entry id or vault.ErrEntryNotFound.
func (m *MemStore) Entry(ctx context.Context, id int64) (vault.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return vault.Entry{}, vault.ErrEntryNotFound
	}
	return cloneEntry(e), nil
}

// InsertEntry allocates the next id, seals under it and stores the result.
func (m *MemStore) InsertEntry(ctx context.Context, typ vault.EntryType, createdAt time.Time, seal vault.SealFunc) (vault.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.lastID + 1
	nonce, ciphertext, err := seal(id)
	if err != nil {
		return vault.Entry{}, err
	}
	e := vault.Entry{
		ID:         id,
		Type:       typ,
		Nonce:      bytes.Clone(nonce),
		Ciphertext: bytes.Clone(ciphertext),
		CreatedAt:  createdAt.UTC(),
	}
	m.lastID = id
	m.entries[id] = e
	return cloneEntry(e), nil
}

// PutEntry stores e verbatim, bypassing id allocation. Tests use it to plant
// tampered rows.
func (m *MemStore) PutEntry(e vault.Entry) {
	m.mu.Lock()
	m.entries[e.ID] = e
	m.mu.Unlock()
}

// DeleteEntry removes entry id or returns vault.ErrEntryNotFound.
func (m *MemStore) DeleteEntry(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		return vault.ErrEntryNotFound
	}
	delete(m.entries, id)
	return nil
}

// DeleteEntries removes every listed entry, ignoring unknown ids.
func (m *MemStore) DeleteEntries(ctx context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.entries, id)
	}
	return nil
}

// Reset drops the master record and every entry. Ids are not reused.
func (m *MemStore) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.master = nil
	m.entries = make(map[int64]vault.Entry)
	return nil
}

// Close is a no-op.
func (m *MemStore) Close() error { return nil }

func cloneMaster(r vault.MasterRecord) vault.MasterRecord {
	r.Salt = bytes.Clone(r.Salt)
	r.Nonce = bytes.Clone(r.Nonce)
	r.Ciphertext = bytes.Clone(r.Ciphertext)
	return r
}

func cloneEntry(e vault.Entry) vault.Entry {
	e.Nonce = bytes.Clone(e.Nonce)
	e.Ciphertext = bytes.Clone(e.Ciphertext)
	return e
}
