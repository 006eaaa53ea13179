package vaulttest

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hussein-Mazeh/genvault/internal/vault"
)

// RunStoreSuite exercises the vault.Store contract against stores built by
// newStore. Each subtest gets a fresh store.
func RunStoreSuite(t *testing.T, newStore func(t *testing.T) vault.Store) {
	t.Helper()

	t.Run("MasterMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Master(context.Background())
		assert.ErrorIs(t, err, vault.ErrNotInitialized)
	})

	t.Run("MasterCreateOnce", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		rec := sampleMaster()

		require.NoError(t, s.CreateMaster(ctx, rec))

		got, err := s.Master(ctx)
		require.NoError(t, err)
		assert.Equal(t, rec.Salt, got.Salt)
		assert.Equal(t, rec.Nonce, got.Nonce)
		assert.Equal(t, rec.Ciphertext, got.Ciphertext)
		assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))

		err = s.CreateMaster(ctx, sampleMaster())
		assert.ErrorIs(t, err, vault.ErrAlreadyInitialized)
	})

	t.Run("InsertAssignsMonotonicIDs", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		created := time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC)

		for want := int64(1); want <= 3; want++ {
			e, err := s.InsertEntry(ctx, vault.EntryPassword, created, fixedSeal(byte(want)))
			require.NoError(t, err)
			assert.Equal(t, want, e.ID)
		}

		ids, err := s.EntryIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2, 3}, ids)

		e, err := s.Entry(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, vault.EntryPassword, e.Type)
		assert.Equal(t, bytes.Repeat([]byte{2}, 12), e.Nonce)
		assert.Equal(t, bytes.Repeat([]byte{2}, 20), e.Ciphertext)
		assert.True(t, created.Equal(e.CreatedAt), "created_at %v != %v", e.CreatedAt, created)
	})

	t.Run("SealReceivesAllocatedID", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var seen []int64
		seal := func(id int64) ([]byte, []byte, error) {
			seen = append(seen, id)
			return make([]byte, 12), make([]byte, 20), nil
		}
		a, err := s.InsertEntry(ctx, vault.EntryUsername, time.Now(), seal)
		require.NoError(t, err)
		b, err := s.InsertEntry(ctx, vault.EntryPassphrase, time.Now(), seal)
		require.NoError(t, err)

		assert.Equal(t, []int64{a.ID, b.ID}, seen)
		assert.Less(t, a.ID, b.ID)
	})

	t.Run("SealFailureStoresNothing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		boom := errors.New("seal failed")

		_, err := s.InsertEntry(ctx, vault.EntryPassword, time.Now(), func(int64) ([]byte, []byte, error) {
			return nil, nil, boom
		})
		assert.ErrorIs(t, err, boom)

		ids, err := s.EntryIDs(ctx)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("EntriesAscending", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		types := []vault.EntryType{vault.EntryPassword, vault.EntryPassphrase, vault.EntryUsername}
		for i, typ := range types {
			_, err := s.InsertEntry(ctx, typ, time.Now(), fixedSeal(byte(i+1)))
			require.NoError(t, err)
		}

		entries, err := s.Entries(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		for i, e := range entries {
			assert.Equal(t, int64(i+1), e.ID)
			assert.Equal(t, types[i], e.Type)
		}
	})

	t.Run("EntryMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Entry(context.Background(), 42)
		assert.ErrorIs(t, err, vault.ErrEntryNotFound)
	})

	t.Run("DeleteEntry", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		e, err := s.InsertEntry(ctx, vault.EntryPassword, time.Now(), fixedSeal(1))
		require.NoError(t, err)

		require.NoError(t, s.DeleteEntry(ctx, e.ID))
		_, err = s.Entry(ctx, e.ID)
		assert.ErrorIs(t, err, vault.ErrEntryNotFound)

		assert.ErrorIs(t, s.DeleteEntry(ctx, e.ID), vault.ErrEntryNotFound)
	})

	t.Run("DeleteEntriesIgnoresUnknown", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for i := 0; i < 4; i++ {
			_, err := s.InsertEntry(ctx, vault.EntryPassword, time.Now(), fixedSeal(byte(i)))
			require.NoError(t, err)
		}

		require.NoError(t, s.DeleteEntries(ctx, []int64{1, 3, 99}))
		ids, err := s.EntryIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int64{2, 4}, ids)
	})

	t.Run("ResetKeepsCounter", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateMaster(ctx, sampleMaster()))
		for i := 0; i < 2; i++ {
			_, err := s.InsertEntry(ctx, vault.EntryPassword, time.Now(), fixedSeal(1))
			require.NoError(t, err)
		}

		require.NoError(t, s.Reset(ctx))

		_, err := s.Master(ctx)
		assert.ErrorIs(t, err, vault.ErrNotInitialized)
		ids, err := s.EntryIDs(ctx)
		require.NoError(t, err)
		assert.Empty(t, ids)

		e, err := s.InsertEntry(ctx, vault.EntryPassword, time.Now(), fixedSeal(1))
		require.NoError(t, err)
		assert.Equal(t, int64(3), e.ID, "ids must not be reused after reset")

		require.NoError(t, s.CreateMaster(ctx, sampleMaster()))
	})
}

func sampleMaster() vault.MasterRecord {
	return vault.MasterRecord{
		Salt:       bytes.Repeat([]byte{0x5a}, 32),
		Nonce:      bytes.Repeat([]byte{0x6b}, 12),
		Ciphertext: bytes.Repeat([]byte{0x7c}, 48),
		CreatedAt:  time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC),
	}
}

func fixedSeal(b byte) vault.SealFunc {
	return func(int64) ([]byte, []byte, error) {
		return bytes.Repeat([]byte{b}, 12), bytes.Repeat([]byte{b}, 20), nil
	}
}
