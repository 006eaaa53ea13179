// Package boltdb is a bbolt implementation of the vault store, for hosts
// where a single-file key/value database is preferred over SQLite.
package boltdb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/Hussein-Mazeh/genvault/internal/vault"
)

// DefaultFilename is the database file name inside a vault directory.
const DefaultFilename = "vault.bolt"

var (
	metaBucket    = []byte("meta")
	entriesBucket = []byte("entries")
	masterKey     = []byte("master")
)

// Store implements vault.Store on top of a bbolt file.
type Store struct {
	db   *bbolt.DB
	path string
}

var _ vault.Store = (*Store)(nil)

type masterRecord struct {
	Salt       []byte    `json:"salt"`
	Nonce      []byte    `json:"nonce"`
	Ciphertext []byte    `json:"ciphertext"`
	CreatedAt  time.Time `json:"created_at"`
}

type entryRecord struct {
	Type       string    `json:"type"`
	Nonce      []byte    `json:"nonce"`
	Ciphertext []byte    `json:"ciphertext"`
	CreatedAt  time.Time `json:"created_at"`
}

// Open opens or creates the bbolt file at path and makes sure the buckets
// exist.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, vault.StorageError("create database directory", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, vault.StorageError("open bolt database", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{metaBucket, entriesBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, vault.StorageError("initialise buckets", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close releases the file lock.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Master loads the master record or returns vault.ErrNotInitialized.
func (s *Store) Master(ctx context.Context) (vault.MasterRecord, error) {
	if err := ctx.Err(); err != nil {
		return vault.MasterRecord{}, err
	}

	var raw []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(metaBucket).Get(masterKey); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return vault.MasterRecord{}, vault.StorageError("read master record", err)
	}
	if raw == nil {
		return vault.MasterRecord{}, vault.ErrNotInitialized
	}

	var rec masterRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return vault.MasterRecord{}, fmt.Errorf("%w: decode master record: %v", vault.ErrVaultCorrupted, err)
	}
	return vault.MasterRecord{
		Salt:       rec.Salt,
		Nonce:      rec.Nonce,
		Ciphertext: rec.Ciphertext,
		CreatedAt:  rec.CreatedAt,
	}, nil
}

// CreateMaster writes rec unless a master record already exists.
func (s *Store) CreateMaster(ctx context.Context, rec vault.MasterRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := json.Marshal(masterRecord{
		Salt:       rec.Salt,
		Nonce:      rec.Nonce,
		Ciphertext: rec.Ciphertext,
		CreatedAt:  rec.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode master record: %w", err)
	}

	exists := false
	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(metaBucket)
		if b.Get(masterKey) != nil {
			exists = true
			return nil
		}
		return b.Put(masterKey, raw)
	})
	if err != nil {
		return vault.StorageError("write master record", err)
	}
	if exists {
		return vault.ErrAlreadyInitialized
	}
	return nil
}

// EntryIDs lists entry ids in ascending order.
func (s *Store) EntryIDs(ctx context.Context) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ids []int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(entriesBucket).ForEach(func(k, _ []byte) error {
			ids = append(ids, decodeID(k))
			return nil
		})
	})
	if err != nil {
		return nil, vault.StorageError("list entry ids", err)
	}
	return ids, nil
}

// Entries loads every entry in ascending id order.
func (s *Store) Entries(ctx context.Context) ([]vault.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		out       []vault.Entry
		decodeErr error
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(entriesBucket).ForEach(func(k, v []byte) error {
			e, err := decodeEntry(k, v)
			if err != nil {
				decodeErr = err
				return err
			}
			out = append(out, e)
			return nil
		})
	})
	if decodeErr != nil {
		return nil, decodeErr
	}
	if err != nil {
		return nil, vault.StorageError("read entries", err)
	}
	return out, nil
}

// Entry loads entry id or returns vault.ErrEntryNotFound.
func (s *Store) Entry(ctx context.Context, id int64) (vault.Entry, error) {
	if err := ctx.Err(); err != nil {
		return vault.Entry{}, err
	}

	var raw []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(entriesBucket).Get(encodeID(id)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return vault.Entry{}, vault.StorageError("read entry", err)
	}
	if raw == nil {
		return vault.Entry{}, vault.ErrEntryNotFound
	}
	return decodeEntry(encodeID(id), raw)
}

// InsertEntry takes the next bucket sequence as the id. A failing seal rolls
// the sequence back with the rest of the transaction.
func (s *Store) InsertEntry(ctx context.Context, typ vault.EntryType, createdAt time.Time, seal vault.SealFunc) (vault.Entry, error) {
	if err := ctx.Err(); err != nil {
		return vault.Entry{}, err
	}

	var (
		e       vault.Entry
		sealErr error
	)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(entriesBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		id := int64(seq)

		nonce, ciphertext, err := seal(id)
		if err != nil {
			sealErr = err
			return err
		}

		e = vault.Entry{
			ID:         id,
			Type:       typ,
			Nonce:      nonce,
			Ciphertext: ciphertext,
			CreatedAt:  createdAt.UTC(),
		}
		raw, err := json.Marshal(entryRecord{
			Type:       string(typ),
			Nonce:      nonce,
			Ciphertext: ciphertext,
			CreatedAt:  e.CreatedAt,
		})
		if err != nil {
			return fmt.Errorf("encode entry: %w", err)
		}
		return b.Put(encodeID(id), raw)
	})
	if sealErr != nil {
		return vault.Entry{}, sealErr
	}
	if err != nil {
		return vault.Entry{}, vault.StorageError("insert entry", err)
	}
	return e, nil
}

// DeleteEntry removes entry id or returns vault.ErrEntryNotFound.
func (s *Store) DeleteEntry(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	found := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(entriesBucket)
		key := encodeID(id)
		if b.Get(key) == nil {
			return nil
		}
		found = true
		return b.Delete(key)
	})
	if err != nil {
		return vault.StorageError("delete entry", err)
	}
	if !found {
		return vault.ErrEntryNotFound
	}
	return nil
}

// DeleteEntries removes the listed entries in one transaction.
func (s *Store) DeleteEntries(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(entriesBucket)
		for _, id := range ids {
			if err := b.Delete(encodeID(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return vault.StorageError("delete entries", err)
	}
	return nil
}

// Reset empties both buckets in place. The entries bucket is kept so its
// sequence, and therefore id allocation, carries on.
func (s *Store) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{entriesBucket, metaBucket} {
			b := tx.Bucket(name)
			var keys [][]byte
			if err := b.ForEach(func(k, _ []byte) error {
				keys = append(keys, append([]byte(nil), k...))
				return nil
			}); err != nil {
				return err
			}
			for _, k := range keys {
				if err := b.Delete(k); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return vault.StorageError("reset", err)
	}
	return nil
}

// Keys are big-endian so bbolt's byte ordering is id ordering.
func encodeID(id int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(id))
	return k
}

func decodeID(k []byte) int64 {
	return int64(binary.BigEndian.Uint64(k))
}

func decodeEntry(k, v []byte) (vault.Entry, error) {
	if len(k) != 8 {
		return vault.Entry{}, fmt.Errorf("%w: entry key is %d bytes", vault.ErrVaultCorrupted, len(k))
	}
	var rec entryRecord
	if err := json.Unmarshal(v, &rec); err != nil {
		return vault.Entry{}, fmt.Errorf("%w: decode entry: %v", vault.ErrVaultCorrupted, err)
	}
	return vault.Entry{
		ID:         decodeID(k),
		Type:       vault.EntryType(rec.Type),
		Nonce:      rec.Nonce,
		Ciphertext: rec.Ciphertext,
		CreatedAt:  rec.CreatedAt,
	}, nil
}
