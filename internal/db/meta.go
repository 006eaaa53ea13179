package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Hussein-Mazeh/genvault/internal/vault"
)

// Master returns the singleton master record.
func (d *DB) Master(ctx context.Context) (vault.MasterRecord, error) {
	var (
		rec       vault.MasterRecord
		createdAt string
	)
	err := d.sql.QueryRowContext(ctx,
		`SELECT salt, nonce, ciphertext, created_at FROM meta WHERE id = ?`,
		vault.MasterRecordID,
	).Scan(&rec.Salt, &rec.Nonce, &rec.Ciphertext, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return vault.MasterRecord{}, vault.ErrNotInitialized
	}
	if err != nil {
		return vault.MasterRecord{}, vault.StorageError("select master record", err)
	}

	rec.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return vault.MasterRecord{}, err
	}
	return rec, nil
}

// CreateMaster inserts the master record unless one already exists.
func (d *DB) CreateMaster(ctx context.Context, rec vault.MasterRecord) error {
	res, err := d.sql.ExecContext(ctx,
		`INSERT INTO meta (id, salt, nonce, ciphertext, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		vault.MasterRecordID, rec.Salt, rec.Nonce, rec.Ciphertext, formatTime(rec.CreatedAt),
	)
	if err != nil {
		return vault.StorageError("insert master record", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return vault.StorageError("master rows affected", err)
	}
	if n == 0 {
		return vault.ErrAlreadyInitialized
	}
	return nil
}

// Reset deletes the master record and every entry in one transaction. The
// entry id counter is left alone so ids are never reused.
func (d *DB) Reset(ctx context.Context) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return vault.StorageError("begin reset", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries`); err != nil {
		return vault.StorageError("delete entries", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM meta`); err != nil {
		return vault.StorageError("delete master record", err)
	}
	if err := tx.Commit(); err != nil {
		return vault.StorageError("commit reset", err)
	}
	return nil
}
