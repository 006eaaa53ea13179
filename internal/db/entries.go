package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Hussein-Mazeh/genvault/internal/vault"
)

const entryCounter = "entries"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (vault.Entry, error) {
	var (
		e         vault.Entry
		typ       string
		createdAt string
	)
	if err := row.Scan(&e.ID, &typ, &e.Nonce, &e.Ciphertext, &createdAt); err != nil {
		return vault.Entry{}, err
	}
	e.Type = vault.EntryType(typ)

	var err error
	e.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return vault.Entry{}, err
	}
	return e, nil
}

// InsertEntry bumps the entry counter, seals the value under the new id and
// stores the row, all inside one transaction.
func (d *DB) InsertEntry(ctx context.Context, typ vault.EntryType, createdAt time.Time, seal vault.SealFunc) (vault.Entry, error) {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return vault.Entry{}, vault.StorageError("begin insert", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE counters SET value = value + 1 WHERE name = ?`, entryCounter,
	); err != nil {
		return vault.Entry{}, vault.StorageError("bump entry counter", err)
	}

	var id int64
	if err := tx.QueryRowContext(ctx,
		`SELECT value FROM counters WHERE name = ?`, entryCounter,
	).Scan(&id); err != nil {
		return vault.Entry{}, vault.StorageError("read entry counter", err)
	}

	nonce, ciphertext, err := seal(id)
	if err != nil {
		return vault.Entry{}, err
	}

	e := vault.Entry{
		ID:         id,
		Type:       typ,
		Nonce:      nonce,
		Ciphertext: ciphertext,
		CreatedAt:  createdAt.UTC(),
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entries (id, entry_type, nonce, ciphertext, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.ID, string(e.Type), e.Nonce, e.Ciphertext, formatTime(e.CreatedAt),
	); err != nil {
		return vault.Entry{}, vault.StorageError("insert entry", err)
	}

	if err := tx.Commit(); err != nil {
		return vault.Entry{}, vault.StorageError("commit entry", err)
	}
	return e, nil
}

// Entry returns the entry with the given id.
func (d *DB) Entry(ctx context.Context, id int64) (vault.Entry, error) {
	row := d.sql.QueryRowContext(ctx,
		`SELECT id, entry_type, nonce, ciphertext, created_at FROM entries WHERE id = ?`, id,
	)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return vault.Entry{}, vault.ErrEntryNotFound
	}
	if errors.Is(err, vault.ErrVaultCorrupted) {
		return vault.Entry{}, err
	}
	if err != nil {
		return vault.Entry{}, vault.StorageError("select entry", err)
	}
	return e, nil
}

// Entries returns every entry ordered by id.
func (d *DB) Entries(ctx context.Context) ([]vault.Entry, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT id, entry_type, nonce, ciphertext, created_at FROM entries ORDER BY id`,
	)
	if err != nil {
		return nil, vault.StorageError("select entries", err)
	}
	defer rows.Close()

	var out []vault.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if errors.Is(err, vault.ErrVaultCorrupted) {
			return nil, err
		}
		if err != nil {
			return nil, vault.StorageError("scan entry row", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, vault.StorageError("iterate entry rows", err)
	}
	return out, nil
}

// EntryIDs lists entry ids in ascending order.
func (d *DB) EntryIDs(ctx context.Context) ([]int64, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT id FROM entries ORDER BY id`)
	if err != nil {
		return nil, vault.StorageError("select entry ids", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, vault.StorageError("scan entry id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, vault.StorageError("iterate entry ids", err)
	}
	return ids, nil
}

// DeleteEntry deletes one entry. It returns vault.ErrEntryNotFound if nothing
// was deleted.
func (d *DB) DeleteEntry(ctx context.Context, id int64) error {
	res, err := d.sql.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return vault.StorageError("delete entry", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return vault.StorageError("delete rows affected", err)
	}
	if n == 0 {
		return vault.ErrEntryNotFound
	}
	return nil
}

// DeleteEntries deletes the given ids in one transaction.
func (d *DB) DeleteEntries(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return vault.StorageError("begin delete", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM entries WHERE id = ?`)
	if err != nil {
		return vault.StorageError("prepare delete", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return vault.StorageError("delete entry", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return vault.StorageError("commit delete", err)
	}
	return nil
}
