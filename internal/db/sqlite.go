// Package db is the SQLite implementation of the vault store.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/Hussein-Mazeh/genvault/internal/vault"
)

// DefaultFilename is the database file name inside a vault directory.
const DefaultFilename = "vault.db"

// DB wraps the SQLite handle and implements vault.Store.
type DB struct {
	sql  *sql.DB
	path string
}

var _ vault.Store = (*DB)(nil)

// Open creates (if needed) and opens the SQLite database at path, applies the
// schema migrations and restricts the file to its owner.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if err := ensureDirectory(path); err != nil {
		return nil, vault.StorageError("create database directory", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)
	handle, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, vault.StorageError("open sqlite database", err)
	}
	// One connection keeps read-modify-write sequences on the same snapshot
	// and avoids "database is locked" between our own statements.
	handle.SetMaxOpenConns(1)

	if err := handle.Ping(); err != nil {
		handle.Close()
		return nil, vault.StorageError("ping sqlite database", err)
	}

	if err := EnsurePerm0600(path); err != nil {
		handle.Close()
		return nil, err
	}

	if err := runMigrations(handle); err != nil {
		handle.Close()
		return nil, vault.StorageError("migrate schema", err)
	}

	return &DB{sql: handle, path: path}, nil
}

// Path returns the database file location.
func (d *DB) Path() string { return d.path }

// Close releases the database resources.
func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// EnsurePerm0600 restricts the database file to its owner on Unix systems.
func EnsurePerm0600(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	if err := os.Chmod(path, 0o600); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("chmod database: %w", err)
	}
	return nil
}

func ensureDirectory(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "" {
		dir = "."
	}
	return os.MkdirAll(dir, 0o700)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad timestamp %q", vault.ErrVaultCorrupted, s)
	}
	return t, nil
}
