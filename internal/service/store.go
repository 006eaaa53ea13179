package service

import (
	"fmt"
	"path/filepath"

	"github.com/Hussein-Mazeh/genvault/internal/boltdb"
	"github.com/Hussein-Mazeh/genvault/internal/db"
	"github.com/Hussein-Mazeh/genvault/internal/vault"
)

// Storage backends understood by OpenStore.
const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
)

// OpenStore opens the backend's database file inside dir, creating it on
// first use.
func OpenStore(backend, dir string) (vault.Store, error) {
	if dir == "" {
		dir = "./vault"
	}
	switch backend {
	case BackendSQLite, "":
		s, err := db.Open(filepath.Join(dir, db.DefaultFilename))
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendBolt:
		s, err := boltdb.Open(filepath.Join(dir, boltdb.DefaultFilename))
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
