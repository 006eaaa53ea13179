package db_test

import (
	"bytes"
	"time"

	"github.com/Hussein-Mazeh/genvault/internal/vault"
)

var testTime = time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)

func sealWith(b byte) vault.SealFunc {
	return func(int64) ([]byte, []byte, error) {
		return bytes.Repeat([]byte{b}, 12), bytes.Repeat([]byte{b}, 20), nil
	}
}
