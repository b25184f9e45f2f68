package store

import (
	"errors"
	"fmt"
	"io"
)

var ErrUnknownBackend = errors.New("unknown store backend")
var ErrBackendUnavailable = errors.New("store backend not compiled in")

// Backends lists the names accepted by NewStore.
var Backends = []string{"memory", "bolt", "sqlite"}

// NewStore picks the record store named by backend. An empty name keeps
// records in memory for the life of the process; the file-backed stores
// write to path once Init is called.
func NewStore(backend, path string) (Store, error) {
	switch backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "bolt":
		return NewBoltStore(path), nil
	case "sqlite":
		return newSQLiteStore(path)
	}
	return nil, fmt.Errorf("%w: %q (want one of %v)", ErrUnknownBackend, backend, Backends)
}

// Close releases the file handle of a file-backed store. It does nothing
// for the memory store.
func Close(s Store) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
