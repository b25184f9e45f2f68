//go:build !sqlite

package store

import "fmt"

// Without the sqlite tag the cgo-free driver is left out of the binary.
func newSQLiteStore(string) (Store, error) {
	return nil, fmt.Errorf("%w: sqlite needs the binary built with the sqlite tag", ErrBackendUnavailable)
}
