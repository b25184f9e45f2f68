//go:build !sqlite

package store

import (
	"errors"
	"testing"
)

func TestSQLiteUnavailable(t *testing.T) {
	if _, err := NewStore("sqlite", "promp.db"); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("expected ErrBackendUnavailable, got %v", err)
	}
}
