// Package store persists exported primitives.
package store

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
)

var ErrNotInitialized = errors.New("store not initialized")

// Store defines persistence operations for primitive records.
type Store interface {
	Init(ctx context.Context) error
	// Save inserts r, or replaces the record with the same id.
	Save(ctx context.Context, r Record) error
	Get(ctx context.Context, id uuid.UUID) (Record, bool, error)
	// List returns every record, oldest first.
	List(ctx context.Context) ([]Record, error)
	// Delete reports whether a record was removed.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

// Latest returns the most recent record with the given name.
func Latest(ctx context.Context, s Store, name string) (Record, bool, error) {
	records, err := s.List(ctx)
	if err != nil {
		return Record{}, false, err
	}
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Name == name {
			return records[i], true, nil
		}
	}
	return Record{}, false, nil
}

func sortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].Name < records[j].Name
	})
}
