package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type MemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.records == nil {
		s.records = make(map[uuid.UUID]Record)
	}
	return nil
}

func (s *MemoryStore) Save(_ context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.records == nil {
		return ErrNotInitialized
	}
	s.records[r.ID] = r
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.records == nil {
		return Record{}, false, ErrNotInitialized
	}
	r, ok := s.records[id]
	return r, ok, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.records == nil {
		return nil, ErrNotInitialized
	}
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sortRecords(out)
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.records == nil {
		return false, ErrNotInitialized
	}
	_, ok := s.records[id]
	delete(s.records, id)
	return ok, nil
}
