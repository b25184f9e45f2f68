package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

const primitivesBucket = "primitives"

// BoltStore keeps one JSON record per key in a single bbolt bucket.
type BoltStore struct {
	path string

	mu sync.RWMutex
	db *bolt.DB
}

func NewBoltStore(path string) *BoltStore {
	return &BoltStore{path: path}
}

func (s *BoltStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("bolt path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := bolt.Open(s.path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("open bolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(primitivesBucket))
		return err
	}); err != nil {
		_ = db.Close()
		return fmt.Errorf("create bucket: %w", err)
	}

	s.db = db
	return nil
}

func (s *BoltStore) Save(_ context.Context, r Record) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	payload, err := EncodeRecord(r)
	if err != nil {
		return err
	}
	return db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket([]byte(primitivesBucket)).Put([]byte(r.ID.String()), payload); err != nil {
			return fmt.Errorf("put to bucket: %w", err)
		}
		return nil
	})
}

func (s *BoltStore) Get(_ context.Context, id uuid.UUID) (Record, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return Record{}, false, err
	}
	var payload []byte
	if err := db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(primitivesBucket)).Get([]byte(id.String())); v != nil {
			payload = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		return Record{}, false, err
	}
	if payload == nil {
		return Record{}, false, nil
	}
	r, err := DecodeRecord(payload)
	if err != nil {
		return Record{}, false, fmt.Errorf("decode record %s: %w", id, err)
	}
	return r, true, nil
}

func (s *BoltStore) List(_ context.Context) ([]Record, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	var out []Record
	err = db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(primitivesBucket)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			r, err := DecodeRecord(v)
			if err != nil {
				return fmt.Errorf("decode record %s: %w", k, err)
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortRecords(out)
	return out, nil
}

func (s *BoltStore) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	db, err := s.getDB()
	if err != nil {
		return false, err
	}
	found := false
	err = db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(primitivesBucket))
		key := []byte(id.String())
		if b.Get(key) == nil {
			return nil
		}
		found = true
		return b.Delete(key)
	})
	return found, err
}

func (s *BoltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *BoltStore) getDB() (*bolt.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrNotInitialized
	}
	return s.db, nil
}
