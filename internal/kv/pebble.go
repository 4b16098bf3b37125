package kv

import (
	"errors"

	pebblestore "github.com/drainq/drainq/internal/storage/pebble"
)

// Pebble adapts the pebblestore wrapper to the Store contract.
type Pebble struct {
	db *pebblestore.DB
}

// NewPebble wraps an open pebblestore database.
func NewPebble(db *pebblestore.DB) *Pebble { return &Pebble{db: db} }

// Get implements Store.
func (s *Pebble) Get(key string) ([]byte, error) {
	b, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

// Set implements Store.
func (s *Pebble) Set(key string, value []byte) error {
	return s.db.Set([]byte(key), value)
}

// Delete implements Store.
func (s *Pebble) Delete(key string) error {
	return s.db.Delete([]byte(key))
}
