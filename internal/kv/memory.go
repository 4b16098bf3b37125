package kv

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// Memory is an in-process Store. Multiple lease managers sharing one Memory
// instance observe the same last-writer-wins behavior as the file backend,
// which makes it the contention double for multi-instance tests.
type Memory struct {
	m *xsync.MapOf[string, []byte]
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{m: xsync.NewMapOf[string, []byte]()}
}

// Get implements Store.
func (s *Memory) Get(key string) ([]byte, error) {
	v, ok := s.m.Load(key)
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set implements Store.
func (s *Memory) Set(key string, value []byte) error {
	s.m.Store(key, append([]byte(nil), value...))
	return nil
}

// Delete implements Store.
func (s *Memory) Delete(key string) error {
	s.m.Delete(key)
	return nil
}
