package profile

import "sync"

// Store exposes profile retrieval for prompt building and HTTP handlers.
// The records live in an external service in production; this interface is
// the seam.
type Store interface {
	FindByUser(userID string) (Record, bool)
	Put(record Record)
}

// MemoryStore implements Store with an in-memory map, suitable for a single
// process in front of the hosted profile service.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Record)}
}

// FindByUser looks up the record for a user.
func (s *MemoryStore) FindByUser(userID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.items[userID]
	return record, ok
}

// Put stores or replaces a user's record.
func (s *MemoryStore) Put(record Record) {
	if record.UserID == "" {
		return
	}
	s.mu.Lock()
	s.items[record.UserID] = record
	s.mu.Unlock()
}
