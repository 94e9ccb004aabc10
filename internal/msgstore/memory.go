package msgstore

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps messages in a map. Data is copied on the way in and out.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{messages: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, messageID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[messageID] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, messageID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.messages[messageID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) Delete(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, messageID)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.messages))
	for id := range s.messages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
