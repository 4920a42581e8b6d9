// Package memory provides in-process state storages: a map-backed one that
// survives for the life of the process and a no-op one for when no durable
// medium is available.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/repository"
)

type entry struct {
	value     []byte
	updatedAt time.Time
}

// StateStorage is a map-backed storage. Values do not survive a restart.
type StateStorage struct {
	mu    sync.RWMutex
	items map[string]entry
}

func NewStateStorage() *StateStorage {
	return &StateStorage{items: make(map[string]entry)}
}

func (s *StateStorage) GetItem(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.items[key]
	if !ok {
		return nil, domain.ErrStateNotFound
	}
	return append([]byte(nil), e.value...), nil
}

func (s *StateStorage) SetItem(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = entry{value: append([]byte(nil), value...), updatedAt: time.Now()}
	return nil
}

func (s *StateStorage) RemoveItem(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

func (s *StateStorage) Purge(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int
	for k, e := range s.items {
		if e.updatedAt.Before(olderThan) {
			delete(s.items, k)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored documents.
func (s *StateStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Noop accepts every write and remembers nothing.
type Noop struct{}

func (Noop) GetItem(context.Context, string) ([]byte, error) {
	return nil, domain.ErrStateNotFound
}

func (Noop) SetItem(context.Context, string, []byte) error { return nil }

func (Noop) RemoveItem(context.Context, string) error { return nil }

var (
	_ repository.StateStorage = (*StateStorage)(nil)
	_ repository.StatePurger  = (*StateStorage)(nil)
	_ repository.StateStorage = Noop{}
)
