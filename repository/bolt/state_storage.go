package bolt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/internal/infrastructure/boltdb"
	"github.com/fastygo/portal/repository"
)

// StateStorage persists session state in a local BoltDB file.
type StateStorage struct {
	store *boltdb.Store
}

// NewStateStorage creates a BoltDB-backed state storage. Values must be JSON documents.
func NewStateStorage(store *boltdb.Store) *StateStorage {
	return &StateStorage{store: store}
}

func (s *StateStorage) GetItem(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, ok, err := s.store.Get(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrStateNotFound
	}
	return []byte(rec.Value), nil
}

func (s *StateStorage) SetItem(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !json.Valid(value) {
		return domain.ErrInvalidPayload
	}
	return s.store.Put(boltdb.Record{
		Key:       key,
		Value:     json.RawMessage(value),
		UpdatedAt: time.Now(),
	})
}

func (s *StateStorage) RemoveItem(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.store.Delete(key)
}

func (s *StateStorage) Purge(ctx context.Context, olderThan time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.store.Cleanup(olderThan)
}

func (s *StateStorage) Ping(ctx context.Context) error {
	_, err := s.store.Size()
	return err
}

var (
	_ repository.StateStorage = (*StateStorage)(nil)
	_ repository.StatePurger  = (*StateStorage)(nil)
	_ repository.Pinger       = (*StateStorage)(nil)
)
