package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/repository"
)

// StateStorage keeps persisted session state in Redis with a sliding TTL.
type StateStorage struct {
	client redislib.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewStateStorage creates a Redis-backed state storage.
func NewStateStorage(client redislib.UniversalClient, ttl time.Duration) *StateStorage {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &StateStorage{
		client: client,
		prefix: "portal:state:",
		ttl:    ttl,
	}
}

func (r *StateStorage) GetItem(ctx context.Context, key string) ([]byte, error) {
	result, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return nil, domain.ErrStateNotFound
		}
		return nil, err
	}
	return result, nil
}

func (r *StateStorage) SetItem(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return domain.ErrInvalidPayload
	}
	return r.client.Set(ctx, r.key(key), value, r.ttl).Err()
}

func (r *StateStorage) RemoveItem(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

// Extend pushes the expiry of a persisted document forward.
func (r *StateStorage) Extend(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.ttl
	}
	return r.client.Expire(ctx, r.key(key), ttl).Err()
}

func (r *StateStorage) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *StateStorage) key(id string) string {
	return fmt.Sprintf("%s%s", r.prefix, id)
}

var (
	_ repository.StateStorage  = (*StateStorage)(nil)
	_ repository.Pinger        = (*StateStorage)(nil)
	_ repository.StateExtender = (*StateStorage)(nil)
)
