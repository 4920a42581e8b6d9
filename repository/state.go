package repository

import (
	"context"
	"time"
)

// StateStorage is the durable key/value medium behind persisted session state.
// GetItem returns domain.ErrStateNotFound when the key is absent.
type StateStorage interface {
	GetItem(ctx context.Context, key string) ([]byte, error)
	SetItem(ctx context.Context, key string, value []byte) error
	RemoveItem(ctx context.Context, key string) error
}

// StatePurger is implemented by backends that cannot expire entries on their own.
type StatePurger interface {
	Purge(ctx context.Context, olderThan time.Time) (int, error)
}

// Pinger reports backend reachability for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StateExtender is implemented by backends whose entries expire, so an active
// session can push its expiry forward.
type StateExtender interface {
	Extend(ctx context.Context, key string, ttl time.Duration) error
}
