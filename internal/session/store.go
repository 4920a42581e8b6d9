// Package session holds per-browser session state: the current user, the
// bearer token and the login flag.
//
// A Store is mutated only through typed commands. Every mutation is applied in
// call order, published synchronously to subscribers and, when it touches a
// whitelisted field, written to the configured state storage. Storage failures
// are logged and counted but never surface to callers; the in-memory state stays
// authoritative for the life of the store.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/internal/metrics"
	"github.com/fastygo/portal/pkg/logger"
	"github.com/fastygo/portal/repository"
	"github.com/fastygo/portal/repository/memory"
)

const writeTimeout = 2 * time.Second

// Listener observes committed state. It must not dispatch on the same store.
type Listener func(domain.SessionState)

// Store is the state container of a single session.
type Store struct {
	key     string
	persist PersistConfig
	storage repository.StateStorage
	logger  *zap.Logger
	metrics *metrics.Metrics

	dispatchMu sync.Mutex

	mu        sync.RWMutex
	state     domain.SessionState
	listeners map[uint64]Listener
	nextID    uint64

	readyOnce sync.Once
	ready     chan struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithStorage sets the durable medium. A nil storage means no persistence.
func WithStorage(storage repository.StateStorage) Option {
	return func(s *Store) {
		if storage != nil {
			s.storage = storage
		}
	}
}

// WithPersistConfig sets the persistence key and whitelist.
func WithPersistConfig(cfg PersistConfig) Option {
	return func(s *Store) {
		s.persist = cfg
	}
}

// WithKey overrides the storage key, e.g. to namespace it per browser.
func WithKey(key string) Option {
	return func(s *Store) {
		s.key = key
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// NewStore creates an empty store. Call Rehydrate before serving reads.
func NewStore(opts ...Option) *Store {
	s := &Store{
		persist:   DefaultPersistConfig(),
		storage:   memory.Noop{},
		logger:    zap.NewNop(),
		listeners: make(map[uint64]Listener),
		ready:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.key == "" {
		s.key = s.persist.Key
	}
	return s
}

// Snapshot returns a copy of the latest committed state.
func (s *Store) Snapshot() domain.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Dispatch applies cmd, persists the whitelisted subset and notifies subscribers.
// It returns the committed state.
func (s *Store) Dispatch(ctx context.Context, cmd Command) domain.SessionState {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	s.state = cmd.apply(s.state)
	committed := s.state.Clone()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	if s.persist.touches(cmd) {
		s.write(ctx, committed, cmd.Name())
	}

	for _, l := range listeners {
		l(committed.Clone())
	}
	return committed
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Rehydrate restores the persisted subset into memory and marks the store ready.
// A missing document is not an error. Other failures leave the state untouched,
// are returned for logging, and still mark the store ready.
func (s *Store) Rehydrate(ctx context.Context) error {
	defer s.markReady()

	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	data, err := s.storage.GetItem(ctx, s.key)
	if err != nil {
		if errors.Is(err, domain.ErrStateNotFound) {
			return nil
		}
		s.metrics.StorageError("get")
		s.log(ctx).Warn("session rehydration failed", zap.Error(err))
		return err
	}

	s.mu.Lock()
	next, err := s.persist.decode(data, s.state)
	if err == nil {
		s.state = next
	}
	s.mu.Unlock()

	if err != nil {
		s.metrics.StorageError("decode")
		s.log(ctx).Warn("discarding unreadable persisted session", zap.Error(err))
		return err
	}
	return nil
}

// Ready is closed once rehydration has finished, successfully or not.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// Purge removes the persisted document without touching in-memory state.
func (s *Store) Purge(ctx context.Context) error {
	if err := s.storage.RemoveItem(ctx, s.key); err != nil {
		s.metrics.StorageError("remove")
		s.log(ctx).Warn("failed to purge persisted session", zap.Error(err))
		return err
	}
	return nil
}

func (s *Store) write(ctx context.Context, state domain.SessionState, cause string) {
	payload, err := s.persist.encode(state)
	if err != nil {
		s.metrics.StorageError("encode")
		s.log(ctx).Error("failed to encode session state", zap.String("command", cause), zap.Error(err))
		return
	}
	// The write outlives a cancelled request so mutation order is kept on disk.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := s.storage.SetItem(wctx, s.key, payload); err != nil {
		s.metrics.StorageError("set")
		s.log(ctx).Warn("failed to persist session state",
			zap.String("command", cause),
			zap.Error(err))
	}
}

func (s *Store) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

func (s *Store) log(ctx context.Context) *zap.Logger {
	return logger.FromContext(ctx, s.logger)
}
