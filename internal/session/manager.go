package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/internal/metrics"
	"github.com/fastygo/portal/repository"
	"github.com/fastygo/portal/repository/memory"
)

// ManagerConfig controls how session stores are created.
type ManagerConfig struct {
	Persist          PersistConfig
	RehydrateTimeout time.Duration
}

type managed struct {
	store    *Store
	lastSeen time.Time
}

// Manager owns one Store per browser session id.
type Manager struct {
	storage repository.StateStorage
	cfg     ManagerConfig
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*managed
}

func NewManager(storage repository.StateStorage, cfg ManagerConfig, logger *zap.Logger, m *metrics.Metrics) *Manager {
	if storage == nil {
		storage = memory.Noop{}
	}
	if cfg.Persist.Key == "" {
		cfg.Persist = DefaultPersistConfig()
	}
	if cfg.RehydrateTimeout <= 0 {
		cfg.RehydrateTimeout = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		storage:  storage,
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
		sessions: make(map[string]*managed),
	}
}

// Acquire returns the store for sid, creating and rehydrating it on first use.
// Concurrent callers for the same sid share one store; later callers may
// observe it before rehydration finishes and should wait on Ready.
func (m *Manager) Acquire(ctx context.Context, sid string) (*Store, error) {
	if sid == "" {
		return nil, domain.NewError(domain.ErrCodeInvalid, "empty session id")
	}

	m.mu.Lock()
	if entry, ok := m.sessions[sid]; ok {
		entry.lastSeen = m.now()
		m.mu.Unlock()
		return entry.store, nil
	}
	store := NewStore(
		WithStorage(m.storage),
		WithPersistConfig(m.cfg.Persist),
		WithKey(m.StorageKey(sid)),
		WithLogger(m.logger),
		WithMetrics(m.metrics),
	)
	m.sessions[sid] = &managed{store: store, lastSeen: m.now()}
	count := len(m.sessions)
	m.mu.Unlock()

	m.metrics.SetSessions(count)

	rctx, cancel := context.WithTimeout(ctx, m.cfg.RehydrateTimeout)
	defer cancel()
	// Errors are already logged by the store; the session starts empty.
	if err := store.Rehydrate(rctx); err == nil {
		m.extend(rctx, sid)
	}
	return store, nil
}

// extend slides the expiry of a persisted document on backends that expire entries.
func (m *Manager) extend(ctx context.Context, sid string) {
	ext, ok := m.storage.(repository.StateExtender)
	if !ok {
		return
	}
	if err := ext.Extend(ctx, m.StorageKey(sid), 0); err != nil {
		m.metrics.StorageError("extend")
		m.logger.Debug("failed to extend session state", zap.Error(err))
	}
}

// Release forgets sid and removes its persisted document.
func (m *Manager) Release(ctx context.Context, sid string) error {
	m.mu.Lock()
	entry, ok := m.sessions[sid]
	delete(m.sessions, sid)
	count := len(m.sessions)
	m.mu.Unlock()

	m.metrics.SetSessions(count)

	if ok {
		return entry.store.Purge(ctx)
	}
	if err := m.storage.RemoveItem(ctx, m.StorageKey(sid)); err != nil {
		m.metrics.StorageError("remove")
		return err
	}
	return nil
}

// Sweep evicts stores idle for longer than idle. Persisted state is kept, so an
// evicted session rehydrates on its next request.
func (m *Manager) Sweep(idle time.Duration) int {
	cutoff := m.now().Add(-idle)

	m.mu.Lock()
	var evicted int
	for sid, entry := range m.sessions {
		if entry.lastSeen.Before(cutoff) {
			delete(m.sessions, sid)
			evicted++
		}
	}
	count := len(m.sessions)
	m.mu.Unlock()

	m.metrics.SetSessions(count)
	return evicted
}

// Len returns the number of stores held in memory.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Storage exposes the backing state storage to the janitor and health checks.
func (m *Manager) Storage() repository.StateStorage {
	return m.storage
}

// StorageKey namespaces the persistence key by session id.
func (m *Manager) StorageKey(sid string) string {
	return m.cfg.Persist.Key + ":" + sid
}
