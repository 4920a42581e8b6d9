package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/portal/repository"
)

// BackendProber checks the user backend.
type BackendProber interface {
	Health(ctx context.Context) error
}

// SessionCounter reports how many session stores are held in memory.
type SessionCounter interface {
	Len() int
}

type Monitor struct {
	storage  repository.StateStorage
	driver   string
	backend  BackendProber
	sessions SessionCounter

	status   Status
	mu       sync.RWMutex
	interval time.Duration
	stopOnce sync.Once
	stopCh   chan struct{}
	logger   *zap.Logger
}

// New watches storage, which is probed only when it implements repository.Pinger.
func New(storage repository.StateStorage, driver string, backend BackendProber, sessions SessionCounter, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		storage:  storage,
		driver:   driver,
		backend:  backend,
		sessions: sessions,
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   logger,
	}
}

func (m *Monitor) Start() {
	go m.loop()
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// IsOnline reports whether the state storage is reachable.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Storage
}

func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Refresh()
	for {
		select {
		case <-ticker.C:
			m.Refresh()
		case <-m.stopCh:
			return
		}
	}
}

// Refresh runs every probe once and stores the result.
func (m *Monitor) Refresh() Status {
	status := Status{
		Storage:       m.checkStorage(),
		StorageDriver: m.driver,
		Backend:       m.checkBackend(),
		LastCheck:     time.Now(),
	}
	if m.sessions != nil {
		status.Sessions = m.sessions.Len()
	}

	m.mu.Lock()
	prev := m.status
	m.status = status
	m.mu.Unlock()

	if !prev.LastCheck.IsZero() && (prev.Storage != status.Storage || prev.Backend != status.Backend) {
		m.logger.Info("dependency status changed",
			zap.Bool("storage", status.Storage),
			zap.Bool("backend", status.Backend))
	}
	return status
}

func (m *Monitor) checkStorage() bool {
	pinger, ok := m.storage.(repository.Pinger)
	if !ok {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := pinger.Ping(ctx); err != nil {
		m.logger.Warn("state storage ping failed", zap.String("driver", m.driver), zap.Error(err))
		return false
	}
	return true
}

func (m *Monitor) checkBackend() bool {
	if m.backend == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return m.backend.Health(ctx) == nil
}
