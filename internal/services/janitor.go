package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fastygo/portal/repository"
)

// ConnectionHealth abstracts the connection monitor functionality.
type ConnectionHealth interface {
	IsOnline() bool
}

// Sweeper evicts idle in-memory session stores.
type Sweeper interface {
	Sweep(idle time.Duration) int
}

// JanitorConfig controls how often sessions are swept and how long persisted
// state is retained.
type JanitorConfig struct {
	Interval  time.Duration
	IdleAfter time.Duration
	Retention time.Duration
}

// Janitor evicts idle sessions from memory and purges persisted state nobody
// has written for longer than the retention window.
type Janitor struct {
	sessions Sweeper
	purger   repository.StatePurger
	monitor  ConnectionHealth
	logger   *zap.Logger
	cron     *cron.Cron
	cfg      JanitorConfig
	now      func() time.Time
}

// NewJanitor purges only when storage implements repository.StatePurger.
func NewJanitor(
	sessions Sweeper,
	storage repository.StateStorage,
	monitor ConnectionHealth,
	logger *zap.Logger,
	cfg JanitorConfig,
) *Janitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.IdleAfter <= 0 {
		cfg.IdleAfter = 30 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	j := &Janitor{
		sessions: sessions,
		monitor:  monitor,
		logger:   logger,
		cfg:      cfg,
		cron:     cron.New(cron.WithSeconds()),
		now:      time.Now,
	}
	if p, ok := storage.(repository.StatePurger); ok && cfg.Retention > 0 {
		j.purger = p
	}

	schedule := fmt.Sprintf("@every %ds", int(cfg.Interval.Seconds()))
	_, _ = j.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Interval)
		defer cancel()
		if err := j.Run(ctx); err != nil {
			j.logger.Error("session janitor failed", zap.Error(err))
		}
	})

	return j
}

// Start launches the cron scheduler.
func (j *Janitor) Start() {
	if j == nil || j.cron == nil {
		return
	}
	j.cron.Start()
	j.logger.Info("session janitor started", zap.Duration("interval", j.cfg.Interval))
}

// Stop gracefully stops the scheduler.
func (j *Janitor) Stop(ctx context.Context) {
	if j == nil || j.cron == nil {
		return
	}
	stopCtx := j.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	j.logger.Info("session janitor stopped")
}

// Run performs one sweep and, while storage is reachable, one purge.
func (j *Janitor) Run(ctx context.Context) error {
	if j == nil {
		return nil
	}
	if j.sessions != nil {
		if evicted := j.sessions.Sweep(j.cfg.IdleAfter); evicted > 0 {
			j.logger.Debug("idle sessions evicted", zap.Int("count", evicted))
		}
	}

	if j.purger == nil {
		return nil
	}
	if j.monitor != nil && !j.monitor.IsOnline() {
		j.logger.Debug("skipping state purge (storage offline)")
		return nil
	}
	purged, err := j.purger.Purge(ctx, j.now().Add(-j.cfg.Retention))
	if err != nil {
		return err
	}
	if purged > 0 {
		j.logger.Info("expired session state purged", zap.Int("count", purged))
	}
	return nil
}
