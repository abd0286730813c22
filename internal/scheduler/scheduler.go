// Package scheduler runs periodic cache maintenance for the preview server.
package scheduler

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/mattjoyce/themethumb/internal/config"
	"github.com/mattjoyce/themethumb/internal/events"
	"github.com/mattjoyce/themethumb/internal/log"
)

// TypeCachePruned is published after every prune pass that removed entries.
const TypeCachePruned = "cache.pruned"

// Scheduler prunes stale thumbnails on a jittered interval.
type Scheduler struct {
	cfg    config.CacheConfig
	pruner Pruner
	events events.Publisher
	logger *slog.Logger
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// New creates a new Scheduler instance. hub may be nil. A nil logger means
// the scheduler component logger; a supplied one is used as is.
func New(cfg config.CacheConfig, p Pruner, hub events.Publisher, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = log.WithComponent("scheduler")
	}
	return &Scheduler{
		cfg:    cfg,
		pruner: p,
		events: hub,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Start prunes once and, when an interval is configured, keeps pruning in
// the background until Stop or ctx cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting scheduler", "max_age", s.cfg.MaxAge, "interval", s.cfg.PruneInterval)

	s.tick(ctx)
	if s.cfg.PruneInterval <= 0 {
		return
	}

	s.wg.Add(1)
	go s.tickLoop(ctx)
}

// Stop gracefully stops the scheduler. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.once.Do(func() {
		s.logger.Info("Stopping scheduler")
		close(s.stopCh)
	})
	s.wg.Wait()
}

func (s *Scheduler) tickLoop(ctx context.Context) {
	defer s.wg.Done()

	timer := time.NewTimer(calculateJitteredInterval(s.cfg.PruneInterval, s.cfg.PruneJitter))
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			s.tick(ctx)
			timer.Reset(calculateJitteredInterval(s.cfg.PruneInterval, s.cfg.PruneJitter))
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// tick performs a single prune pass. Failures are logged and retried on the
// next tick.
func (s *Scheduler) tick(ctx context.Context) {
	if s.cfg.MaxAge <= 0 {
		return
	}
	s.logger.Debug("Scheduler tick")

	n, err := s.pruner.Prune(ctx, s.cfg.MaxAge)
	if err != nil {
		s.logger.Warn("cache prune failed", "error", err)
		return
	}
	if n == 0 {
		return
	}
	s.logger.Info("pruned stale thumbnails", "count", n, "max_age", s.cfg.MaxAge)
	if s.events != nil {
		s.events.Publish(TypeCachePruned, map[string]any{
			"count":   n,
			"max_age": s.cfg.MaxAge.String(),
		})
	}
}

// calculateJitteredInterval adds a random jitter to the base interval.
func calculateJitteredInterval(baseInterval time.Duration, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return baseInterval
	}
	return baseInterval + time.Duration(rand.Int63n(jitter.Nanoseconds()))
}
