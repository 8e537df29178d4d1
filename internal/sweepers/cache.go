package sweepers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ddokjang/plan-service/internal/jobs"
	"github.com/ddokjang/plan-service/internal/resilience"
)

// CacheSweeper periodically evicts expired entries from the in-process caches
type CacheSweeper struct {
	caches   []*resilience.Cache
	logger   *zerolog.Logger
	interval time.Duration
	stopChan chan struct{}
}

// NewCacheSweeper creates a new sweeper over the given caches
func NewCacheSweeper(caches []*resilience.Cache, logger *zerolog.Logger, interval time.Duration) *CacheSweeper {
	return &CacheSweeper{
		caches:   caches,
		logger:   logger,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic eviction sweep
func (s *CacheSweeper) Start(ctx context.Context) {
	s.logger.Info().
		Dur("interval", s.interval).
		Int("caches", len(s.caches)).
		Msg("Starting cache sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Cache sweeper stopping (context cancelled)")
			return
		case <-s.stopChan:
			s.logger.Info().Msg("Cache sweeper stopping (stop signal)")
			return
		case <-ticker.C:
			s.SweepAll()
		}
	}
}

// Stop signals the sweeper to stop
func (s *CacheSweeper) Stop() {
	close(s.stopChan)
}

// SweepAll evicts expired entries from every registered cache
func (s *CacheSweeper) SweepAll() {
	for _, c := range s.caches {
		evicted := c.Sweep()
		if evicted > 0 {
			s.logger.Debug().
				Str("cache", c.Name()).
				Int("evicted", evicted).
				Int("remaining", c.Len()).
				Msg("Swept expired cache entries")
		}
	}
}

// RetentionSweeper periodically runs the database retention jobs
type RetentionSweeper struct {
	cfg      jobs.CleanupConfig
	logger   *zerolog.Logger
	interval time.Duration
	stopChan chan struct{}
}

// NewRetentionSweeper creates a sweeper that applies retention policies
func NewRetentionSweeper(cfg jobs.CleanupConfig, logger *zerolog.Logger, interval time.Duration) *RetentionSweeper {
	return &RetentionSweeper{
		cfg:      cfg,
		logger:   logger,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic retention sweep
func (s *RetentionSweeper) Start(ctx context.Context) {
	s.logger.Info().
		Dur("interval", s.interval).
		Msg("Starting retention sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Retention sweeper stopping (context cancelled)")
			return
		case <-s.stopChan:
			s.logger.Info().Msg("Retention sweeper stopping (stop signal)")
			return
		case <-ticker.C:
			if err := jobs.RunRetention(ctx, s.cfg); err != nil {
				s.logger.Error().Err(err).Msg("Retention sweep failed")
			}
		}
	}
}

// Stop signals the sweeper to stop
func (s *RetentionSweeper) Stop() {
	close(s.stopChan)
}
