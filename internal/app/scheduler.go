package app

import (
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/bobmcallan/stockfetch/internal/interfaces"
)

// Sweeper periodically drops expired fetch cache entries
type Sweeper struct {
	fetcher interfaces.FetchService
	cron    *cron.Cron
	logger  arbor.ILogger
}

// NewSweeper creates a cache sweeper over the fetch service
func NewSweeper(fetcher interfaces.FetchService, logger arbor.ILogger) *Sweeper {
	return &Sweeper{
		fetcher: fetcher,
		cron:    cron.New(),
		logger:  logger,
	}
}

// Start schedules the sweep. It reports false without scheduling when the
// schedule is empty or entries never expire.
func (s *Sweeper) Start(schedule string, expiring bool) (bool, error) {
	if schedule == "" || !expiring {
		s.logger.Debug().Str("schedule", schedule).Bool("expiring", expiring).Msg("Cache sweeper disabled")
		return false, nil
	}

	if _, err := s.cron.AddFunc(schedule, func() { s.RunNow() }); err != nil {
		return false, err
	}

	s.cron.Start()
	s.logger.Info().Str("schedule", schedule).Msg("Cache sweeper started")
	return true, nil
}

// Stop stops the schedule and waits for a running sweep
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Cache sweeper stopped")
}

// RunNow sweeps once and returns the number of removed entries
func (s *Sweeper) RunNow() int {
	removed := s.fetcher.Sweep()
	stats := s.fetcher.Stats()
	s.logger.Debug().
		Int("removed", removed).
		Int("entries", stats.Entries).
		Msg("Cache sweep complete")
	return removed
}
