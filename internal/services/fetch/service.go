// Package fetch retrieves price history and metadata from the finance provider
// and memoizes the result per query.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/bobmcallan/stockfetch/internal/common"
	"github.com/bobmcallan/stockfetch/internal/interfaces"
	"github.com/bobmcallan/stockfetch/internal/models"
)

// ErrQueryNotReady is returned when the end date is still empty.
var ErrQueryNotReady = errors.New("query has no end date")

// Error wraps a provider failure for a ticker. It matches models.ErrFetch.
type Error struct {
	Ticker string
	Op     string
	Err    error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("fetch %s %s: %v", e.Ticker, e.Op, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Ticker, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == models.ErrFetch }

// Service implements FetchService over a finance provider
type Service struct {
	provider interfaces.FinanceProvider
	cache    *Cache[*interfaces.FetchResult]
	logger   arbor.ILogger
	now      func() time.Time // injectable clock for testing
}

// NewService creates a fetch service with a cache sized by config
func NewService(provider interfaces.FinanceProvider, config common.CacheConfig, logger arbor.ILogger) *Service {
	s := &Service{
		provider: provider,
		logger:   logger,
		now:      time.Now,
	}
	s.cache = NewCache[*interfaces.FetchResult](config.MaxEntries, config.GetTTL(), func() time.Time { return s.now() })
	return s
}

// Fetch returns price history, metadata and a statement handle for the query.
// Identical queries are served from the cache without a network call.
func (s *Service) Fetch(ctx context.Context, query models.Query) (*interfaces.FetchResult, error) {
	if !query.Ready() {
		return nil, ErrQueryNotReady
	}

	result, hit, err := s.cache.GetOrLoad(ctx, query.Key(), func(ctx context.Context) (*interfaces.FetchResult, error) {
		return s.load(ctx, query)
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("ticker", query.Ticker).Msg("Fetch failed")
		return nil, err
	}

	if hit {
		s.logger.Debug().Str("ticker", query.Ticker).Str("key", query.Key()).Msg("Fetch cache hit")
	}
	return result, nil
}

func (s *Service) load(ctx context.Context, query models.Query) (*interfaces.FetchResult, error) {
	start := s.now()

	series, err := s.provider.GetHistory(ctx, query.Ticker, query.Start, query.End)
	if err != nil {
		return nil, &Error{Ticker: query.Ticker, Err: err}
	}
	info, err := s.provider.GetInfo(ctx, query.Ticker)
	if err != nil {
		return nil, &Error{Ticker: query.Ticker, Err: err}
	}

	result := &interfaces.FetchResult{
		Query:     query,
		Series:    series,
		Info:      info,
		Source:    newStatementSource(s.provider, query.Ticker, s.logger),
		Provider:  s.provider.Name(),
		FetchedAt: s.now(),
	}

	s.logger.Info().
		Str("ticker", query.Ticker).
		Str("start", query.Start).
		Str("end", query.End).
		Str("provider", result.Provider).
		Int("bars", series.Len()).
		Int("fields", len(info)).
		Int64("elapsed_ms", s.now().Sub(start).Milliseconds()).
		Msg("Fetched market data")
	return result, nil
}

// Sweep drops expired cache entries
func (s *Service) Sweep() int {
	removed := s.cache.Sweep()
	if removed > 0 {
		s.logger.Debug().Int("removed", removed).Msg("Fetch cache swept")
	}
	return removed
}

// Stats reports cache counters
func (s *Service) Stats() models.CacheStats {
	return s.cache.Stats()
}
