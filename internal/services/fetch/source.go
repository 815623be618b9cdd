package fetch

import (
	"context"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/bobmcallan/stockfetch/internal/interfaces"
	"github.com/bobmcallan/stockfetch/internal/models"
)

// statementSource is a provider handle bound to one ticker. Each statement
// kind is fetched once and kept for the lifetime of the handle.
type statementSource struct {
	ticker   string
	provider interfaces.FinanceProvider
	logger   arbor.ILogger

	mu     sync.Mutex
	tables map[models.StatementKind]*models.StatementTable
}

func newStatementSource(provider interfaces.FinanceProvider, ticker string, logger arbor.ILogger) *statementSource {
	return &statementSource{
		ticker:   ticker,
		provider: provider,
		logger:   logger,
		tables:   make(map[models.StatementKind]*models.StatementTable),
	}
}

func (s *statementSource) Ticker() string {
	return s.ticker
}

// Statement returns the memoized table for kind, fetching it on first use
func (s *statementSource) Statement(ctx context.Context, kind models.StatementKind) (*models.StatementTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if table, ok := s.tables[kind]; ok {
		return table, nil
	}

	table, err := s.provider.GetStatement(ctx, s.ticker, kind)
	if err != nil {
		return nil, &Error{Ticker: s.ticker, Op: string(kind), Err: err}
	}
	s.tables[kind] = table
	s.logger.Debug().Str("ticker", s.ticker).Str("kind", string(kind)).Msg("Statement loaded")
	return table, nil
}
