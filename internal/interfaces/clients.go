// Package interfaces defines service contracts for stockfetch
package interfaces

import (
	"context"

	"github.com/bobmcallan/stockfetch/internal/models"
)

// FinanceProvider is the external data provider the dashboard depends on
type FinanceProvider interface {
	// Name identifies the provider in logs and results
	Name() string

	// GetHistory retrieves daily price bars between start and end (yyyy-mm-dd)
	GetHistory(ctx context.Context, ticker, start, end string) (*models.PriceSeries, error)

	// GetInfo retrieves the flat company metadata map
	GetInfo(ctx context.Context, ticker string) (models.Metadata, error)

	// GetStatement retrieves one annual financial statement
	GetStatement(ctx context.Context, ticker string, kind models.StatementKind) (*models.StatementTable, error)
}

// StatementSource is a provider handle bound to one ticker for on-demand statement queries
type StatementSource interface {
	Ticker() string
	Statement(ctx context.Context, kind models.StatementKind) (*models.StatementTable, error)
}
