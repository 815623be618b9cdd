package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/stockfetch/internal/models"
)

// FetchResult is the memoized outcome of one fetch
type FetchResult struct {
	Query     models.Query        `json:"query"`
	Series    *models.PriceSeries `json:"series"`
	Info      models.Metadata     `json:"info"`
	Source    StatementSource     `json:"-"`
	Provider  string              `json:"provider"`
	FetchedAt time.Time           `json:"fetched_at"`
}

// FetchService retrieves and memoizes provider data per query
type FetchService interface {
	// Fetch returns the result for the query, loading it on a cache miss
	Fetch(ctx context.Context, query models.Query) (*FetchResult, error)

	// Sweep drops expired entries and returns how many were removed
	Sweep() int

	// Stats reports cache counters
	Stats() models.CacheStats
}

// DashboardService validates input, fetches and renders one page
type DashboardService interface {
	Render(ctx context.Context, req DashboardRequest) (*models.Page, error)
}

// DashboardRequest carries the raw inputs and the view selection
type DashboardRequest struct {
	Ticker    string
	Start     string
	End       string
	Selection models.Selection
}

// ChartService renders chart series to PNG
type ChartService interface {
	Render(title string, series []models.ChartSeries) ([]byte, error)
}

// ExportService writes the price table to the filesystem
type ExportService interface {
	// Export writes {dir}/{ticker}_data.csv and returns the written path
	Export(ctx context.Context, query models.Query, dir string) (string, error)
}
