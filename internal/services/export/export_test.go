package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/stockfetch/internal/common"
	"github.com/bobmcallan/stockfetch/internal/interfaces"
	"github.com/bobmcallan/stockfetch/internal/models"
	"github.com/bobmcallan/stockfetch/internal/services/timeseries"
)

type mockFetcher struct {
	series *models.PriceSeries
	err    error
}

func (m *mockFetcher) Fetch(_ context.Context, q models.Query) (*interfaces.FetchResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &interfaces.FetchResult{Query: q, Series: m.series}, nil
}

func (m *mockFetcher) Sweep() int               { return 0 }
func (m *mockFetcher) Stats() models.CacheStats { return models.CacheStats{} }

func series() *models.PriceSeries {
	return &models.PriceSeries{Ticker: "AAPL", Bars: []models.PriceBar{
		{Date: time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC), Open: 130.28, High: 130.9, Low: 124.17, Close: 125.07, Volume: 112117500},
		{Date: time.Date(2023, 1, 4, 0, 0, 0, 0, time.UTC), Open: 126.89, High: 128.66, Low: 125.08, Close: 126.36, Volume: 89113600, Dividends: 0.23},
	}}
}

var query = models.Query{Ticker: "AAPL", Start: "2023-01-01", End: "2023-01-10"}

func TestExport_WritesTickerFile(t *testing.T) {
	dir := t.TempDir()
	svc := NewService(&mockFetcher{series: series()}, ".", common.NewSilentLogger())

	path, err := svc.Export(context.Background(), query, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "AAPL_data.csv"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	decoded, err := timeseries.DecodeCSV(f, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, series(), decoded)
}

func TestExport_OverwritesWithoutCheck(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "AAPL_data.csv")
	require.NoError(t, os.WriteFile(path, []byte("stale content that is longer than nothing"), 0644))

	svc := NewService(&mockFetcher{series: series()}, dir, common.NewSilentLogger())
	got, err := svc.Export(context.Background(), query, "")
	require.NoError(t, err)
	assert.Equal(t, path, got)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "stale")
}

func TestExport_MissingDirectoryFails(t *testing.T) {
	svc := NewService(&mockFetcher{series: series()}, ".", common.NewSilentLogger())

	_, err := svc.Export(context.Background(), query, filepath.Join(t.TempDir(), "missing", "deeper"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExport_FetchFailure(t *testing.T) {
	svc := NewService(&mockFetcher{err: models.ErrFetch}, t.TempDir(), common.NewSilentLogger())

	_, err := svc.Export(context.Background(), query, "")
	assert.ErrorIs(t, err, models.ErrFetch)
}
