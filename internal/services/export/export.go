// Package export writes price tables to the local filesystem
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"

	"github.com/bobmcallan/stockfetch/internal/interfaces"
	"github.com/bobmcallan/stockfetch/internal/models"
	"github.com/bobmcallan/stockfetch/internal/services/timeseries"
)

// Service implements ExportService
type Service struct {
	fetcher    interfaces.FetchService
	defaultDir string
	logger     arbor.ILogger
}

// NewService creates an exporter writing to defaultDir when no directory is given
func NewService(fetcher interfaces.FetchService, defaultDir string, logger arbor.ILogger) *Service {
	if defaultDir == "" {
		defaultDir = "."
	}
	return &Service{fetcher: fetcher, defaultDir: defaultDir, logger: logger}
}

// Export fetches the query and writes {dir}/{ticker}_data.csv. An existing
// file is overwritten.
func (s *Service) Export(ctx context.Context, query models.Query, dir string) (string, error) {
	result, err := s.fetcher.Fetch(ctx, query)
	if err != nil {
		return "", err
	}

	if dir == "" {
		dir = s.defaultDir
	}
	path := filepath.Join(dir, timeseries.FileName(query.Ticker))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("export %s: %w", query.Ticker, err)
	}
	if err := timeseries.EncodeCSV(f, result.Series); err != nil {
		f.Close()
		return "", fmt.Errorf("export %s: %w", query.Ticker, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("export %s: %w", query.Ticker, err)
	}

	s.logger.Info().Str("ticker", query.Ticker).Str("path", path).Int("rows", result.Series.Len()).Msg("Price table exported")
	return path, nil
}
