// Package keymetrics projects twelve key ratios from the metadata map into a fixed tile grid.
package keymetrics

import (
	"fmt"

	"github.com/bobmcallan/stockfetch/internal/common"
	"github.com/bobmcallan/stockfetch/internal/models"
)

// Title heads the key metrics view
const Title = "Financial indicators referring to the last fiscal year"

// Columns is the width of the tile grid
const Columns = 4

// Field pairs a metadata key with its tile label
type Field struct {
	Key   string
	Label string
}

// Fields are the twelve key ratios in grid order, row by row
var Fields = []Field{
	{"returnOnEquity", "Return On Equity"},
	{"returnOnAssets", "Return On Assets"},
	{"debtToEquity", "Debt to Equity"},
	{"revenuePerShare", "Revenue per Share"},
	{"quickRatio", "Quick Ratio"},
	{"forwardEps", "Forward EPS"},
	{"bookValue", "Book Value"},
	{"priceToBook", "Price to Book"},
	{"shortRatio", "Short Ratio"},
	{"beta", "Beta"},
	{"dividendYield", "Dividend Yield"},
	{"dividendRate", "Dividend Rate"},
}

// Render looks up each field, rounds it to two decimals and lays the tiles out
// four per row. A missing or non-numeric field fails the whole render.
func Render(info models.Metadata) (*models.MetricsGrid, error) {
	grid := &models.MetricsGrid{Title: Title, Columns: Columns}

	var row []models.MetricTile
	for _, f := range Fields {
		v, err := info.Float(f.Key)
		if err != nil {
			return nil, fmt.Errorf("key metric %q: %w", f.Label, err)
		}
		row = append(row, models.MetricTile{
			Field: f.Key,
			Label: f.Label,
			Value: common.FormatPlain(common.RoundHalfEven(v, 2)),
		})
		if len(row) == Columns {
			grid.Rows = append(grid.Rows, row)
			row = nil
		}
	}
	return grid, nil
}
