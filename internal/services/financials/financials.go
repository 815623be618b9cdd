// Package financials rescales financial statements to millions and relabels
// their columns by fiscal year.
package financials

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bobmcallan/stockfetch/internal/common"
	"github.com/bobmcallan/stockfetch/internal/models"
)

// Scale is the divisor applied to every cell
const Scale = 1_000_000

// ErrNotNumeric is returned for a cell that cannot be used as a number
var ErrNotNumeric = errors.New("statement cell is not numeric")

// Title returns the heading of a rendered statement
func Title(kind models.StatementKind) string {
	return kind.Label() + " data in millions for the last four fiscal years"
}

// Render divides every cell by one million, rounds to two decimals and labels
// each column with its period-end year. When two periods share a year the
// later column's values replace the earlier ones in the earlier position.
func Render(table *models.StatementTable) (*models.StatementView, error) {
	if table == nil {
		return nil, fmt.Errorf("no statement table")
	}

	view := &models.StatementView{Kind: table.Kind, Title: Title(table.Kind)}

	// column index -> output position
	position := make([]int, len(table.Periods))
	seen := map[int]int{}
	for i, period := range table.Periods {
		year := period.Year()
		if pos, ok := seen[year]; ok {
			position[i] = pos
			continue
		}
		seen[year] = len(view.Years)
		position[i] = len(view.Years)
		view.Years = append(view.Years, year)
	}

	coerce := numeric
	if table.Kind == models.IncomeStatement {
		coerce = coerceFloat
	}

	for _, row := range table.Rows {
		out := models.StatementViewRow{Item: row.Item, Values: make([]*float64, len(view.Years))}
		for i := range table.Periods {
			var cell any
			if i < len(row.Values) {
				cell = row.Values[i]
			}
			v, ok, err := coerce(cell)
			if err != nil {
				return nil, fmt.Errorf("%s %q (%d): %w", table.Kind.Label(), row.Item, table.Periods[i].Year(), err)
			}
			if !ok {
				out.Values[position[i]] = nil
				continue
			}
			scaled := common.RoundHalfEven(v/Scale, 2)
			out.Values[position[i]] = &scaled
		}
		view.Rows = append(view.Rows, out)
	}
	return view, nil
}

// numeric accepts cells that are already numbers; nil is an absent cell
func numeric(cell any) (float64, bool, error) {
	switch v := cell.(type) {
	case nil:
		return 0, false, nil
	case float64:
		return v, true, nil
	case float32:
		return float64(v), true, nil
	case int:
		return float64(v), true, nil
	case int64:
		return float64(v), true, nil
	default:
		return 0, false, fmt.Errorf("%w: %v (%T)", ErrNotNumeric, cell, cell)
	}
}

// coerceFloat also parses numeric strings
func coerceFloat(cell any) (float64, bool, error) {
	if s, ok := cell.(string); ok {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false, fmt.Errorf("%w: %q", ErrNotNumeric, s)
		}
		return v, true, nil
	}
	return numeric(cell)
}
