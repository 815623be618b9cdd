package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidSelection is returned for an unknown mode, measure or statement choice.
var ErrInvalidSelection = errors.New("invalid selection")

// Mode is the top-level view selector.
type Mode string

const (
	ModeInputs     Mode = "inputs"
	ModeTimeSeries Mode = "time_series"
	ModeKeyValues  Mode = "key_values"
	ModeFinancials Mode = "financials"
)

// Modes lists the modes in display order.
var Modes = []Mode{ModeInputs, ModeTimeSeries, ModeKeyValues, ModeFinancials}

// Label returns the display name of the mode.
func (m Mode) Label() string {
	switch m {
	case ModeInputs:
		return "Insert Inputs"
	case ModeTimeSeries:
		return "Time Series"
	case ModeKeyValues:
		return "Key Values"
	case ModeFinancials:
		return "Financials"
	}
	return string(m)
}

// ParseMode accepts a canonical id or a display label. Empty means inputs.
func ParseMode(s string) (Mode, error) {
	if strings.TrimSpace(s) == "" {
		return ModeInputs, nil
	}
	norm := normalizeChoice(s)
	for _, m := range Modes {
		if norm == string(m) || norm == normalizeChoice(m.Label()) {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: mode %q", ErrInvalidSelection, s)
}

// Measure is the sub-view of the time series mode.
type Measure string

const (
	MeasureNone   Measure = "none"
	MeasurePrice  Measure = "price"
	MeasureReturn Measure = "return"
	MeasureVolume Measure = "volume"
)

// Measures lists the measures in display order.
var Measures = []Measure{MeasureNone, MeasurePrice, MeasureReturn, MeasureVolume}

// Label returns the display name of the measure.
func (m Measure) Label() string {
	switch m {
	case MeasureNone:
		return "-"
	case MeasurePrice:
		return "Price"
	case MeasureReturn:
		return "Return"
	case MeasureVolume:
		return "Volume"
	}
	return string(m)
}

// ParseMeasure accepts a canonical id or a display label. Empty and "-" mean none.
func ParseMeasure(s string) (Measure, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || trimmed == "-" {
		return MeasureNone, nil
	}
	norm := normalizeChoice(trimmed)
	for _, m := range Measures {
		if norm == string(m) {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: measure %q", ErrInvalidSelection, s)
}

// Selection is the full view choice for one render pass.
type Selection struct {
	Mode       Mode          `json:"mode"`
	Measure    Measure       `json:"measure,omitempty"`
	Arithmetic bool          `json:"arithmetic,omitempty"`
	Log        bool          `json:"log,omitempty"`
	Statement  StatementKind `json:"statement,omitempty"`
}

// Normalize fills defaults and drops choices that do not belong to the mode,
// so nothing carries over from a previously selected mode.
func (s Selection) Normalize() Selection {
	out := Selection{Mode: s.Mode}
	if out.Mode == "" {
		out.Mode = ModeInputs
	}
	switch out.Mode {
	case ModeTimeSeries:
		out.Measure = s.Measure
		if out.Measure == "" {
			out.Measure = MeasureNone
		}
		if out.Measure == MeasureReturn {
			out.Arithmetic = s.Arithmetic
			out.Log = s.Log
		}
	case ModeFinancials:
		out.Statement = s.Statement
		if out.Statement == "" {
			out.Statement = BalanceSheet
		}
	}
	return out
}

// ParseSelection builds a Selection from raw choice strings.
func ParseSelection(mode, measure, statement string, arithmetic, log bool) (Selection, error) {
	m, err := ParseMode(mode)
	if err != nil {
		return Selection{}, err
	}
	sel := Selection{Mode: m, Arithmetic: arithmetic, Log: log}
	switch m {
	case ModeTimeSeries:
		if sel.Measure, err = ParseMeasure(measure); err != nil {
			return Selection{}, err
		}
	case ModeFinancials:
		if strings.TrimSpace(statement) != "" {
			if sel.Statement, err = ParseStatementKind(statement); err != nil {
				return Selection{}, err
			}
		}
	}
	return sel.Normalize(), nil
}

// SeriesKind is how a chart series is drawn.
type SeriesKind string

const (
	SeriesLine SeriesKind = "line"
	SeriesArea SeriesKind = "area"
)

// SeriesPoint is one dated value of a chart series.
type SeriesPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// ChartSeries is a named series ready for charting. Title is the section heading.
type ChartSeries struct {
	Name   string        `json:"name"`
	Title  string        `json:"title,omitempty"`
	Kind   SeriesKind    `json:"kind"`
	Points []SeriesPoint `json:"points"`
}

// MetricTile is one labeled value in the key metrics grid.
type MetricTile struct {
	Field string `json:"field"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// MetricsGrid is the fixed tile layout of the key metrics view.
type MetricsGrid struct {
	Title   string         `json:"title"`
	Columns int            `json:"columns"`
	Rows    [][]MetricTile `json:"rows"`
}
