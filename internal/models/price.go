package models

import "time"

// PriceBar is one daily bar. OHLC values are adjusted for dividends and splits.
type PriceBar struct {
	Date        time.Time `json:"date"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Volume      int64     `json:"volume"`
	Dividends   float64   `json:"dividends"`
	StockSplits float64   `json:"stock_splits"`
}

// PriceSeries is the daily history of a ticker, ascending by date.
// It is read-only after fetch.
type PriceSeries struct {
	Ticker string     `json:"ticker"`
	Bars   []PriceBar `json:"bars"`
}

// Len returns the number of bars.
func (s *PriceSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Bars)
}

// Closes returns the close column.
func (s *PriceSeries) Closes() []float64 {
	out := make([]float64, s.Len())
	for i := range out {
		out[i] = s.Bars[i].Close
	}
	return out
}

// Volumes returns the volume column.
func (s *PriceSeries) Volumes() []int64 {
	out := make([]int64, s.Len())
	for i := range out {
		out[i] = s.Bars[i].Volume
	}
	return out
}

// Dates returns the trading dates.
func (s *PriceSeries) Dates() []time.Time {
	out := make([]time.Time, s.Len())
	for i := range out {
		out[i] = s.Bars[i].Date
	}
	return out
}
