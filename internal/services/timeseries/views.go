// Package timeseries derives the price, return and volume views of a price series
// and serializes the raw table as CSV.
package timeseries

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/bobmcallan/stockfetch/internal/models"
)

// Series names shown in charts and tables
const (
	PriceName        = "Adjusted Price"
	SimpleReturnName = "Simple Return"
	LogReturnName    = "Log Return"
	VolumeName       = "Volume"
)

// Section headings of the views
const (
	PriceTitle        = "Closing price adjusted for dividends and capital operations"
	SimpleReturnTitle = "Arithmetic return on adjusted price"
	LogReturnTitle    = "Logarithmic return on adjusted price"
	VolumeTitle       = "Stock trading volume"
)

var (
	// ErrNonPositiveRatio is returned when 1 + r <= 0, where the log return is undefined.
	ErrNonPositiveRatio = errors.New("price ratio is not positive")
	// ErrZeroPrice is returned when a previous close is zero.
	ErrZeroPrice = errors.New("previous close is zero")
)

// DomainError reports the bar where a return could not be computed.
type DomainError struct {
	Index int
	Date  time.Time
	Ratio float64
	Err   error
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("return undefined at %s (bar %d, ratio %g): %v", e.Date.Format("2006-01-02"), e.Index, e.Ratio, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// PriceView plots the adjusted close unchanged.
func PriceView(series *models.PriceSeries) models.ChartSeries {
	out := models.ChartSeries{Name: PriceName, Title: PriceTitle, Kind: models.SeriesLine, Points: make([]models.SeriesPoint, series.Len())}
	for i, bar := range seriesBars(series) {
		out.Points[i] = models.SeriesPoint{Date: bar.Date, Value: bar.Close}
	}
	return out
}

// VolumeView plots raw volume as a filled area.
func VolumeView(series *models.PriceSeries) models.ChartSeries {
	out := models.ChartSeries{Name: VolumeName, Title: VolumeTitle, Kind: models.SeriesArea, Points: make([]models.SeriesPoint, series.Len())}
	for i, bar := range seriesBars(series) {
		out.Points[i] = models.SeriesPoint{Date: bar.Date, Value: float64(bar.Volume)}
	}
	return out
}

// ArithmeticReturns computes r[t] = close[t]/close[t-1] - 1 for t > 0.
// The result has one point fewer than the series.
func ArithmeticReturns(series *models.PriceSeries) (models.ChartSeries, error) {
	out := models.ChartSeries{Name: SimpleReturnName, Title: SimpleReturnTitle, Kind: models.SeriesLine}
	bars := seriesBars(series)
	if len(bars) < 2 {
		return out, nil
	}
	out.Points = make([]models.SeriesPoint, 0, len(bars)-1)
	for t := 1; t < len(bars); t++ {
		prev := bars[t-1].Close
		if prev == 0 {
			return models.ChartSeries{}, &DomainError{Index: t, Date: bars[t].Date, Ratio: math.Inf(1), Err: ErrZeroPrice}
		}
		out.Points = append(out.Points, models.SeriesPoint{Date: bars[t].Date, Value: bars[t].Close/prev - 1})
	}
	return out, nil
}

// LogReturns computes ln(1 + r[t]). It fails with a DomainError wrapping
// ErrNonPositiveRatio when 1 + r[t] is not positive; NaN is never emitted.
func LogReturns(series *models.PriceSeries) (models.ChartSeries, error) {
	simple, err := ArithmeticReturns(series)
	if err != nil {
		return models.ChartSeries{}, err
	}
	out := models.ChartSeries{Name: LogReturnName, Title: LogReturnTitle, Kind: models.SeriesLine, Points: make([]models.SeriesPoint, len(simple.Points))}
	for i, p := range simple.Points {
		ratio := 1 + p.Value
		if !(ratio > 0) {
			return models.ChartSeries{}, &DomainError{Index: i + 1, Date: p.Date, Ratio: ratio, Err: ErrNonPositiveRatio}
		}
		out.Points[i] = models.SeriesPoint{Date: p.Date, Value: math.Log(ratio)}
	}
	return out, nil
}

// ReturnViews returns the selected return series: none, one or both.
func ReturnViews(series *models.PriceSeries, arithmetic, log bool) ([]models.ChartSeries, error) {
	var out []models.ChartSeries
	if arithmetic {
		s, err := ArithmeticReturns(series)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if log {
		s, err := LogReturns(series)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func seriesBars(series *models.PriceSeries) []models.PriceBar {
	if series == nil {
		return nil
	}
	return series.Bars
}
