package timeseries

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/bobmcallan/stockfetch/internal/models"
)

// CSVContentType is the media type of the exported table
const CSVContentType = "text/csv; charset=utf-8"

// CSVHeader is the column order of the exported table
var CSVHeader = []string{"Date", "Open", "High", "Low", "Close", "Volume", "Dividends", "Stock Splits"}

// FileName returns the download name of the exported table
func FileName(ticker string) string {
	return ticker + "_data.csv"
}

// EncodeCSV writes the full price table, header first, rows in original order
func EncodeCSV(w io.Writer, series *models.PriceSeries) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, bar := range seriesBars(series) {
		record := []string{
			bar.Date.Format("2006-01-02"),
			formatFloat(bar.Open),
			formatFloat(bar.High),
			formatFloat(bar.Low),
			formatFloat(bar.Close),
			strconv.FormatInt(bar.Volume, 10),
			formatFloat(bar.Dividends),
			formatFloat(bar.StockSplits),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// DecodeCSV reads a table written by EncodeCSV
func DecodeCSV(r io.Reader, ticker string) (*models.PriceSeries, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(CSVHeader)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, name := range CSVHeader {
		if header[i] != name {
			return nil, fmt.Errorf("unexpected column %d: %q, want %q", i, header[i], name)
		}
	}

	series := &models.PriceSeries{Ticker: ticker}
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bar, err := parseRecord(record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		series.Bars = append(series.Bars, bar)
	}
	return series, nil
}

func parseRecord(record []string) (models.PriceBar, error) {
	var bar models.PriceBar
	var err error
	if bar.Date, err = time.Parse("2006-01-02", record[0]); err != nil {
		return bar, err
	}
	floats := []*float64{&bar.Open, &bar.High, &bar.Low, &bar.Close}
	for i, dst := range floats {
		if *dst, err = strconv.ParseFloat(record[i+1], 64); err != nil {
			return bar, fmt.Errorf("%s: %w", CSVHeader[i+1], err)
		}
	}
	if bar.Volume, err = strconv.ParseInt(record[5], 10, 64); err != nil {
		return bar, fmt.Errorf("Volume: %w", err)
	}
	if bar.Dividends, err = strconv.ParseFloat(record[6], 64); err != nil {
		return bar, fmt.Errorf("Dividends: %w", err)
	}
	if bar.StockSplits, err = strconv.ParseFloat(record[7], 64); err != nil {
		return bar, fmt.Errorf("Stock Splits: %w", err)
	}
	return bar, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
