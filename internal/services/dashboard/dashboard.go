// Package dashboard validates the three inputs, fetches once and renders the
// selected view as a page.
package dashboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/bobmcallan/stockfetch/internal/interfaces"
	"github.com/bobmcallan/stockfetch/internal/models"
	"github.com/bobmcallan/stockfetch/internal/services/financials"
	"github.com/bobmcallan/stockfetch/internal/services/keymetrics"
	"github.com/bobmcallan/stockfetch/internal/services/timeseries"
)

// ErrRender marks failures of the pure render step.
var ErrRender = errors.New("render failed")

// RenderError wraps a render failure for one mode. It matches ErrRender.
type RenderError struct {
	Mode models.Mode
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Mode, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

func (e *RenderError) Is(target error) bool { return target == ErrRender }

// Service implements DashboardService
type Service struct {
	fetcher interfaces.FetchService
	logger  arbor.ILogger
}

// NewService creates a dashboard service over a fetcher
func NewService(fetcher interfaces.FetchService, logger arbor.ILogger) *Service {
	return &Service{fetcher: fetcher, logger: logger}
}

// Validate turns the inputs into a query. Values are passed through verbatim;
// the provider rejects what it cannot resolve. It reports false while the end
// date is empty, in which case nothing may be fetched.
func Validate(ticker, start, end string) (models.Query, bool) {
	q := models.Query{Ticker: ticker, Start: start, End: end}
	return q, q.Ready()
}

// Render runs one pass: validate, fetch, then render the selected view.
func (s *Service) Render(ctx context.Context, req interfaces.DashboardRequest) (*models.Page, error) {
	sel, err := checkSelection(req.Selection)
	if err != nil {
		return nil, err
	}

	query, ready := Validate(req.Ticker, req.Start, req.End)
	page := &models.Page{State: models.PageAwaitingInput, Query: query, Selection: sel}
	if !ready {
		return page, nil
	}

	result, err := s.fetcher.Fetch(ctx, query)
	if err != nil {
		return nil, err
	}

	page.State = models.PageReady
	if err := renderView(ctx, page, result); err != nil {
		s.logger.Warn().Err(err).Str("ticker", query.Ticker).Str("mode", string(sel.Mode)).Msg("Render failed")
		return nil, err
	}

	s.logger.Debug().
		Str("ticker", query.Ticker).
		Str("mode", string(sel.Mode)).
		Str("measure", string(sel.Measure)).
		Int("charts", len(page.Charts)).
		Msg("Page rendered")
	return page, nil
}

// checkSelection normalizes the selection and rejects unknown values
func checkSelection(sel models.Selection) (models.Selection, error) {
	sel = sel.Normalize()
	if _, err := models.ParseMode(string(sel.Mode)); err != nil {
		return sel, err
	}
	if sel.Mode == models.ModeTimeSeries {
		if _, err := models.ParseMeasure(string(sel.Measure)); err != nil {
			return sel, err
		}
	}
	if sel.Mode == models.ModeFinancials {
		if _, err := models.ParseStatementKind(string(sel.Statement)); err != nil {
			return sel, err
		}
	}
	return sel, nil
}

// renderView fills the page sections for the selected mode. It only reads the fetch result.
func renderView(ctx context.Context, page *models.Page, result *interfaces.FetchResult) error {
	sel := page.Selection
	ticker := page.Query.Ticker

	switch sel.Mode {
	case models.ModeInputs:
		page.Heading = ticker

	case models.ModeTimeSeries:
		page.Heading = ticker + " " + sel.Mode.Label()
		page.Download = &models.Download{
			FileName:    timeseries.FileName(ticker),
			ContentType: timeseries.CSVContentType,
		}
		switch sel.Measure {
		case models.MeasurePrice:
			page.Charts = []models.ChartSeries{timeseries.PriceView(result.Series)}
		case models.MeasureReturn:
			charts, err := timeseries.ReturnViews(result.Series, sel.Arithmetic, sel.Log)
			if err != nil {
				return &RenderError{Mode: sel.Mode, Err: err}
			}
			page.Charts = charts
		case models.MeasureVolume:
			page.Charts = []models.ChartSeries{timeseries.VolumeView(result.Series)}
		}

	case models.ModeKeyValues:
		page.Heading = ticker + " " + sel.Mode.Label()
		grid, err := keymetrics.Render(result.Info)
		if err != nil {
			return &RenderError{Mode: sel.Mode, Err: err}
		}
		page.Metrics = grid

	case models.ModeFinancials:
		page.Heading = ticker + " " + sel.Statement.Label()
		table, err := result.Source.Statement(ctx, sel.Statement)
		if err != nil {
			return &RenderError{Mode: sel.Mode, Err: err}
		}
		view, err := financials.Render(table)
		if err != nil {
			return &RenderError{Mode: sel.Mode, Err: err}
		}
		page.Statement = view
	}
	return nil
}
