package server

import (
	"bytes"
	"errors"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/bobmcallan/stockfetch/internal/common"
	"github.com/bobmcallan/stockfetch/internal/interfaces"
	"github.com/bobmcallan/stockfetch/internal/models"
	"github.com/bobmcallan/stockfetch/internal/services/dashboard"
	"github.com/bobmcallan/stockfetch/internal/services/timeseries"
)

// Chart kinds served under /api/charts/{ticker}/{kind}.png
const (
	ChartPrice      = "price"
	ChartArithmetic = "arithmetic"
	ChartLog        = "log"
	ChartVolume     = "volume"
)

// chartKinds maps a view's series name to its chart endpoint kind.
var chartKinds = map[string]string{
	timeseries.PriceName:        ChartPrice,
	timeseries.SimpleReturnName: ChartArithmetic,
	timeseries.LogReturnName:    ChartLog,
	timeseries.VolumeName:       ChartVolume,
}

// exportRequest is the body of POST /api/export.
type exportRequest struct {
	Ticker string `json:"ticker"`
	Start  string `json:"start"`
	End    string `json:"end"`
	Dir    string `json:"dir"`
}

// --- System handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, struct {
		common.BuildInfo
		Provider string `json:"provider"`
	}{common.GetBuildInfo(), s.app.Provider.Name()})
}

// handleCache reports fetch cache counters; POST sweeps expired entries first.
func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	removed := 0
	if r.Method == http.MethodPost {
		removed = s.app.FetchService.Sweep()
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"stats":   s.app.FetchService.Stats(),
		"removed": removed,
	})
}

// --- Dashboard handlers ---

// handleDashboard handles GET /api/dashboard and returns the rendered page as JSON.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	req, err := dashboardRequest(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := s.app.DashboardService.Render(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err, req.Ticker)
		return
	}

	if page.Download != nil {
		page.Download.URL = csvURL(page.Query)
	}
	WriteJSON(w, http.StatusOK, page)
}

// routePrices dispatches /api/prices/{ticker}/csv.
func (s *Server) routePrices(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/csv") {
		WriteError(w, http.StatusNotFound, "Not found")
		return
	}
	s.handlePriceCSV(w, r, PathParam(r, "/api/prices/", "/csv"))
}

// handlePriceCSV serves the raw price table as a CSV download.
func (s *Server) handlePriceCSV(w http.ResponseWriter, r *http.Request, ticker string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	query, ok := s.requireQuery(w, r, ticker)
	if !ok {
		return
	}

	result, err := s.app.FetchService.Fetch(r.Context(), query)
	if err != nil {
		s.writeServiceError(w, err, query.Ticker)
		return
	}

	var buf bytes.Buffer
	if err := timeseries.EncodeCSV(&buf, result.Series); err != nil {
		s.writeServiceError(w, err, query.Ticker)
		return
	}

	w.Header().Set("Content-Type", timeseries.CSVContentType)
	w.Header().Set("Content-Disposition", attachment(timeseries.FileName(query.Ticker)))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// routeCharts dispatches /api/charts/{ticker}/{kind}.png.
func (s *Server) routeCharts(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/charts/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || !strings.HasSuffix(parts[1], ".png") {
		WriteError(w, http.StatusNotFound, "Not found")
		return
	}
	s.handleChart(w, r, parts[0], strings.TrimSuffix(parts[1], ".png"))
}

// handleChart renders one time series view as a PNG chart.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request, ticker, kind string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	switch kind {
	case ChartPrice, ChartArithmetic, ChartLog, ChartVolume:
	default:
		WriteError(w, http.StatusNotFound, "Unknown chart: "+kind)
		return
	}

	query, ok := s.requireQuery(w, r, ticker)
	if !ok {
		return
	}

	result, err := s.app.FetchService.Fetch(r.Context(), query)
	if err != nil {
		s.writeServiceError(w, err, query.Ticker)
		return
	}

	var view models.ChartSeries
	switch kind {
	case ChartPrice:
		view = timeseries.PriceView(result.Series)
	case ChartVolume:
		view = timeseries.VolumeView(result.Series)
	case ChartArithmetic:
		view, err = timeseries.ArithmeticReturns(result.Series)
	case ChartLog:
		view, err = timeseries.LogReturns(result.Series)
	}
	if err != nil {
		WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	png, err := s.app.ChartService.Render(view.Title, []models.ChartSeries{view})
	if err != nil {
		WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "max-age=300")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// handleExport handles POST /api/export, writing the price table to the server filesystem.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if !s.app.Config.Export.Enabled {
		WriteError(w, http.StatusForbidden, "Filesystem export is disabled")
		return
	}

	var body exportRequest
	if !DecodeJSON(w, r, &body) {
		return
	}

	query, ready := dashboard.Validate(body.Ticker, body.Start, body.End)
	if query.Ticker == "" || !ready {
		WriteError(w, http.StatusBadRequest, "ticker and end are required")
		return
	}

	path, err := s.app.ExportService.Export(r.Context(), query, body.Dir)
	if err != nil {
		s.writeServiceError(w, err, query.Ticker)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"path": path})
}

// handleShutdown handles POST /api/shutdown (dev mode only).
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if s.app.Config.IsProduction() {
		WriteError(w, http.StatusForbidden, "Shutdown endpoint disabled in production")
		return
	}

	s.logger.Info().Msg("Shutdown requested via HTTP endpoint")

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Shutting down gracefully...\n"))

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	if s.shutdownChan != nil {
		go func() {
			s.shutdownChan <- struct{}{}
		}()
	}
}

// --- Helpers ---

// dashboardRequest reads the inputs and the view selection from the query string.
func dashboardRequest(r *http.Request) (interfaces.DashboardRequest, error) {
	q := r.URL.Query()
	sel, err := models.ParseSelection(
		q.Get("mode"),
		q.Get("measure"),
		q.Get("statement"),
		parseFlag(q.Get("arithmetic")),
		parseFlag(q.Get("log")),
	)
	if err != nil {
		return interfaces.DashboardRequest{}, err
	}
	return interfaces.DashboardRequest{
		Ticker:    q.Get("ticker"),
		Start:     q.Get("start"),
		End:       q.Get("end"),
		Selection: sel,
	}, nil
}

// requireQuery builds the query for a path ticker and writes 400 when it is not ready.
func (s *Server) requireQuery(w http.ResponseWriter, r *http.Request, ticker string) (models.Query, bool) {
	query, ready := dashboard.Validate(ticker, r.URL.Query().Get("start"), r.URL.Query().Get("end"))
	if query.Ticker == "" {
		WriteError(w, http.StatusBadRequest, "ticker is required in path")
		return query, false
	}
	if !ready {
		WriteError(w, http.StatusBadRequest, "end date is required")
		return query, false
	}
	return query, true
}

// writeServiceError maps service errors onto HTTP status codes.
func (s *Server) writeServiceError(w http.ResponseWriter, err error, ticker string) {
	switch {
	case errors.Is(err, models.ErrInvalidSelection):
		WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrFetch):
		WriteError(w, http.StatusBadGateway, "Failed to fetch data")
	case errors.Is(err, dashboard.ErrRender):
		WriteError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.Error().Err(err).Str("ticker", ticker).Msg("Request failed")
		WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// queryValues encodes the date range of a query.
func queryValues(query models.Query) url.Values {
	v := url.Values{}
	if query.Start != "" {
		v.Set("start", query.Start)
	}
	v.Set("end", query.End)
	return v
}

// csvURL is the download link of a query's price table.
func csvURL(query models.Query) string {
	return "/api/prices/" + url.PathEscape(query.Ticker) + "/csv?" + queryValues(query).Encode()
}

// chartURL is the PNG link of one chart kind for a query.
func chartURL(query models.Query, kind string) string {
	return "/api/charts/" + url.PathEscape(query.Ticker) + "/" + kind + ".png?" + queryValues(query).Encode()
}

// attachment builds a Content-Disposition value. Quoting and RFC 2231
// encoding are applied as the file name requires.
func attachment(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}
