package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bobmcallan/stockfetch/internal/app"
	"github.com/bobmcallan/stockfetch/internal/common"
	"github.com/bobmcallan/stockfetch/internal/models"
	"github.com/bobmcallan/stockfetch/internal/services/keymetrics"
)

// stubProvider serves fixed data and records how often it was asked
type stubProvider struct {
	mu           sync.Mutex
	closes       []float64
	historyErr   error
	statementErr error
	dropInfo     string
	calls        int
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) GetHistory(ctx context.Context, ticker, start, end string) (*models.PriceSeries, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.historyErr != nil {
		return nil, p.historyErr
	}
	closes := p.closes
	if closes == nil {
		closes = []float64{100, 102, 101, 105, 107}
	}
	s := &models.PriceSeries{Ticker: ticker}
	for i, c := range closes {
		s.Bars = append(s.Bars, models.PriceBar{
			Date:   time.Date(2023, 1, 3+i, 0, 0, 0, 0, time.UTC),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: int64(1000000 + i*1000),
		})
	}
	return s, nil
}

func (p *stubProvider) GetInfo(ctx context.Context, ticker string) (models.Metadata, error) {
	info := models.Metadata{}
	for i, f := range keymetrics.Fields {
		info[f.Key] = 1.0 + float64(i)/10
	}
	delete(info, p.dropInfo)
	return info, nil
}

func (p *stubProvider) GetStatement(ctx context.Context, ticker string, kind models.StatementKind) (*models.StatementTable, error) {
	if p.statementErr != nil {
		return nil, p.statementErr
	}
	return &models.StatementTable{
		Ticker:  ticker,
		Kind:    kind,
		Periods: []time.Time{time.Date(2022, 9, 30, 0, 0, 0, 0, time.UTC), time.Date(2021, 9, 25, 0, 0, 0, 0, time.UTC)},
		Rows: []models.StatementRow{
			{Item: "totalAssets", Values: []any{352755000000.0, 351002000000.0}},
			{Item: "goodwill", Values: []any{nil, 1234567.891}},
		},
	}, nil
}

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func newTestServer(t *testing.T, provider *stubProvider, configure ...func(*common.Config)) *Server {
	t.Helper()
	config := common.NewDefaultConfig()
	for _, fn := range configure {
		fn(config)
	}
	a := app.New(config, common.NewSilentLogger(), provider)
	t.Cleanup(a.Close)
	return NewServer(a)
}

func doRequest(t *testing.T, srv *Server, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body.Error
}

const testRange = "start=2023-01-01&end=2023-01-10"

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t, &stubProvider{})
	rr := doRequest(t, srv, http.MethodGet, "/api/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"status":"ok"`) {
		t.Errorf("Unexpected body: %s", rr.Body.String())
	}
	if rr.Header().Get("X-Correlation-ID") == "" {
		t.Error("Expected correlation id header from middleware")
	}
}

func TestHandleVersion(t *testing.T) {
	srv := newTestServer(t, &stubProvider{})
	rr := doRequest(t, srv, http.MethodGet, "/api/version", nil)
	var body map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body["provider"] != "stub" || body["version"] == "" || body["go"] == "" {
		t.Errorf("Unexpected version body: %v", body)
	}
}

func TestHandleDashboard_AwaitingInput(t *testing.T) {
	provider := &stubProvider{}
	srv := newTestServer(t, provider)

	rr := doRequest(t, srv, http.MethodGet, "/api/dashboard?ticker=AAPL&start=2023-01-01&mode=key_values", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var page models.Page
	if err := json.NewDecoder(rr.Body).Decode(&page); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if page.State != models.PageAwaitingInput {
		t.Errorf("Expected awaiting_input, got %s", page.State)
	}
	if provider.callCount() != 0 {
		t.Errorf("Expected no fetch without an end date, got %d", provider.callCount())
	}
}

func TestHandleDashboard_TimeSeriesPrice(t *testing.T) {
	srv := newTestServer(t, &stubProvider{})

	rr := doRequest(t, srv, http.MethodGet, "/api/dashboard?ticker=AAPL&"+testRange+"&mode=time_series&measure=price", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var page models.Page
	if err := json.NewDecoder(rr.Body).Decode(&page); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if page.State != models.PageReady || page.Heading != "AAPL Time Series" {
		t.Errorf("Unexpected page: state=%s heading=%q", page.State, page.Heading)
	}
	if page.Download == nil || page.Download.URL != "/api/prices/AAPL/csv?end=2023-01-10&start=2023-01-01" {
		t.Errorf("Unexpected download: %+v", page.Download)
	}
	if len(page.Charts) != 1 || len(page.Charts[0].Points) != 5 {
		t.Fatalf("Expected one price chart with 5 points, got %+v", page.Charts)
	}
}

func TestHandleDashboard_ReturnFlags(t *testing.T) {
	srv := newTestServer(t, &stubProvider{})

	rr := doRequest(t, srv, http.MethodGet, "/api/dashboard?ticker=AAPL&"+testRange+"&mode=Time+Series&measure=Return&arithmetic=on&log=on", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var page models.Page
	json.NewDecoder(rr.Body).Decode(&page)
	if len(page.Charts) != 2 {
		t.Fatalf("Expected arithmetic and log charts, got %d", len(page.Charts))
	}
	if len(page.Charts[0].Points) != 4 {
		t.Errorf("Expected n-1 return points, got %d", len(page.Charts[0].Points))
	}
}

func TestHandleDashboard_InvalidSelection(t *testing.T) {
	srv := newTestServer(t, &stubProvider{})
	rr := doRequest(t, srv, http.MethodGet, "/api/dashboard?ticker=AAPL&"+testRange+"&mode=portfolio", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rr.Code)
	}
}

func TestHandleDashboard_FetchFailure(t *testing.T) {
	srv := newTestServer(t, &stubProvider{historyErr: errors.New("connection refused")})
	rr := doRequest(t, srv, http.MethodGet, "/api/dashboard?ticker=AAPL&"+testRange, nil)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("Expected 502, got %d", rr.Code)
	}
	if msg := decodeError(t, rr); msg != "Failed to fetch data" {
		t.Errorf("Expected generic fetch message, got %q", msg)
	}
}

func TestHandleDashboard_MissingMetric(t *testing.T) {
	srv := newTestServer(t, &stubProvider{dropInfo: "quickRatio"})
	rr := doRequest(t, srv, http.MethodGet, "/api/dashboard?ticker=AAPL&"+testRange+"&mode=key_values", nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected 422, got %d", rr.Code)
	}
	if msg := decodeError(t, rr); !strings.Contains(msg, "Quick Ratio") {
		t.Errorf("Expected the missing label in the message, got %q", msg)
	}
}

func TestHandleDashboard_LogReturnDomainError(t *testing.T) {
	srv := newTestServer(t, &stubProvider{closes: []float64{10, -5, 4}})
	rr := doRequest(t, srv, http.MethodGet, "/api/dashboard?ticker=AAPL&"+testRange+"&mode=time_series&measure=return&log=true", nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestHandleDashboard_Financials(t *testing.T) {
	srv := newTestServer(t, &stubProvider{})
	rr := doRequest(t, srv, http.MethodGet, "/api/dashboard?ticker=AAPL&"+testRange+"&mode=financials&statement=Income+Statement", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var page models.Page
	json.NewDecoder(rr.Body).Decode(&page)
	if page.Statement == nil {
		t.Fatal("Expected a statement view")
	}
	if page.Statement.Title != "Income Statement data in millions for the last four fiscal years" {
		t.Errorf("Unexpected title %q", page.Statement.Title)
	}
	if len(page.Statement.Years) != 2 || page.Statement.Years[0] != 2022 {
		t.Errorf("Unexpected years %v", page.Statement.Years)
	}
	goodwill := page.Statement.Rows[1]
	if goodwill.Values[0] != nil || goodwill.Values[1] == nil || *goodwill.Values[1] != 1.23 {
		t.Errorf("Unexpected goodwill row %+v", goodwill)
	}
}

func TestHandleDashboard_StatementFetchFailure(t *testing.T) {
	srv := newTestServer(t, &stubProvider{statementErr: errors.New("HTTP 500")})
	rr := doRequest(t, srv, http.MethodGet, "/api/dashboard?ticker=AAPL&"+testRange+"&mode=financials", nil)
	if rr.Code != http.StatusBadGateway {
		t.Errorf("Expected 502, got %d", rr.Code)
	}
}

func TestHandlePriceCSV(t *testing.T) {
	provider := &stubProvider{}
	srv := newTestServer(t, provider)

	rr := doRequest(t, srv, http.MethodGet, "/api/prices/AAPL/csv?"+testRange, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if name := attachmentName(t, rr.Header().Get("Content-Disposition")); name != "AAPL_data.csv" {
		t.Errorf("Unexpected download name %q", name)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Unexpected Content-Type %q", ct)
	}
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	if len(lines) != 6 {
		t.Fatalf("Expected header and 5 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "Date,Open,High,Low,Close,Volume") {
		t.Errorf("Unexpected header %q", lines[0])
	}

	// same query again is served from the cache
	doRequest(t, srv, http.MethodGet, "/api/prices/AAPL/csv?"+testRange, nil)
	if provider.callCount() != 1 {
		t.Errorf("Expected one provider call, got %d", provider.callCount())
	}
}

func TestHandlePriceCSV_RequiresEnd(t *testing.T) {
	srv := newTestServer(t, &stubProvider{})
	rr := doRequest(t, srv, http.MethodGet, "/api/prices/AAPL/csv?start=2023-01-01", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rr.Code)
	}
}

func TestHandlePrices_NotFound(t *testing.T) {
	srv := newTestServer(t, &stubProvider{})
	rr := doRequest(t, srv, http.MethodGet, "/api/prices/AAPL/xlsx?"+testRange, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rr.Code)
	}
}

func TestHandleChart(t *testing.T) {
	srv := newTestServer(t, &stubProvider{})

	for _, kind := range []string{ChartPrice, ChartArithmetic, ChartLog, ChartVolume} {
		rr := doRequest(t, srv, http.MethodGet, "/api/charts/AAPL/"+kind+".png?"+testRange, nil)
		if rr.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d: %s", kind, rr.Code, rr.Body.String())
			continue
		}
		if ct := rr.Header().Get("Content-Type"); ct != "image/png" {
			t.Errorf("%s: unexpected Content-Type %q", kind, ct)
		}
		if !bytes.HasPrefix(rr.Body.Bytes(), []byte("\x89PNG")) {
			t.Errorf("%s: body is not a PNG", kind)
		}
	}
}

func TestHandleChart_Errors(t *testing.T) {
	srv := newTestServer(t, &stubProvider{closes: []float64{10, -5, 4}})

	rr := doRequest(t, srv, http.MethodGet, "/api/charts/AAPL/candles.png?"+testRange, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown chart, got %d", rr.Code)
	}

	rr = doRequest(t, srv, http.MethodGet, "/api/charts/AAPL/log.png?"+testRange, nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 for undefined log return, got %d", rr.Code)
	}

	rr = doRequest(t, srv, http.MethodGet, "/api/charts/AAPL/price.png", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without an end date, got %d", rr.Code)
	}
}

func TestHandleExport_Disabled(t *testing.T) {
	srv := newTestServer(t, &stubProvider{})
	body, _ := json.Marshal(exportRequest{Ticker: "AAPL", End: "2023-01-10"})
	rr := doRequest(t, srv, http.MethodPost, "/api/export", body)
	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected 403, got %d", rr.Code)
	}
}

func TestHandleExport(t *testing.T) {
	dir := t.TempDir()
	srv := newTestServer(t, &stubProvider{}, func(c *common.Config) {
		c.Export.Enabled = true
		c.Export.Dir = dir
	})

	body, _ := json.Marshal(exportRequest{Ticker: "AAPL", Start: "2023-01-01", End: "2023-01-10"})
	rr := doRequest(t, srv, http.MethodPost, "/api/export", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]string
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp["path"] != filepath.Join(dir, "AAPL_data.csv") {
		t.Errorf("Unexpected path %q", resp["path"])
	}
	if _, err := os.Stat(resp["path"]); err != nil {
		t.Errorf("Expected exported file: %v", err)
	}

	body, _ = json.Marshal(exportRequest{Ticker: "AAPL"})
	rr = doRequest(t, srv, http.MethodPost, "/api/export", body)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without an end date, got %d", rr.Code)
	}
}

func TestHandleCache(t *testing.T) {
	srv := newTestServer(t, &stubProvider{})
	doRequest(t, srv, http.MethodGet, "/api/dashboard?ticker=AAPL&"+testRange, nil)

	rr := doRequest(t, srv, http.MethodGet, "/api/cache", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	var resp struct {
		Stats   models.CacheStats `json:"stats"`
		Removed int               `json:"removed"`
	}
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Stats.Entries != 1 || resp.Stats.Loads != 1 {
		t.Errorf("Unexpected stats %+v", resp.Stats)
	}

	rr = doRequest(t, srv, http.MethodPost, "/api/cache", nil)
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Removed != 0 {
		t.Errorf("Expected nothing to sweep without a TTL, got %d", resp.Removed)
	}
}

func TestHandleShutdown(t *testing.T) {
	srv := newTestServer(t, &stubProvider{})
	ch := make(chan struct{}, 1)
	srv.SetShutdownChannel(ch)

	rr := doRequest(t, srv, http.MethodPost, "/api/shutdown", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Error("Expected shutdown signal")
	}

	prod := newTestServer(t, &stubProvider{}, func(c *common.Config) { c.Environment = "production" })
	rr = doRequest(t, prod, http.MethodPost, "/api/shutdown", nil)
	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected 403 in production, got %d", rr.Code)
	}
}

func TestMCPEndpoint_Initialize(t *testing.T) {
	srv := newTestServer(t, &stubProvider{})
	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"1.0.0"}}}`)

	rr := doRequest(t, srv, http.MethodPost, "/mcp", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"name":"stockfetch"`) {
		t.Errorf("Expected server info in response, got %s", rr.Body.String())
	}
}

// attachmentName parses the file name out of a Content-Disposition header
func attachmentName(t *testing.T, header string) string {
	t.Helper()
	disposition, params, err := mime.ParseMediaType(header)
	if err != nil {
		t.Fatalf("Invalid Content-Disposition %q: %v", header, err)
	}
	if disposition != "attachment" {
		t.Errorf("Expected attachment disposition, got %q", disposition)
	}
	return params["filename"]
}

func TestHandlePriceCSV_QuotesFileName(t *testing.T) {
	srv := newTestServer(t, &stubProvider{})

	for _, tt := range []struct {
		path string
		want string
	}{
		{"/api/prices/A%22B/csv?" + testRange, `A"B_data.csv`},
		{"/api/prices/BRK%20B/csv?" + testRange, "BRK B_data.csv"},
		{"/api/prices/%C3%85SA/csv?" + testRange, "ÅSA_data.csv"},
	} {
		rr := doRequest(t, srv, http.MethodGet, tt.path, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", tt.path, rr.Code, rr.Body.String())
		}
		if name := attachmentName(t, rr.Header().Get("Content-Disposition")); name != tt.want {
			t.Errorf("%s: download name = %q, want %q", tt.path, name, tt.want)
		}
	}
}
