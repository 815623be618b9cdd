package eodhd

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestServer(t *testing.T, routes map[string]string, inspect ...func(*http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, fn := range inspect {
			fn(r)
		}
		if r.URL.Query().Get("api_token") != "test-key" {
			http.Error(w, "Unauthenticated", http.StatusUnauthorized)
			return
		}
		key := r.URL.Path
		if f := r.URL.Query().Get("filter"); f != "" {
			key += "?" + f
		}
		body, ok := routes[key]
		if !ok {
			http.Error(w, "Ticker Not Found.", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGetHistory_AdjustsAndJoinsEvents(t *testing.T) {
	var gotTo string
	routes := map[string]string{
		"/eod/AAPL.US": `[
			{"date":"2023-01-03","open":130.28,"high":130.9,"low":124.17,"close":125.07,"adjusted_close":100.056,"volume":112117500},
			{"date":"2023-01-04","open":"126.89","high":"128.66","low":"125.08","close":"126.36","adjusted_close":"126.36","volume":"89113600"},
			{"date":"2023-01-05","open":null,"high":null,"low":null,"close":null,"adjusted_close":null,"volume":null}
		]`,
		"/div/AAPL.US":    `[{"date":"2023-01-04","value":0.23}]`,
		"/splits/AAPL.US": `[{"date":"2023-01-03","split":"4.000000/1.000000"}]`,
	}
	srv := newTestServer(t, routes, func(r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/eod/") {
			gotTo = r.URL.Query().Get("to")
			if r.URL.Query().Get("order") != "a" || r.URL.Query().Get("period") != "d" {
				t.Errorf("unexpected query %s", r.URL.RawQuery)
			}
		}
	})

	client := NewClient("test-key", WithBaseURL(srv.URL))
	series, err := client.GetHistory(context.Background(), "AAPL.US", "2023-01-01", "2023-01-10")
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}

	if gotTo != "2023-01-09" {
		t.Errorf("to = %q, want 2023-01-09 (end is exclusive)", gotTo)
	}
	if series.Len() != 2 {
		t.Fatalf("expected 2 bars (null bar skipped), got %d", series.Len())
	}

	first := series.Bars[0]
	if first.Date != time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC) {
		t.Errorf("first date = %v", first.Date)
	}
	if math.Abs(first.Close-100.056) > 1e-9 {
		t.Errorf("adjusted close = %v, want 100.056", first.Close)
	}
	if first.StockSplits != 4 {
		t.Errorf("stock splits = %v, want 4", first.StockSplits)
	}

	second := series.Bars[1]
	if second.Close != 126.36 || second.Volume != 89113600 {
		t.Errorf("second bar = %+v", second)
	}
	if second.Dividends != 0.23 {
		t.Errorf("dividends = %v, want 0.23", second.Dividends)
	}
}

func TestGetHistory_APIError(t *testing.T) {
	srv := newTestServer(t, map[string]string{})
	client := NewClient("test-key", WithBaseURL(srv.URL))

	_, err := client.GetHistory(context.Background(), "NOPE.US", "", "2023-01-10")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", apiErr.StatusCode)
	}
	if apiErr.Endpoint != "/eod/NOPE.US" {
		t.Errorf("endpoint = %q", apiErr.Endpoint)
	}
}

func TestGetInfo_MapsKeyMetrics(t *testing.T) {
	routes := map[string]string{
		"/fundamentals/AAPL.US": `{
			"General": {"Code":"AAPL","Name":"Apple Inc","Type":"Common Stock","CurrencyCode":"USD","Sector":"Technology","Industry":"Consumer Electronics"},
			"Highlights": {
				"ReturnOnEquityTTM": 1.4567, "ReturnOnAssetsTTM": "0.2029", "RevenuePerShareTTM": 24.32,
				"EPSEstimateNextYear": 6.58, "BookValue": 3.953, "DividendShare": 0.94, "DividendYield": 0.0053
			},
			"Valuation": {"PriceBookMRQ": 45.1},
			"Technicals": {"Beta": 1.29, "ShortRatio": null},
			"Financials": {"Balance_Sheet": {"currency_symbol":"USD","yearly": {
				"2022-09-30": {"date":"2022-09-30","shortLongTermDebtTotal":"120069000000.00","totalStockholderEquity":"50672000000.00",
					"totalCurrentAssets":"135405000000.00","inventory":"4946000000.00","totalCurrentLiabilities":"153982000000.00"},
				"2021-09-30": {"date":"2021-09-30","shortLongTermDebtTotal":"1.00","totalStockholderEquity":"1.00",
					"totalCurrentAssets":"1.00","inventory":null,"totalCurrentLiabilities":"1.00"}
			}}}
		}`,
	}
	srv := newTestServer(t, routes)
	client := NewClient("test-key", WithBaseURL(srv.URL))

	info, err := client.GetInfo(context.Background(), "AAPL.US")
	if err != nil {
		t.Fatalf("GetInfo failed: %v", err)
	}

	wantFloats := map[string]float64{
		"returnOnEquity":  1.4567,
		"returnOnAssets":  0.2029,
		"revenuePerShare": 24.32,
		"forwardEps":      6.58,
		"bookValue":       3.953,
		"dividendRate":    0.94,
		"dividendYield":   0.0053,
		"priceToBook":     45.1,
		"beta":            1.29,
	}
	for key, want := range wantFloats {
		got, err := info.Float(key)
		if err != nil {
			t.Errorf("%s: %v", key, err)
			continue
		}
		if got != want {
			t.Errorf("%s = %v, want %v", key, got, want)
		}
	}

	if _, ok := info["shortRatio"]; ok {
		t.Error("shortRatio should be absent when null")
	}

	de, err := info.Float("debtToEquity")
	if err != nil {
		t.Fatalf("debtToEquity: %v", err)
	}
	if want := 236.95334701610355; math.Abs(de-want) > 1e-9 {
		t.Errorf("debtToEquity = %v, want %v (latest year)", de, want)
	}
	qr, err := info.Float("quickRatio")
	if err != nil {
		t.Fatalf("quickRatio: %v", err)
	}
	if want := 0.8472353911496149; math.Abs(qr-want) > 1e-9 {
		t.Errorf("quickRatio = %v, want %v", qr, want)
	}
	if info["longName"] != "Apple Inc" || info["currency"] != "USD" {
		t.Errorf("general fields not mapped: %v", info)
	}
}

func TestGetInfo_EmptyFundamentals(t *testing.T) {
	srv := newTestServer(t, map[string]string{"/fundamentals/ZZZ.US": `{}`})
	client := NewClient("test-key", WithBaseURL(srv.URL))

	_, err := client.GetInfo(context.Background(), "ZZZ.US")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
}

func TestGetStatement_NewestFirstSortedItems(t *testing.T) {
	routes := map[string]string{
		"/fundamentals/AAPL.US?Financials::Income_Statement::yearly": `{
			"2021-09-30": {"date":"2021-09-30","filing_date":"2021-10-29","totalRevenue":"365817000000.00","netIncome":"94680000000.00","researchDevelopment":null},
			"2022-09-30": {"date":"2022-09-30","filing_date":"2022-10-28","totalRevenue":"394328000000.00","netIncome":"99803000000.00","researchDevelopment":"26251000000.00"}
		}`,
	}
	srv := newTestServer(t, routes)
	client := NewClient("test-key", WithBaseURL(srv.URL))

	table, err := client.GetStatement(context.Background(), "AAPL.US", "income_statement")
	if err != nil {
		t.Fatalf("GetStatement failed: %v", err)
	}

	if len(table.Periods) != 2 || table.Periods[0].Year() != 2022 || table.Periods[1].Year() != 2021 {
		t.Fatalf("periods = %v, want 2022 then 2021", table.Periods)
	}
	if len(table.Rows) != 3 {
		t.Fatalf("expected 3 line items, got %d", len(table.Rows))
	}
	wantItems := []string{"netIncome", "researchDevelopment", "totalRevenue"}
	for i, want := range wantItems {
		if table.Rows[i].Item != want {
			t.Errorf("row %d = %q, want %q", i, table.Rows[i].Item, want)
		}
	}
	if table.Rows[2].Values[0] != 394328000000.0 {
		t.Errorf("totalRevenue 2022 = %v", table.Rows[2].Values[0])
	}
	if table.Rows[1].Values[1] != nil {
		t.Errorf("null cell = %v, want nil", table.Rows[1].Values[1])
	}
}

func TestGetStatement_UnknownKind(t *testing.T) {
	client := NewClient("test-key")
	if _, err := client.GetStatement(context.Background(), "AAPL.US", "equity"); err == nil {
		t.Error("expected error for unknown statement kind")
	}
}

func TestParseSplitRatio(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"4.000000/1.000000", 4, true},
		{"1/10", 0.1, true},
		{"2", 0, false},
		{"1/0", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseSplitRatio(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parseSplitRatio(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
