// Package eodhd provides a client for the EODHD API
package eodhd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/bobmcallan/stockfetch/internal/common"
	"github.com/bobmcallan/stockfetch/internal/models"
)

// flexFloat64 handles JSON values that may be a number, a numeric string or null.
type flexFloat64 struct {
	Value float64
	Valid bool
}

func (f *flexFloat64) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = flexFloat64{}
		return nil
	}
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = flexFloat64{Value: num, Valid: true}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		num, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			*f = flexFloat64{}
			return nil
		}
		*f = flexFloat64{Value: num, Valid: true}
		return nil
	}
	return fmt.Errorf("cannot unmarshal %s into float64", string(data))
}

const (
	DefaultBaseURL   = "https://eodhd.com/api"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 10 // requests per second

	dateLayout = "2006-01-02"
)

// Client implements interfaces.FinanceProvider on the EODHD API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithLogger sets the logger
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new EODHD client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Name identifies the provider
func (c *Client) Name() string {
	return common.ProviderEODHD
}

// APIError represents an API error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("EODHD API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// get performs a rate-limited GET request
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("api_token", c.apiKey)
	params.Set("fmt", "json")

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("url", c.baseURL+path).Msg("EODHD API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// eodBarResponse represents the API response for EOD data
type eodBarResponse struct {
	Date          string      `json:"date"`
	Open          flexFloat64 `json:"open"`
	High          flexFloat64 `json:"high"`
	Low           flexFloat64 `json:"low"`
	Close         flexFloat64 `json:"close"`
	AdjustedClose flexFloat64 `json:"adjusted_close"`
	Volume        flexFloat64 `json:"volume"`
}

type dividendResponse struct {
	Date  string      `json:"date"`
	Value flexFloat64 `json:"value"`
}

type splitResponse struct {
	Date  string `json:"date"`
	Split string `json:"split"` // "4.000000/1.000000"
}

// rangeParams builds from/to parameters. The end date is exclusive, so the
// inclusive EODHD "to" is the day before it.
func rangeParams(start, end string) url.Values {
	params := url.Values{}
	if start != "" {
		params.Set("from", start)
	}
	if end != "" {
		if t, err := time.Parse(dateLayout, end); err == nil {
			params.Set("to", t.AddDate(0, 0, -1).Format(dateLayout))
		} else {
			params.Set("to", end)
		}
	}
	return params
}

// GetHistory retrieves adjusted daily bars with dividends and splits joined by date
func (c *Client) GetHistory(ctx context.Context, ticker, start, end string) (*models.PriceSeries, error) {
	params := rangeParams(start, end)
	params.Set("period", "d")
	params.Set("order", "a")

	var bars []eodBarResponse
	if err := c.get(ctx, "/eod/"+ticker, params, &bars); err != nil {
		return nil, err
	}

	var divs []dividendResponse
	if err := c.get(ctx, "/div/"+ticker, rangeParams(start, end), &divs); err != nil {
		return nil, err
	}
	var splits []splitResponse
	if err := c.get(ctx, "/splits/"+ticker, rangeParams(start, end), &splits); err != nil {
		return nil, err
	}

	dividendByDate := make(map[string]float64, len(divs))
	for _, d := range divs {
		if d.Value.Valid {
			dividendByDate[d.Date] += d.Value.Value
		}
	}
	splitByDate := make(map[string]float64, len(splits))
	for _, s := range splits {
		if ratio, ok := parseSplitRatio(s.Split); ok {
			splitByDate[s.Date] = ratio
		}
	}

	series := &models.PriceSeries{Ticker: ticker, Bars: make([]models.PriceBar, 0, len(bars))}
	for _, bar := range bars {
		if !bar.Close.Valid {
			continue
		}
		date, err := time.Parse(dateLayout, bar.Date)
		if err != nil {
			c.logger.Warn().Str("ticker", ticker).Str("date", bar.Date).Msg("Skipping EOD bar with unparseable date")
			continue
		}
		factor := 1.0
		if bar.AdjustedClose.Valid && bar.Close.Value != 0 {
			factor = bar.AdjustedClose.Value / bar.Close.Value
		}
		series.Bars = append(series.Bars, models.PriceBar{
			Date:        date,
			Open:        bar.Open.Value * factor,
			High:        bar.High.Value * factor,
			Low:         bar.Low.Value * factor,
			Close:       bar.Close.Value * factor,
			Volume:      int64(bar.Volume.Value),
			Dividends:   dividendByDate[bar.Date],
			StockSplits: splitByDate[bar.Date],
		})
	}

	c.logger.Debug().Str("ticker", ticker).Int("bars", len(series.Bars)).Msg("EODHD history loaded")
	return series, nil
}

func parseSplitRatio(s string) (float64, bool) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0, false
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0, false
	}
	return num / den, true
}

// fundamentalsResponse represents the fields of /fundamentals used for metadata
type fundamentalsResponse struct {
	General struct {
		Code         string `json:"Code"`
		Name         string `json:"Name"`
		Type         string `json:"Type"`
		Exchange     string `json:"Exchange"`
		CurrencyCode string `json:"CurrencyCode"`
		Sector       string `json:"Sector"`
		Industry     string `json:"Industry"`
		Description  string `json:"Description"`
		WebURL       string `json:"WebURL"`
	} `json:"General"`
	Highlights struct {
		MarketCapitalization flexFloat64 `json:"MarketCapitalization"`
		PERatio              flexFloat64 `json:"PERatio"`
		EarningsShare        flexFloat64 `json:"EarningsShare"`
		BookValue            flexFloat64 `json:"BookValue"`
		DividendShare        flexFloat64 `json:"DividendShare"`
		DividendYield        flexFloat64 `json:"DividendYield"`
		EPSEstimateNextYear  flexFloat64 `json:"EPSEstimateNextYear"`
		ReturnOnAssetsTTM    flexFloat64 `json:"ReturnOnAssetsTTM"`
		ReturnOnEquityTTM    flexFloat64 `json:"ReturnOnEquityTTM"`
		RevenuePerShareTTM   flexFloat64 `json:"RevenuePerShareTTM"`
		ProfitMargin         flexFloat64 `json:"ProfitMargin"`
	} `json:"Highlights"`
	Valuation struct {
		TrailingPE   flexFloat64 `json:"TrailingPE"`
		ForwardPE    flexFloat64 `json:"ForwardPE"`
		PriceBookMRQ flexFloat64 `json:"PriceBookMRQ"`
	} `json:"Valuation"`
	SharesStats struct {
		SharesOutstanding flexFloat64 `json:"SharesOutstanding"`
		SharesFloat       flexFloat64 `json:"SharesFloat"`
	} `json:"SharesStats"`
	Technicals struct {
		Beta       flexFloat64 `json:"Beta"`
		ShortRatio flexFloat64 `json:"ShortRatio"`
	} `json:"Technicals"`
	Financials struct {
		BalanceSheet statementResponse `json:"Balance_Sheet"`
	} `json:"Financials"`
}

// statementResponse is one Financials section; yearly is keyed by period end date
type statementResponse struct {
	CurrencySymbol string                                `json:"currency_symbol"`
	Yearly         map[string]map[string]json.RawMessage `json:"yearly"`
}

// GetInfo retrieves fundamentals and maps them onto the shared metadata keys
func (c *Client) GetInfo(ctx context.Context, ticker string) (models.Metadata, error) {
	var resp fundamentalsResponse
	if err := c.get(ctx, "/fundamentals/"+ticker, nil, &resp); err != nil {
		return nil, err
	}
	if resp.General.Code == "" && resp.General.Name == "" {
		return nil, &APIError{StatusCode: http.StatusNotFound, Message: "no fundamentals for ticker", Endpoint: "/fundamentals/" + ticker}
	}

	info := models.Metadata{}
	setString := func(key, value string) {
		if value != "" {
			info[key] = value
		}
	}
	setFloat := func(key string, value flexFloat64) {
		if value.Valid {
			info[key] = value.Value
		}
	}

	setString("symbol", ticker)
	setString("longName", resp.General.Name)
	setString("quoteType", resp.General.Type)
	setString("exchange", resp.General.Exchange)
	setString("currency", resp.General.CurrencyCode)
	setString("sector", resp.General.Sector)
	setString("industry", resp.General.Industry)
	setString("longBusinessSummary", resp.General.Description)
	setString("website", resp.General.WebURL)

	setFloat("marketCap", resp.Highlights.MarketCapitalization)
	setFloat("trailingEps", resp.Highlights.EarningsShare)
	setFloat("trailingPE", resp.Valuation.TrailingPE)
	setFloat("forwardPE", resp.Valuation.ForwardPE)
	setFloat("profitMargins", resp.Highlights.ProfitMargin)
	setFloat("returnOnEquity", resp.Highlights.ReturnOnEquityTTM)
	setFloat("returnOnAssets", resp.Highlights.ReturnOnAssetsTTM)
	setFloat("revenuePerShare", resp.Highlights.RevenuePerShareTTM)
	setFloat("forwardEps", resp.Highlights.EPSEstimateNextYear)
	setFloat("bookValue", resp.Highlights.BookValue)
	setFloat("dividendRate", resp.Highlights.DividendShare)
	setFloat("dividendYield", resp.Highlights.DividendYield)
	setFloat("priceToBook", resp.Valuation.PriceBookMRQ)
	setFloat("sharesOutstanding", resp.SharesStats.SharesOutstanding)
	setFloat("floatShares", resp.SharesStats.SharesFloat)
	setFloat("beta", resp.Technicals.Beta)
	setFloat("shortRatio", resp.Technicals.ShortRatio)

	if table := buildStatement(ticker, models.BalanceSheet, resp.Financials.BalanceSheet.Yearly); len(table.Periods) > 0 {
		latest := latestColumn(table)
		if debt, ok := latest["shortLongTermDebtTotal"]; ok {
			if equity, ok := latest["totalStockholderEquity"]; ok && equity != 0 {
				info["debtToEquity"] = debt / equity * 100
			}
		}
		if assets, ok := latest["totalCurrentAssets"]; ok {
			if liabilities, ok := latest["totalCurrentLiabilities"]; ok && liabilities != 0 {
				info["quickRatio"] = (assets - latest["inventory"]) / liabilities
			}
		}
	}

	c.logger.Debug().Str("ticker", ticker).Int("fields", len(info)).Msg("EODHD fundamentals loaded")
	return info, nil
}

// latestColumn returns the numeric cells of the first (newest) period
func latestColumn(table *models.StatementTable) map[string]float64 {
	out := make(map[string]float64, len(table.Rows))
	for _, row := range table.Rows {
		if v, ok := row.Values[0].(float64); ok {
			out[row.Item] = v
		}
	}
	return out
}

var statementSections = map[models.StatementKind]string{
	models.BalanceSheet:    "Balance_Sheet",
	models.IncomeStatement: "Income_Statement",
	models.CashFlow:        "Cash_Flow",
}

// GetStatement retrieves one yearly financial statement
func (c *Client) GetStatement(ctx context.Context, ticker string, kind models.StatementKind) (*models.StatementTable, error) {
	section, ok := statementSections[kind]
	if !ok {
		return nil, fmt.Errorf("unknown statement kind %q", kind)
	}

	params := url.Values{}
	params.Set("filter", "Financials::"+section+"::yearly")

	var yearly map[string]map[string]json.RawMessage
	if err := c.get(ctx, "/fundamentals/"+ticker, params, &yearly); err != nil {
		return nil, err
	}

	table := buildStatement(ticker, kind, yearly)
	c.logger.Debug().Str("ticker", ticker).Str("kind", string(kind)).Int("periods", len(table.Periods)).Msg("EODHD statement loaded")
	return table, nil
}

// statementMetaKeys are per-period fields that are not line items
var statementMetaKeys = map[string]bool{
	"date":            true,
	"filing_date":     true,
	"currency_symbol": true,
}

// buildStatement converts a yearly section into a table: newest period first,
// line items sorted by name, numeric strings decoded and null kept as nil.
func buildStatement(ticker string, kind models.StatementKind, yearly map[string]map[string]json.RawMessage) *models.StatementTable {
	type period struct {
		end    time.Time
		fields map[string]json.RawMessage
	}
	periods := make([]period, 0, len(yearly))
	items := map[string]bool{}
	for key, fields := range yearly {
		end, err := time.Parse(dateLayout, key)
		if err != nil {
			continue
		}
		periods = append(periods, period{end: end, fields: fields})
		for item := range fields {
			if !statementMetaKeys[item] {
				items[item] = true
			}
		}
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].end.After(periods[j].end) })

	names := make([]string, 0, len(items))
	for item := range items {
		names = append(names, item)
	}
	sort.Strings(names)

	table := &models.StatementTable{Ticker: ticker, Kind: kind}
	for _, p := range periods {
		table.Periods = append(table.Periods, p.end)
	}
	for _, name := range names {
		row := models.StatementRow{Item: name, Values: make([]any, len(periods))}
		for i, p := range periods {
			var cell flexFloat64
			if raw, ok := p.fields[name]; ok && json.Unmarshal(raw, &cell) == nil && cell.Valid {
				row.Values[i] = cell.Value
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}
