// Package yahoo provides a client for the Yahoo Finance chart and quoteSummary APIs
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/bobmcallan/stockfetch/internal/common"
	"github.com/bobmcallan/stockfetch/internal/models"
)

const (
	DefaultBaseURL   = "https://query2.finance.yahoo.com"
	DefaultCookieURL = "https://fc.yahoo.com"
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 2 // requests per second

	dateLayout = "2006-01-02"
)

// InfoModules are the quoteSummary modules flattened into the metadata map, in priority order
var InfoModules = []string{"financialData", "defaultKeyStatistics", "summaryDetail", "price", "assetProfile"}

// statementModules maps a statement kind to its quoteSummary module and list field
var statementModules = map[models.StatementKind][2]string{
	models.BalanceSheet:    {"balanceSheetHistory", "balanceSheetStatements"},
	models.IncomeStatement: {"incomeStatementHistory", "incomeStatementHistory"},
	models.CashFlow:        {"cashflowStatementHistory", "cashflowStatements"},
}

// Client implements interfaces.FinanceProvider on Yahoo Finance
type Client struct {
	baseURL    string
	cookieURL  string
	userAgent  string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter

	mu    sync.Mutex
	crumb string
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the API base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithCookieURL sets the URL that issues the session cookie
func WithCookieURL(cookieURL string) ClientOption {
	return func(c *Client) {
		c.cookieURL = cookieURL
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) {
		if userAgent != "" {
			c.userAgent = userAgent
		}
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

// NewClient creates a new Yahoo Finance client
func NewClient(opts ...ClientOption) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		baseURL:   DefaultBaseURL,
		cookieURL: DefaultCookieURL,
		userAgent: DefaultUserAgent,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Jar:     jar,
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
	return common.ProviderYahoo
}

// APIError represents an API error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Yahoo Finance API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// yahooError is the error object embedded in chart and quoteSummary responses
type yahooError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// errorMessage extracts the description from an error body, falling back to the raw body
func errorMessage(body []byte) string {
	var envelope map[string]struct {
		Error *yahooError `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		for _, section := range envelope {
			if section.Error != nil && section.Error.Description != "" {
				return section.Error.Description
			}
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

// get performs a rate-limited GET request and returns the body of a 200 response
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	c.logger.Debug().Str("url", c.baseURL+path).Msg("Yahoo Finance API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body),
			Endpoint:   path,
		}
	}
	return body, nil
}

// chartResponse is the /v8/finance/chart payload
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol    string `json:"symbol"`
				Currency  string `json:"currency"`
				GMTOffset int64  `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp []int64 `json:"timestamp"`
			Events    struct {
				Dividends map[string]struct {
					Amount float64 `json:"amount"`
					Date   int64   `json:"date"`
				} `json:"dividends"`
				Splits map[string]struct {
					Date        int64   `json:"date"`
					Numerator   float64 `json:"numerator"`
					Denominator float64 `json:"denominator"`
				} `json:"splits"`
			} `json:"events"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *yahooError `json:"error"`
	} `json:"chart"`
}

// historyRange converts yyyy-mm-dd dates to chart period bounds. An empty start
// means the first available bar; end is exclusive.
func historyRange(start, end string) (int64, int64, error) {
	var period1 int64
	if start != "" {
		t, err := time.Parse(dateLayout, start)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid start date %q: %w", start, err)
		}
		period1 = t.Unix()
	}
	t, err := time.Parse(dateLayout, end)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid end date %q: %w", end, err)
	}
	return period1, t.Unix(), nil
}

// GetHistory retrieves auto-adjusted daily bars with dividends and splits joined by date
func (c *Client) GetHistory(ctx context.Context, ticker, start, end string) (*models.PriceSeries, error) {
	period1, period2, err := historyRange(start, end)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("period1", strconv.FormatInt(period1, 10))
	params.Set("period2", strconv.FormatInt(period2, 10))
	params.Set("interval", "1d")
	params.Set("events", "div,splits")
	params.Set("includeAdjustedClose", "true")

	path := "/v8/finance/chart/" + url.PathEscape(ticker)
	body, err := c.get(ctx, path, params)
	if err != nil {
		return nil, err
	}

	var resp chartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.Chart.Error != nil {
		return nil, &APIError{StatusCode: http.StatusOK, Message: resp.Chart.Error.Description, Endpoint: path}
	}

	series := &models.PriceSeries{Ticker: ticker}
	if len(resp.Chart.Result) == 0 {
		return series, nil
	}
	result := resp.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return series, nil
	}
	quote := result.Indicators.Quote[0]
	var adjClose []*float64
	if len(result.Indicators.AdjClose) > 0 {
		adjClose = result.Indicators.AdjClose[0].AdjClose
	}

	day := func(ts int64) time.Time {
		t := time.Unix(ts+result.Meta.GMTOffset, 0).UTC()
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}

	dividends := map[time.Time]float64{}
	for _, d := range result.Events.Dividends {
		dividends[day(d.Date)] += d.Amount
	}
	splits := map[time.Time]float64{}
	for _, s := range result.Events.Splits {
		if s.Denominator != 0 {
			splits[day(s.Date)] = s.Numerator / s.Denominator
		}
	}

	series.Bars = make([]models.PriceBar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		o, h, l, cl := at(quote.Open, i), at(quote.High, i), at(quote.Low, i), at(quote.Close, i)
		if cl == nil {
			continue // holidays and partial rows
		}
		factor := 1.0
		if adj := at(adjClose, i); adj != nil && *cl != 0 {
			factor = *adj / *cl
		}
		date := day(ts)
		bar := models.PriceBar{
			Date:        date,
			Open:        value(o) * factor,
			High:        value(h) * factor,
			Low:         value(l) * factor,
			Close:       *cl * factor,
			Volume:      int64(value(at(quote.Volume, i))),
			Dividends:   dividends[date],
			StockSplits: splits[date],
		}
		series.Bars = append(series.Bars, bar)
	}

	c.logger.Debug().Str("ticker", ticker).Int("bars", len(series.Bars)).Msg("Yahoo history loaded")
	return series, nil
}

func at(values []*float64, i int) *float64 {
	if i < len(values) {
		return values[i]
	}
	return nil
}

func value(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// ensureCrumb performs the cookie and crumb handshake once per client
func (c *Client) ensureCrumb(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.crumb != "" {
		return c.crumb, nil
	}

	// The cookie endpoint answers with an error status but still sets the session cookie.
	if req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cookieURL, nil); err == nil {
		req.Header.Set("User-Agent", c.userAgent)
		if resp, err := c.httpClient.Do(req); err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		} else {
			c.logger.Warn().Err(err).Msg("Yahoo cookie request failed")
		}
	}

	body, err := c.get(ctx, "/v1/test/getcrumb", nil)
	if err != nil {
		return "", fmt.Errorf("crumb handshake: %w", err)
	}
	crumb := strings.TrimSpace(string(body))
	if crumb == "" || strings.ContainsAny(crumb, "<{") {
		return "", &APIError{StatusCode: http.StatusUnauthorized, Message: "empty crumb", Endpoint: "/v1/test/getcrumb"}
	}
	c.crumb = crumb
	c.logger.Debug().Msg("Yahoo crumb acquired")
	return crumb, nil
}

func (c *Client) resetCrumb() {
	c.mu.Lock()
	c.crumb = ""
	c.mu.Unlock()
}

// quoteSummary fetches the named modules, refreshing the crumb once on 401
func (c *Client) quoteSummary(ctx context.Context, ticker string, modules []string) (map[string]json.RawMessage, error) {
	path := "/v10/finance/quoteSummary/" + url.PathEscape(ticker)

	var body []byte
	for attempt := 0; attempt < 2; attempt++ {
		crumb, err := c.ensureCrumb(ctx)
		if err != nil {
			return nil, err
		}
		params := url.Values{}
		params.Set("modules", strings.Join(modules, ","))
		params.Set("crumb", crumb)

		body, err = c.get(ctx, path, params)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized && attempt == 0 {
			c.logger.Debug().Str("ticker", ticker).Msg("Yahoo crumb rejected, refreshing")
			c.resetCrumb()
			continue
		}
		if err != nil {
			return nil, err
		}
		break
	}

	var resp struct {
		QuoteSummary struct {
			Result []map[string]json.RawMessage `json:"result"`
			Error  *yahooError                  `json:"error"`
		} `json:"quoteSummary"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.QuoteSummary.Error != nil {
		return nil, &APIError{StatusCode: http.StatusOK, Message: resp.QuoteSummary.Error.Description, Endpoint: path}
	}
	if len(resp.QuoteSummary.Result) == 0 {
		return nil, &APIError{StatusCode: http.StatusNotFound, Message: "no quoteSummary result", Endpoint: path}
	}
	return resp.QuoteSummary.Result[0], nil
}

// GetInfo retrieves quoteSummary modules flattened into one metadata map
func (c *Client) GetInfo(ctx context.Context, ticker string) (models.Metadata, error) {
	result, err := c.quoteSummary(ctx, ticker, InfoModules)
	if err != nil {
		return nil, err
	}

	info := models.Metadata{}
	for _, module := range InfoModules {
		raw, ok := result[module]
		if !ok {
			continue
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			continue
		}
		for key, rawValue := range fields {
			if key == "maxAge" {
				continue
			}
			if _, exists := info[key]; exists {
				continue
			}
			if v, ok := flatten(rawValue); ok {
				info[key] = v
			}
		}
	}

	c.logger.Debug().Str("ticker", ticker).Int("fields", len(info)).Msg("Yahoo info loaded")
	return info, nil
}

// flatten reduces a quoteSummary value to a scalar: {"raw": x, "fmt": ...} becomes x,
// scalars pass through, other objects and arrays are dropped.
func flatten(raw json.RawMessage) (any, bool) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	switch t := v.(type) {
	case map[string]any:
		if r, ok := t["raw"]; ok {
			switch r.(type) {
			case float64, string, bool, nil:
				return r, true
			}
		}
		return nil, false
	case []any:
		return nil, false
	default:
		return t, true
	}
}

// GetStatement retrieves one annual statement from the quoteSummary history modules
func (c *Client) GetStatement(ctx context.Context, ticker string, kind models.StatementKind) (*models.StatementTable, error) {
	module, ok := statementModules[kind]
	if !ok {
		return nil, fmt.Errorf("unknown statement kind %q", kind)
	}

	result, err := c.quoteSummary(ctx, ticker, []string{module[0]})
	if err != nil {
		return nil, err
	}

	var statements []json.RawMessage
	if raw, ok := result[module[0]]; ok {
		var history map[string]json.RawMessage
		if err := json.Unmarshal(raw, &history); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", module[0], err)
		}
		if list, ok := history[module[1]]; ok {
			if err := json.Unmarshal(list, &statements); err != nil {
				return nil, fmt.Errorf("failed to decode %s: %w", module[1], err)
			}
		}
	}

	table, err := buildStatement(ticker, kind, statements)
	if err != nil {
		return nil, err
	}
	c.logger.Debug().Str("ticker", ticker).Str("kind", string(kind)).Int("periods", len(table.Periods)).Msg("Yahoo statement loaded")
	return table, nil
}

// buildStatement turns the list of period objects into a table with one column
// per period and line items in first-seen order.
func buildStatement(ticker string, kind models.StatementKind, statements []json.RawMessage) (*models.StatementTable, error) {
	table := &models.StatementTable{Ticker: ticker, Kind: kind}
	index := map[string]int{}
	columns := make([]map[string]json.RawMessage, 0, len(statements))

	for _, raw := range statements {
		keys, err := orderedKeys(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode statement: %w", err)
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("failed to decode statement: %w", err)
		}

		var end struct {
			Raw int64 `json:"raw"`
		}
		if err := json.Unmarshal(fields["endDate"], &end); err != nil || end.Raw == 0 {
			continue
		}
		table.Periods = append(table.Periods, time.Unix(end.Raw, 0).UTC())
		columns = append(columns, fields)

		for _, key := range keys {
			if key == "endDate" || key == "maxAge" {
				continue
			}
			if _, seen := index[key]; !seen {
				index[key] = len(table.Rows)
				table.Rows = append(table.Rows, models.StatementRow{Item: key})
			}
		}
	}

	for r := range table.Rows {
		values := make([]any, len(columns))
		for i, fields := range columns {
			if raw, ok := fields[table.Rows[r].Item]; ok {
				if v, ok := flatten(raw); ok {
					values[i] = v
				}
			}
		}
		table.Rows[r].Values = values
	}
	return table, nil
}

// orderedKeys returns the top-level keys of a JSON object in document order
func orderedKeys(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object")
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key")
		}
		keys = append(keys, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}
