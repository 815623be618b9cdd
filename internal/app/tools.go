package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"

	"github.com/bobmcallan/stockfetch/internal/common"
	"github.com/bobmcallan/stockfetch/internal/interfaces"
	"github.com/bobmcallan/stockfetch/internal/models"
	"github.com/bobmcallan/stockfetch/internal/services/dashboard"
)

// defaultMaxRows bounds series tables returned to assistants
const defaultMaxRows = 30

// createGetVersionTool returns the get_version tool definition
func createGetVersionTool() mcp.Tool {
	return mcp.NewTool("get_version",
		mcp.WithDescription("Get the stockfetch server version and data provider. Use this to verify connectivity."),
	)
}

// queryOptions are the parameters shared by every data tool
func queryOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("ticker",
			mcp.Required(),
			mcp.Description("Stock ticker symbol (e.g., 'AAPL', 'MSFT', 'BHP.AX')"),
		),
		mcp.WithString("start",
			mcp.Description("Start date as yyyy-mm-dd. Empty fetches all available history."),
		),
		mcp.WithString("end",
			mcp.Required(),
			mcp.Description("End date as yyyy-mm-dd (exclusive)"),
		),
	}
}

// createGetTimeSeriesTool returns the get_time_series tool definition
func createGetTimeSeriesTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Get the daily time series of a stock: adjusted closing price, arithmetic or logarithmic returns, or trading volume."),
	}, queryOptions()...)
	opts = append(opts,
		mcp.WithString("measure",
			mcp.Enum("price", "return", "volume"),
			mcp.DefaultString("price"),
			mcp.Description("Financial measure to show (default: price)"),
		),
		mcp.WithBoolean("arithmetic",
			mcp.DefaultBool(true),
			mcp.Description("Include the arithmetic return when measure is 'return' (default: true)"),
		),
		mcp.WithBoolean("log",
			mcp.Description("Include the logarithmic return when measure is 'return' (default: false)"),
		),
		mcp.WithNumber("max_rows",
			mcp.DefaultNumber(defaultMaxRows),
			mcp.Description("Keep only the most recent rows of each series (default: 30, 0 for all)"),
		),
	)
	return mcp.NewTool("get_time_series", opts...)
}

// createGetKeyMetricsTool returns the get_key_metrics tool definition
func createGetKeyMetricsTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Get twelve key financial indicators of a company for the last fiscal year (ROE, ROA, debt to equity, EPS, beta, dividend yield and more)."),
	}, queryOptions()...)
	return mcp.NewTool("get_key_metrics", opts...)
}

// createGetFinancialStatementTool returns the get_financial_statement tool definition
func createGetFinancialStatementTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Get a yearly financial statement of a company in millions for the last four fiscal years."),
	}, queryOptions()...)
	opts = append(opts,
		mcp.WithString("statement",
			mcp.Enum(string(models.BalanceSheet), string(models.IncomeStatement), string(models.CashFlow)),
			mcp.DefaultString(string(models.BalanceSheet)),
			mcp.Description("Financial document to return (default: balance_sheet)"),
		),
	)
	return mcp.NewTool("get_financial_statement", opts...)
}

// handleGetVersion implements the get_version tool
func handleGetVersion(provider interfaces.FinanceProvider) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := fmt.Sprintf("Stockfetch MCP Server\nVersion: %s\nBuild: %s\nCommit: %s\nProvider: %s\nStatus: OK",
			common.GetVersion(), common.GetBuild(), common.GetGitCommit(), provider.Name())
		return textResult(result), nil
	}
}

// handleGetTimeSeries implements the get_time_series tool
func handleGetTimeSeries(dashboardService interfaces.DashboardService, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		measure, err := models.ParseMeasure(request.GetString("measure", string(models.MeasurePrice)))
		if err != nil {
			return errorResult("Error: " + err.Error()), nil
		}
		sel := models.Selection{
			Mode:       models.ModeTimeSeries,
			Measure:    measure,
			Arithmetic: request.GetBool("arithmetic", true),
			Log:        request.GetBool("log", false),
		}
		return renderTool(ctx, request, dashboardService, sel, request.GetInt("max_rows", defaultMaxRows), logger)
	}
}

// handleGetKeyMetrics implements the get_key_metrics tool
func handleGetKeyMetrics(dashboardService interfaces.DashboardService, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return renderTool(ctx, request, dashboardService, models.Selection{Mode: models.ModeKeyValues}, 0, logger)
	}
}

// handleGetFinancialStatement implements the get_financial_statement tool
func handleGetFinancialStatement(dashboardService interfaces.DashboardService, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		kind, err := models.ParseStatementKind(request.GetString("statement", string(models.BalanceSheet)))
		if err != nil {
			return errorResult("Error: " + err.Error()), nil
		}
		sel := models.Selection{Mode: models.ModeFinancials, Statement: kind}
		return renderTool(ctx, request, dashboardService, sel, 0, logger)
	}
}

// renderTool validates the shared parameters, renders the page and returns it as markdown
func renderTool(ctx context.Context, request mcp.CallToolRequest, dashboardService interfaces.DashboardService, sel models.Selection, maxRows int, logger arbor.ILogger) (*mcp.CallToolResult, error) {
	ticker, err := request.RequireString("ticker")
	if err != nil || strings.TrimSpace(ticker) == "" {
		return errorResult("Error: ticker parameter is required"), nil
	}
	end, err := request.RequireString("end")
	if err != nil || strings.TrimSpace(end) == "" {
		return errorResult("Error: end parameter is required (yyyy-mm-dd)"), nil
	}

	page, err := dashboardService.Render(ctx, interfaces.DashboardRequest{
		Ticker:    ticker,
		Start:     request.GetString("start", ""),
		End:       end,
		Selection: sel,
	})
	if err != nil {
		logger.Warn().Err(err).Str("ticker", ticker).Str("mode", string(sel.Mode)).Msg("MCP tool render failed")
		return errorResult(toolErrorMessage(err)), nil
	}

	return textResult(dashboard.Markdown(page, dashboard.MarkdownOptions{
		MaxRows:    maxRows,
		OmitHeader: true,
	})), nil
}

// toolErrorMessage describes an error class to the assistant
func toolErrorMessage(err error) string {
	switch {
	case errors.Is(err, models.ErrInvalidSelection):
		return "Error: " + err.Error()
	case errors.Is(err, models.ErrFetch):
		return "Error: failed to fetch data: " + err.Error()
	case errors.Is(err, dashboard.ErrRender):
		return "Error: could not render view: " + err.Error()
	default:
		return "Error: " + err.Error()
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(message),
		},
		IsError: true,
	}
}
