package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"

	"github.com/bobmcallan/stockfetch/internal/app"
	"github.com/bobmcallan/stockfetch/internal/common"
	"github.com/bobmcallan/stockfetch/internal/interfaces"
	"github.com/bobmcallan/stockfetch/internal/models"
	"github.com/bobmcallan/stockfetch/internal/services/dashboard"
)

// Commands are the data views, one per dashboard mode.
var Commands = []subcommands.Command{
	&timeseriesCmd{},
	&metricsCmd{},
	&statementCmd{},
}

// errUsage marks flag problems that should exit with a usage error.
var errUsage = errors.New("usage")

// queryFlags are the inputs shared by every data command.
type queryFlags struct {
	ticker   string
	start    string
	end      string
	config   string
	provider string
	verbose  bool
	raw      bool
}

func (q *queryFlags) register(f *flag.FlagSet) {
	f.StringVar(&q.ticker, "ticker", "", "Ticker of the stock to fetch (e.g. AAPL)")
	f.StringVar(&q.start, "start", "", "Start date as yyyy-mm-dd (empty for all history)")
	f.StringVar(&q.end, "end", "", "End date as yyyy-mm-dd (exclusive, required)")
	f.StringVar(&q.config, "config", "", "Path to stockfetch.toml")
	f.StringVar(&q.provider, "provider", "", "Data provider override (yahoo, eodhd)")
	f.BoolVar(&q.verbose, "v", false, "Log provider calls")
	f.BoolVar(&q.raw, "raw", false, "Print plain markdown instead of styled output")
}

// request validates the inputs into a dashboard request for a selection.
func (q *queryFlags) request(sel models.Selection) (interfaces.DashboardRequest, error) {
	query, ready := dashboard.Validate(q.ticker, q.start, q.end)
	if query.Ticker == "" {
		return interfaces.DashboardRequest{}, fmt.Errorf("%w: -ticker is required", errUsage)
	}
	if !ready {
		return interfaces.DashboardRequest{}, fmt.Errorf("%w: -end is required (yyyy-mm-dd)", errUsage)
	}
	return interfaces.DashboardRequest{Ticker: query.Ticker, Start: query.Start, End: query.End, Selection: sel}, nil
}

// newApp builds the App quietly: logs go to the console at warn unless -v is set.
func (q *queryFlags) newApp() (*app.App, error) {
	config, err := common.LoadConfig(app.ResolveConfigPath(q.config))
	if err != nil {
		return nil, err
	}
	if q.provider != "" {
		config.Provider.Name = strings.ToLower(q.provider)
		if err := config.Validate(); err != nil {
			return nil, err
		}
	}

	config.Logging.Outputs = []string{"console"}
	config.Logging.Level = "warn"
	if q.verbose {
		config.Logging.Level = "debug"
	}
	logger := common.NewLogger(config.Logging)

	provider, err := app.NewProvider(config, logger)
	if err != nil {
		return nil, err
	}
	return app.New(config, logger, provider), nil
}

// run renders one page and prints it.
func (q *queryFlags) run(ctx context.Context, sel models.Selection, maxRows int) subcommands.ExitStatus {
	req, err := q.request(sel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	a, err := q.newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	page, err := a.DashboardService.Render(ctx, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", describeError(err))
		return subcommands.ExitFailure
	}

	md := dashboard.Markdown(page, dashboard.MarkdownOptions{MaxRows: maxRows})
	printMarkdown(os.Stdout, md, q.raw)
	return subcommands.ExitSuccess
}

// describeError prefixes an error with its class.
func describeError(err error) string {
	switch {
	case errors.Is(err, models.ErrInvalidSelection):
		return err.Error()
	case errors.Is(err, models.ErrFetch):
		return "failed to fetch data: " + err.Error()
	case errors.Is(err, dashboard.ErrRender):
		return "could not render view: " + err.Error()
	}
	return err.Error()
}

// --- timeseries ---

type timeseriesCmd struct {
	query      queryFlags
	measure    string
	arithmetic bool
	log        bool
	rows       int
}

func (*timeseriesCmd) Name() string     { return "timeseries" }
func (*timeseriesCmd) Synopsis() string { return "show adjusted price, returns or volume of a stock" }
func (*timeseriesCmd) Usage() string {
	return `stockfetch timeseries -ticker <ticker> -end <yyyy-mm-dd> [-start <yyyy-mm-dd>] [-measure price|return|volume] [-arithmetic] [-log]

  Displays the daily time series of a stock. The return measure shows the
  arithmetic and/or logarithmic return selected by the flags.
`
}

func (c *timeseriesCmd) SetFlags(f *flag.FlagSet) {
	c.query.register(f)
	f.StringVar(&c.measure, "measure", "price", "Financial measure (-, price, return, volume)")
	f.BoolVar(&c.arithmetic, "arithmetic", true, "Show the arithmetic return with -measure return")
	f.BoolVar(&c.log, "log", false, "Show the logarithmic return with -measure return")
	f.IntVar(&c.rows, "rows", 30, "Show only the last n rows of each series (0 for all)")
}

func (c *timeseriesCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	measure, err := models.ParseMeasure(c.measure)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	sel := models.Selection{Mode: models.ModeTimeSeries, Measure: measure, Arithmetic: c.arithmetic, Log: c.log}
	return c.query.run(ctx, sel, c.rows)
}

// --- metrics ---

type metricsCmd struct {
	query queryFlags
}

func (*metricsCmd) Name() string     { return "metrics" }
func (*metricsCmd) Synopsis() string { return "show key financial indicators of a company" }
func (*metricsCmd) Usage() string {
	return `stockfetch metrics -ticker <ticker> -end <yyyy-mm-dd> [-start <yyyy-mm-dd>]

  Displays twelve key indicators referring to the last fiscal year.
`
}

func (c *metricsCmd) SetFlags(f *flag.FlagSet) {
	c.query.register(f)
}

func (c *metricsCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	return c.query.run(ctx, models.Selection{Mode: models.ModeKeyValues}, 0)
}

// --- statement ---

type statementCmd struct {
	query queryFlags
	kind  string
}

func (*statementCmd) Name() string     { return "statement" }
func (*statementCmd) Synopsis() string { return "show a yearly financial statement in millions" }
func (*statementCmd) Usage() string {
	return `stockfetch statement -ticker <ticker> -end <yyyy-mm-dd> [-kind balance_sheet|income_statement|cash_flow]

  Displays the balance sheet, income statement or cash flow statement for the
  last four fiscal years, in millions.
`
}

func (c *statementCmd) SetFlags(f *flag.FlagSet) {
	c.query.register(f)
	f.StringVar(&c.kind, "kind", string(models.BalanceSheet), "Financial document (balance_sheet, income_statement, cash_flow)")
}

func (c *statementCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	kind, err := models.ParseStatementKind(c.kind)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	return c.query.run(ctx, models.Selection{Mode: models.ModeFinancials, Statement: kind}, 0)
}

// --- export ---

type exportCmd struct {
	query queryFlags
	dir   string
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "write the price table to {dir}/{ticker}_data.csv" }
func (*exportCmd) Usage() string {
	return `stockfetch export -ticker <ticker> -end <yyyy-mm-dd> [-start <yyyy-mm-dd>] [-dir <dir>]

  Writes the raw daily price table as CSV. An existing file is overwritten.
`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	c.query.register(f)
	f.StringVar(&c.dir, "dir", "", "Output directory (defaults to [export] dir, then the current directory)")
}

func (c *exportCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	req, err := c.query.request(models.Selection{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	a, err := c.query.newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	query := models.Query{Ticker: req.Ticker, Start: req.Start, End: req.End}
	path, err := a.ExportService.Export(ctx, query, c.dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", describeError(err))
		return subcommands.ExitFailure
	}

	fmt.Println(path)
	return subcommands.ExitSuccess
}

// --- version ---

type versionCmd struct{}

func (*versionCmd) Name() string             { return "version" }
func (*versionCmd) Synopsis() string         { return "print version information" }
func (*versionCmd) Usage() string            { return "stockfetch version\n" }
func (*versionCmd) SetFlags(f *flag.FlagSet) {}

func (*versionCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	common.LoadVersionFromFile()
	fmt.Printf("stockfetch %s\n", common.GetFullVersion())
	return subcommands.ExitSuccess
}
