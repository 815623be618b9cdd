// Package app wires configuration, the finance provider, the services and
// the MCP server into one App shared by the HTTP server and the CLI.
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"

	"github.com/bobmcallan/stockfetch/internal/clients/eodhd"
	"github.com/bobmcallan/stockfetch/internal/clients/yahoo"
	"github.com/bobmcallan/stockfetch/internal/common"
	"github.com/bobmcallan/stockfetch/internal/interfaces"
	"github.com/bobmcallan/stockfetch/internal/services/chart"
	"github.com/bobmcallan/stockfetch/internal/services/dashboard"
	"github.com/bobmcallan/stockfetch/internal/services/export"
	"github.com/bobmcallan/stockfetch/internal/services/fetch"
)

// App holds all initialized services, the provider client and the MCP server.
// It is the shared core used by cmd/stockfetch-server and cmd/stockfetch.
type App struct {
	Config           *common.Config
	Logger           arbor.ILogger
	Provider         interfaces.FinanceProvider
	FetchService     interfaces.FetchService
	DashboardService interfaces.DashboardService
	ChartService     interfaces.ChartService
	ExportService    interfaces.ExportService
	MCPServer        *server.MCPServer
	StartupTime      time.Time

	sweeper *Sweeper
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// ResolveConfigPath picks the config file: the given path, STOCKFETCH_CONFIG,
// stockfetch.toml next to the binary, then config/stockfetch.toml.
func ResolveConfigPath(configPath string) string {
	if configPath == "" {
		configPath = os.Getenv("STOCKFETCH_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(getBinaryDir(), "stockfetch.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/stockfetch.toml" // fallback for development
		}
	}
	return configPath
}

// NewApp loads configuration and initializes the provider, services and MCP server.
// configPath may be empty, in which case ResolveConfigPath applies.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	// Load version from .version file (fallback if ldflags not set)
	common.LoadVersionFromFile()

	config, err := common.LoadConfig(ResolveConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if config.Logging.FilePath != "" && !filepath.IsAbs(config.Logging.FilePath) {
		config.Logging.FilePath = filepath.Join(getBinaryDir(), config.Logging.FilePath)
	}

	logger := common.NewLogger(config.Logging)

	provider, err := NewProvider(config, logger)
	if err != nil {
		return nil, err
	}

	a := New(config, logger, provider)
	a.StartupTime = startupStart

	logger.Info().
		Str("provider", provider.Name()).
		Dur("startup", time.Since(startupStart)).
		Msg("App initialized")

	return a, nil
}

// NewProvider builds the finance provider named in the config
func NewProvider(config *common.Config, logger arbor.ILogger) (interfaces.FinanceProvider, error) {
	switch config.Provider.Name {
	case common.ProviderYahoo:
		c := config.Clients.Yahoo
		return yahoo.NewClient(
			yahoo.WithBaseURL(c.BaseURL),
			yahoo.WithCookieURL(c.CookieURL),
			yahoo.WithUserAgent(c.UserAgent),
			yahoo.WithLogger(logger),
			yahoo.WithRateLimit(c.RateLimit),
			yahoo.WithTimeout(c.GetTimeout()),
		), nil
	case common.ProviderEODHD:
		c := config.Clients.EODHD
		if c.APIKey == "" {
			return nil, fmt.Errorf("EODHD API key not configured")
		}
		return eodhd.NewClient(c.APIKey,
			eodhd.WithBaseURL(c.BaseURL),
			eodhd.WithLogger(logger),
			eodhd.WithRateLimit(c.RateLimit),
			eodhd.WithTimeout(c.GetTimeout()),
		), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", config.Provider.Name)
	}
}

// New wires the services over an existing provider
func New(config *common.Config, logger arbor.ILogger, provider interfaces.FinanceProvider) *App {
	fetchService := fetch.NewService(provider, config.Cache, logger)

	mcpServer := server.NewMCPServer(
		"stockfetch",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	a := &App{
		Config:           config,
		Logger:           logger,
		Provider:         provider,
		FetchService:     fetchService,
		DashboardService: dashboard.NewService(fetchService, logger),
		ChartService:     chart.NewRenderer(),
		ExportService:    export.NewService(fetchService, config.Export.Dir, logger),
		MCPServer:        mcpServer,
		StartupTime:      time.Now(),
	}

	a.registerTools()
	return a
}

// StartSweeper schedules the cache sweep when entries can expire
func (a *App) StartSweeper() error {
	sweeper := NewSweeper(a.FetchService, a.Logger)
	started, err := sweeper.Start(a.Config.Cache.SweepSchedule, a.Config.Cache.GetTTL() > 0)
	if err != nil {
		return fmt.Errorf("invalid cache.sweep_schedule %q: %w", a.Config.Cache.SweepSchedule, err)
	}
	if started {
		a.sweeper = sweeper
	}
	return nil
}

// Close stops background work
func (a *App) Close() {
	if a.sweeper != nil {
		a.sweeper.Stop()
		a.sweeper = nil
	}
}

// registerTools registers all MCP tools on the App's MCPServer.
func (a *App) registerTools() {
	s := a.MCPServer

	s.AddTool(createGetVersionTool(), handleGetVersion(a.Provider))
	s.AddTool(createGetTimeSeriesTool(), handleGetTimeSeries(a.DashboardService, a.Logger))
	s.AddTool(createGetKeyMetricsTool(), handleGetKeyMetrics(a.DashboardService, a.Logger))
	s.AddTool(createGetFinancialStatementTool(), handleGetFinancialStatement(a.DashboardService, a.Logger))
}
