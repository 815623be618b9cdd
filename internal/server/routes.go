package server

import (
	"net/http"

	mcpserver "github.com/mark3labs/mcp-go/server"
)

// registerRoutes sets up the page, REST API and MCP routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Page
	mux.HandleFunc("/", s.handlePage)

	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/cache", s.handleCache)
	mux.HandleFunc("/api/shutdown", s.handleShutdown)

	// Dashboard data
	mux.HandleFunc("/api/dashboard", s.handleDashboard)
	mux.HandleFunc("/api/prices/", s.routePrices)
	mux.HandleFunc("/api/charts/", s.routeCharts)
	mux.HandleFunc("/api/export", s.handleExport)

	// MCP over Streamable HTTP
	mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(s.app.MCPServer,
		mcpserver.WithStateLess(true),
	))
}
