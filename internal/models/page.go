package models

// PageState tells whether a page carries rendered content.
type PageState string

const (
	PageAwaitingInput PageState = "awaiting_input"
	PageReady         PageState = "ready"
)

// Download describes the CSV artifact offered with the time series view.
type Download struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	URL         string `json:"url,omitempty"`
}

// Page is the result of one render pass.
type Page struct {
	State     PageState      `json:"state"`
	Query     Query          `json:"query"`
	Selection Selection      `json:"selection"`
	Heading   string         `json:"heading,omitempty"`
	Download  *Download      `json:"download,omitempty"`
	Charts    []ChartSeries  `json:"charts,omitempty"`
	Metrics   *MetricsGrid   `json:"metrics,omitempty"`
	Statement *StatementView `json:"statement,omitempty"`
}
