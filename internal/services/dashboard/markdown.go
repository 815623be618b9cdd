package dashboard

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bobmcallan/stockfetch/internal/common"
	"github.com/bobmcallan/stockfetch/internal/models"
)

// Page header text
const (
	AppTitle = "STOCK DATA FETCH APP"
	AppIntro = "The aim of this app is, after giving the ticker, to fetch the data from " +
		"Yahoo Finance and doing some plots and summary"
	AwaitingInputText = "Insert the ticker and the starting and ending dates as yyyy-mm-dd to fetch data."
)

// MarkdownOptions controls surface-specific parts of the markdown
type MarkdownOptions struct {
	// ChartImage returns an image URL for a chart; charts render as tables when
	// nil or when it returns ""
	ChartImage func(models.ChartSeries) string
	// DownloadURL is the link of the CSV download; the file name is shown when empty
	DownloadURL string
	// MaxRows keeps the last n rows of each series table; 0 keeps all
	MaxRows int
	// OmitHeader drops the app title and intro
	OmitHeader bool
}

// Markdown renders a page for the terminal, the MCP tools and the HTML page
func Markdown(page *models.Page, opts MarkdownOptions) string {
	var sb strings.Builder

	if !opts.OmitHeader {
		sb.WriteString("# " + AppTitle + "\n\n")
		sb.WriteString(AppIntro + "\n\n")
	}

	if page.State == models.PageAwaitingInput {
		sb.WriteString("_" + AwaitingInputText + "_\n")
		return sb.String()
	}

	if page.Heading != "" {
		sb.WriteString("## " + page.Heading + "\n\n")
	}
	if page.Query.Ticker != "" {
		start := page.Query.Start
		if start == "" {
			start = "first available"
		}
		sb.WriteString(fmt.Sprintf("**Period:** %s to %s\n\n", start, page.Query.End))
	}

	if page.Download != nil {
		if opts.DownloadURL != "" {
			sb.WriteString(fmt.Sprintf("[Download data](%s) (`%s`)\n\n", opts.DownloadURL, page.Download.FileName))
		} else {
			sb.WriteString(fmt.Sprintf("Download data: `%s`\n\n", page.Download.FileName))
		}
	}

	for _, chart := range page.Charts {
		writeChart(&sb, chart, opts)
	}
	if page.Metrics != nil {
		writeMetrics(&sb, page.Metrics)
	}
	if page.Statement != nil {
		writeStatement(&sb, page.Statement)
	}

	return sb.String()
}

func writeChart(sb *strings.Builder, chart models.ChartSeries, opts MarkdownOptions) {
	if chart.Title != "" {
		sb.WriteString("### " + chart.Title + "\n\n")
	}
	if opts.ChartImage != nil {
		if src := opts.ChartImage(chart); src != "" {
			sb.WriteString(fmt.Sprintf("![%s](%s)\n\n", chart.Name, src))
			return
		}
	}

	points := chart.Points
	if opts.MaxRows > 0 && len(points) > opts.MaxRows {
		sb.WriteString(fmt.Sprintf("_Showing the last %d of %d points._\n\n", opts.MaxRows, len(points)))
		points = points[len(points)-opts.MaxRows:]
	}

	sb.WriteString("| Date | " + chart.Name + " |\n")
	sb.WriteString("|------|------|\n")
	for _, p := range points {
		value := common.FormatPlain(p.Value)
		if chart.Kind == models.SeriesArea {
			value = strconv.FormatFloat(p.Value, 'f', 0, 64)
		}
		sb.WriteString(fmt.Sprintf("| %s | %s |\n", p.Date.Format("2006-01-02"), value))
	}
	sb.WriteString("\n")
}

func writeMetrics(sb *strings.Builder, grid *models.MetricsGrid) {
	sb.WriteString("### " + grid.Title + "\n\n")
	for _, row := range grid.Rows {
		labels := make([]string, len(row))
		values := make([]string, len(row))
		seps := make([]string, len(row))
		for i, tile := range row {
			labels[i] = tile.Label
			values[i] = tile.Value
			seps[i] = "------"
		}
		sb.WriteString("| " + strings.Join(labels, " | ") + " |\n")
		sb.WriteString("|" + strings.Join(seps, "|") + "|\n")
		sb.WriteString("| " + strings.Join(values, " | ") + " |\n\n")
	}
}

func writeStatement(sb *strings.Builder, view *models.StatementView) {
	sb.WriteString("### " + view.Title + "\n\n")
	if len(view.Rows) == 0 {
		sb.WriteString("_No statement data._\n\n")
		return
	}

	header := []string{"Item"}
	seps := []string{"------"}
	for _, year := range view.Years {
		header = append(header, strconv.Itoa(year))
		seps = append(seps, "------:")
	}
	sb.WriteString("| " + strings.Join(header, " | ") + " |\n")
	sb.WriteString("|" + strings.Join(seps, "|") + "|\n")
	for _, row := range view.Rows {
		cells := []string{row.Item}
		for _, v := range row.Values {
			if v == nil {
				cells = append(cells, "")
				continue
			}
			cells = append(cells, common.FormatPlain(*v))
		}
		sb.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	sb.WriteString("\n")
}
