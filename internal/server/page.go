package server

import (
	"bytes"
	"errors"
	"html/template"
	"net/http"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/bobmcallan/stockfetch/internal/models"
	"github.com/bobmcallan/stockfetch/internal/services/chart"
	"github.com/bobmcallan/stockfetch/internal/services/dashboard"
)

// pageOption is one entry of a select or radio group.
type pageOption struct {
	Value    string
	Label    string
	Selected bool
}

// pageData holds the template data for the dashboard page.
type pageData struct {
	Title      string
	Intro      string
	Ticker     string
	Start      string
	End        string
	Modes      []pageOption
	Measures   []pageOption
	Statements []pageOption
	Arithmetic bool
	Log        bool
	Error      string
	Body       template.HTML
}

var markdownRenderer = goldmark.New(
	goldmark.WithExtensions(extension.Table),
)

var pageTemplate = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
*{box-sizing:border-box}
body{font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",Roboto,sans-serif;background:#0f1117;color:#e1e4e8;margin:0;display:flex;min-height:100vh}
aside{background:#161b22;border-right:1px solid #30363d;padding:1.5rem;width:260px;flex-shrink:0}
main{padding:1.5rem 2rem;flex:1;max-width:1100px}
h1{font-size:1.5rem;color:#f0f6fc}
p.intro{color:#8b949e}
label{display:block;font-size:.85rem;color:#8b949e;margin:.75rem 0 .25rem}
input[type=text],select{width:100%;padding:.5rem .6rem;background:#0d1117;border:1px solid #30363d;border-radius:6px;color:#e1e4e8}
label.check{display:flex;gap:.4rem;align-items:center;color:#e1e4e8}
button{margin-top:1rem;width:100%;padding:.6rem;border:none;border-radius:6px;background:#238636;color:#fff;cursor:pointer}
table{border-collapse:collapse;margin:.5rem 0 1.5rem}
th,td{border:1px solid #30363d;padding:.3rem .6rem;text-align:right}
th:first-child,td:first-child{text-align:left}
img{max-width:100%;background:#fff;border-radius:6px}
a{color:#58a6ff}
.error{background:#3d1f1f;border:1px solid #6e3630;color:#f85149;padding:.5rem .75rem;border-radius:6px;margin:1rem 0}
</style>
</head>
<body>
<aside>
<form method="GET" action="/">
<label for="mode">Select what to get</label>
<select id="mode" name="mode">{{range .Modes}}<option value="{{.Value}}"{{if .Selected}} selected{{end}}>{{.Label}}</option>{{end}}</select>
<label for="ticker">Insert the ticker:</label>
<input type="text" id="ticker" name="ticker" value="{{.Ticker}}">
<label for="start">Insert the starting date as yyyy-mm-dd:</label>
<input type="text" id="start" name="start" value="{{.Start}}">
<label for="end">Insert the ending date as yyyy-mm-dd:</label>
<input type="text" id="end" name="end" value="{{.End}}">
<label for="measure">Pick the financial measure needed</label>
<select id="measure" name="measure">{{range .Measures}}<option value="{{.Value}}"{{if .Selected}} selected{{end}}>{{.Label}}</option>{{end}}</select>
<label class="check"><input type="checkbox" name="arithmetic" value="on"{{if .Arithmetic}} checked{{end}}> Arithmetic Return</label>
<label class="check"><input type="checkbox" name="log" value="on"{{if .Log}} checked{{end}}> Log Return</label>
<label>Choose the financial document needed</label>
{{range .Statements}}<label class="check"><input type="radio" name="statement" value="{{.Value}}"{{if .Selected}} checked{{end}}> {{.Label}}</label>{{end}}
<button type="submit">Fetch</button>
</form>
</aside>
<main>
<h1>{{.Title}}</h1>
<p class="intro">{{.Intro}}</p>
{{if .Error}}<div class="error">{{.Error}}</div>{{end}}
{{.Body}}
</main>
</body>
</html>`))

// handlePage handles GET / and renders the dashboard as HTML.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		WriteError(w, http.StatusNotFound, "Not found")
		return
	}
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}

	q := r.URL.Query()
	data := pageData{
		Title:  dashboard.AppTitle,
		Intro:  dashboard.AppIntro,
		Ticker: q.Get("ticker"),
		Start:  q.Get("start"),
		End:    q.Get("end"),
	}

	status := http.StatusOK
	req, err := dashboardRequest(r)
	if err != nil {
		status = http.StatusBadRequest
		data.Error = err.Error()
		req.Selection = models.Selection{}.Normalize()
	} else {
		var page *models.Page
		page, err = s.app.DashboardService.Render(r.Context(), req)
		if err != nil {
			status, data.Error = s.pageError(err, req.Ticker)
		} else {
			body, err := s.renderBody(page)
			if err != nil {
				status, data.Error = s.pageError(err, req.Ticker)
			}
			data.Body = body
		}
	}
	fillOptions(&data, req.Selection, q.Get("statement"))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := pageTemplate.Execute(w, data); err != nil {
		s.logger.Error().Err(err).Msg("Dashboard template error")
	}
}

// renderBody converts the page markdown to HTML with chart images and the download link.
func (s *Server) renderBody(page *models.Page) (template.HTML, error) {
	opts := dashboard.MarkdownOptions{
		OmitHeader: true,
		ChartImage: func(series models.ChartSeries) string {
			if len(series.Points) < chart.MinPoints {
				return ""
			}
			return chartURL(page.Query, chartKinds[series.Name])
		},
	}
	if page.Download != nil {
		opts.DownloadURL = csvURL(page.Query)
	}

	var buf bytes.Buffer
	if err := markdownRenderer.Convert([]byte(dashboard.Markdown(page, opts)), &buf); err != nil {
		return "", err
	}
	// raw HTML in the source is omitted unless the renderer is built WithUnsafe
	return template.HTML(buf.String()), nil
}

// pageError maps a render failure to a status and a message shown on the page.
func (s *Server) pageError(err error, ticker string) (int, string) {
	switch {
	case errors.Is(err, models.ErrInvalidSelection):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrFetch):
		return http.StatusBadGateway, "Failed to fetch data for " + ticker
	case errors.Is(err, dashboard.ErrRender):
		return http.StatusUnprocessableEntity, err.Error()
	default:
		s.logger.Error().Err(err).Str("ticker", ticker).Msg("Dashboard page failed")
		return http.StatusInternalServerError, "Internal server error"
	}
}

// fillOptions marks the selected entries of every choice group.
func fillOptions(data *pageData, sel models.Selection, rawStatement string) {
	for _, m := range models.Modes {
		data.Modes = append(data.Modes, pageOption{Value: string(m), Label: m.Label(), Selected: m == sel.Mode})
	}

	measure := sel.Measure
	if measure == "" {
		measure = models.MeasureNone
	}
	for _, m := range models.Measures {
		data.Measures = append(data.Measures, pageOption{Value: string(m), Label: m.Label(), Selected: m == measure})
	}

	statement := sel.Statement
	if statement == "" {
		statement, _ = models.ParseStatementKind(rawStatement)
	}
	if statement == "" {
		statement = models.BalanceSheet
	}
	for _, k := range models.StatementKinds {
		data.Statements = append(data.Statements, pageOption{Value: string(k), Label: k.Label(), Selected: k == statement})
	}

	data.Arithmetic = sel.Arithmetic
	data.Log = sel.Log
}
