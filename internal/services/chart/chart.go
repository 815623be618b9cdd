// Package chart renders chart series to PNG
package chart

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/bobmcallan/stockfetch/internal/models"
)

// MinPoints is the shortest series Render can draw.
const MinPoints = 2

// Size of rendered charts in pixels
const (
	Width  = 900
	Height = 400
)

var palette = []drawing.Color{
	drawing.ColorFromHex("2563eb"), // blue-600
	drawing.ColorFromHex("dc2626"), // red-600
	drawing.ColorFromHex("16a34a"), // green-600
	drawing.ColorFromHex("9333ea"), // purple-600
}

// Renderer implements ChartService with go-chart
type Renderer struct{}

// NewRenderer creates a chart renderer
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Render draws every series on one time axis and returns raw PNG bytes.
// Line series are stroked; area series are filled to the axis.
func (r *Renderer) Render(title string, series []models.ChartSeries) ([]byte, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("no series to render")
	}

	area := false
	plotted := make([]chart.Series, 0, len(series))
	for i, s := range series {
		if len(s.Points) < MinPoints {
			return nil, fmt.Errorf("series %q: need at least %d data points, got %d", s.Name, MinPoints, len(s.Points))
		}

		xValues := make([]time.Time, len(s.Points))
		yValues := make([]float64, len(s.Points))
		for j, p := range s.Points {
			xValues[j] = p.Date
			yValues[j] = p.Value
		}

		color := palette[i%len(palette)]
		style := chart.Style{
			StrokeColor: color,
			StrokeWidth: 2,
		}
		if s.Kind == models.SeriesArea {
			area = true
			style.StrokeWidth = 1
			style.FillColor = color.WithAlpha(96)
		}

		plotted = append(plotted, chart.TimeSeries{
			Name:    s.Name,
			Style:   style,
			XValues: xValues,
			YValues: yValues,
		})
	}

	yFormatter := formatValue
	if area {
		yFormatter = formatVolume
	}

	graph := chart.Chart{
		Title:  title,
		Width:  Width,
		Height: Height,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			TickPosition: chart.TickPositionBetweenTicks,
			ValueFormatter: func(v interface{}) string {
				if t, ok := v.(float64); ok {
					return chart.TimeFromFloat64(t).Format("2006-01-02")
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return yFormatter(f)
				}
				return ""
			},
		},
		Series: plotted,
	}

	graph.Elements = []chart.Renderable{
		chart.LegendLeft(&graph),
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}

	return buf.Bytes(), nil
}

func formatValue(f float64) string {
	if math.Abs(f) < 1 {
		return fmt.Sprintf("%.4f", f)
	}
	return fmt.Sprintf("%.2f", f)
}

func formatVolume(f float64) string {
	switch abs := math.Abs(f); {
	case abs >= 1e9:
		return fmt.Sprintf("%.1fB", f/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%.1fM", f/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("%.1fk", f/1e3)
	}
	return fmt.Sprintf("%.0f", f)
}
