package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/yes1688/arkprobe/internal/suite"
)

//go:embed templates/report.html.tmpl
var templateFS embed.FS

var htmlTemplate = template.Must(template.New("report.html.tmpl").Funcs(template.FuncMap{
	"pct":     func(f float64) string { return fmt.Sprintf("%.1f%%", f*100) },
	"ms":      func(d time.Duration) string { return d.Round(time.Millisecond).String() },
	"ints":    joinInts,
	"rfc3339": func(t time.Time) string { return t.Format(time.RFC3339) },
}).ParseFS(templateFS, "templates/report.html.tmpl"))

// renderer is anything go-echarts can render to a writer.
type renderer interface {
	Render(w io.Writer) error
}

func renderToString(c renderer) (string, error) {
	var buf bytes.Buffer
	if err := c.Render(&buf); err != nil {
		return "", err
	}

	return buf.String(), nil
}

type priorityRow struct {
	Priority suite.Priority
	Stats    PriorityStats
}

type htmlView struct {
	*RunReport
	Priorities   []priorityRow
	OutcomeChart string
	LatencyChart string
}

// RenderHTML renders rr as a standalone HTML page with an outcome pie
// chart and a per-case latency bar chart.
func RenderHTML(rr *RunReport) ([]byte, error) {
	outcome, err := renderToString(outcomeChart(rr.Summary))
	if err != nil {
		return nil, fmt.Errorf("report: rendering outcome chart: %w", err)
	}

	latency, err := renderToString(latencyChart(rr.Results))
	if err != nil {
		return nil, fmt.Errorf("report: rendering latency chart: %w", err)
	}

	view := htmlView{RunReport: rr, OutcomeChart: outcome, LatencyChart: latency}

	for _, p := range suite.Priorities {
		if ps, ok := rr.Summary.ByPriority[p]; ok {
			view.Priorities = append(view.Priorities, priorityRow{Priority: p, Stats: ps})
		}
	}

	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("report: executing HTML template: %w", err)
	}

	return buf.Bytes(), nil
}

func outcomeChart(s Summary) *charts.Pie {
	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Outcomes"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithInitializationOpts(opts.Initialization{
			Height: "300px",
			Width:  "420px",
		}),
	)

	pie.AddSeries("outcomes", []opts.PieData{
		{Name: string(StatusPassed), Value: s.Passed},
		{Name: string(StatusFailed), Value: s.Failed},
		{Name: string(StatusSkipped), Value: s.Skipped},
	})

	return pie
}

func latencyChart(results []Outcome) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Latency per case (ms)"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithInitializationOpts(opts.Initialization{
			Height: "300px",
			Width:  "100%",
		}),
	)

	names := make([]string, 0, len(results))
	data := make([]opts.BarData, 0, len(results))

	for _, o := range results {
		if o.Status == StatusSkipped {
			continue
		}

		names = append(names, o.Name)
		data = append(data, opts.BarData{Value: o.Elapsed.Milliseconds()})
	}

	bar.SetXAxis(names).AddSeries("elapsed", data)

	return bar
}
