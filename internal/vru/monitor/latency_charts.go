// Package monitor serves debugging visualisations of the latency analyzer's
// live state. Debug-only endpoints, no auth.
package monitor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/validation.report/internal/vru"
	"github.com/banshee-data/validation.report/internal/vru/latency"
)

// LatencyDebug renders the analyzer's per-class latency distributions and
// adaptive thresholds as an ECharts HTML page.
type LatencyDebug struct {
	analyzer *latency.Analyzer
}

// NewLatencyDebug creates the debug handler over a live analyzer.
func NewLatencyDebug(analyzer *latency.Analyzer) *LatencyDebug {
	return &LatencyDebug{analyzer: analyzer}
}

func (d *LatencyDebug) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// ServeHTTP renders the latency diagnostics page.
// Query params:
//   - class (optional; restrict the page to one class label)
func (d *LatencyDebug) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		d.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	classes := d.analyzer.Classes()
	if filter := r.URL.Query().Get("class"); filter != "" {
		classes = nil
		for _, c := range d.analyzer.Classes() {
			if c == filter {
				classes = []string{c}
			}
		}
		if classes == nil {
			d.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("no latency samples for class %q", filter))
			return
		}
	}
	if len(classes) == 0 {
		d.writeJSONError(w, http.StatusNotFound, "no latency samples recorded yet")
		return
	}

	page := components.NewPage()
	page.SetPageTitle("Detection Latency Diagnostics")
	page.AddCharts(d.categoryChart(classes), d.summaryChart(classes))

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		d.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render charts: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// categoryChart stacks per-class counts of each latency category relative to
// the class's adaptive threshold.
func (d *LatencyDebug) categoryChart(classes []string) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Latency Categories",
			Subtitle: "bucketed against each class's adaptive threshold",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)

	axis := make([]string, len(vru.LatencyCategories))
	for i, cat := range vru.LatencyCategories {
		axis[i] = string(cat)
	}
	bar.SetXAxis(axis)

	for _, class := range classes {
		summary := d.analyzer.Summary(class)
		th := d.analyzer.Threshold(class)

		hist := latency.Histogram(d.analyzer.Latencies(class), th.ComputedThresholdMs)

		data := make([]opts.BarData, len(vru.LatencyCategories))
		for i, cat := range vru.LatencyCategories {
			data[i] = opts.BarData{Value: hist[cat]}
		}
		bar.AddSeries(fmt.Sprintf("%s (n=%d)", class, summary.Count), data)
	}
	return bar
}

// summaryChart plots mean/p95/p99 and the adaptive threshold per class.
func (d *LatencyDebug) summaryChart(classes []string) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Per-Class Latency Summary",
			Subtitle: "milliseconds",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)

	bar.SetXAxis(classes)

	var mean, p95, p99, threshold []opts.BarData
	for _, class := range classes {
		s := d.analyzer.Summary(class)
		mean = append(mean, opts.BarData{Value: s.MeanMs})
		p95 = append(p95, opts.BarData{Value: s.P95Ms})
		p99 = append(p99, opts.BarData{Value: s.P99Ms})
		threshold = append(threshold, opts.BarData{Value: s.ThresholdMs})
	}
	bar.AddSeries("mean", mean)
	bar.AddSeries("p95", p95)
	bar.AddSeries("p99", p99)
	bar.AddSeries("threshold", threshold)
	return bar
}
