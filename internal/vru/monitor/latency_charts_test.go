package monitor

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/banshee-data/validation.report/internal/vru"
	"github.com/banshee-data/validation.report/internal/vru/latency"
)

func seededAnalyzer() *latency.Analyzer {
	a := latency.NewAnalyzer(latency.Config{})
	for i := 0; i < 40; i++ {
		a.Record(vru.LatencySample{ClassLabel: "pedestrian", LatencyMs: 50 + float64(i)})
	}
	for i := 0; i < 10; i++ {
		a.Record(vru.LatencySample{ClassLabel: "cyclist", LatencyMs: 80})
	}
	return a
}

func TestLatencyDebugRendersCharts(t *testing.T) {
	d := NewLatencyDebug(seededAnalyzer())

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/latency", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Errorf("content type = %s, want text/html", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{"Latency Categories", "Per-Class Latency Summary", "pedestrian", "cyclist"} {
		if !strings.Contains(body, want) {
			t.Errorf("rendered page missing %q", want)
		}
	}
}

func TestLatencyDebugClassFilter(t *testing.T) {
	d := NewLatencyDebug(seededAnalyzer())

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/latency?class=cyclist", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/latency?class=unicorn", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown class: status = %d, want 404", rec.Code)
	}
}

func TestLatencyDebugEmptyAnalyzer(t *testing.T) {
	d := NewLatencyDebug(latency.NewAnalyzer(latency.Config{}))

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/latency", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/debug/latency", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", rec.Code)
	}
}
