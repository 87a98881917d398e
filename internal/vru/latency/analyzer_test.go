package latency

import (
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/validation.report/internal/vru"
)

func sample(class string, ms float64) vru.LatencySample {
	return vru.LatencySample{
		ClassLabel: class,
		LatencyMs:  ms,
		SessionID:  "s1",
		Timestamp:  time.Now(),
	}
}

func TestColdStartUsesBaseThreshold(t *testing.T) {
	a := NewAnalyzer(Config{BaseThresholdMs: 50, MinSamples: 30})
	for i := 0; i < 10; i++ {
		a.Record(sample("pedestrian", 80))
	}

	th := a.ComputeThreshold("pedestrian")
	if !th.ColdStart {
		t.Error("expected cold start below minimum sample count")
	}
	if th.ComputedThresholdMs != 50 {
		t.Errorf("computed threshold = %f, want base 50", th.ComputedThresholdMs)
	}
}

// Forty 80ms samples exceed the minimum count, so the 95th percentile of the
// buffer (80ms) supersedes the 50ms base.
func TestAdaptiveThresholdAfterWarmup(t *testing.T) {
	a := NewAnalyzer(Config{BaseThresholdMs: 50, MinSamples: 30, Percentile: 0.95})
	for i := 0; i < 40; i++ {
		a.Record(sample("pedestrian", 80))
	}

	th := a.ComputeThreshold("pedestrian")
	if th.ColdStart {
		t.Error("cold start flagged above minimum sample count")
	}
	if math.Abs(th.ComputedThresholdMs-80) > 1e-9 {
		t.Errorf("computed threshold = %f, want 80", th.ComputedThresholdMs)
	}
	if th.BaseThresholdMs != 50 {
		t.Errorf("base threshold = %f, want 50", th.BaseThresholdMs)
	}
}

func TestThresholdFlooredAtBase(t *testing.T) {
	a := NewAnalyzer(Config{BaseThresholdMs: 100, MinSamples: 30})
	for i := 0; i < 40; i++ {
		a.Record(sample("pedestrian", 20)) // well under base
	}

	th := a.ComputeThreshold("pedestrian")
	if th.ComputedThresholdMs != 100 {
		t.Errorf("computed threshold = %f, want base floor 100", th.ComputedThresholdMs)
	}
}

func TestRecomputeTriggeredByBatch(t *testing.T) {
	a := NewAnalyzer(Config{BaseThresholdMs: 50, MinSamples: 30, RecomputeBatch: 50})

	for i := 0; i < 49; i++ {
		a.Record(sample("pedestrian", 80))
	}
	if got := a.Threshold("pedestrian").ComputedThresholdMs; got != 50 {
		t.Errorf("threshold before batch boundary = %f, want untouched base 50", got)
	}

	a.Record(sample("pedestrian", 80)) // 50th append
	if got := a.Threshold("pedestrian").ComputedThresholdMs; math.Abs(got-80) > 1e-9 {
		t.Errorf("threshold after batch boundary = %f, want 80", got)
	}
}

func TestBufferEviction(t *testing.T) {
	a := NewAnalyzer(Config{Capacity: 100})
	for i := 0; i < 250; i++ {
		a.Record(sample("pedestrian", float64(i)))
	}
	if got := a.SampleCount("pedestrian"); got != 100 {
		t.Errorf("buffer size = %d, want capacity 100", got)
	}

	// FIFO: only the newest 100 samples remain.
	s := a.Summary("pedestrian")
	if s.MinMs != 150 {
		t.Errorf("min = %f, want 150 after eviction", s.MinMs)
	}
	if s.MaxMs != 249 {
		t.Errorf("max = %f, want 249", s.MaxMs)
	}
}

func TestSummaryStatistics(t *testing.T) {
	a := NewAnalyzer(Config{})
	for _, ms := range []float64{10, 20, 30, 40, 50} {
		a.Record(sample("cyclist", ms))
	}

	s := a.Summary("cyclist")
	if s.Count != 5 {
		t.Fatalf("count = %d, want 5", s.Count)
	}
	if s.MeanMs != 30 {
		t.Errorf("mean = %f, want 30", s.MeanMs)
	}
	if s.MedianMs != 30 {
		t.Errorf("median = %f, want 30", s.MedianMs)
	}
	// Population std dev of {10..50 step 10} is sqrt(200).
	if math.Abs(s.StdDevMs-math.Sqrt(200)) > 1e-9 {
		t.Errorf("stddev = %f, want %f", s.StdDevMs, math.Sqrt(200))
	}
	if s.MinMs != 10 || s.MaxMs != 50 {
		t.Errorf("min/max = %f/%f, want 10/50", s.MinMs, s.MaxMs)
	}
}

func TestSummaryEmptyClass(t *testing.T) {
	a := NewAnalyzer(Config{})
	s := a.Summary("unknown")
	if s.Count != 0 || s.MeanMs != 0 {
		t.Errorf("empty class summary = %+v, want zeros", s)
	}
}

func TestPerClassBaseOverride(t *testing.T) {
	a := NewAnalyzer(Config{
		BaseThresholdMs:        200,
		BaseThresholdMsByClass: map[string]float64{"cyclist": 120},
	})
	if got := a.ComputeThreshold("cyclist").BaseThresholdMs; got != 120 {
		t.Errorf("cyclist base = %f, want override 120", got)
	}
	if got := a.ComputeThreshold("pedestrian").BaseThresholdMs; got != 200 {
		t.Errorf("pedestrian base = %f, want default 200", got)
	}
}

func TestCategorizePartition(t *testing.T) {
	const threshold = 100.0
	tests := []struct {
		latency float64
		want    vru.LatencyCategory
	}{
		{0, vru.LatencyExcellent},
		{29.999, vru.LatencyExcellent},
		{30, vru.LatencyGood}, // lower bound inclusive
		{59.999, vru.LatencyGood},
		{60, vru.LatencyAcceptable},
		{99.999, vru.LatencyAcceptable},
		{100, vru.LatencyPoor},
		{149.999, vru.LatencyPoor},
		{150, vru.LatencyCritical},
		{100000, vru.LatencyCritical},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%.3fms", tt.latency), func(t *testing.T) {
			if got := Categorize(tt.latency, threshold); got != tt.want {
				t.Errorf("Categorize(%f, %f) = %s, want %s", tt.latency, threshold, got, tt.want)
			}
		})
	}
}

func TestHistogramCoversAllCategories(t *testing.T) {
	h := Histogram([]float64{10, 40, 70, 120, 200}, 100)
	if len(h) != len(vru.LatencyCategories) {
		t.Fatalf("histogram has %d buckets, want %d", len(h), len(vru.LatencyCategories))
	}
	total := 0
	for _, n := range h {
		total += n
	}
	if total != 5 {
		t.Errorf("histogram total = %d, want 5", total)
	}
	for _, c := range vru.LatencyCategories {
		if h[c] != 1 {
			t.Errorf("bucket %s = %d, want 1", c, h[c])
		}
	}
}

// Concurrent writers on one class and snapshot readers on the same class must
// not race; summaries always see a consistent buffer.
func TestConcurrentRecordAndSummary(t *testing.T) {
	a := NewAnalyzer(Config{Capacity: 500})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			a.Record(sample("pedestrian", float64(i%200)))
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				s := a.Summary("pedestrian")
				if s.Count > 500 {
					t.Errorf("snapshot count %d exceeds capacity", s.Count)
					return
				}
			}
		}()
	}
	wg.Wait()
}
