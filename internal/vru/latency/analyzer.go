// Package latency maintains per-class bounded latency sample buffers, derives
// adaptive thresholds from recent history and buckets latencies into severity
// categories.
package latency

import (
	"math"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/validation.report/internal/vru"
)

// Default analyzer tuning values.
const (
	DefaultCapacity        = 1000
	DefaultPercentile      = 0.95
	DefaultMinSamples      = 30
	DefaultRecomputeBatch  = 50
	DefaultBaseThresholdMs = 200.0
)

// Config tunes the analyzer. Zero values fall back to the defaults above.
type Config struct {
	Capacity        int     // max samples retained per class (FIFO eviction)
	Percentile      float64 // quantile used for the adaptive threshold
	MinSamples      int     // below this count the base threshold applies (cold start)
	RecomputeBatch  int     // appends between threshold recomputations
	BaseThresholdMs float64 // floor and cold-start threshold

	// Optional per-class base threshold overrides.
	BaseThresholdMsByClass map[string]float64
}

func (c Config) withDefaults() Config {
	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
	}
	if c.Percentile <= 0 || c.Percentile >= 1 {
		c.Percentile = DefaultPercentile
	}
	if c.MinSamples <= 0 {
		c.MinSamples = DefaultMinSamples
	}
	if c.RecomputeBatch <= 0 {
		c.RecomputeBatch = DefaultRecomputeBatch
	}
	if c.BaseThresholdMs <= 0 {
		c.BaseThresholdMs = DefaultBaseThresholdMs
	}
	return c
}

// AdaptiveThreshold is the latency limit in force for one class, recomputed
// from recent history rather than fixed at configuration time.
type AdaptiveThreshold struct {
	ClassLabel          string    `json:"class_label"`
	BaseThresholdMs     float64   `json:"base_threshold_ms"`
	ComputedThresholdMs float64   `json:"computed_threshold_ms"`
	SampleCount         int       `json:"sample_count"`
	ColdStart           bool      `json:"cold_start"` // true while below MinSamples
	LastUpdated         time.Time `json:"last_updated"`
}

// classBuffer is the bounded sample window for one class. Writes are
// serialized by mu; readers take snapshot copies.
type classBuffer struct {
	mu                 sync.Mutex
	samples            []vru.LatencySample
	appendsSinceUpdate int
	threshold          AdaptiveThreshold
}

// Analyzer owns the per-class historical buffers. Safe for concurrent use:
// one writer per class at a time, any number of snapshot readers.
type Analyzer struct {
	cfg Config

	mu      sync.RWMutex
	classes map[string]*classBuffer
}

// NewAnalyzer creates an analyzer with the given configuration.
func NewAnalyzer(cfg Config) *Analyzer {
	return &Analyzer{
		cfg:     cfg.withDefaults(),
		classes: make(map[string]*classBuffer),
	}
}

func (a *Analyzer) baseThreshold(class string) float64 {
	if ms, ok := a.cfg.BaseThresholdMsByClass[class]; ok && ms > 0 {
		return ms
	}
	return a.cfg.BaseThresholdMs
}

func (a *Analyzer) buffer(class string) *classBuffer {
	a.mu.RLock()
	cb := a.classes[class]
	a.mu.RUnlock()
	if cb != nil {
		return cb
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if cb = a.classes[class]; cb == nil {
		cb = &classBuffer{
			threshold: AdaptiveThreshold{
				ClassLabel:          class,
				BaseThresholdMs:     a.baseThreshold(class),
				ComputedThresholdMs: a.baseThreshold(class),
				ColdStart:           true,
				LastUpdated:         time.Now(),
			},
		}
		a.classes[class] = cb
	}
	return cb
}

// Record appends a sample to its class buffer, evicting the oldest entry at
// capacity, and recomputes the adaptive threshold once enough appends have
// accumulated.
func (a *Analyzer) Record(sample vru.LatencySample) {
	cb := a.buffer(sample.ClassLabel)

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.samples = append(cb.samples, sample)
	if len(cb.samples) > a.cfg.Capacity {
		cb.samples = cb.samples[len(cb.samples)-a.cfg.Capacity:]
	}

	cb.appendsSinceUpdate++
	if cb.appendsSinceUpdate >= a.cfg.RecomputeBatch {
		cb.threshold = a.computeThresholdLocked(sample.ClassLabel, cb)
		cb.appendsSinceUpdate = 0
	}
}

// ComputeThreshold recomputes and returns the adaptive threshold for a class
// immediately, regardless of the recompute batch counter.
func (a *Analyzer) ComputeThreshold(class string) AdaptiveThreshold {
	cb := a.buffer(class)
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.threshold = a.computeThresholdLocked(class, cb)
	cb.appendsSinceUpdate = 0
	return cb.threshold
}

// Threshold returns the threshold currently in force without recomputation.
func (a *Analyzer) Threshold(class string) AdaptiveThreshold {
	cb := a.buffer(class)
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.threshold
}

// computeThresholdLocked derives the percentile threshold, floored at the
// base. Below MinSamples the base threshold applies unmodified (cold start).
func (a *Analyzer) computeThresholdLocked(class string, cb *classBuffer) AdaptiveThreshold {
	base := a.baseThreshold(class)
	th := AdaptiveThreshold{
		ClassLabel:          class,
		BaseThresholdMs:     base,
		ComputedThresholdMs: base,
		SampleCount:         len(cb.samples),
		ColdStart:           len(cb.samples) < a.cfg.MinSamples,
		LastUpdated:         time.Now(),
	}
	if th.ColdStart {
		return th
	}

	xs := latenciesOf(cb.samples)
	sort.Float64s(xs)
	p := stat.Quantile(a.cfg.Percentile, stat.LinInterp, xs, nil)
	if p > base {
		th.ComputedThresholdMs = p
	}
	return th
}

// Summary computes descriptive statistics over a snapshot of the class buffer.
// Concurrent appends are not blocked; the snapshot is consistent.
func (a *Analyzer) Summary(class string) vru.LatencySummary {
	cb := a.buffer(class)

	cb.mu.Lock()
	xs := latenciesOf(cb.samples)
	threshold := cb.threshold.ComputedThresholdMs
	cb.mu.Unlock()

	s := vru.LatencySummary{ClassLabel: class, Count: len(xs), ThresholdMs: threshold}
	if len(xs) == 0 {
		return s
	}

	sort.Float64s(xs)
	mean := stat.Mean(xs, nil)
	s.MeanMs = mean
	s.MedianMs = stat.Quantile(0.5, stat.LinInterp, xs, nil)
	// Population standard deviation, consistent with bounded-buffer semantics.
	s.StdDevMs = popStdDev(xs, mean)
	s.MinMs = xs[0]
	s.MaxMs = xs[len(xs)-1]
	s.P95Ms = stat.Quantile(0.95, stat.LinInterp, xs, nil)
	s.P99Ms = stat.Quantile(0.99, stat.LinInterp, xs, nil)
	return s
}

// Latencies returns a snapshot copy of the retained latency values for a
// class, in insertion order.
func (a *Analyzer) Latencies(class string) []float64 {
	cb := a.buffer(class)
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return latenciesOf(cb.samples)
}

// SampleCount returns the current number of retained samples for a class.
func (a *Analyzer) SampleCount(class string) int {
	cb := a.buffer(class)
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return len(cb.samples)
}

// Classes returns the class labels with at least one recorded sample.
func (a *Analyzer) Classes() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.classes))
	for class := range a.classes {
		out = append(out, class)
	}
	sort.Strings(out)
	return out
}

func latenciesOf(samples []vru.LatencySample) []float64 {
	xs := make([]float64, len(samples))
	for i, s := range samples {
		xs[i] = s.LatencyMs
	}
	return xs
}

func popStdDev(xs []float64, mean float64) float64 {
	// stat.MomentAbout divides by N, giving the population variance.
	variance := stat.MomentAbout(2, xs, mean, nil)
	if variance <= 0 {
		return 0
	}
	return math.Sqrt(variance)
}
