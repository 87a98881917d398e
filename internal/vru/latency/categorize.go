package latency

import (
	"github.com/banshee-data/validation.report/internal/vru"
)

// Categorize buckets a latency relative to a threshold. The categories
// partition [0, inf): lower bounds inclusive, upper bounds exclusive.
func Categorize(latencyMs, thresholdMs float64) vru.LatencyCategory {
	if thresholdMs <= 0 {
		return vru.LatencyCritical
	}
	switch r := latencyMs / thresholdMs; {
	case r < 0.3:
		return vru.LatencyExcellent
	case r < 0.6:
		return vru.LatencyGood
	case r < 1.0:
		return vru.LatencyAcceptable
	case r < 1.5:
		return vru.LatencyPoor
	default:
		return vru.LatencyCritical
	}
}

// Histogram buckets a set of latencies against a threshold. Every category is
// present in the result, zero-valued when empty.
func Histogram(latenciesMs []float64, thresholdMs float64) map[vru.LatencyCategory]int {
	h := make(map[vru.LatencyCategory]int, len(vru.LatencyCategories))
	for _, c := range vru.LatencyCategories {
		h[c] = 0
	}
	for _, ms := range latenciesMs {
		h[Categorize(ms, thresholdMs)]++
	}
	return h
}
