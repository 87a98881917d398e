// Package criteria computes detection quality metrics from classified
// alignment pairs and evaluates them against weighted pass/fail thresholds.
package criteria

import (
	"sort"

	"github.com/banshee-data/validation.report/internal/vru"
)

// Counts holds the raw classification tallies for one class or an aggregate.
type Counts struct {
	TP int
	FP int
	FN int

	// Sum of TP detection confidences, for the mean confidence criterion.
	ConfidenceSum float64
}

// Add accumulates other into c.
func (c *Counts) Add(other Counts) {
	c.TP += other.TP
	c.FP += other.FP
	c.FN += other.FN
	c.ConfidenceSum += other.ConfidenceSum
}

// CountPairs tallies a pair set. Detection confidences are resolved through
// the supplied lookup (ID to confidence); a nil map skips confidence
// accumulation.
func CountPairs(pairs []vru.AlignmentPair, detConfidence map[string]float64) Counts {
	var c Counts
	for _, p := range pairs {
		switch p.Classification {
		case vru.TruePositive:
			c.TP++
			if detConfidence != nil {
				c.ConfidenceSum += detConfidence[p.DetectionID]
			}
		case vru.FalsePositive:
			c.FP++
		case vru.FalseNegative:
			c.FN++
		}
	}
	return c
}

// Metrics derives the rate metrics from counts. Every zero denominator yields
// 0, never NaN; all results lie in [0, 1]. A class with no events at all is
// flagged NoData so a zero rate is not mistaken for a measured one; a class
// with detections but zero ground truth is flagged RecallNoData, since its
// recall is undefined rather than a measured zero.
func Metrics(class string, c Counts) vru.ClassMetrics {
	m := vru.ClassMetrics{
		ClassLabel:     class,
		TruePositives:  c.TP,
		FalsePositives: c.FP,
		FalseNegatives: c.FN,
	}
	if c.TP+c.FP+c.FN == 0 {
		m.NoData = true
		return m
	}

	m.Precision = ratio(c.TP, c.TP+c.FP)
	if c.TP+c.FN == 0 {
		m.RecallNoData = true
	} else {
		m.Recall = ratio(c.TP, c.TP+c.FN)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	m.Accuracy = ratio(c.TP, c.TP+c.FP+c.FN)
	m.FalsePositiveRate = ratio(c.FP, c.TP+c.FP)
	if c.TP > 0 {
		m.MeanConfidence = c.ConfidenceSum / float64(c.TP)
	}
	return m
}

// PerClassMetrics computes metrics for every class present in the pair set,
// plus the aggregate over all classes.
func PerClassMetrics(pairs []vru.AlignmentPair, detConfidence map[string]float64) (map[string]vru.ClassMetrics, vru.ClassMetrics) {
	byClass := make(map[string][]vru.AlignmentPair)
	for _, p := range pairs {
		byClass[p.ClassLabel] = append(byClass[p.ClassLabel], p)
	}

	classes := make([]string, 0, len(byClass))
	for class := range byClass {
		classes = append(classes, class)
	}
	sort.Strings(classes)

	perClass := make(map[string]vru.ClassMetrics, len(classes))
	var total Counts
	for _, class := range classes {
		c := CountPairs(byClass[class], detConfidence)
		perClass[class] = Metrics(class, c)
		total.Add(c)
	}
	return perClass, Metrics("overall", total)
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
