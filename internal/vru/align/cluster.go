package align

import (
	"github.com/banshee-data/validation.report/internal/vru"
)

// cluster groups consecutive same-class detections that fall within the
// cluster window of the cluster's first member. Bursts of duplicate
// detections for one physical event collapse to a single representative.
type cluster struct {
	repIdx  int   // highest-confidence member (ties: earliest)
	members []int // detection indices, ascending timestamp
}

// clustering applies nearest-neighbor semantics between ground truth and
// cluster representatives. Matching consumes only the representative; the
// remaining members stay unconsumed so every detection is still classified
// exactly once (burst duplicates surface as false positives).
func clustering(gt []vru.GroundTruthObject, det []vru.DetectionEvent, p Params) []match {
	clusters := buildClusters(det, p.ClusterWindowMs)

	reps := make([]int, len(clusters))
	for c, cl := range clusters {
		reps[c] = cl.repIdx
	}

	consumed := make([]bool, len(clusters))
	var matches []match

	for i, g := range gt {
		best := -1
		for c := range clusters {
			if consumed[c] {
				continue
			}
			d := det[reps[c]]
			if !candidateOK(g, d, p) {
				continue
			}
			if absDeltaMs(g, d) > p.ToleranceMs {
				continue
			}
			if best < 0 || nearerDetection(g, d, det[reps[best]]) {
				best = c
			}
		}
		if best >= 0 {
			consumed[best] = true
			matches = append(matches, match{
				gtIdx:  i,
				detIdx: reps[best],
				score:  absDeltaMs(g, det[reps[best]]),
				method: MethodClustering,
			})
		}
	}
	return matches
}

// buildClusters walks the timestamp-ordered detections once, starting a new
// cluster whenever the class changes or the window from the cluster head is
// exceeded.
func buildClusters(det []vru.DetectionEvent, windowMs float64) []cluster {
	var clusters []cluster
	for j := 0; j < len(det); j++ {
		start := j
		head := det[start]
		members := []int{start}
		for j+1 < len(det) &&
			det[j+1].ClassLabel == head.ClassLabel &&
			(det[j+1].Timestamp-head.Timestamp)*1000.0 <= windowMs {
			j++
			members = append(members, j)
		}

		rep := start
		for _, m := range members[1:] {
			if det[m].Confidence > det[rep].Confidence {
				rep = m
			}
		}
		clusters = append(clusters, cluster{repIdx: rep, members: members})
	}
	return clusters
}
