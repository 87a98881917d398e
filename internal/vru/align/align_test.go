package align

import (
	"errors"
	"testing"

	"github.com/banshee-data/validation.report/internal/vru"
)

func gtObj(id string, t float64, label string) vru.GroundTruthObject {
	return vru.GroundTruthObject{ID: id, Timestamp: t, ClassLabel: label, Confidence: 1.0}
}

func detEvt(id string, t float64, label string, conf float64) vru.DetectionEvent {
	return vru.DetectionEvent{ID: id, Timestamp: t, ClassLabel: label, Confidence: conf}
}

func params(m Method, tolMs float64) Params {
	return Params{ToleranceMs: tolMs, Method: m, StrictClassMatching: true}
}

func countByClassification(pairs []vru.AlignmentPair) (tp, fp, fn int) {
	for _, p := range pairs {
		switch p.Classification {
		case vru.TruePositive:
			tp++
		case vru.FalsePositive:
			fp++
		case vru.FalseNegative:
			fn++
		}
	}
	return
}

func TestNearestNeighborSingleMatch(t *testing.T) {
	gt := []vru.GroundTruthObject{gtObj("g1", 1.0, "pedestrian")}
	det := []vru.DetectionEvent{detEvt("d1", 1.05, "pedestrian", 0.9)}

	pairs, err := Align(gt, det, params(MethodNearestNeighbor, 100))
	if err != nil {
		t.Fatalf("Align returned error: %v", err)
	}
	tp, fp, fn := countByClassification(pairs)
	if tp != 1 || fp != 0 || fn != 0 {
		t.Fatalf("got tp=%d fp=%d fn=%d, want 1/0/0", tp, fp, fn)
	}
	if pairs[0].GroundTruthID != "g1" || pairs[0].DetectionID != "d1" {
		t.Errorf("unexpected pair ids: %+v", pairs[0])
	}
	if got := pairs[0].TimeDeltaMs; got < 49.9 || got > 50.1 {
		t.Errorf("time delta = %f ms, want ~50", got)
	}
}

func TestEmptyDetectionsAllFalseNegative(t *testing.T) {
	gt := []vru.GroundTruthObject{gtObj("g1", 1.0, "cyclist")}

	pairs, err := Align(gt, nil, params(MethodNearestNeighbor, 100))
	if err != nil {
		t.Fatalf("Align returned error: %v", err)
	}
	tp, fp, fn := countByClassification(pairs)
	if tp != 0 || fp != 0 || fn != 1 {
		t.Fatalf("got tp=%d fp=%d fn=%d, want 0/0/1", tp, fp, fn)
	}
}

func TestEmptyGroundTruthAllFalsePositive(t *testing.T) {
	det := []vru.DetectionEvent{detEvt("d1", 2.0, "pedestrian", 0.8)}

	pairs, err := Align(nil, det, params(MethodNearestNeighbor, 100))
	if err != nil {
		t.Fatalf("Align returned error: %v", err)
	}
	tp, fp, fn := countByClassification(pairs)
	if tp != 0 || fp != 1 || fn != 0 {
		t.Fatalf("got tp=%d fp=%d fn=%d, want 0/1/0", tp, fp, fn)
	}
}

func TestInvalidTolerance(t *testing.T) {
	_, err := Align(nil, nil, params(MethodNearestNeighbor, 0))
	var cfgErr *vru.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestUnknownMethod(t *testing.T) {
	_, err := Align(nil, nil, params(Method("bogus"), 100))
	var cfgErr *vru.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

// Conservation: TP+FN == len(gt) and TP+FP == len(det), no id appears in two
// TP pairs.
func TestClassificationConservation(t *testing.T) {
	gt := []vru.GroundTruthObject{
		gtObj("g1", 1.0, "pedestrian"),
		gtObj("g2", 1.2, "pedestrian"),
		gtObj("g3", 2.0, "cyclist"),
		gtObj("g4", 5.0, "pedestrian"),
	}
	det := []vru.DetectionEvent{
		detEvt("d1", 1.04, "pedestrian", 0.8),
		detEvt("d2", 1.21, "pedestrian", 0.9),
		detEvt("d3", 3.0, "cyclist", 0.7),
		detEvt("d4", 9.0, "pedestrian", 0.6),
	}

	for _, m := range []Method{MethodNearestNeighbor, MethodWeightedDistance, MethodInterpolation, MethodClustering, MethodAdaptive} {
		t.Run(string(m), func(t *testing.T) {
			pairs, err := Align(gt, det, params(m, 100))
			if err != nil {
				t.Fatalf("Align: %v", err)
			}
			tp, fp, fn := countByClassification(pairs)
			if tp+fn != len(gt) {
				t.Errorf("TP+FN = %d, want %d", tp+fn, len(gt))
			}
			if tp+fp != len(det) {
				t.Errorf("TP+FP = %d, want %d", tp+fp, len(det))
			}

			seenGT := map[string]bool{}
			seenDet := map[string]bool{}
			for _, p := range pairs {
				if p.Classification != vru.TruePositive {
					continue
				}
				if seenGT[p.GroundTruthID] {
					t.Errorf("ground truth %s matched twice", p.GroundTruthID)
				}
				if seenDet[p.DetectionID] {
					t.Errorf("detection %s matched twice", p.DetectionID)
				}
				seenGT[p.GroundTruthID] = true
				seenDet[p.DetectionID] = true
			}
		})
	}
}

func TestNearestNeighborTieBreaks(t *testing.T) {
	gt := []vru.GroundTruthObject{gtObj("g1", 1.0, "pedestrian")}

	tests := []struct {
		name string
		det  []vru.DetectionEvent
		want string
	}{
		{
			name: "equidistant prefers higher confidence",
			det: []vru.DetectionEvent{
				detEvt("early", 0.95, "pedestrian", 0.6),
				detEvt("late", 1.05, "pedestrian", 0.9),
			},
			want: "late",
		},
		{
			name: "equidistant equal confidence prefers earlier",
			det: []vru.DetectionEvent{
				detEvt("early", 0.95, "pedestrian", 0.8),
				detEvt("late", 1.05, "pedestrian", 0.8),
			},
			want: "early",
		},
		{
			name: "closer wins regardless of confidence",
			det: []vru.DetectionEvent{
				detEvt("closer", 1.01, "pedestrian", 0.5),
				detEvt("farther", 1.05, "pedestrian", 0.99),
			},
			want: "closer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pairs, err := Align(gt, tt.det, params(MethodNearestNeighbor, 100))
			if err != nil {
				t.Fatalf("Align: %v", err)
			}
			for _, p := range pairs {
				if p.Classification == vru.TruePositive && p.DetectionID != tt.want {
					t.Errorf("matched %s, want %s", p.DetectionID, tt.want)
				}
			}
		})
	}
}

func TestNearestNeighborConsumption(t *testing.T) {
	// One detection between two ground-truth objects: the first (timestamp
	// order) consumes it, the second becomes FN.
	gt := []vru.GroundTruthObject{
		gtObj("g1", 1.00, "pedestrian"),
		gtObj("g2", 1.06, "pedestrian"),
	}
	det := []vru.DetectionEvent{detEvt("d1", 1.03, "pedestrian", 0.9)}

	pairs, err := Align(gt, det, params(MethodNearestNeighbor, 100))
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	for _, p := range pairs {
		switch {
		case p.GroundTruthID == "g1" && p.Classification != vru.TruePositive:
			t.Errorf("g1 should be TP, got %s", p.Classification)
		case p.GroundTruthID == "g2" && p.Classification != vru.FalseNegative:
			t.Errorf("g2 should be FN, got %s", p.Classification)
		}
	}
}

func TestStrictClassMatching(t *testing.T) {
	gt := []vru.GroundTruthObject{gtObj("g1", 1.0, "pedestrian")}
	det := []vru.DetectionEvent{detEvt("d1", 1.01, "cyclist", 0.95)}

	strict := params(MethodNearestNeighbor, 100)
	pairs, err := Align(gt, det, strict)
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	tp, fp, fn := countByClassification(pairs)
	if tp != 0 || fp != 1 || fn != 1 {
		t.Errorf("strict: got tp=%d fp=%d fn=%d, want 0/1/1", tp, fp, fn)
	}

	loose := strict
	loose.StrictClassMatching = false
	pairs, err = Align(gt, det, loose)
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	tp, fp, fn = countByClassification(pairs)
	if tp != 1 || fp != 0 || fn != 0 {
		t.Errorf("loose: got tp=%d fp=%d fn=%d, want 1/0/0", tp, fp, fn)
	}
}

func TestWeightedDistancePrefersConfidentDetection(t *testing.T) {
	gt := []vru.GroundTruthObject{gtObj("g1", 1.0, "pedestrian")}
	// d_far is slightly farther in time but much more confident: weighted
	// score 60/100*0.05=0.03 beats 40/100*0.6=0.24.
	det := []vru.DetectionEvent{
		detEvt("d_near", 1.04, "pedestrian", 0.4),
		detEvt("d_far", 1.06, "pedestrian", 0.95),
	}

	pairs, err := Align(gt, det, params(MethodWeightedDistance, 100))
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	for _, p := range pairs {
		if p.Classification == vru.TruePositive && p.DetectionID != "d_far" {
			t.Errorf("matched %s, want d_far", p.DetectionID)
		}
	}
}

func TestInterpolationRescuesBracketedObject(t *testing.T) {
	// No detection within the 50ms tolerance, but two confident same-class
	// detections bracket the ground truth at +-80ms. The implied detection's
	// weighted score 80/50*(1-0.9)=0.16 passes.
	gt := []vru.GroundTruthObject{gtObj("g1", 1.0, "pedestrian")}
	det := []vru.DetectionEvent{
		detEvt("d0", 0.92, "pedestrian", 0.9),
		detEvt("d1", 1.08, "pedestrian", 0.9),
	}

	pairs, err := Align(gt, det, params(MethodInterpolation, 50))
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	tp, _, fn := countByClassification(pairs)
	if tp != 1 || fn != 0 {
		t.Fatalf("got tp=%d fn=%d, want interpolation rescue (1/0)", tp, fn)
	}

	// Same geometry with near-zero confidence brackets: implied score
	// 80/50*(1-0.05)=1.52 fails, object stays FN.
	weak := []vru.DetectionEvent{
		detEvt("d0", 0.92, "pedestrian", 0.05),
		detEvt("d1", 1.08, "pedestrian", 0.05),
	}
	pairs, err = Align(gt, weak, params(MethodInterpolation, 50))
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	tp, _, fn = countByClassification(pairs)
	if tp != 0 || fn != 1 {
		t.Fatalf("got tp=%d fn=%d, want fallback to FN (0/1)", tp, fn)
	}
}

func TestClusteringCollapsesBurst(t *testing.T) {
	gt := []vru.GroundTruthObject{gtObj("g1", 1.0, "pedestrian")}
	// Three detections within 50ms form a single cluster; the highest
	// confidence member represents it.
	det := []vru.DetectionEvent{
		detEvt("d1", 1.000, "pedestrian", 0.70),
		detEvt("d2", 1.020, "pedestrian", 0.95),
		detEvt("d3", 1.040, "pedestrian", 0.80),
	}

	pairs, err := Align(gt, det, params(MethodClustering, 100))
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	tp, fp, fn := countByClassification(pairs)
	if tp != 1 || fn != 0 {
		t.Fatalf("got tp=%d fn=%d, want 1/0", tp, fn)
	}
	// Burst duplicates remain classified, as false positives.
	if fp != 2 {
		t.Errorf("got fp=%d, want 2 burst duplicates", fp)
	}
	for _, p := range pairs {
		if p.Classification == vru.TruePositive && p.DetectionID != "d2" {
			t.Errorf("cluster representative = %s, want d2", p.DetectionID)
		}
	}
}

func TestBuildClustersWindow(t *testing.T) {
	det := []vru.DetectionEvent{
		detEvt("d1", 1.000, "pedestrian", 0.7),
		detEvt("d2", 1.030, "pedestrian", 0.8),
		detEvt("d3", 1.200, "pedestrian", 0.9), // outside window -> new cluster
		detEvt("d4", 1.210, "cyclist", 0.9),    // class change -> new cluster
	}
	clusters := buildClusters(det, 50)
	if len(clusters) != 3 {
		t.Fatalf("got %d clusters, want 3", len(clusters))
	}
	if len(clusters[0].members) != 2 {
		t.Errorf("first cluster has %d members, want 2", len(clusters[0].members))
	}
}

func TestAdaptiveSelection(t *testing.T) {
	burst := make([]vru.DetectionEvent, 40)
	for i := range burst {
		burst[i] = detEvt("d", 1.0+float64(i)*0.01, "pedestrian", 0.8)
	}
	sparse := []vru.DetectionEvent{
		detEvt("d1", 1.0, "pedestrian", 0.8),
		detEvt("d2", 10.0, "pedestrian", 0.8),
	}
	noisy := []vru.DetectionEvent{
		detEvt("d1", 1.0, "pedestrian", 0.1),
		detEvt("d2", 10.0, "pedestrian", 0.9),
	}

	p := params(MethodAdaptive, 100).withDefaults()
	if got := chooseAdaptive(burst, p); got != MethodClustering {
		t.Errorf("burst stream chose %s, want clustering", got)
	}
	if got := chooseAdaptive(noisy, p); got != MethodWeightedDistance {
		t.Errorf("noisy stream chose %s, want weighted_distance", got)
	}
	if got := chooseAdaptive(sparse, p); got != MethodNearestNeighbor {
		t.Errorf("sparse stream chose %s, want nearest_neighbor", got)
	}
}

func TestAlignIsDeterministic(t *testing.T) {
	gt := []vru.GroundTruthObject{
		gtObj("g1", 1.0, "pedestrian"),
		gtObj("g2", 1.5, "pedestrian"),
	}
	det := []vru.DetectionEvent{
		detEvt("d1", 1.02, "pedestrian", 0.8),
		detEvt("d2", 1.48, "pedestrian", 0.8),
		detEvt("d3", 1.52, "pedestrian", 0.8),
	}

	first, err := Align(gt, det, params(MethodNearestNeighbor, 100))
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Align(gt, det, params(MethodNearestNeighbor, 100))
		if err != nil {
			t.Fatalf("Align: %v", err)
		}
		if len(again) != len(first) {
			t.Fatalf("run %d: %d pairs, want %d", i, len(again), len(first))
		}
		for k := range again {
			if again[k] != first[k] {
				t.Fatalf("run %d: pair %d differs: %+v vs %+v", i, k, again[k], first[k])
			}
		}
	}
}
