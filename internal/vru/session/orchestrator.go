// Package session sequences a validation session: fetch the event streams,
// align per class on a bounded worker pool, analyze latencies, evaluate the
// criteria and assemble the immutable ValidationReport.
package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/validation.report/internal/monitoring"
	"github.com/banshee-data/validation.report/internal/timeutil"
	"github.com/banshee-data/validation.report/internal/vru"
	"github.com/banshee-data/validation.report/internal/vru/align"
	"github.com/banshee-data/validation.report/internal/vru/criteria"
	"github.com/banshee-data/validation.report/internal/vru/latency"
)

// Default orchestrator tuning values.
const (
	DefaultWorkers         = 4
	DefaultFetchRetries    = 2
	DefaultRetryBackoff    = 100 * time.Millisecond
	DefaultMaxSessionsKept = 1024
)

// Config tunes the orchestrator. Zero values fall back to the defaults.
type Config struct {
	Workers      int            // bounded worker pool size for per-class tasks
	FetchRetries int            // extra attempts for transient event store failures
	RetryBackoff time.Duration  // pause between fetch attempts
	Clock        timeutil.Clock // defaults to the real clock

	// MaxSessionsKept caps the session handles retained for status polls.
	// Once exceeded, the oldest terminal handles are evicted; running
	// sessions are never evicted.
	MaxSessionsKept int

	// Alignment parameters applied to every session; ToleranceMs and Method
	// are overridden per ValidateSession call.
	Align align.Params
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.FetchRetries < 0 {
		c.FetchRetries = DefaultFetchRetries
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.Clock == nil {
		c.Clock = timeutil.RealClock{}
	}
	if c.MaxSessionsKept <= 0 {
		c.MaxSessionsKept = DefaultMaxSessionsKept
	}
	return c
}

// Progress checkpoints. Per-class completion scales the span between aligned
// and merged.
const (
	progressFetched = 10.0
	progressAligned = 90.0
	progressDone    = 100.0
)

// handle tracks one session's lifecycle. Guarded by its own mutex so status
// polls never contend with the worker pool.
type handle struct {
	mu        sync.Mutex
	status    vru.SessionStatus
	cancelled bool
}

func (h *handle) setState(s vru.SessionState, progress float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status.State = s
	h.status.ProgressPercentage = progress
}

// markTerminal transitions to a terminal state, keeping the progress reached.
func (h *handle) markTerminal(s vru.SessionState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status.State = s
}

func (h *handle) setProgress(p float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p > h.status.ProgressPercentage {
		h.status.ProgressPercentage = p
	}
}

func (h *handle) isCancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

func (h *handle) isTerminal() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.status.State {
	case vru.SessionCompleted, vru.SessionFailed, vru.SessionCancelled:
		return true
	}
	return false
}

// Orchestrator runs validation sessions against an event store. The latency
// analyzer is owned here and lives across sessions so adaptive thresholds
// learn from history; construct a fresh Orchestrator for isolated runs.
type Orchestrator struct {
	store    vru.EventStore
	analyzer *latency.Analyzer
	cfg      Config

	mu       sync.RWMutex
	sessions map[string]*handle
	order    []string // registration order, for evicting old terminal handles
}

// NewOrchestrator creates an orchestrator over the given event store and
// latency analyzer.
func NewOrchestrator(store vru.EventStore, analyzer *latency.Analyzer, cfg Config) *Orchestrator {
	return &Orchestrator{
		store:    store,
		analyzer: analyzer,
		cfg:      cfg.withDefaults(),
		sessions: make(map[string]*handle),
	}
}

// SessionStatus returns the pollable state and progress of a session.
func (o *Orchestrator) SessionStatus(sessionID string) (vru.SessionStatus, error) {
	o.mu.RLock()
	h := o.sessions[sessionID]
	o.mu.RUnlock()
	if h == nil {
		return vru.SessionStatus{}, fmt.Errorf("session %s: %w", sessionID, vru.ErrSessionNotFound)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status, nil
}

// CancelSession requests cancellation of a running session. In-flight
// per-class tasks complete but their results are discarded and the session
// reports CANCELLED. Returns false for unknown or already-terminal sessions.
func (o *Orchestrator) CancelSession(sessionID string) bool {
	o.mu.RLock()
	h := o.sessions[sessionID]
	o.mu.RUnlock()
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.status.State {
	case vru.SessionPending, vru.SessionRunning:
		h.cancelled = true
		return true
	}
	return false
}

// register installs a fresh handle for a session, rejecting concurrent
// validation of the same session ID.
func (o *Orchestrator) register(sessionID string) (*handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if existing := o.sessions[sessionID]; existing != nil {
		existing.mu.Lock()
		state := existing.status.State
		existing.mu.Unlock()
		if state == vru.SessionPending || state == vru.SessionRunning {
			return nil, fmt.Errorf("session %s is already being validated", sessionID)
		}
	}
	h := &handle{status: vru.SessionStatus{SessionID: sessionID, State: vru.SessionPending}}
	o.sessions[sessionID] = h
	o.order = append(o.order, sessionID)
	o.evictLocked()
	return h, nil
}

// evictLocked drops the oldest terminal handles once the registry exceeds
// MaxSessionsKept, so a long-lived process does not accumulate handles without
// bound. Pending and running sessions are always retained. Caller holds o.mu.
func (o *Orchestrator) evictLocked() {
	if len(o.sessions) <= o.cfg.MaxSessionsKept {
		return
	}
	kept := o.order[:0]
	for _, id := range o.order {
		h := o.sessions[id]
		if h == nil {
			// Stale entry from a re-registered session ID.
			continue
		}
		if len(o.sessions) > o.cfg.MaxSessionsKept && h.isTerminal() {
			delete(o.sessions, id)
			continue
		}
		kept = append(kept, id)
	}
	o.order = kept
}

// classResult carries one partition's outcome to the merge stage. A loose
// (non-strict) partition can span several class labels, so latency results
// are keyed by label.
type classResult struct {
	pairs            []vru.AlignmentPair
	latencies        []float64 // absolute TP time deltas, ms, all labels
	histogram        map[vru.LatencyCategory]int
	summaries        map[string]vru.LatencySummary
	coldStartClasses []string
}

// ValidateSession is the single validation entry point. Synchronous from the
// caller's perspective; per-class work parallelizes internally. Callers always
// receive either a complete report or a typed error, never a partial report.
func (o *Orchestrator) ValidateSession(ctx context.Context, sessionID string, method align.Method, crit criteria.Criteria, toleranceMs float64) (*vru.ValidationReport, error) {
	params := o.cfg.Align
	params.ToleranceMs = toleranceMs
	params.Method = method

	// Fail fast on configuration before touching the store.
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := crit.Validate(); err != nil {
		return nil, err
	}

	h, err := o.register(sessionID)
	if err != nil {
		return nil, err
	}

	report, err := o.run(ctx, h, sessionID, params, crit)
	if err != nil {
		if h.isCancelled() {
			h.markTerminal(vru.SessionCancelled)
			monitoring.Logf("[Orchestrator] session %s cancelled", sessionID)
			return nil, fmt.Errorf("session %s: %w", sessionID, vru.ErrSessionCancelled)
		}
		h.markTerminal(vru.SessionFailed)
		monitoring.Logf("[Orchestrator] session %s failed: %v", sessionID, err)
		return nil, err
	}
	if h.isCancelled() {
		h.markTerminal(vru.SessionCancelled)
		monitoring.Logf("[Orchestrator] session %s cancelled, partial results discarded", sessionID)
		return nil, fmt.Errorf("session %s: %w", sessionID, vru.ErrSessionCancelled)
	}

	h.setState(vru.SessionCompleted, progressDone)
	monitoring.Logf("[Orchestrator] session %s completed: %s (score %.3f)",
		sessionID, report.OverallStatus, report.OverallScore)
	return report, nil
}

func (o *Orchestrator) run(ctx context.Context, h *handle, sessionID string, params align.Params, crit criteria.Criteria) (*vru.ValidationReport, error) {
	h.setState(vru.SessionRunning, 0)

	gt, det, err := o.fetchStreams(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	h.setProgress(progressFetched)

	if idx, ok := firstUnsortedGT(gt); !ok {
		return nil, &vru.InputOrderingError{SessionID: sessionID, Stream: "ground_truth", Index: idx}
	}
	if idx, ok := firstUnsortedDet(det); !ok {
		return nil, &vru.InputOrderingError{SessionID: sessionID, Stream: "detections", Index: idx}
	}

	partitions := partition(gt, det, params.StrictClassMatching)

	results := make([]classResult, len(partitions))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)

	var done int
	var doneMu sync.Mutex
	for i, part := range partitions {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := o.runClass(sessionID, part, params)
			if err != nil {
				return err
			}
			results[i] = res

			doneMu.Lock()
			done++
			frac := float64(done) / float64(len(partitions))
			doneMu.Unlock()
			h.setProgress(progressFetched + (progressAligned-progressFetched)*frac)
			return nil
		})
	}
	// Join barrier: the report is only assembled once every class task is done.
	if err := g.Wait(); err != nil {
		return nil, err
	}
	h.setProgress(progressAligned)

	if h.isCancelled() {
		return nil, fmt.Errorf("session %s: %w", sessionID, vru.ErrSessionCancelled)
	}

	return o.assemble(sessionID, params, crit, results, confidenceIndex(det))
}

// fetchStreams reads both event streams, retrying transient store failures a
// bounded number of times before failing the session.
func (o *Orchestrator) fetchStreams(ctx context.Context, sessionID string) ([]vru.GroundTruthObject, []vru.DetectionEvent, error) {
	var gt []vru.GroundTruthObject
	err := o.withRetry(ctx, func() error {
		var err error
		gt, err = o.store.GroundTruth(ctx, sessionID)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("session %s: fetch ground truth: %w", sessionID, err)
	}

	var det []vru.DetectionEvent
	err = o.withRetry(ctx, func() error {
		var err error
		det, err = o.store.Detections(ctx, sessionID)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("session %s: fetch detections: %w", sessionID, err)
	}
	return gt, det, nil
}

func (o *Orchestrator) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= o.cfg.FetchRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if attempt < o.cfg.FetchRetries {
			monitoring.Logf("[Orchestrator] event store read failed (attempt %d/%d): %v",
				attempt+1, o.cfg.FetchRetries+1, err)
			select {
			case <-o.cfg.Clock.After(o.cfg.RetryBackoff):
			case <-ctx.Done():
				return err
			}
		}
	}
	return err
}

// runClass executes the align -> latency stages for one partition. Within a
// partition, alignment always completes before latency analysis begins.
func (o *Orchestrator) runClass(sessionID string, part classPartition, params align.Params) (classResult, error) {
	pairs, err := align.Align(part.gt, part.det, params)
	if err != nil {
		return classResult{}, err
	}

	res := classResult{
		pairs:     pairs,
		histogram: latency.Histogram(nil, 1),
		summaries: make(map[string]vru.LatencySummary),
	}

	byLabel := make(map[string][]float64)
	for _, p := range pairs {
		if p.Classification != vru.TruePositive {
			continue
		}
		ms := p.TimeDeltaMs
		if ms < 0 {
			ms = -ms
		}
		byLabel[p.ClassLabel] = append(byLabel[p.ClassLabel], ms)
		res.latencies = append(res.latencies, ms)
		o.analyzer.Record(vru.LatencySample{
			ClassLabel: p.ClassLabel,
			LatencyMs:  ms,
			SessionID:  sessionID,
			Timestamp:  time.Now(),
		})
	}

	labels := make([]string, 0, len(byLabel))
	for label := range byLabel {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		th := o.analyzer.ComputeThreshold(label)
		if th.ColdStart {
			res.coldStartClasses = append(res.coldStartClasses, label)
		}
		for cat, n := range latency.Histogram(byLabel[label], th.ComputedThresholdMs) {
			res.histogram[cat] += n
		}
		res.summaries[label] = o.analyzer.Summary(label)
	}
	return res, nil
}

// assemble merges per-class results into the final report.
func (o *Orchestrator) assemble(sessionID string, params align.Params, crit criteria.Criteria, results []classResult, detConfidence map[string]float64) (*vru.ValidationReport, error) {
	var allPairs []vru.AlignmentPair
	var allLatencies []float64
	histogram := latency.Histogram(nil, 1)
	summaries := make(map[string]vru.LatencySummary, len(results))
	var recs []string

	for _, res := range results {
		allPairs = append(allPairs, res.pairs...)
		allLatencies = append(allLatencies, res.latencies...)
		for cat, n := range res.histogram {
			histogram[cat] += n
		}
		for label, s := range res.summaries {
			summaries[label] = s
		}
		for _, label := range res.coldStartClasses {
			recs = append(recs, fmt.Sprintf(
				"class %q has insufficient latency history for adaptive thresholding; base threshold applied",
				label))
		}
	}

	perClass, overall := criteria.PerClassMetrics(allPairs, detConfidence)
	sessionLatency := p95(allLatencies)

	verdict, err := criteria.Evaluate(crit, overall, sessionLatency)
	if err != nil {
		return nil, err
	}

	report := &vru.ValidationReport{
		SessionID:        sessionID,
		CreatedAt:        time.Now().UTC(),
		Method:           string(params.Method),
		ToleranceMs:      params.ToleranceMs,
		PerClass:         perClass,
		Overall:          overall,
		OverallStatus:    verdict.OverallStatus,
		OverallScore:     verdict.OverallScore,
		Criteria:         verdict.Criteria,
		LatencyHistogram: histogram,
		LatencySummaries: summaries,
		Recommendations:  append(recs, verdict.Recommendations...),
		NoData:           verdict.NoData,
	}
	return report, nil
}

// classPartition is one unit of parallel work.
type classPartition struct {
	class string // empty when class matching is loose (single global partition)
	gt    []vru.GroundTruthObject
	det   []vru.DetectionEvent
}

// partition splits the streams by class label under strict matching; loose
// matching needs a single global partition since cross-label pairs are legal.
func partition(gt []vru.GroundTruthObject, det []vru.DetectionEvent, strict bool) []classPartition {
	if !strict {
		return []classPartition{{gt: gt, det: det}}
	}

	byClass := make(map[string]*classPartition)
	ensure := func(class string) *classPartition {
		p := byClass[class]
		if p == nil {
			p = &classPartition{class: class}
			byClass[class] = p
		}
		return p
	}
	for _, g := range gt {
		p := ensure(g.ClassLabel)
		p.gt = append(p.gt, g)
	}
	for _, d := range det {
		p := ensure(d.ClassLabel)
		p.det = append(p.det, d)
	}

	classes := make([]string, 0, len(byClass))
	for class := range byClass {
		classes = append(classes, class)
	}
	sort.Strings(classes)

	parts := make([]classPartition, 0, len(classes))
	for _, class := range classes {
		parts = append(parts, *byClass[class])
	}
	if len(parts) == 0 {
		// Keep a single empty partition so empty sessions still flow through
		// the merge stage and produce a no_data report.
		parts = append(parts, classPartition{})
	}
	return parts
}

// confidenceIndex maps detection IDs to confidences; pairs only carry IDs.
func confidenceIndex(det []vru.DetectionEvent) map[string]float64 {
	idx := make(map[string]float64, len(det))
	for _, d := range det {
		idx[d.ID] = d.Confidence
	}
	return idx
}

func firstUnsortedGT(gt []vru.GroundTruthObject) (int, bool) {
	for i := 1; i < len(gt); i++ {
		if gt[i].Timestamp < gt[i-1].Timestamp {
			return i, false
		}
	}
	return 0, true
}

func firstUnsortedDet(det []vru.DetectionEvent) (int, bool) {
	for i := 1; i < len(det); i++ {
		if det[i].Timestamp < det[i-1].Timestamp {
			return i, false
		}
	}
	return 0, true
}

// p95 is the aggregate latency value scored against the latency criterion:
// the 95th percentile of this session's TP latencies.
func p95(latenciesMs []float64) float64 {
	if len(latenciesMs) == 0 {
		return 0
	}
	xs := make([]float64, len(latenciesMs))
	copy(xs, latenciesMs)
	sort.Float64s(xs)
	return stat.Quantile(0.95, stat.LinInterp, xs, nil)
}
