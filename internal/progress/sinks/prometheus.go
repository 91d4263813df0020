package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pagelift/pagelift/internal/progress"
)

// PrometheusSink exports extraction progress metrics via Prometheus. It owns
// all collectors for runs started/completed/running plus per-credential
// attempt counters.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runRuntime    *prometheus.HistogramVec

	chunksPlanned   prometheus.Counter
	chunksCompleted *prometheus.CounterVec
	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	records         prometheus.Counter

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pagelift_runs_started_total",
			Help: "Total runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pagelift_runs_completed_total",
			Help: "Total runs completed partitioned by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pagelift_runs_running",
			Help: "Current number of running extractions.",
		}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pagelift_run_runtime_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"result"}),
		chunksPlanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pagelift_chunks_planned_total",
			Help: "Chunks produced by partitioning.",
		}),
		chunksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pagelift_chunks_completed_total",
			Help: "Chunk completions partitioned by terminal status.",
		}, []string{"status"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pagelift_attempts_total",
			Help: "Recognition attempts partitioned by credential and outcome.",
		}, []string{"credential", "outcome"}),
		attemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pagelift_attempt_duration_seconds",
			Help:    "Attempt duration partitioned by outcome.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),
		records: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pagelift_records_extracted_total",
			Help: "Records extracted from completed chunks.",
		}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runRuntime,
		s.chunksPlanned,
		s.chunksCompleted,
		s.attempts,
		s.attemptDuration,
		s.records,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart, progress.StageRunDone, progress.StageRunError:
		s.handleRunEvent(evt)
	case progress.StagePartitioned:
		if evt.Chunks > 0 {
			s.chunksPlanned.Add(float64(evt.Chunks))
		}
	case progress.StageAttempt:
		s.handleAttemptEvent(evt)
	case progress.StageChunkDone:
		s.handleChunkEvent(evt)
	}
}

func (s *PrometheusSink) handleRunEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
	case progress.StageRunDone:
		s.runsCompleted.WithLabelValues("success").Inc()
		s.observeRuntime(evt, "success")
	case progress.StageRunError:
		s.runsCompleted.WithLabelValues("error").Inc()
		s.observeRuntime(evt, "error")
	}
	if evt.Stage != progress.StageRunStart && s.tracker.complete(evt.RunID) {
		s.runsRunning.Dec()
	}
}

func (s *PrometheusSink) observeRuntime(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.runRuntime.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) handleAttemptEvent(evt progress.Event) {
	credential := evt.Credential
	if credential == "" {
		credential = "unknown"
	}
	outcome := evt.Outcome
	if outcome == "" {
		outcome = "unknown"
	}
	s.attempts.WithLabelValues(credential, outcome).Inc()
	if evt.Dur > 0 {
		s.attemptDuration.WithLabelValues(outcome).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) handleChunkEvent(evt progress.Event) {
	status := evt.Status
	if status == "" {
		status = "unknown"
	}
	s.chunksCompleted.WithLabelValues(status).Inc()
	if evt.Records > 0 {
		s.records.Add(float64(evt.Records))
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[string]struct{})}
}

func (t *runTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
