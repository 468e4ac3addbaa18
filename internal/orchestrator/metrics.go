package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ShayCichocki/railmind/pkg/models"
)

// Metrics holds the Prometheus collectors updated by orchestrator runs.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	runs        *prometheus.CounterVec
	taskResults *prometheus.CounterVec
	replans     prometheus.Counter
	fallbacks   prometheus.Counter
	runDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "railmind",
			Name:      "runs_total",
			Help:      "Orchestration runs by final response status.",
		}, []string{"status"}),
		taskResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "railmind",
			Name:      "task_results_total",
			Help:      "Task results by capability and status.",
		}, []string{"capability", "status"}),
		replans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "railmind",
			Name:      "replans_total",
			Help:      "Replanning rounds started.",
		}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "railmind",
			Name:      "planning_fallbacks_total",
			Help:      "Runs that used the single-task fallback plan.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "railmind",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of orchestration runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.taskResults, m.replans, m.fallbacks, m.runDuration)
	}
	return m
}

func (m *Metrics) observeTask(r models.ExecutionResult) {
	if m == nil {
		return
	}
	m.taskResults.WithLabelValues(r.Agent, string(r.Status)).Inc()
}

func (m *Metrics) observeReplan() {
	if m == nil {
		return
	}
	m.replans.Inc()
}

func (m *Metrics) observeFallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}

func (m *Metrics) observeRun(status models.ResponseStatus, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(status)).Inc()
	m.runDuration.Observe(d.Seconds())
}
