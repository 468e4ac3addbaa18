package orchestrator

import (
	"github.com/ShayCichocki/railmind/internal/orchestrator/policy"
)

// RequiredConfig contains the minimal required configuration for an Orchestrator.
// All fields are required and have no defaults.
type RequiredConfig struct {
	// Planner decomposes requests into plans.
	Planner Planner
	// Registry dispatches tasks to capability executors.
	Registry *ExecutorRegistry
}

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

// orchestratorOptions holds all optional configuration.
type orchestratorOptions struct {
	policyConfig *policy.Config
	replanner    Replanner
	memory       MemoryProvider
	recorder     RunRecorder
	logger       *DebugLogger
	metrics      *Metrics
	events       bool
	scheduler    *Scheduler
	newRunID     func() string
}

// WithPolicy sets the policy configuration.
func WithPolicy(p *policy.Config) Option {
	return func(o *orchestratorOptions) { o.policyConfig = p }
}

// WithReplanner sets the replanner consulted between rounds.
// Without one, unfinished tasks are retried as-is.
func WithReplanner(r Replanner) Option {
	return func(o *orchestratorOptions) { o.replanner = r }
}

// WithMemory sets the memory collaborator snapshotted before planning.
func WithMemory(m MemoryProvider) Option {
	return func(o *orchestratorOptions) { o.memory = m }
}

// WithRecorder sets the sink that persists finished responses.
func WithRecorder(r RunRecorder) Option {
	return func(o *orchestratorOptions) { o.recorder = r }
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(o *orchestratorOptions) { o.logger = l }
}

// WithMetrics sets the Prometheus collectors updated by runs.
func WithMetrics(m *Metrics) Option {
	return func(o *orchestratorOptions) { o.metrics = m }
}

// WithEvents enables the event channel returned by Events.
func WithEvents() Option {
	return func(o *orchestratorOptions) { o.events = true }
}

// WithScheduler sets a custom scheduler (mainly for testing).
func WithScheduler(s *Scheduler) Option {
	return func(o *orchestratorOptions) { o.scheduler = s }
}

// WithRunIDFunc sets the run ID generator (mainly for testing).
func WithRunIDFunc(fn func() string) Option {
	return func(o *orchestratorOptions) { o.newRunID = fn }
}
