package orchestrator

import (
	"context"

	"github.com/google/uuid"

	"github.com/ShayCichocki/railmind/internal/orchestrator/policy"
	"github.com/ShayCichocki/railmind/pkg/models"
)

// PlanRequest is the input to a Planner.
type PlanRequest struct {
	Request string
	// Context is the caller-supplied run context.
	Context map[string]any
	// Memory is the opaque snapshot from the memory collaborator, if any.
	Memory map[string]any
}

// Planner turns a request into a plan, a clarification request, or a
// malformed outcome. A returned error means the planner could not be reached.
type Planner interface {
	Plan(ctx context.Context, req PlanRequest) (models.PlanOutcome, error)
}

// Replanner proposes a revised plan after a round with unfinished tasks.
// The orchestrator restricts the result to tasks that have not succeeded.
type Replanner interface {
	Replan(ctx context.Context, prev *models.Plan, results map[string]models.ExecutionResult, request string) (*models.Plan, error)
}

// MemoryProvider supplies an opaque memory snapshot for a user.
type MemoryProvider interface {
	Snapshot(ctx context.Context, userID string) (map[string]any, error)
}

// RunRecorder persists finished responses.
type RunRecorder interface {
	SaveRun(ctx context.Context, resp *models.Response, runCtx map[string]any) error
}

// Orchestrator drives requests through the plan, execute, evaluate and
// replan loop. Each call to Run owns its own state, so one Orchestrator may
// serve many concurrent runs.
type Orchestrator struct {
	planner   Planner
	replanner Replanner
	registry  *ExecutorRegistry
	memory    MemoryProvider
	recorder  RunRecorder
	scheduler *Scheduler
	policy    *policy.Config
	logger    *DebugLogger
	metrics   *Metrics
	emitter   *EventEmitter
	newRunID  func() string
}

// New creates an Orchestrator.
func New(req RequiredConfig, opts ...Option) *Orchestrator {
	o := &orchestratorOptions{}
	for _, opt := range opts {
		opt(o)
	}

	pol := policy.Default()
	if o.policyConfig != nil {
		pol = o.policyConfig.Normalize()
	}

	logger := o.logger
	if logger == nil {
		logger = NopLogger()
	}

	replanner := o.replanner
	if replanner == nil {
		replanner = RetryReplanner{}
	}

	scheduler := o.scheduler
	if scheduler == nil {
		scheduler = NewScheduler(logger)
	}

	newRunID := o.newRunID
	if newRunID == nil {
		newRunID = func() string { return uuid.New().String()[:8] }
	}

	orch := &Orchestrator{
		planner:   req.Planner,
		replanner: replanner,
		registry:  req.Registry,
		memory:    o.memory,
		recorder:  o.recorder,
		scheduler: scheduler,
		policy:    pol,
		logger:    logger,
		metrics:   o.metrics,
		newRunID:  newRunID,
	}
	if orch.registry == nil {
		orch.registry = NewExecutorRegistry(pol.Dispatch.TaskTimeout)
	}
	if o.events {
		orch.emitter = NewEventEmitter(pol.Events.BufferSize, pol.Events.SendTimeout)
	}
	return orch
}

// Events returns the event channel, or nil if events were not enabled.
func (o *Orchestrator) Events() <-chan OrchestratorEvent {
	if o.emitter == nil {
		return nil
	}
	return o.emitter.Events()
}

// DroppedEventCount returns the number of events dropped on a full channel.
func (o *Orchestrator) DroppedEventCount() uint64 {
	return o.emitter.DroppedCount()
}

// Close closes the event channel. Runs must have finished.
func (o *Orchestrator) Close() {
	o.emitter.Close()
}

// Policy returns the effective policy.
func (o *Orchestrator) Policy() *policy.Config {
	return o.policy
}

// Run executes request to completion and always returns a well-formed
// Response. A maxIterations below 1 uses the policy default.
func (o *Orchestrator) Run(ctx context.Context, request string, runCtx map[string]any, maxIterations int) *models.Response {
	return o.RunWithID(ctx, o.newRunID(), request, runCtx, maxIterations)
}
