package orchestrator

import (
	"context"
	"sync"

	"github.com/ShayCichocki/railmind/internal/orchestrator/policy"
	"github.com/ShayCichocki/railmind/pkg/models"
)

func task(id, agent string, deps ...string) *models.Task {
	return &models.Task{
		ID:            id,
		Description:   "task " + id,
		Agent:         agent,
		Dependencies:  deps,
		ExecutionType: models.ExecutionSequential,
		Status:        models.TaskStatusPending,
	}
}

func parallel(t *models.Task) *models.Task {
	t.ExecutionType = models.ExecutionParallel
	return t
}

func planOf(tasks ...*models.Task) *models.Plan {
	return &models.Plan{RequestType: "test", Priority: "medium", Subtasks: tasks}
}

// stubPlanner returns a fixed outcome.
type stubPlanner struct {
	mu      sync.Mutex
	outcome models.PlanOutcome
	err     error
	calls   int
	lastReq PlanRequest
}

func (p *stubPlanner) Plan(_ context.Context, req PlanRequest) (models.PlanOutcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.lastReq = req
	if p.outcome.Plan != nil {
		// Each run gets its own copy.
		out := p.outcome
		out.Plan = p.outcome.Plan.Clone()
		return out, p.err
	}
	return p.outcome, p.err
}

func planner(p *models.Plan) *stubPlanner {
	return &stubPlanner{outcome: models.ValidPlan(p)}
}

// scriptExecutor counts calls per task and delegates to script.
type scriptExecutor struct {
	mu     sync.Mutex
	calls  map[string]int
	script func(taskID string, attempt int, rc RunContext) (map[string]any, error)
}

func newScript(fn func(taskID string, attempt int, rc RunContext) (map[string]any, error)) *scriptExecutor {
	return &scriptExecutor{calls: make(map[string]int), script: fn}
}

func (e *scriptExecutor) Execute(_ context.Context, _ map[string]any, rc RunContext) (map[string]any, error) {
	e.mu.Lock()
	e.calls[rc.TaskID]++
	attempt := e.calls[rc.TaskID]
	e.mu.Unlock()
	return e.script(rc.TaskID, attempt, rc)
}

func (e *scriptExecutor) Calls(taskID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[taskID]
}

func (e *scriptExecutor) Total() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		n += c
	}
	return n
}

func succeed(taskID string, _ int, _ RunContext) (map[string]any, error) {
	return map[string]any{"task": taskID}, nil
}

func testPolicy() *policy.Config {
	p := policy.Default()
	p.Loop.RunTimeout = 0
	return p
}

func newTestOrchestrator(p Planner, execs map[string]Executor, opts ...Option) *Orchestrator {
	reg := NewExecutorRegistry(0)
	for tag, e := range execs {
		reg.Register(tag, e)
	}
	opts = append([]Option{WithPolicy(testPolicy())}, opts...)
	return New(RequiredConfig{Planner: p, Registry: reg}, opts...)
}
