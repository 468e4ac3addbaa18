package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ShayCichocki/railmind/pkg/models"
)

// RunContext is the read-only view of a run handed to executors.
type RunContext struct {
	RunID     string
	Request   string
	Iteration int
	TaskID    string
	// Values is the caller-supplied context map (user id, channel, ...).
	Values map[string]any
	// Upstream holds the outputs of the task's dependencies, keyed by task ID.
	Upstream map[string]map[string]any
	// UpstreamOrder lists the keys of Upstream in dependency declaration order.
	UpstreamOrder []string
}

// UpstreamIDs returns the upstream task IDs in dependency declaration
// order. IDs missing from UpstreamOrder follow in sorted order.
func (rc RunContext) UpstreamIDs() []string {
	ids := make([]string, 0, len(rc.Upstream))
	seen := make(map[string]bool, len(rc.Upstream))
	for _, id := range rc.UpstreamOrder {
		if _, ok := rc.Upstream[id]; ok && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	var rest []string
	for id := range rc.Upstream {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(ids, rest...)
}

// Executor performs the work for one capability tag.
// Returning an error that wraps ErrTaskFailed marks the task failed;
// any other error marks it errored.
type Executor interface {
	Execute(ctx context.Context, inputs map[string]any, rc RunContext) (map[string]any, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, inputs map[string]any, rc RunContext) (map[string]any, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, inputs map[string]any, rc RunContext) (map[string]any, error) {
	return f(ctx, inputs, rc)
}

// ExecutorRegistry maps capability tags to executors and dispatches tasks.
// It is safe for concurrent use.
type ExecutorRegistry struct {
	mu          sync.RWMutex
	executors   map[string]Executor
	taskTimeout time.Duration
}

// NewExecutorRegistry creates an empty registry with the given per-task
// timeout. A zero timeout leaves executors bounded only by the run context.
func NewExecutorRegistry(taskTimeout time.Duration) *ExecutorRegistry {
	return &ExecutorRegistry{
		executors:   make(map[string]Executor),
		taskTimeout: taskTimeout,
	}
}

// Register binds tag to exec, replacing any previous binding.
func (r *ExecutorRegistry) Register(tag string, exec Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[tag] = exec
}

// Has reports whether an executor is registered for tag.
func (r *ExecutorRegistry) Has(tag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.executors[tag]
	return ok
}

// Capabilities returns the registered tags, sorted.
func (r *ExecutorRegistry) Capabilities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.executors))
	for tag := range r.executors {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

type executorOutcome struct {
	output map[string]any
	err    error
}

// Dispatch runs task on its executor and converts the outcome into an
// ExecutionResult. It never panics and never blocks past ctx or the
// per-task timeout.
func (r *ExecutorRegistry) Dispatch(ctx context.Context, task *models.Task, rc RunContext) models.ExecutionResult {
	start := time.Now()
	result := models.ExecutionResult{
		TaskID:  task.ID,
		Agent:   task.Agent,
		Attempt: rc.Iteration,
	}

	r.mu.RLock()
	exec, ok := r.executors[task.Agent]
	timeout := r.taskTimeout
	r.mu.RUnlock()

	if !ok {
		result.Status = models.TaskStatusError
		result.Error = (&DispatchError{Capability: task.Agent}).Error()
		return result
	}

	if err := ctx.Err(); err != nil {
		result.Status = models.TaskStatusCancelled
		result.Error = fmt.Sprintf("run cancelled before dispatch: %v", err)
		return result
	}

	taskCtx := ctx
	var cancel context.CancelFunc = func() {}
	if timeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	inputs := make(map[string]any, len(task.Inputs))
	for k, v := range task.Inputs {
		inputs[k] = v
	}
	rc.TaskID = task.ID

	// Buffered so the executor goroutine can always finish its send.
	done := make(chan executorOutcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- executorOutcome{err: fmt.Errorf("executor panicked: %v", p)}
			}
		}()
		out, err := exec.Execute(taskCtx, inputs, rc)
		done <- executorOutcome{output: out, err: err}
	}()

	select {
	case o := <-done:
		result.Duration = time.Since(start)
		result.Output = o.output
		switch {
		case o.err == nil:
			result.Status = models.TaskStatusSuccess
		case errors.Is(o.err, ErrTaskFailed):
			result.Status = models.TaskStatusFailed
			result.Error = o.err.Error()
		case ctx.Err() != nil:
			result.Status = models.TaskStatusCancelled
			result.Error = o.err.Error()
		default:
			result.Status = models.TaskStatusError
			result.Error = (&ExecutionError{TaskID: task.ID, Capability: task.Agent, Err: o.err}).Error()
		}
	case <-taskCtx.Done():
		result.Duration = time.Since(start)
		if ctx.Err() != nil {
			result.Status = models.TaskStatusCancelled
			result.Error = fmt.Sprintf("run cancelled: %v", ctx.Err())
		} else {
			result.Status = models.TaskStatusError
			result.Error = (&TimeoutError{Phase: PhaseExecuting, Err: fmt.Errorf("task %s exceeded %s", task.ID, timeout)}).Error()
		}
	}
	return result
}
