package models

import "time"

// ExecutionResult is the outcome of dispatching one task.
type ExecutionResult struct {
	TaskID string         `json:"task_id"`
	Agent  string         `json:"agent"`
	Status TaskStatus     `json:"status"`
	Output map[string]any `json:"output,omitempty"`
	Error  string         `json:"error,omitempty"`
	// Attempt is the planning round (iteration) that produced this result.
	Attempt  int           `json:"attempt"`
	Duration time.Duration `json:"duration_ns"`
}

// Succeeded reports whether the result has status success.
func (r ExecutionResult) Succeeded() bool {
	return r.Status == TaskStatusSuccess
}

// ResponseStatus is the overall outcome of a run.
type ResponseStatus string

const (
	// ResponseCompleted means every task succeeded.
	ResponseCompleted ResponseStatus = "completed"
	// ResponsePartial means some work executed but not every task succeeded.
	ResponsePartial ResponseStatus = "partial"
	// ResponseError means the run ended before any task was dispatched.
	ResponseError ResponseStatus = "error"
)

// Response is the structured result returned to callers of Run.
type Response struct {
	RunID     string                       `json:"run_id"`
	Request   string                       `json:"request"`
	Plan      *Plan                        `json:"plan,omitempty"`
	Results   map[string][]ExecutionResult `json:"results"`
	Status    ResponseStatus               `json:"status"`
	Iteration int                          `json:"iteration"`
	// Error describes a structural, clarification or timeout termination.
	Error string `json:"error,omitempty"`
	// Questions holds clarification questions when the planner asked for them.
	Questions []string `json:"questions,omitempty"`
}

// ResultCount returns the number of task results in the response.
func (r *Response) ResultCount() int {
	n := 0
	for _, rs := range r.Results {
		n += len(rs)
	}
	return n
}
