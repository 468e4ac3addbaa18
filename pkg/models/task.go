package models

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusRunning indicates the task has been dispatched to an executor.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusSuccess indicates the task completed successfully.
	TaskStatusSuccess TaskStatus = "success"
	// TaskStatusFailed indicates the executor ran but the outcome could not be achieved.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusError indicates the executor itself malfunctioned.
	TaskStatusError TaskStatus = "error"
	// TaskStatusCancelled indicates the task was abandoned because the run was cancelled.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusSuccess,
		TaskStatusFailed, TaskStatusError, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if the task will not change status again within a round.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusSuccess, TaskStatusFailed, TaskStatusError, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// ExecutionType controls whether a task may run concurrently with its wave siblings.
type ExecutionType string

const (
	// ExecutionSequential tasks run one after another in declaration order.
	ExecutionSequential ExecutionType = "sequential"
	// ExecutionParallel tasks may run concurrently within a wave.
	ExecutionParallel ExecutionType = "parallel"
)

// Valid returns true if the execution type is known. Empty is treated as sequential.
func (e ExecutionType) Valid() bool {
	switch e {
	case "", ExecutionSequential, ExecutionParallel:
		return true
	default:
		return false
	}
}

// IsParallel reports whether the task may be dispatched concurrently.
func (e ExecutionType) IsParallel() bool {
	return e == ExecutionParallel
}

// Task represents a unit of work within a plan.
type Task struct {
	// ID is unique within a plan.
	ID string `json:"task_id" yaml:"task_id"`
	// Description is a human-readable summary of the work.
	Description string `json:"description" yaml:"description"`
	// Agent is the capability tag used to pick an executor.
	Agent string `json:"agent" yaml:"agent"`
	// Dependencies lists task IDs that must succeed before this task runs.
	Dependencies []string `json:"dependencies" yaml:"dependencies"`
	// ExecutionType is sequential or parallel.
	ExecutionType ExecutionType `json:"execution_type" yaml:"execution_type"`
	// Inputs are passed verbatim to the executor.
	Inputs map[string]any `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status" yaml:"status,omitempty"`
}

// Clone returns a copy of the task. Inputs are copied shallowly.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.Dependencies != nil {
		c.Dependencies = append([]string(nil), t.Dependencies...)
	}
	if t.Inputs != nil {
		c.Inputs = make(map[string]any, len(t.Inputs))
		for k, v := range t.Inputs {
			c.Inputs[k] = v
		}
	}
	return &c
}
