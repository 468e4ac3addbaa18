package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrTaskFailed marks an executor error as a task failure: the executor
	// ran but the requested outcome could not be achieved.
	ErrTaskFailed = errors.New("task failed")
	// ErrIllegalTransition indicates the loop attempted a transition missing from the table.
	ErrIllegalTransition = errors.New("illegal phase transition")
	// ErrClarificationRequired indicates the planner asked for more information.
	ErrClarificationRequired = errors.New("clarification required")
)

// TaskFailure is returned by executors when the goal is unreachable
// (resource not found, validation rejected) rather than when they malfunction.
type TaskFailure struct {
	Reason string
}

func (e *TaskFailure) Error() string {
	return e.Reason
}

// Is makes errors.Is(err, ErrTaskFailed) true for any TaskFailure.
func (e *TaskFailure) Is(target error) bool {
	return target == ErrTaskFailed
}

// Fail builds a TaskFailure with a formatted reason.
func Fail(format string, args ...any) error {
	return &TaskFailure{Reason: fmt.Sprintf(format, args...)}
}

// PlanningError is raised when planner output is malformed or the planner
// could not be reached. It is non-fatal: the loop falls back to a single-task plan.
type PlanningError struct {
	Reason string
	Raw    string
	Err    error
}

func (e *PlanningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("planning error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("planning error: %s", e.Reason)
}

func (e *PlanningError) Unwrap() error {
	return e.Err
}

// StructuralError rejects a whole plan: duplicate id, dangling dependency or cycle.
type StructuralError struct {
	Err error
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("structural error: %v", e.Err)
}

func (e *StructuralError) Unwrap() error {
	return e.Err
}

// DispatchError reports a task whose capability tag has no registered executor.
type DispatchError struct {
	Capability string
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("unknown capability %q: no executor registered", e.Capability)
}

// ExecutionError wraps an executor malfunction.
type ExecutionError struct {
	TaskID     string
	Capability string
	Err        error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("executor %s failed on task %s: %v", e.Capability, e.TaskID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// TimeoutError reports that a deadline expired during the given phase.
type TimeoutError struct {
	Phase Phase
	Err   error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("deadline exceeded during %s: %v", e.Phase, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}
