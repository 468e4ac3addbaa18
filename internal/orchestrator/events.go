package orchestrator

import (
	"time"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventPlanCreated indicates the planner produced the initial plan.
	EventPlanCreated EventType = "plan_created"
	// EventPlanFallback indicates the planner output was unusable and the fallback plan is used.
	EventPlanFallback EventType = "plan_fallback"
	// EventWaveStarted indicates a wave of eligible tasks is being dispatched.
	EventWaveStarted EventType = "wave_started"
	// EventTaskStarted indicates a task has been dispatched to its executor.
	EventTaskStarted EventType = "task_started"
	// EventTaskCompleted indicates a task completed successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a task ended failed, errored or cancelled.
	EventTaskFailed EventType = "task_failed"
	// EventReplanned indicates a new planning round began.
	EventReplanned EventType = "replanned"
	// EventRunDone indicates the run finished and the response is ready.
	EventRunDone EventType = "run_done"
)

// OrchestratorEvent represents an event emitted by the orchestrator.
// These events are used to update the TUI and track progress.
type OrchestratorEvent struct {
	// Type is the kind of event.
	Type EventType
	// RunID identifies the run that emitted the event.
	RunID string
	// TaskID is the ID of the related task, if applicable.
	TaskID string
	// Agent is the capability tag of the related task, if applicable.
	Agent string
	// TaskIDs lists the tasks of a plan or wave.
	TaskIDs []string
	// Iteration is the planning round the event belongs to.
	Iteration int
	// Status is the task status for task events, or the response status for run_done.
	Status string
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Duration is the task or run duration, when known.
	Duration time.Duration
}
