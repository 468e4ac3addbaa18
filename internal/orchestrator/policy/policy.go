// Package policy defines configurable policy parameters for orchestrator behavior.
// This centralizes magic numbers and threshold values so they can be
// configured and overridden in tests.
package policy

import "time"

// Config contains all configurable policy parameters for the orchestrator.
type Config struct {
	// Loop policies
	Loop LoopPolicy

	// Dispatch policies
	Dispatch DispatchPolicy

	// Planning policies
	Planning PlanningPolicy

	// Events policies
	Events EventsPolicy
}

// LoopPolicy controls the execute/evaluate/replan loop.
type LoopPolicy struct {
	// MaxIterations is the default planning-round budget when a caller passes zero.
	MaxIterations int

	// RunTimeout bounds a whole run. Zero means the caller's context is the only deadline.
	RunTimeout time.Duration
}

// DispatchPolicy controls executor dispatch.
type DispatchPolicy struct {
	// MaxWorkers caps concurrent executors within one wave.
	MaxWorkers int

	// TaskTimeout bounds a single executor call. Zero disables the per-task timeout.
	TaskTimeout time.Duration
}

// PlanningPolicy controls planner fallbacks.
type PlanningPolicy struct {
	// FallbackAgent is the capability used for the single-task plan built
	// when the planner output cannot be used.
	FallbackAgent string
}

// EventsPolicy controls event emission.
type EventsPolicy struct {
	// BufferSize is the event channel buffer size.
	BufferSize int

	// SendTimeout is how long Emit waits on a full channel before dropping.
	SendTimeout time.Duration
}

// Default returns the default policy configuration.
func Default() *Config {
	return &Config{
		Loop: LoopPolicy{
			MaxIterations: 3,
			RunTimeout:    5 * time.Minute,
		},
		Dispatch: DispatchPolicy{
			MaxWorkers:  4,
			TaskTimeout: 30 * time.Second,
		},
		Planning: PlanningPolicy{
			FallbackAgent: "operations",
		},
		Events: EventsPolicy{
			BufferSize:  100,
			SendTimeout: 100 * time.Millisecond,
		},
	}
}

// Normalize returns a copy of c with out-of-range values replaced by
// defaults. c itself is not modified.
func (c *Config) Normalize() *Config {
	n := *c
	if n.Loop.MaxIterations < 1 {
		n.Loop.MaxIterations = 3
	}
	if n.Loop.RunTimeout < 0 {
		n.Loop.RunTimeout = 0
	}
	if n.Dispatch.MaxWorkers < 1 {
		n.Dispatch.MaxWorkers = 4
	}
	if n.Dispatch.TaskTimeout < 0 {
		n.Dispatch.TaskTimeout = 0
	}
	if n.Planning.FallbackAgent == "" {
		n.Planning.FallbackAgent = "operations"
	}
	if n.Events.BufferSize < 1 {
		n.Events.BufferSize = 100
	}
	if n.Events.SendTimeout < time.Millisecond {
		n.Events.SendTimeout = 100 * time.Millisecond
	}
	return &n
}
