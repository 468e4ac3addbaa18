// Package orchestrator turns operational requests into executed plans.
//
// The orchestrator package provides:
//   - Scheduling: validating a plan's dependency graph and computing waves of eligible tasks
//   - Dispatch: routing each task to the executor registered for its capability tag
//   - The execution loop: a plan, execute, evaluate and replan state machine with a bounded iteration budget
//   - Aggregation: grouping task results by capability into a Response
//
// A run is driven by a single control goroutine. Within a wave, tasks marked
// parallel are dispatched through a bounded worker pool while sequential tasks
// run as one lane in declaration order. Results are merged by the control
// goroutine only, after the wave finishes.
//
// Example usage:
//
//	reg := orchestrator.NewExecutorRegistry(30 * time.Second)
//	executors.RegisterDefaults(reg, deps)
//	orch := orchestrator.New(orchestrator.RequiredConfig{Planner: p, Registry: reg})
//	resp := orch.Run(ctx, "Train 12627 delayed 45 minutes at Nagpur", nil, 3)
package orchestrator
