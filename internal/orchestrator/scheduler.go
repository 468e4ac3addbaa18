package orchestrator

import (
	"github.com/ShayCichocki/railmind/internal/graph"
	"github.com/ShayCichocki/railmind/pkg/models"
)

// Wave is the set of tasks eligible to start together.
type Wave struct {
	// Tasks are the eligible tasks in declaration order.
	Tasks []*models.Task
}

// Parallel returns the wave's tasks that may run concurrently.
func (w Wave) Parallel() []*models.Task {
	var out []*models.Task
	for _, t := range w.Tasks {
		if t.ExecutionType.IsParallel() {
			out = append(out, t)
		}
	}
	return out
}

// Sequential returns the wave's tasks that must run one after another,
// in declaration order.
func (w Wave) Sequential() []*models.Task {
	var out []*models.Task
	for _, t := range w.Tasks {
		if !t.ExecutionType.IsParallel() {
			out = append(out, t)
		}
	}
	return out
}

// IDs returns the task IDs in the wave.
func (w Wave) IDs() []string {
	ids := make([]string, len(w.Tasks))
	for i, t := range w.Tasks {
		ids[i] = t.ID
	}
	return ids
}

// Empty reports whether no task is eligible.
func (w Wave) Empty() bool {
	return len(w.Tasks) == 0
}

// Scheduler computes execution waves from a plan and the results gathered
// so far. It holds no state between calls.
type Scheduler struct {
	logger *DebugLogger
}

// NewScheduler creates a Scheduler. A nil logger disables debug output.
func NewScheduler(logger *DebugLogger) *Scheduler {
	return &Scheduler{logger: logger}
}

func (s *Scheduler) graphFor(plan *models.Plan, results map[string]models.ExecutionResult) (*graph.DependencyGraph, error) {
	g := graph.New()
	if s.logger != nil {
		g.SetDebugLog(s.logger.Log)
	}

	satisfied := make(map[string]bool)
	for id, r := range results {
		if r.Succeeded() && plan.Task(id) == nil {
			satisfied[id] = true
		}
	}

	if err := g.Build(plan.Subtasks, satisfied); err != nil {
		return nil, &StructuralError{Err: err}
	}
	return g, nil
}

// Validate rejects plans with duplicate IDs, dangling dependencies or cycles.
// Dependencies on tasks that already succeeded in results count as known.
func (s *Scheduler) Validate(plan *models.Plan, results map[string]models.ExecutionResult) error {
	_, err := s.graphFor(plan, results)
	return err
}

// NextWave returns every pending task whose dependencies have all succeeded.
// An empty wave means nothing can make progress.
func (s *Scheduler) NextWave(plan *models.Plan, results map[string]models.ExecutionResult) (Wave, error) {
	g, err := s.graphFor(plan, results)
	if err != nil {
		return Wave{}, err
	}
	wave := Wave{Tasks: g.Ready()}
	if s.logger != nil {
		s.logger.Log("[scheduler] next wave: %v", wave.IDs())
	}
	return wave, nil
}
