package orchestrator

import (
	"fmt"

	"github.com/ShayCichocki/railmind/pkg/models"
)

// Phase is a state of the execution loop.
type Phase int

const (
	PhasePlanning Phase = iota
	PhaseExecuting
	PhaseEvaluating
	PhaseReplanning
	PhaseDone

	phaseCount
)

var phaseNames = [phaseCount]string{
	PhasePlanning:   "planning",
	PhaseExecuting:  "executing",
	PhaseEvaluating: "evaluating",
	PhaseReplanning: "replanning",
	PhaseDone:       "done",
}

func (p Phase) String() string {
	if p < 0 || p >= phaseCount {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// transitions is the complete table of legal loop transitions.
// Every phase may short-circuit to PhaseDone.
var transitions = [phaseCount][]Phase{
	PhasePlanning:   {PhaseExecuting, PhaseDone},
	PhaseExecuting:  {PhaseEvaluating, PhaseDone},
	PhaseEvaluating: {PhaseReplanning, PhaseDone},
	PhaseReplanning: {PhaseExecuting, PhaseDone},
	PhaseDone:       nil,
}

// CanTransition reports whether the loop may move from p to next.
func (p Phase) CanTransition(next Phase) bool {
	if p < 0 || p >= phaseCount {
		return false
	}
	for _, allowed := range transitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

// OrchestrationState is owned by a single Run. Nothing in it is shared
// with other runs.
type OrchestrationState struct {
	RunID         string
	Request       string
	Context       map[string]any
	CurrentPlan   *models.Plan
	TaskResults   map[string]models.ExecutionResult
	Iteration     int
	MaxIterations int
	Phase         Phase

	// ledger holds every task seen during the run in first-declaration order.
	ledger      []*models.Task
	ledgerIndex map[string]int

	dispatched      int
	roundDispatched int

	// err is the reason the run terminated early, if any.
	err       error
	questions []string
}

func newOrchestrationState(runID, request string, runCtx map[string]any, maxIterations int) *OrchestrationState {
	return &OrchestrationState{
		RunID:         runID,
		Request:       request,
		Context:       runCtx,
		TaskResults:   make(map[string]models.ExecutionResult),
		Iteration:     1,
		MaxIterations: maxIterations,
		Phase:         PhasePlanning,
		ledgerIndex:   make(map[string]int),
	}
}

// transition moves the state to next, enforcing the transition table.
func (s *OrchestrationState) transition(next Phase) error {
	if !s.Phase.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s.Phase, next)
	}
	s.Phase = next
	return nil
}

// setPlan installs plan as the current plan and records its tasks in the ledger.
func (s *OrchestrationState) setPlan(plan *models.Plan) {
	s.CurrentPlan = plan
	for _, t := range plan.Subtasks {
		if i, ok := s.ledgerIndex[t.ID]; ok {
			s.ledger[i] = t
			continue
		}
		s.ledgerIndex[t.ID] = len(s.ledger)
		s.ledger = append(s.ledger, t)
	}
}

// markRunning sets every task in the wave to running. Called by the control
// goroutine before dispatch.
func (s *OrchestrationState) markRunning(wave Wave) {
	for _, t := range wave.Tasks {
		t.Status = models.TaskStatusRunning
	}
}

// merge commits a wave's results. It is the only writer of TaskResults and
// task statuses, and runs on the control goroutine after the wave finishes.
func (s *OrchestrationState) merge(results []models.ExecutionResult) {
	for _, r := range results {
		if prev, ok := s.TaskResults[r.TaskID]; ok && prev.Succeeded() {
			// Completed tasks are immutable for the rest of the run.
			continue
		}
		if !r.Status.Terminal() {
			r.Error = fmt.Sprintf("task ended in non-terminal status %q", r.Status)
			r.Status = models.TaskStatusError
		}
		s.TaskResults[r.TaskID] = r
		if t := s.CurrentPlan.Task(r.TaskID); t != nil {
			t.Status = r.Status
		}
		s.dispatched++
		s.roundDispatched++
	}
}

// succeeded returns the IDs of tasks that have succeeded so far.
func (s *OrchestrationState) succeeded() map[string]bool {
	done := make(map[string]bool)
	for id, r := range s.TaskResults {
		if r.Succeeded() {
			done[id] = true
		}
	}
	return done
}

// unfinished returns the IDs of current-plan tasks that have not succeeded.
func (s *OrchestrationState) unfinished() map[string]bool {
	ids := make(map[string]bool)
	if s.CurrentPlan == nil {
		return ids
	}
	for _, t := range s.CurrentPlan.Subtasks {
		if t.Status != models.TaskStatusSuccess {
			ids[t.ID] = true
		}
	}
	return ids
}

// allSucceeded reports whether every task ever planned in this run succeeded.
func (s *OrchestrationState) allSucceeded() bool {
	for _, t := range s.ledger {
		if r, ok := s.TaskResults[t.ID]; !ok || !r.Succeeded() {
			return false
		}
	}
	return true
}

// cancelRunning marks tasks still flagged running as cancelled.
func (s *OrchestrationState) cancelRunning(reason string) {
	if s.CurrentPlan == nil {
		return
	}
	for _, t := range s.CurrentPlan.Subtasks {
		if t.Status != models.TaskStatusRunning {
			continue
		}
		t.Status = models.TaskStatusCancelled
		s.TaskResults[t.ID] = models.ExecutionResult{
			TaskID:  t.ID,
			Agent:   t.Agent,
			Status:  models.TaskStatusCancelled,
			Error:   reason,
			Attempt: s.Iteration,
		}
	}
}

// terminate records why the run is ending early.
func (s *OrchestrationState) terminate(err error) {
	if s.err == nil {
		s.err = err
	}
}

// Ledger returns the tasks seen during the run in declaration order.
func (s *OrchestrationState) Ledger() []*models.Task {
	return s.ledger
}

// Dispatched returns the number of task results committed during the run.
func (s *OrchestrationState) Dispatched() int {
	return s.dispatched
}

// Err returns the early-termination reason, if any.
func (s *OrchestrationState) Err() error {
	return s.err
}
