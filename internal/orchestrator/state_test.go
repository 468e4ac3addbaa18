package orchestrator

import (
	"errors"
	"testing"

	"github.com/ShayCichocki/railmind/pkg/models"
)

func TestPhaseTransitions(t *testing.T) {
	tests := []struct {
		from, to Phase
		want     bool
	}{
		{PhasePlanning, PhaseExecuting, true},
		{PhasePlanning, PhaseDone, true},
		{PhasePlanning, PhaseEvaluating, false},
		{PhaseExecuting, PhaseEvaluating, true},
		{PhaseExecuting, PhaseReplanning, false},
		{PhaseEvaluating, PhaseReplanning, true},
		{PhaseEvaluating, PhaseDone, true},
		{PhaseEvaluating, PhaseExecuting, false},
		{PhaseReplanning, PhaseExecuting, true},
		{PhaseReplanning, PhasePlanning, false},
		{PhaseDone, PhasePlanning, false},
		{PhaseDone, PhaseDone, false},
		{Phase(42), PhaseDone, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPhaseString(t *testing.T) {
	if PhaseReplanning.String() != "replanning" {
		t.Errorf("PhaseReplanning.String() = %q", PhaseReplanning.String())
	}
	if Phase(-1).String() != "phase(-1)" {
		t.Errorf("unknown phase = %q", Phase(-1).String())
	}
}

func TestStateTransitionRejectsIllegal(t *testing.T) {
	st := newOrchestrationState("r1", "req", nil, 3)
	if err := st.transition(PhaseEvaluating); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("transition error = %v, want ErrIllegalTransition", err)
	}
	if st.Phase != PhasePlanning {
		t.Errorf("phase changed on illegal transition: %s", st.Phase)
	}
}

func TestStateMergeKeepsSuccessImmutable(t *testing.T) {
	st := newOrchestrationState("r1", "req", nil, 3)
	st.setPlan(planOf(task("A", "ops")))

	st.merge([]models.ExecutionResult{{TaskID: "A", Agent: "ops", Status: models.TaskStatusSuccess}})
	st.merge([]models.ExecutionResult{{TaskID: "A", Agent: "ops", Status: models.TaskStatusFailed}})

	if got := st.TaskResults["A"].Status; got != models.TaskStatusSuccess {
		t.Errorf("result for A = %s, want success", got)
	}
	if st.Dispatched() != 1 {
		t.Errorf("Dispatched() = %d, want 1", st.Dispatched())
	}
}

func TestStateMergeRejectsNonTerminalStatus(t *testing.T) {
	tests := []models.TaskStatus{models.TaskStatusRunning, models.TaskStatusPending, ""}
	for _, status := range tests {
		t.Run(string(status), func(t *testing.T) {
			st := newOrchestrationState("r1", "req", nil, 3)
			p := planOf(task("A", "ops"))
			st.setPlan(p)

			st.merge([]models.ExecutionResult{{TaskID: "A", Agent: "ops", Status: status}})

			r := st.TaskResults["A"]
			if r.Status != models.TaskStatusError || r.Error == "" {
				t.Errorf("result = %+v, want error with a reason", r)
			}
			if p.Subtasks[0].Status != models.TaskStatusError {
				t.Errorf("task status = %s, want error", p.Subtasks[0].Status)
			}
		})
	}
}

func TestStateLedgerKeepsFirstDeclarationOrder(t *testing.T) {
	st := newOrchestrationState("r1", "req", nil, 3)
	st.setPlan(planOf(task("A", "ops"), task("B", "ops"), task("C", "ops")))
	st.setPlan(planOf(task("C", "ops"), task("B", "ops")))

	var got []string
	for _, tk := range st.Ledger() {
		got = append(got, tk.ID)
	}
	if len(got) != 3 || got[0] != "A" || got[1] != "B" || got[2] != "C" {
		t.Errorf("ledger = %v, want [A B C]", got)
	}
}

func TestStateUnfinishedAndAllSucceeded(t *testing.T) {
	st := newOrchestrationState("r1", "req", nil, 3)
	st.setPlan(planOf(task("A", "ops"), task("B", "ops")))
	st.merge([]models.ExecutionResult{
		{TaskID: "A", Status: models.TaskStatusSuccess},
		{TaskID: "B", Status: models.TaskStatusError},
	})

	unfinished := st.unfinished()
	if len(unfinished) != 1 || !unfinished["B"] {
		t.Errorf("unfinished = %v, want {B}", unfinished)
	}
	if st.allSucceeded() {
		t.Error("allSucceeded() = true with B errored")
	}
}

func TestStateCancelRunning(t *testing.T) {
	st := newOrchestrationState("r1", "req", nil, 3)
	p := planOf(task("A", "ops"), task("B", "ops"))
	st.setPlan(p)
	st.markRunning(Wave{Tasks: []*models.Task{p.Subtasks[0]}})

	st.cancelRunning("deadline")

	if p.Subtasks[0].Status != models.TaskStatusCancelled {
		t.Errorf("A status = %s, want cancelled", p.Subtasks[0].Status)
	}
	if p.Subtasks[1].Status != models.TaskStatusPending {
		t.Errorf("B status = %s, want pending", p.Subtasks[1].Status)
	}
	if st.TaskResults["A"].Status != models.TaskStatusCancelled {
		t.Error("expected cancelled result recorded for A")
	}
}
