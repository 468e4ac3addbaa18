package orchestrator

import (
	"errors"
	"testing"

	"github.com/ShayCichocki/railmind/pkg/models"
)

func TestAggregateStatus(t *testing.T) {
	ledger := []*models.Task{task("A", "ops"), task("B", "alert")}
	ok := func(id, agent string) models.ExecutionResult {
		return models.ExecutionResult{TaskID: id, Agent: agent, Status: models.TaskStatusSuccess}
	}
	bad := func(id, agent string) models.ExecutionResult {
		return models.ExecutionResult{TaskID: id, Agent: agent, Status: models.TaskStatusFailed}
	}

	tests := []struct {
		name       string
		in         AggregateInput
		wantStatus models.ResponseStatus
	}{
		{
			name: "all succeeded",
			in: AggregateInput{Ledger: ledger, Dispatched: 2, Results: map[string]models.ExecutionResult{
				"A": ok("A", "ops"), "B": ok("B", "alert"),
			}},
			wantStatus: models.ResponseCompleted,
		},
		{
			name: "some failed",
			in: AggregateInput{Ledger: ledger, Dispatched: 2, Results: map[string]models.ExecutionResult{
				"A": ok("A", "ops"), "B": bad("B", "alert"),
			}},
			wantStatus: models.ResponsePartial,
		},
		{
			name: "none succeeded but work executed",
			in: AggregateInput{Ledger: ledger[:1], Dispatched: 1, Results: map[string]models.ExecutionResult{
				"A": bad("A", "ops"),
			}},
			wantStatus: models.ResponsePartial,
		},
		{
			name:       "structural rejection",
			in:         AggregateInput{Err: errors.New("structural error")},
			wantStatus: models.ResponseError,
		},
		{
			name:       "empty plan",
			in:         AggregateInput{Plan: planOf()},
			wantStatus: models.ResponseCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := Aggregate(tt.in)
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", resp.Status, tt.wantStatus)
			}
		})
	}
}

func TestAggregateGroupsByCapabilityInLedgerOrder(t *testing.T) {
	ledger := []*models.Task{
		task("t1", "operations"),
		task("t2", "alert"),
		task("t3", "operations"),
		task("t4", "alert"),
	}
	results := map[string]models.ExecutionResult{
		"t4": {TaskID: "t4", Agent: "alert", Status: models.TaskStatusSuccess},
		"t3": {TaskID: "t3", Agent: "operations", Status: models.TaskStatusSuccess},
		"t2": {TaskID: "t2", Agent: "alert", Status: models.TaskStatusSuccess},
		"t1": {TaskID: "t1", Agent: "operations", Status: models.TaskStatusSuccess},
	}

	resp := Aggregate(AggregateInput{
		RunID:      "r1",
		Request:    "req",
		Plan:       &models.Plan{RequestType: "delay", Priority: "high"},
		Ledger:     ledger,
		Results:    results,
		Iteration:  2,
		Dispatched: 4,
	})

	if got := resultIDs(resp.Results["operations"]); !equalStrings(got, []string{"t1", "t3"}) {
		t.Errorf("operations = %v", got)
	}
	if got := resultIDs(resp.Results["alert"]); !equalStrings(got, []string{"t2", "t4"}) {
		t.Errorf("alert = %v", got)
	}
	if resp.Plan.RequestType != "delay" || len(resp.Plan.Subtasks) != 4 {
		t.Errorf("plan = %+v", resp.Plan)
	}
	if resp.Plan.Subtasks[0].Status != models.TaskStatusSuccess {
		t.Errorf("plan status not taken from results: %s", resp.Plan.Subtasks[0].Status)
	}
	if resp.Iteration != 2 || resp.RunID != "r1" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestAggregateDoesNotInventResults(t *testing.T) {
	resp := Aggregate(AggregateInput{
		Ledger:     []*models.Task{task("A", "ops"), task("B", "ops", "A")},
		Results:    map[string]models.ExecutionResult{"A": {TaskID: "A", Agent: "ops", Status: models.TaskStatusError}},
		Dispatched: 1,
	})
	if resp.ResultCount() != 1 {
		t.Errorf("ResultCount() = %d, want 1", resp.ResultCount())
	}
	if resp.Plan.Subtasks[1].Status != models.TaskStatusPending {
		t.Errorf("undispatched task status = %s, want pending", resp.Plan.Subtasks[1].Status)
	}
}
