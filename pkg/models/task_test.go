package models

import "testing"

func TestTaskStatus_Valid(t *testing.T) {
	tests := []struct {
		name   string
		status TaskStatus
		want   bool
	}{
		{"pending is valid", TaskStatusPending, true},
		{"running is valid", TaskStatusRunning, true},
		{"success is valid", TaskStatusSuccess, true},
		{"failed is valid", TaskStatusFailed, true},
		{"error is valid", TaskStatusError, true},
		{"cancelled is valid", TaskStatusCancelled, true},
		{"empty string is invalid", TaskStatus(""), false},
		{"done is invalid", TaskStatus("done"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Valid(); got != tt.want {
				t.Errorf("TaskStatus(%q).Valid() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestTaskStatus_Terminal(t *testing.T) {
	tests := []struct {
		status TaskStatus
		want   bool
	}{
		{TaskStatusPending, false},
		{TaskStatusRunning, false},
		{TaskStatusSuccess, true},
		{TaskStatusFailed, true},
		{TaskStatusError, true},
		{TaskStatusCancelled, true},
	}

	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("TaskStatus(%q).Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestExecutionType(t *testing.T) {
	if !ExecutionType("").Valid() {
		t.Error("empty execution type should be valid (defaults to sequential)")
	}
	if ExecutionType("").IsParallel() {
		t.Error("empty execution type should not be parallel")
	}
	if !ExecutionParallel.IsParallel() {
		t.Error("parallel should be parallel")
	}
	if ExecutionType("batch").Valid() {
		t.Error("unknown execution type should be invalid")
	}
}

func TestTaskClone(t *testing.T) {
	orig := &Task{
		ID:           "1",
		Agent:        CapabilityOperations,
		Dependencies: []string{"0"},
		Inputs:       map[string]any{"train_id": "12627"},
		Status:       TaskStatusFailed,
	}

	c := orig.Clone()
	c.Dependencies[0] = "x"
	c.Inputs["train_id"] = "99999"
	c.Status = TaskStatusPending

	if orig.Dependencies[0] != "0" {
		t.Errorf("clone shares dependencies slice")
	}
	if orig.Inputs["train_id"] != "12627" {
		t.Errorf("clone shares inputs map")
	}
	if orig.Status != TaskStatusFailed {
		t.Errorf("clone shares status")
	}

	var nilTask *Task
	if nilTask.Clone() != nil {
		t.Error("Clone of nil task should be nil")
	}
}

func TestPlanCloneAndLookup(t *testing.T) {
	p := &Plan{
		RequestType: "delay",
		Subtasks: []*Task{
			{ID: "1", Agent: CapabilityOperations},
			{ID: "2", Agent: CapabilityPassenger, Dependencies: []string{"1"}},
		},
	}

	c := p.Clone()
	c.Subtasks[0].Status = TaskStatusSuccess

	if p.Subtasks[0].Status != "" {
		t.Error("plan clone shares tasks")
	}
	if got := p.Task("2"); got == nil || got.Agent != CapabilityPassenger {
		t.Errorf("Task(2) = %v", got)
	}
	if p.Task("missing") != nil {
		t.Error("Task(missing) should be nil")
	}
}

func TestPlanOutcomeConstructors(t *testing.T) {
	if o := ValidPlan(&Plan{}); o.Kind != OutcomeValidPlan || o.Plan == nil {
		t.Errorf("ValidPlan = %+v", o)
	}
	if o := NeedsClarification("which train?"); o.Kind != OutcomeClarification || len(o.Questions) != 1 {
		t.Errorf("NeedsClarification = %+v", o)
	}
	if o := Malformed("{", "unexpected end"); o.Kind != OutcomeMalformed || o.Reason == "" {
		t.Errorf("Malformed = %+v", o)
	}
}

func TestResponseResultCount(t *testing.T) {
	r := &Response{Results: map[string][]ExecutionResult{
		CapabilityOperations: {{TaskID: "1"}, {TaskID: "3"}},
		CapabilityAlert:      {{TaskID: "2"}},
	}}
	if got := r.ResultCount(); got != 3 {
		t.Errorf("ResultCount() = %d, want 3", got)
	}
}

func TestIsKnownCapability(t *testing.T) {
	for _, c := range KnownCapabilities() {
		if !IsKnownCapability(c) {
			t.Errorf("IsKnownCapability(%q) = false", c)
		}
	}
	if IsKnownCapability("unknown_capability") {
		t.Error("unknown_capability should not be known")
	}
}
