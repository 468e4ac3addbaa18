package planner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ShayCichocki/railmind/internal/orchestrator"
	"github.com/ShayCichocki/railmind/pkg/models"
)

type fakeCompleter struct {
	reply      string
	err        error
	lastPrompt string
	lastSystem string
}

func (f *fakeCompleter) Complete(_ context.Context, system, prompt string) (string, error) {
	f.lastSystem = system
	f.lastPrompt = prompt
	return f.reply, f.err
}

func TestLLMPlannerPlan(t *testing.T) {
	fc := &fakeCompleter{reply: `{"subtasks":[{"task_id":"task_1","agent":"operations"}]}`}
	p := NewLLMPlanner(fc, nil)

	out, err := p.Plan(context.Background(), orchestrator.PlanRequest{
		Request: "Train 12627 is delayed by 45 minutes",
		Context: map[string]any{"location": "Katpadi"},
		Memory:  map[string]any{"summary": "frequent traveller"},
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if out.Kind != models.OutcomeValidPlan {
		t.Fatalf("Kind = %s", out.Kind)
	}
	for _, want := range []string{"Train 12627", "Katpadi", "frequent traveller", "- alert:"} {
		if !strings.Contains(fc.lastPrompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if fc.lastSystem == "" {
		t.Error("system prompt not sent")
	}
}

func TestLLMPlannerPlanTransportError(t *testing.T) {
	boom := errors.New("connection refused")
	p := NewLLMPlanner(&fakeCompleter{err: boom}, nil)

	if _, err := p.Plan(context.Background(), orchestrator.PlanRequest{Request: "x"}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped transport error", err)
	}
}

func TestLLMPlannerReplan(t *testing.T) {
	prev := &models.Plan{Subtasks: []*models.Task{{ID: "a", Agent: "operations"}, {ID: "b", Agent: "alert"}}}
	results := map[string]models.ExecutionResult{
		"a": {TaskID: "a", Status: models.TaskStatusSuccess},
		"b": {TaskID: "b", Status: models.TaskStatusFailed, Error: "no recipients"},
	}

	tests := []struct {
		name    string
		reply   string
		wantErr bool
	}{
		{"valid", `{"subtasks":[{"task_id":"b","agent":"alert","inputs":{"channels":["app"]}}]}`, false},
		{"clarification", `{"requires_clarification":true,"clarification_questions":["who?"]}`, true},
		{"malformed", `nope`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeCompleter{reply: tt.reply}
			plan, err := NewLLMPlanner(fc, []string{"operations", "alert"}).Replan(context.Background(), prev, results, "req")
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && plan.Task("b") == nil {
				t.Errorf("plan missing task b")
			}
			if !strings.Contains(fc.lastPrompt, "no recipients") {
				t.Error("replan prompt should carry previous results")
			}
		})
	}
}

func TestKeywordPlanner(t *testing.T) {
	tests := []struct {
		name       string
		request    string
		ctx        map[string]any
		wantAgents []string
		wantType   string
	}{
		{"delay", "Train 12627 is delayed by 45 minutes at Katpadi", nil,
			[]string{"operations", "passenger", "alert"}, "delay_management"},
		{"crowd", "Expecting a crowd at Chennai tonight", nil,
			[]string{"crowd", "alert"}, "capacity"},
		{"refund", "I want a refund for PNR 1234567890", nil,
			[]string{"passenger"}, "passenger_service"},
		{"broadcast", "Send alert: Track maintenance on Platform 3", nil,
			[]string{"alert"}, "broadcast"},
		{"bill", "Please check this electricity bill for Rs. 1,240", nil,
			[]string{"extraction", "validation"}, "document_check"},
		{"general", "What is the weather like", nil,
			[]string{"operations"}, "general"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := KeywordPlanner{}.Plan(context.Background(), orchestrator.PlanRequest{Request: tt.request, Context: tt.ctx})
			if err != nil || out.Kind != models.OutcomeValidPlan {
				t.Fatalf("out = %+v, err = %v", out, err)
			}
			if out.Plan.RequestType != tt.wantType {
				t.Errorf("RequestType = %q, want %q", out.Plan.RequestType, tt.wantType)
			}
			if err := Normalize(out.Plan); err != nil {
				t.Errorf("keyword plan fails Normalize: %v", err)
			}
			var agents []string
			for _, tk := range out.Plan.Subtasks {
				agents = append(agents, tk.Agent)
			}
			if strings.Join(agents, ",") != strings.Join(tt.wantAgents, ",") {
				t.Errorf("agents = %v, want %v", agents, tt.wantAgents)
			}
		})
	}
}

func TestKeywordPlannerExtractsFacts(t *testing.T) {
	out, _ := KeywordPlanner{}.Plan(context.Background(), orchestrator.PlanRequest{
		Request: "Train 12627 is delayed by 2 hours at Katpadi",
	})
	ops := out.Plan.Task("task_1").Inputs
	if ops["train_number"] != "12627" || ops["delay_minutes"] != 120 || ops["location"] != "Katpadi" {
		t.Errorf("ops inputs = %v", ops)
	}

	out, _ = KeywordPlanner{}.Plan(context.Background(), orchestrator.PlanRequest{
		Request: "Train is delayed",
		Context: map[string]any{"train_number": "12650", "delay_minutes": float64(30), "location": "Chennai"},
	})
	ops = out.Plan.Task("task_1").Inputs
	if ops["train_number"] != "12650" || ops["delay_minutes"] != 30 || ops["location"] != "Chennai" {
		t.Errorf("context did not override: %v", ops)
	}
}

func TestKeywordPlannerEmptyRequest(t *testing.T) {
	out, err := KeywordPlanner{}.Plan(context.Background(), orchestrator.PlanRequest{Request: "  "})
	if err != nil || out.Kind != models.OutcomeClarification {
		t.Errorf("out = %+v, err = %v", out, err)
	}
}

func TestFilePlanner(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "plan.yaml")
	if err := os.WriteFile(yamlPath, []byte(`
request_type: delay_management
priority: high
subtasks:
  - task_id: ops
    agent: operations
    inputs:
      train_number: "12627"
      delay_minutes: 45
  - task_id: notify
    agent: alert
    dependencies: [ops]
    execution_type: parallel
`), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := NewFilePlanner(yamlPath)
	if err != nil {
		t.Fatalf("NewFilePlanner: %v", err)
	}
	out, _ := p.Plan(context.Background(), orchestrator.PlanRequest{})
	if len(out.Plan.Subtasks) != 2 || out.Plan.Subtasks[0].ExecutionType != models.ExecutionSequential {
		t.Fatalf("plan = %+v", out.Plan)
	}
	out.Plan.Subtasks[0].Status = models.TaskStatusSuccess
	again, _ := p.Plan(context.Background(), orchestrator.PlanRequest{})
	if again.Plan.Subtasks[0].Status != models.TaskStatusPending {
		t.Error("FilePlanner should hand out copies")
	}

	jsonPath := filepath.Join(dir, "plan.json")
	_ = os.WriteFile(jsonPath, []byte(`{"subtasks":[{"task_id":"a","agent":"crowd"}]}`), 0o644)
	if _, err := LoadPlan(jsonPath); err != nil {
		t.Errorf("LoadPlan(json): %v", err)
	}

	badPath := filepath.Join(dir, "bad.yaml")
	_ = os.WriteFile(badPath, []byte("subtasks: []\n"), 0o644)
	if _, err := LoadPlan(badPath); err == nil {
		t.Error("expected error for plan without subtasks")
	}
	if _, err := LoadPlan(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
