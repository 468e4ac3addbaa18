// Package planner turns free-text railway requests into orchestrator plans.
package planner

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ShayCichocki/railmind/pkg/models"
)

// defaultQuestion is used when a planner asks for clarification without saying what it needs.
const defaultQuestion = "Could you give more detail about the train, station or booking involved?"

// wirePlan is the JSON structure returned by the model.
type wirePlan struct {
	RequestType            string     `json:"request_type"`
	Priority               string     `json:"priority"`
	Subtasks               []wireTask `json:"subtasks"`
	ExpectedOutcome        string     `json:"expected_outcome"`
	RequiresClarification  bool       `json:"requires_clarification"`
	ClarificationQuestions []string   `json:"clarification_questions"`
}

type wireTask struct {
	TaskID        flexID         `json:"task_id"`
	Description   string         `json:"description"`
	Agent         string         `json:"agent"`
	Dependencies  []flexID       `json:"dependencies"`
	ExecutionType string         `json:"execution_type"`
	Inputs        map[string]any `json:"inputs"`
}

// flexID accepts task ids written as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("task id must be a string or number, got %s", string(b))
	}
	*f = flexID(n.String())
	return nil
}

// Decode parses a model response into a plan outcome. It never fails: a
// response that cannot be used comes back as a malformed outcome carrying
// the raw text and the reason.
func Decode(raw string) models.PlanOutcome {
	body, err := extractObject(raw)
	if err != nil {
		return models.Malformed(raw, err.Error())
	}

	var wp wirePlan
	if err := json.Unmarshal([]byte(body), &wp); err != nil {
		return models.Malformed(raw, fmt.Sprintf("unmarshal JSON: %v", err))
	}

	if wp.RequiresClarification {
		questions := nonEmpty(wp.ClarificationQuestions)
		if len(questions) == 0 {
			questions = []string{defaultQuestion}
		}
		return models.NeedsClarification(questions...)
	}

	plan := &models.Plan{
		RequestType:     wp.RequestType,
		Priority:        wp.Priority,
		ExpectedOutcome: wp.ExpectedOutcome,
		Subtasks:        make([]*models.Task, 0, len(wp.Subtasks)),
	}
	for _, wt := range wp.Subtasks {
		deps := make([]string, 0, len(wt.Dependencies))
		for _, d := range wt.Dependencies {
			deps = append(deps, strings.TrimSpace(string(d)))
		}
		plan.Subtasks = append(plan.Subtasks, &models.Task{
			ID:            strings.TrimSpace(string(wt.TaskID)),
			Description:   wt.Description,
			Agent:         strings.ToLower(strings.TrimSpace(wt.Agent)),
			Dependencies:  deps,
			ExecutionType: models.ExecutionType(strings.ToLower(strings.TrimSpace(wt.ExecutionType))),
			Inputs:        wt.Inputs,
		})
	}

	if err := Normalize(plan); err != nil {
		return models.Malformed(raw, err.Error())
	}
	return models.ValidPlan(plan)
}

// Normalize checks the shape of a decoded plan and fills defaults: every
// task needs an id and a capability, execution type defaults to sequential
// and status is reset to pending. Dependency structure is left to the
// scheduler.
func Normalize(plan *models.Plan) error {
	if plan == nil {
		return errors.New("plan is empty")
	}
	if len(plan.Subtasks) == 0 {
		return errors.New("plan has no subtasks")
	}
	for i, t := range plan.Subtasks {
		if t == nil {
			return fmt.Errorf("subtask %d is null", i+1)
		}
		if t.ID == "" {
			return fmt.Errorf("subtask %d has no task_id", i+1)
		}
		if t.Agent == "" {
			return fmt.Errorf("task %s has no agent", t.ID)
		}
		if !t.ExecutionType.Valid() {
			return fmt.Errorf("task %s has unknown execution_type %q", t.ID, t.ExecutionType)
		}
		if t.ExecutionType == "" {
			t.ExecutionType = models.ExecutionSequential
		}
		t.Status = models.TaskStatusPending
	}
	return nil
}

// extractObject strips markdown fences and returns the outermost JSON object.
func extractObject(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", errors.New("empty response")
	}
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		preview := s
		if len(preview) > 200 {
			preview = preview[:200] + "... (truncated)"
		}
		return "", fmt.Errorf("no JSON object found in response (got %d chars): %s", len(s), strconv.Quote(preview))
	}
	return s[start : end+1], nil
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
