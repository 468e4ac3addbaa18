package orchestrator

import (
	"context"

	"github.com/ShayCichocki/railmind/pkg/models"
)

// RetryReplanner re-issues every task that has not succeeded, unchanged.
type RetryReplanner struct{}

// Replan returns prev minus its successful tasks.
func (RetryReplanner) Replan(_ context.Context, prev *models.Plan, results map[string]models.ExecutionResult, _ string) (*models.Plan, error) {
	unfinished := make(map[string]bool)
	for _, t := range prev.Subtasks {
		if r, ok := results[t.ID]; !ok || !r.Succeeded() {
			unfinished[t.ID] = true
		}
	}
	return restrictPlan(prev, unfinished), nil
}

// restrictPlan returns a copy of plan holding only tasks whose IDs are in
// keep, each reset to pending. Plan order is preserved.
func restrictPlan(plan *models.Plan, keep map[string]bool) *models.Plan {
	out := &models.Plan{
		RequestType:     plan.RequestType,
		Priority:        plan.Priority,
		ExpectedOutcome: plan.ExpectedOutcome,
		Subtasks:        make([]*models.Task, 0, len(keep)),
	}
	for _, t := range plan.Subtasks {
		if !keep[t.ID] {
			continue
		}
		c := t.Clone()
		c.Status = models.TaskStatusPending
		out.Subtasks = append(out.Subtasks, c)
	}
	return out
}
