package orchestrator

import (
	"github.com/ShayCichocki/railmind/pkg/models"
)

// AggregateInput is everything the aggregator needs to build a Response.
type AggregateInput struct {
	RunID   string
	Request string
	// Plan supplies request metadata (type, priority, expected outcome).
	Plan *models.Plan
	// Ledger is every task seen during the run, in first-declaration order.
	Ledger    []*models.Task
	Results   map[string]models.ExecutionResult
	Iteration int
	// Dispatched counts task results committed during the run.
	Dispatched int
	// Err is the early-termination reason, if any.
	Err       error
	Questions []string
}

// Aggregate builds the caller-facing Response. It only rearranges what is
// in the input: results are grouped by capability, each group in ledger
// order regardless of completion order.
func Aggregate(in AggregateInput) *models.Response {
	resp := &models.Response{
		RunID:     in.RunID,
		Request:   in.Request,
		Results:   make(map[string][]models.ExecutionResult),
		Iteration: in.Iteration,
		Questions: in.Questions,
	}
	if in.Err != nil {
		resp.Error = in.Err.Error()
	}

	if in.Plan != nil || len(in.Ledger) > 0 {
		plan := &models.Plan{}
		if in.Plan != nil {
			plan.RequestType = in.Plan.RequestType
			plan.Priority = in.Plan.Priority
			plan.ExpectedOutcome = in.Plan.ExpectedOutcome
		}
		plan.Subtasks = make([]*models.Task, 0, len(in.Ledger))
		for _, t := range in.Ledger {
			c := t.Clone()
			if r, ok := in.Results[t.ID]; ok {
				c.Status = r.Status
			}
			plan.Subtasks = append(plan.Subtasks, c)
		}
		resp.Plan = plan
	}

	allSucceeded := true
	for _, t := range in.Ledger {
		r, ok := in.Results[t.ID]
		if !ok {
			allSucceeded = false
			continue
		}
		if !r.Succeeded() {
			allSucceeded = false
		}
		resp.Results[r.Agent] = append(resp.Results[r.Agent], r)
	}

	switch {
	case in.Err == nil && allSucceeded:
		resp.Status = models.ResponseCompleted
	case in.Dispatched == 0:
		resp.Status = models.ResponseError
	default:
		resp.Status = models.ResponsePartial
	}
	return resp
}
