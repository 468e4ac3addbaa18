package models

// Plan is the current decomposition of a request into tasks.
type Plan struct {
	RequestType     string  `json:"request_type" yaml:"request_type"`
	Priority        string  `json:"priority" yaml:"priority"`
	Subtasks        []*Task `json:"subtasks" yaml:"subtasks"`
	ExpectedOutcome string  `json:"expected_outcome" yaml:"expected_outcome"`
}

// Clone returns a deep copy of the plan's task list.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	c := *p
	c.Subtasks = make([]*Task, len(p.Subtasks))
	for i, t := range p.Subtasks {
		c.Subtasks[i] = t.Clone()
	}
	return &c
}

// Task returns the subtask with the given ID, or nil.
func (p *Plan) Task(id string) *Task {
	if p == nil {
		return nil
	}
	for _, t := range p.Subtasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// OutcomeKind tags the result of decoding a planner response.
type OutcomeKind string

const (
	// OutcomeValidPlan means the planner produced a usable plan.
	OutcomeValidPlan OutcomeKind = "valid_plan"
	// OutcomeClarification means the planner needs more information from the caller.
	OutcomeClarification OutcomeKind = "clarification"
	// OutcomeMalformed means the planner response could not be turned into a plan.
	OutcomeMalformed OutcomeKind = "malformed_response"
)

// PlanOutcome is what crosses the planner boundary. Exactly one of Plan,
// Questions or Reason is meaningful, selected by Kind.
type PlanOutcome struct {
	Kind      OutcomeKind
	Plan      *Plan
	Questions []string
	// Raw is the unparsed planner output, kept for diagnostics on malformed responses.
	Raw    string
	Reason string
}

// ValidPlan wraps a plan as a valid outcome.
func ValidPlan(p *Plan) PlanOutcome {
	return PlanOutcome{Kind: OutcomeValidPlan, Plan: p}
}

// NeedsClarification builds a clarification outcome.
func NeedsClarification(questions ...string) PlanOutcome {
	return PlanOutcome{Kind: OutcomeClarification, Questions: questions}
}

// Malformed builds a malformed-response outcome.
func Malformed(raw, reason string) PlanOutcome {
	return PlanOutcome{Kind: OutcomeMalformed, Raw: raw, Reason: reason}
}
