package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ShayCichocki/railmind/internal/orchestrator"
	"github.com/ShayCichocki/railmind/pkg/models"
)

// Completer sends a single-turn prompt to a language model. *api.Client
// satisfies it.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// LLMPlanner plans and replans through a language model.
type LLMPlanner struct {
	client       Completer
	capabilities []string
}

var (
	_ orchestrator.Planner   = (*LLMPlanner)(nil)
	_ orchestrator.Replanner = (*LLMPlanner)(nil)
)

// NewLLMPlanner creates a planner that offers the given capability tags to the model.
func NewLLMPlanner(client Completer, capabilities []string) *LLMPlanner {
	if len(capabilities) == 0 {
		capabilities = models.KnownCapabilities()
	}
	return &LLMPlanner{client: client, capabilities: capabilities}
}

// Plan asks the model for a plan. A transport error is returned as an
// error; anything the model says comes back as an outcome.
func (p *LLMPlanner) Plan(ctx context.Context, req orchestrator.PlanRequest) (models.PlanOutcome, error) {
	prompt := fmt.Sprintf(planPrompt,
		p.capabilityList(),
		req.Request,
		toJSON(req.Context),
		toJSON(req.Memory),
	)
	raw, err := p.client.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return models.PlanOutcome{}, fmt.Errorf("plan request: %w", err)
	}
	return Decode(raw), nil
}

// Replan asks the model to revise a plan after a round with unfinished tasks.
func (p *LLMPlanner) Replan(ctx context.Context, prev *models.Plan, results map[string]models.ExecutionResult, request string) (*models.Plan, error) {
	prompt := fmt.Sprintf(replanPrompt,
		p.capabilityList(),
		request,
		toJSON(prev),
		toJSON(sortedResults(results)),
	)
	raw, err := p.client.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("replan request: %w", err)
	}

	out := Decode(raw)
	switch out.Kind {
	case models.OutcomeValidPlan:
		return out.Plan, nil
	case models.OutcomeClarification:
		return nil, fmt.Errorf("replan asked for clarification: %s", strings.Join(out.Questions, "; "))
	default:
		return nil, fmt.Errorf("replan response malformed: %s", out.Reason)
	}
}

func (p *LLMPlanner) capabilityList() string {
	var sb strings.Builder
	for _, c := range p.capabilities {
		sb.WriteString("- ")
		sb.WriteString(c)
		if d, ok := capabilityDescriptions[c]; ok {
			sb.WriteString(": ")
			sb.WriteString(d)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

var capabilityDescriptions = map[string]string{
	models.CapabilityOperations: "delay impact, platform availability, connected trains (inputs: train_number, delay_minutes, location)",
	models.CapabilityPassenger:  "alternatives, refunds and booking summaries for affected passengers (inputs: train_number, delay_minutes, pnr)",
	models.CapabilityCrowd:      "occupancy and crowding by train or station (inputs: train_number, station)",
	models.CapabilityAlert:      "notify passengers over sms, email and app (inputs: channels, message, recipients)",
	models.CapabilityExtraction: "pull amounts, dates, emails, train numbers and PNRs out of text (inputs: text)",
	models.CapabilityValidation: "check bills and emails for consistency and phishing (inputs: kind, text)",
}

func sortedResults(results map[string]models.ExecutionResult) []models.ExecutionResult {
	out := make([]models.ExecutionResult, 0, len(results))
	for _, r := range results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}

func toJSON(v any) string {
	if v == nil {
		return "{}"
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
