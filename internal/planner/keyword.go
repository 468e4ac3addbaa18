package planner

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/ShayCichocki/railmind/internal/orchestrator"
	"github.com/ShayCichocki/railmind/pkg/models"
)

var (
	trainNumberRe = regexp.MustCompile(`\b(\d{5})\b`)
	delayMinRe    = regexp.MustCompile(`(?i)\b(\d{1,4})\s*(?:min|mins|minutes|minute)\b`)
	delayHourRe   = regexp.MustCompile(`(?i)\b(\d{1,2})\s*(?:h|hr|hrs|hour|hours)\b`)
	locationRe    = regexp.MustCompile(`\b(?:[Aa]t|[Nn]ear|[Ff]rom)\s+([A-Z][A-Za-z]+(?:\s+[A-Z][A-Za-z]+)?)`)
	pnrRe         = regexp.MustCompile(`(?i)\bpnr[:\s#]*(\d{10})\b`)
)

// KeywordPlanner builds plans from keyword rules without calling a model.
// It is used when no API key is configured and in tests.
type KeywordPlanner struct{}

var _ orchestrator.Planner = KeywordPlanner{}

// Plan matches the request against the rule set. Context values
// (train_number, delay_minutes, location, station, pnr) override what is
// parsed from the text.
func (KeywordPlanner) Plan(_ context.Context, req orchestrator.PlanRequest) (models.PlanOutcome, error) {
	text := strings.TrimSpace(req.Request)
	if text == "" {
		return models.NeedsClarification("What would you like help with: a delay, crowding, a booking or a document check?"), nil
	}
	f := extractFacts(text, req.Context)
	lower := strings.ToLower(text)
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	switch {
	case hasWord(words, "delay", "late", "behind"):
		return models.ValidPlan(delayPlan(text, f)), nil
	case hasWord(words, "capacity", "crowd", "occupancy", "overcrowd", "rush"):
		return models.ValidPlan(crowdPlan(text, f)), nil
	case hasWord(words, "refund", "booking", "ticket", "pnr", "cancel"):
		return models.ValidPlan(passengerPlan(text, f)), nil
	case hasWord(words, "alert", "notify", "broadcast", "announce"):
		return models.ValidPlan(broadcastPlan(text, f)), nil
	case hasWord(words, "bill", "invoice", "email", "phishing"):
		return models.ValidPlan(documentPlan(text, words)), nil
	default:
		return models.ValidPlan(&models.Plan{
			RequestType:     "general",
			Priority:        "low",
			ExpectedOutcome: "Answer to a general operations query",
			Subtasks: []*models.Task{
				keywordTask("task_1", models.CapabilityOperations, "Answer the operations query", nil, models.ExecutionSequential,
					map[string]any{"query": text}),
			},
		}), nil
	}
}

type facts struct {
	train    string
	delay    int
	location string
	pnr      string
}

func (f facts) trainInputs() map[string]any {
	in := map[string]any{}
	if f.train != "" {
		in["train_number"] = f.train
	}
	return in
}

func extractFacts(text string, runCtx map[string]any) facts {
	var f facts
	if m := trainNumberRe.FindStringSubmatch(text); m != nil {
		f.train = m[1]
	}
	if m := delayMinRe.FindStringSubmatch(text); m != nil {
		f.delay, _ = strconv.Atoi(m[1])
	} else if m := delayHourRe.FindStringSubmatch(text); m != nil {
		h, _ := strconv.Atoi(m[1])
		f.delay = h * 60
	}
	if m := locationRe.FindStringSubmatch(text); m != nil {
		f.location = m[1]
	}
	if m := pnrRe.FindStringSubmatch(text); m != nil {
		f.pnr = m[1]
	}

	if v := contextString(runCtx, "train_number"); v != "" {
		f.train = v
	}
	if v := contextString(runCtx, "location"); v != "" {
		f.location = v
	} else if v := contextString(runCtx, "station"); v != "" {
		f.location = v
	}
	if v := contextString(runCtx, "pnr"); v != "" {
		f.pnr = v
	}
	if v, ok := runCtx["delay_minutes"]; ok {
		if n, err := strconv.Atoi(fmt.Sprint(v)); err == nil {
			f.delay = n
		} else if fl, ok := v.(float64); ok {
			f.delay = int(fl)
		}
	}
	return f
}

func delayPlan(text string, f facts) *models.Plan {
	ops := f.trainInputs()
	ops["delay_minutes"] = f.delay
	if f.location != "" {
		ops["location"] = f.location
	}
	pax := f.trainInputs()
	pax["delay_minutes"] = f.delay

	priority := "medium"
	if f.delay >= 60 {
		priority = "high"
	}
	return &models.Plan{
		RequestType:     "delay_management",
		Priority:        priority,
		ExpectedOutcome: "Delay impact assessed, passengers offered options and notified",
		Subtasks: []*models.Task{
			keywordTask("task_1", models.CapabilityOperations, "Analyze delay impact: "+text, nil, models.ExecutionSequential, ops),
			keywordTask("task_2", models.CapabilityPassenger, "Find alternatives and refund options for affected passengers",
				[]string{"task_1"}, models.ExecutionParallel, pax),
			keywordTask("task_3", models.CapabilityAlert, "Notify affected passengers",
				[]string{"task_1"}, models.ExecutionParallel, map[string]any{"channels": []any{"sms", "app"}}),
		},
	}
}

func crowdPlan(text string, f facts) *models.Plan {
	in := f.trainInputs()
	if f.location != "" {
		in["station"] = f.location
	}
	return &models.Plan{
		RequestType:     "capacity",
		Priority:        "medium",
		ExpectedOutcome: "Occupancy assessed and passengers advised",
		Subtasks: []*models.Task{
			keywordTask("task_1", models.CapabilityCrowd, "Assess crowding: "+text, nil, models.ExecutionSequential, in),
			keywordTask("task_2", models.CapabilityAlert, "Advise passengers about crowding",
				[]string{"task_1"}, models.ExecutionSequential, map[string]any{"channels": []any{"app"}}),
		},
	}
}

func passengerPlan(text string, f facts) *models.Plan {
	in := f.trainInputs()
	in["delay_minutes"] = f.delay
	if f.pnr != "" {
		in["pnr"] = f.pnr
	}
	return &models.Plan{
		RequestType:     "passenger_service",
		Priority:        "medium",
		ExpectedOutcome: "Booking and refund options for the passenger",
		Subtasks: []*models.Task{
			keywordTask("task_1", models.CapabilityPassenger, "Handle passenger request: "+text, nil, models.ExecutionSequential, in),
		},
	}
}

// broadcastPlan sends one alert. The message, channels and recipients come
// from the run context when the caller supplied them.
func broadcastPlan(text string, f facts) *models.Plan {
	in := f.trainInputs()
	if f.location != "" {
		in["location"] = f.location
	}
	return &models.Plan{
		RequestType:     "broadcast",
		Priority:        "high",
		ExpectedOutcome: "Alert delivered on every requested channel",
		Subtasks: []*models.Task{
			keywordTask("task_1", models.CapabilityAlert, "Send alert: "+text, nil, models.ExecutionSequential, in),
		},
	}
}

func documentPlan(text string, words []string) *models.Plan {
	kind := "general"
	switch {
	case hasWord(words, "bill", "invoice"):
		kind = "bill"
	case hasWord(words, "email", "phishing"):
		kind = "email"
	}
	return &models.Plan{
		RequestType:     "document_check",
		Priority:        "low",
		ExpectedOutcome: "Extracted fields and a validation verdict",
		Subtasks: []*models.Task{
			keywordTask("task_1", models.CapabilityExtraction, "Extract fields from the document", nil, models.ExecutionSequential,
				map[string]any{"text": text}),
			keywordTask("task_2", models.CapabilityValidation, "Validate the extracted "+kind, []string{"task_1"}, models.ExecutionSequential,
				map[string]any{"kind": kind, "text": text}),
		},
	}
}

func keywordTask(id, agent, desc string, deps []string, et models.ExecutionType, inputs map[string]any) *models.Task {
	return &models.Task{
		ID:            id,
		Description:   desc,
		Agent:         agent,
		Dependencies:  deps,
		ExecutionType: et,
		Inputs:        inputs,
		Status:        models.TaskStatusPending,
	}
}

// hasWord reports whether any word starts with one of the keywords, so
// "delay" matches "delayed" but "late" does not match "validate".
func hasWord(words []string, keywords ...string) bool {
	for _, w := range words {
		for _, k := range keywords {
			if strings.HasPrefix(w, k) {
				return true
			}
		}
	}
	return false
}

func contextString(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
