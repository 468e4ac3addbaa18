package server

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ShayCichocki/railmind/pkg/models"
)

// ReplyText renders a response as a short chat message.
func ReplyText(resp *models.Response) string {
	if len(resp.Questions) > 0 {
		return formatQuestions(resp.Questions)
	}
	results := latestResults(resp)
	if len(results) == 0 {
		if resp.Error != "" {
			return "Sorry, I couldn't process your request: " + resp.Error
		}
		return "Sorry, I couldn't process your request."
	}

	var b strings.Builder
	switch resp.Status {
	case models.ResponseCompleted:
		b.WriteString("Done.")
	case models.ResponsePartial:
		b.WriteString("Partly done.")
	default:
		b.WriteString("Sorry, something went wrong.")
	}
	for _, r := range results {
		if r.Succeeded() {
			fmt.Fprintf(&b, "\n- %s: ok", r.Agent)
			continue
		}
		fmt.Fprintf(&b, "\n- %s: %s", r.Agent, r.Status)
		if r.Error != "" {
			fmt.Fprintf(&b, " (%s)", r.Error)
		}
	}
	return b.String()
}

func formatQuestions(questions []string) string {
	if len(questions) == 1 {
		return questions[0]
	}
	var b strings.Builder
	b.WriteString("I need some clarification:")
	for i, q := range questions {
		fmt.Fprintf(&b, "\n%d. %s", i+1, q)
	}
	return b.String()
}

// latestResults returns the newest result per task, in plan order when a
// plan is present and by task ID otherwise.
func latestResults(resp *models.Response) []models.ExecutionResult {
	latest := make(map[string]models.ExecutionResult)
	for _, rs := range resp.Results {
		for _, r := range rs {
			if prev, ok := latest[r.TaskID]; !ok || r.Attempt >= prev.Attempt {
				latest[r.TaskID] = r
			}
		}
	}

	var order []string
	seen := make(map[string]bool)
	if resp.Plan != nil {
		for _, t := range resp.Plan.Subtasks {
			if _, ok := latest[t.ID]; ok && !seen[t.ID] {
				order = append(order, t.ID)
				seen[t.ID] = true
			}
		}
	}
	var rest []string
	for id := range latest {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	order = append(order, rest...)

	out := make([]models.ExecutionResult, 0, len(order))
	for _, id := range order {
		out = append(out, latest[id])
	}
	return out
}
