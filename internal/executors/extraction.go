package executors

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/ShayCichocki/railmind/internal/orchestrator"
)

var (
	amountRe   = regexp.MustCompile(`(?i)(?:rs\.?|inr|₹|\$|usd)\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`)
	dateRe     = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{4}|\d{1,2} (?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]* \d{4})\b`)
	emailRe    = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	trainRe    = regexp.MustCompile(`\b\d{5}\b`)
	pnrFieldRe = regexp.MustCompile(`\b\d{10}\b`)
	providerRe = regexp.MustCompile(`(?im)^\s*(?:provider|biller|from|company)\s*:\s*(.+?)\s*$`)
)

// Extraction pulls structured fields out of free text.
type Extraction struct{}

// Execute reads "text" (or the request) and returns every field it finds.
// Finding nothing is a task failure.
func (Extraction) Execute(_ context.Context, inputs map[string]any, rc orchestrator.RunContext) (map[string]any, error) {
	text := lookupString("text", inputs, rc)
	if text == "" {
		text = rc.Request
	}
	fields := Extract(text)
	if fields["fields_found"].(int) == 0 {
		return fields, orchestrator.Fail("no structured fields found in text")
	}
	return fields, nil
}

// Extract runs every extractor over text.
func Extract(text string) map[string]any {
	out := map[string]any{}
	found := 0

	var amounts []string
	for _, m := range amountRe.FindAllStringSubmatch(text, -1) {
		amounts = append(amounts, m[1])
	}
	if len(amounts) > 0 {
		out["amounts"] = amounts
		if v, err := strconv.ParseFloat(strings.ReplaceAll(amounts[0], ",", ""), 64); err == nil {
			out["amount"] = v
		}
		found++
	}
	if dates := dateRe.FindAllString(text, -1); len(dates) > 0 {
		out["dates"] = dates
		out["date"] = dates[0]
		found++
	}
	if emails := emailRe.FindAllString(text, -1); len(emails) > 0 {
		out["emails"] = emails
		out["sender"] = emails[0]
		found++
	}
	if trains := trainRe.FindAllString(text, -1); len(trains) > 0 {
		out["train_numbers"] = trains
		found++
	}
	if pnrs := pnrFieldRe.FindAllString(text, -1); len(pnrs) > 0 {
		out["pnrs"] = pnrs
		found++
	}
	if m := providerRe.FindStringSubmatch(text); m != nil {
		out["provider"] = m[1]
		found++
	}
	out["fields_found"] = found
	return out
}
