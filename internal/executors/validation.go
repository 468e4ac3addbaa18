package executors

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ShayCichocki/railmind/internal/orchestrator"
)

var phishingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`urgent.*action.*required`),
	regexp.MustCompile(`verify.*account`),
	regexp.MustCompile(`click.*here.*immediately`),
	regexp.MustCompile(`suspended.*account`),
	regexp.MustCompile(`unusual.*activity`),
}

var senderRe = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

var dateLayouts = []string{"2006-01-02", "02/01/2006", "2/1/2006", "2 Jan 2006", "2 January 2006"}

// maxBillAge is how old a bill may be before it draws a warning.
const maxBillAge = 2 * 365 * 24 * time.Hour

// Validation checks bills, emails and generic fields. Any issue fails the
// task; warnings are reported but do not.
type Validation struct {
	now func() time.Time
}

func (v *Validation) Execute(_ context.Context, inputs map[string]any, rc orchestrator.RunContext) (map[string]any, error) {
	kind := strings.ToLower(lookupString("kind", inputs, rc))
	if kind == "" {
		kind = "general"
	}
	text := lookupString("text", inputs, rc)
	if text == "" {
		text = rc.Request
	}
	local := Extract(text)
	field := func(key string) string {
		if s := lookupString(key, inputs, rc); s != "" {
			return s
		}
		if x, ok := local[key]; ok {
			return strings.TrimSpace(fmt.Sprint(x))
		}
		return ""
	}

	var issues, warnings []string
	switch kind {
	case "bill":
		issues, warnings = v.checkBill(text, field)
	case "email":
		issues, warnings = checkEmail(text, field)
	case "general":
		issues = checkGeneral(text, inputs, rc)
	default:
		return nil, orchestrator.Fail("unknown validation kind %q", kind)
	}

	confidence := 1.0 - 0.25*float64(len(issues)) - 0.1*float64(len(warnings))
	confidence = math.Max(0, math.Round(confidence*100)/100)
	out := map[string]any{
		"kind":       kind,
		"is_valid":   len(issues) == 0,
		"issues":     issues,
		"warnings":   warnings,
		"confidence": confidence,
	}
	if len(issues) > 0 {
		return out, orchestrator.Fail("%s validation failed: %s", kind, strings.Join(issues, "; "))
	}
	return out, nil
}

func (v *Validation) checkBill(text string, field func(string) string) (issues, warnings []string) {
	amount := field("amount")
	if amount == "" {
		issues = append(issues, "no amount found")
	} else if f, err := strconv.ParseFloat(strings.ReplaceAll(amount, ",", ""), 64); err != nil {
		issues = append(issues, fmt.Sprintf("amount %q is not numeric", amount))
	} else if !amountInText(f, text) {
		issues = append(issues, fmt.Sprintf("amount %s does not appear in the document", amount))
	}

	if date := field("date"); date == "" {
		warnings = append(warnings, "no bill date found")
	} else if d, ok := parseDate(date); !ok {
		warnings = append(warnings, fmt.Sprintf("unrecognised date %q", date))
	} else {
		now := v.now()
		switch {
		case d.After(now):
			issues = append(issues, fmt.Sprintf("bill date %s is in the future", date))
		case now.Sub(d) > maxBillAge:
			warnings = append(warnings, fmt.Sprintf("bill date %s is more than two years old", date))
		}
	}

	if provider := field("provider"); provider != "" && !strings.Contains(strings.ToLower(text), strings.ToLower(provider)) {
		issues = append(issues, fmt.Sprintf("provider %q does not appear in the document", provider))
	}
	return issues, warnings
}

func checkEmail(text string, field func(string) string) (issues, warnings []string) {
	lower := strings.ToLower(text)
	var hits []string
	for _, re := range phishingPatterns {
		if re.MatchString(lower) {
			hits = append(hits, re.String())
		}
	}
	switch {
	case len(hits) >= 2:
		issues = append(issues, "likely phishing: matches "+strings.Join(hits, ", "))
	case len(hits) == 1:
		warnings = append(warnings, "suspicious phrasing: "+hits[0])
	}

	sender := field("sender")
	switch {
	case sender == "":
		issues = append(issues, "no sender address")
	case !senderRe.MatchString(sender):
		issues = append(issues, fmt.Sprintf("sender %q is not a valid address", sender))
	}
	return issues, warnings
}

// checkGeneral requires non-empty text and applies any per-field checks
// given as {"checks": {"field": "numeric|date|email|not_empty"}}.
func checkGeneral(text string, inputs map[string]any, rc orchestrator.RunContext) []string {
	var issues []string
	if strings.TrimSpace(text) == "" {
		issues = append(issues, "document is empty")
	}
	checks, _ := inputs["checks"].(map[string]any)
	for _, name := range sortedKeys(checks) {
		kind := fmt.Sprint(checks[name])
		if !QuickValidate(lookupString(name, inputs, rc), kind) {
			issues = append(issues, fmt.Sprintf("field %s fails %s check", name, kind))
		}
	}
	return issues
}

// QuickValidate checks a single value against a named rule. Unknown rules pass.
func QuickValidate(value, rule string) bool {
	value = strings.TrimSpace(value)
	switch rule {
	case "numeric":
		_, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", ""), 64)
		return err == nil
	case "date":
		_, ok := parseDate(value)
		return ok
	case "email":
		return senderRe.MatchString(value)
	case "not_empty":
		return value != ""
	default:
		return true
	}
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func amountInText(v float64, text string) bool {
	plain := strings.ReplaceAll(text, ",", "")
	for _, s := range []string{strconv.FormatFloat(v, 'f', -1, 64), strconv.FormatFloat(v, 'f', 2, 64)} {
		if strings.Contains(plain, s) {
			return true
		}
	}
	return false
}
