package executors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/railmind/internal/notify"
	"github.com/ShayCichocki/railmind/internal/orchestrator"
	"github.com/ShayCichocki/railmind/internal/railway"
)

// Channels understood by the alert executor.
const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"
	ChannelApp   = "app"
	// ChannelPush is accepted as another name for ChannelApp.
	ChannelPush = "push"
)

// smsLimit is the maximum SMS length in characters.
const smsLimit = 160

// Alert composes per-channel messages from upstream findings and sends
// them through a notifier.
type Alert struct {
	notifier notify.Notifier
	bookings railway.BookingProvider
	newID    func() string
	now      func() time.Time
}

func (a *Alert) Execute(ctx context.Context, inputs map[string]any, rc orchestrator.RunContext) (map[string]any, error) {
	channels := []string{ChannelSMS, ChannelApp}
	if v, ok := lookup("channels", inputs, rc); ok {
		var err error
		if channels, err = normalizeChannels(toStrings(v)); err != nil {
			return nil, err
		}
	}
	if len(channels) == 0 {
		return nil, orchestrator.Fail("no alert channels given")
	}

	train := lookupString("train_number", inputs, rc)
	text := composeAlertText(inputs, rc)
	subject := "Railway service update"
	if train != "" {
		subject = fmt.Sprintf("Train %s update", train)
	}
	priority := lookupString("priority", inputs, rc)
	if priority == "" {
		priority = lookupString("severity", inputs, rc)
	}
	if priority == "" {
		priority = "medium"
	}

	var explicit []string
	if v, ok := lookup("recipients", inputs, rc); ok {
		explicit = toStrings(v)
	}
	var passengers []railway.Passenger
	if len(explicit) == 0 && train != "" {
		var err error
		passengers, err = a.bookings.Passengers(ctx, train)
		switch {
		case errors.Is(err, railway.ErrTrainNotFound):
			return nil, orchestrator.Fail("train %s not found", train)
		case err != nil:
			return nil, fmt.Errorf("look up passengers of train %s: %w", train, err)
		}
	}

	alertID := a.newID()
	messages := map[string]any{}
	delivery := map[string]any{}
	var failures []error
	for _, ch := range channels {
		recipients := explicit
		if len(recipients) == 0 {
			recipients = recipientsFor(ch, passengers)
		}
		msg := notify.Alert{
			ID:         alertID,
			Channel:    ch,
			Priority:   priority,
			Recipients: recipients,
			Body:       text,
			CreatedAt:  a.now(),
		}
		switch ch {
		case ChannelSMS:
			msg.Body = truncateRunes(text, smsLimit)
			messages[ch] = msg.Body
		case ChannelEmail:
			msg.Subject = subject
			messages[ch] = map[string]any{"subject": subject, "body": text}
		case ChannelApp:
			msg.Subject = subject
			messages[ch] = map[string]any{"title": subject, "body": text}
		}

		n := len(recipients)
		if n == 0 {
			n = 1 // broadcast
		}
		if err := a.notifier.Notify(ctx, msg); err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", ch, err))
			delivery[ch] = map[string]any{"sent": 0, "failed": n}
			continue
		}
		delivery[ch] = map[string]any{"sent": n, "failed": 0}
	}

	out := map[string]any{
		"alert_id":        alertID,
		"priority":        priority,
		"channels":        channels,
		"messages":        messages,
		"delivery_status": delivery,
	}
	if len(failures) == len(channels) {
		return out, fmt.Errorf("every alert channel failed: %w", errors.Join(failures...))
	}
	return out, nil
}

// normalizeChannels maps aliases onto their channel and drops repeats.
func normalizeChannels(in []string) ([]string, error) {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, ch := range in {
		ch = strings.ToLower(ch)
		switch ch {
		case ChannelPush:
			ch = ChannelApp
		case ChannelSMS, ChannelEmail, ChannelApp:
		default:
			return nil, orchestrator.Fail("unknown alert channel %q", ch)
		}
		if !seen[ch] {
			seen[ch] = true
			out = append(out, ch)
		}
	}
	return out, nil
}

// composeAlertText prefers an explicit message, then builds one from
// delay or crowding findings, then falls back to the request text.
func composeAlertText(inputs map[string]any, rc orchestrator.RunContext) string {
	if msg := lookupString("message", inputs, rc); msg != "" {
		return msg
	}

	train := lookupString("train_number", inputs, rc)
	name := lookupString("train_name", inputs, rc)
	label := strings.TrimSpace("Train " + train + " " + name)

	if delay, ok := lookupInt("delay_minutes", inputs, rc); ok && delay > 0 && train != "" {
		text := fmt.Sprintf("%s is running %d min late.", label, delay)
		if loc := lookupString("location", inputs, rc); loc != "" {
			text = fmt.Sprintf("%s is running %d min late near %s.", label, delay, loc)
		}
		return text + " We regret the inconvenience."
	}
	if level := lookupString("occupancy_level", inputs, rc); level != "" {
		if train != "" {
			return fmt.Sprintf("%s: occupancy is %s. Please board through all doors and follow staff directions.", label, level)
		}
		if st := lookupString("station", inputs, rc); st != "" {
			return fmt.Sprintf("Crowding at %s is %s. Allow extra time to board.", st, level)
		}
	}
	return rc.Request
}

func recipientsFor(channel string, passengers []railway.Passenger) []string {
	var out []string
	for _, p := range passengers {
		switch channel {
		case ChannelSMS:
			if p.Phone != "" {
				out = append(out, p.Phone)
			}
		case ChannelEmail:
			if p.Email != "" {
				out = append(out, p.Email)
			}
		case ChannelApp:
			out = append(out, p.PNR)
		}
	}
	return out
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}
