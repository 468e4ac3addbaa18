package executors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/railmind/internal/orchestrator"
	"github.com/ShayCichocki/railmind/internal/railway"
)

// transferBuffer is the minimum connection time at a station.
const transferBuffer = 15

// Severity buckets a delay.
func Severity(delayMinutes int) string {
	switch {
	case delayMinutes < 15:
		return "low"
	case delayMinutes < 60:
		return "medium"
	case delayMinutes < 180:
		return "high"
	default:
		return "critical"
	}
}

// Operations analyzes the impact of a delay along a train's remaining route.
type Operations struct {
	schedule railway.ScheduleProvider
	bookings railway.BookingProvider
}

// Execute handles two shapes of input: a delay report (train_number,
// delay_minutes, optional location) or a free-text query.
func (o *Operations) Execute(ctx context.Context, inputs map[string]any, rc orchestrator.RunContext) (map[string]any, error) {
	train := lookupString("train_number", inputs, rc)
	if train == "" {
		if q := lookupString("query", inputs, rc); q != "" {
			return o.answerQuery(ctx, q)
		}
		return nil, orchestrator.Fail("no train_number given")
	}

	t, err := o.schedule.Train(ctx, train)
	if errors.Is(err, railway.ErrTrainNotFound) {
		return nil, orchestrator.Fail("train %s not found", train)
	}
	if err != nil {
		return nil, err
	}

	delay, _ := lookupInt("delay_minutes", inputs, rc)
	if delay < 0 {
		return nil, orchestrator.Fail("delay_minutes must not be negative, got %d", delay)
	}
	location := lookupString("location", inputs, rc)

	from := 0
	if location != "" {
		if i := t.StopAt(location); i >= 0 {
			from = i
		}
	}

	severity := Severity(delay)
	var affected []map[string]any
	var atRisk []map[string]any
	for _, stop := range t.Route[from:] {
		if stop.Arrival == "" {
			continue
		}
		expected, _, err := railway.ShiftClock(stop.Arrival, delay)
		if err != nil {
			return nil, fmt.Errorf("train %s at %s: %w", t.Number, stop.Station, err)
		}
		affected = append(affected, map[string]any{
			"station":           stop.Station,
			"scheduled_arrival": stop.Arrival,
			"expected_arrival":  expected,
			"delay_minutes":     delay,
			"platform":          stop.Platform,
		})

		conns, err := o.schedule.ConnectingTrains(ctx, t.Number, stop.Station)
		if err != nil {
			return nil, err
		}
		for _, c := range conns {
			slack := clockDiff(stop.Arrival, c.Departure)
			if slack < 0 || slack >= delay+transferBuffer {
				continue
			}
			rec := "inform"
			if delay < 60 {
				rec = "hold"
			}
			atRisk = append(atRisk, map[string]any{
				"train_number":   c.TrainNumber,
				"train_name":     c.TrainName,
				"station":        stop.Station,
				"departure":      c.Departure,
				"slack_minutes":  slack,
				"recommendation": rec,
			})
		}
	}

	out := map[string]any{
		"train_number":      t.Number,
		"train_name":        t.Name,
		"delay_minutes":     delay,
		"severity":          severity,
		"affected_stations": affected,
		"connected_trains":  atRisk,
		"recommendations":   recommendations(severity, len(atRisk)),
	}
	if location != "" {
		out["location"] = location
	}

	if len(affected) > 0 {
		next := affected[0]["station"].(string)
		ps, err := o.schedule.PlatformAvailability(ctx, next)
		if err != nil {
			return nil, err
		}
		out["platform_status"] = map[string]any{
			"station":             next,
			"scheduled_platform":  affected[0]["platform"],
			"available_platforms": ps.Available,
		}
	}

	if occ, err := o.bookings.Occupancy(ctx, t.Number); err == nil {
		out["passengers_affected"] = occ.TotalBooked
	}
	return out, nil
}

func (o *Operations) answerQuery(ctx context.Context, query string) (map[string]any, error) {
	trains, err := o.schedule.Trains(ctx)
	if err != nil {
		return nil, err
	}
	var lines []string
	var listed []map[string]any
	lower := strings.ToLower(query)
	for _, t := range trains {
		mentioned := strings.Contains(lower, strings.ToLower(t.Name)) || strings.Contains(query, t.Number)
		for _, s := range t.Route {
			if strings.Contains(lower, strings.ToLower(s.Station)) {
				mentioned = true
			}
		}
		if !mentioned {
			continue
		}
		origin, dest := t.Route[0], t.Route[len(t.Route)-1]
		lines = append(lines, fmt.Sprintf("%s %s: %s %s to %s %s", t.Number, t.Name, origin.Station, origin.Departure, dest.Station, dest.Arrival))
		listed = append(listed, map[string]any{"train_number": t.Number, "train_name": t.Name})
	}
	if len(listed) == 0 {
		for _, t := range trains {
			listed = append(listed, map[string]any{"train_number": t.Number, "train_name": t.Name})
		}
	}
	answer := strings.Join(lines, "\n")
	if answer == "" {
		answer = fmt.Sprintf("%d trains in service; ask about a train number or station for details.", len(trains))
	}
	return map[string]any{"query": query, "answer": answer, "trains": listed}, nil
}

func recommendations(severity string, connectionsAtRisk int) []string {
	recs := []string{"Inform passengers at affected stations"}
	if connectionsAtRisk > 0 {
		recs = append(recs, "Coordinate with connecting trains")
	}
	switch severity {
	case "high":
		recs = append(recs, "Deploy additional platform staff")
	case "critical":
		recs = append(recs, "Deploy additional platform staff", "Arrange refreshments and alternative transport")
	}
	return recs
}

// clockDiff returns minutes from a to b on a 24h clock, or -1 if either is unparseable.
func clockDiff(a, b string) int {
	ta, err := time.Parse("15:04", a)
	if err != nil {
		return -1
	}
	tb, err := time.Parse("15:04", b)
	if err != nil {
		return -1
	}
	d := int(tb.Sub(ta).Minutes())
	if d < 0 {
		d += 24 * 60
	}
	return d
}
