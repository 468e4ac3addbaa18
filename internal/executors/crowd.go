package executors

import (
	"context"
	"errors"
	"fmt"

	"github.com/ShayCichocki/railmind/internal/orchestrator"
	"github.com/ShayCichocki/railmind/internal/railway"
)

// OccupancyLevel buckets an occupancy rate, where 1.0 is a full train.
func OccupancyLevel(rate float64) string {
	switch {
	case rate < 0.7:
		return "low"
	case rate < 0.9:
		return "moderate"
	case rate < 1.0:
		return "high"
	default:
		return "overcrowded"
	}
}

// Crowd reports occupancy for a train or expected footfall at a station.
type Crowd struct {
	schedule railway.ScheduleProvider
	bookings railway.BookingProvider
}

func (c *Crowd) Execute(ctx context.Context, inputs map[string]any, rc orchestrator.RunContext) (map[string]any, error) {
	train := lookupString("train_number", inputs, rc)
	station := lookupString("station", inputs, rc)
	if station == "" {
		station = lookupString("location", inputs, rc)
	}

	switch {
	case train != "":
		return c.forTrain(ctx, train)
	case station != "":
		return c.forStation(ctx, station)
	default:
		return nil, orchestrator.Fail("need a train_number or station")
	}
}

func (c *Crowd) forTrain(ctx context.Context, train string) (map[string]any, error) {
	occ, err := c.bookings.Occupancy(ctx, train)
	if errors.Is(err, railway.ErrTrainNotFound) {
		return nil, orchestrator.Fail("no booking data for train %s", train)
	}
	if err != nil {
		return nil, err
	}

	level := OccupancyLevel(occ.Rate)
	var hints []string
	for _, name := range sortedKeys(occ.Classes) {
		cb := occ.Classes[name]
		if cb.Waitlist > 0 {
			hints = append(hints, fmt.Sprintf("Attach an extra %s coach for %d waitlisted passengers", name, cb.Waitlist))
		} else if cb.Capacity > 0 && cb.Booked >= cb.Capacity {
			hints = append(hints, fmt.Sprintf("%s is full; steer new bookings to other classes", name))
		}
	}
	if level == "overcrowded" {
		hints = append(hints, "Deploy crowd control staff at boarding stations")
	}

	return map[string]any{
		"train_number":     occ.TrainNumber,
		"occupancy_rate":   occ.Rate,
		"occupancy_level":  level,
		"total_booked":     occ.TotalBooked,
		"waitlisted":       occ.Waitlisted,
		"boarding_peaks":   occ.Boarding,
		"load_balancing":   hints,
		"total_capacity":   occ.TotalCapacity,
		"classes_assessed": len(occ.Classes),
	}, nil
}

// forStation sums boarding numbers across trains calling at station.
func (c *Crowd) forStation(ctx context.Context, station string) (map[string]any, error) {
	trains, err := c.schedule.Trains(ctx)
	if err != nil {
		return nil, err
	}
	total := 0
	var perTrain []map[string]any
	for _, t := range trains {
		i := t.StopAt(station)
		if i < 0 {
			continue
		}
		occ, err := c.bookings.Occupancy(ctx, t.Number)
		if err != nil {
			continue
		}
		n := occ.Boarding[t.Route[i].Station]
		total += n
		perTrain = append(perTrain, map[string]any{
			"train_number": t.Number,
			"boarding":     n,
			"platform":     t.Route[i].Platform,
		})
	}
	if len(perTrain) == 0 {
		return nil, orchestrator.Fail("no trains call at %s", station)
	}

	level := "low"
	switch {
	case total >= 300:
		level = "high"
	case total >= 150:
		level = "moderate"
	}
	return map[string]any{
		"station":           station,
		"expected_boarding": total,
		"occupancy_level":   level,
		"trains":            perTrain,
	}, nil
}
