package executors

import (
	"context"
	"errors"

	"github.com/ShayCichocki/railmind/internal/orchestrator"
	"github.com/ShayCichocki/railmind/internal/railway"
)

// fullRefundDelay is the delay in minutes from which a ticket is refundable in full.
const fullRefundDelay = 180

// Passenger finds alternatives and refund options for travellers on a
// delayed train.
type Passenger struct {
	schedule railway.ScheduleProvider
	bookings railway.BookingProvider
}

func (p *Passenger) Execute(ctx context.Context, inputs map[string]any, rc orchestrator.RunContext) (map[string]any, error) {
	out := map[string]any{}

	var pax *railway.Passenger
	if pnr := lookupString("pnr", inputs, rc); pnr != "" {
		found, err := p.bookings.Passenger(ctx, pnr)
		if errors.Is(err, railway.ErrPassengerNotFound) {
			return nil, orchestrator.Fail("no booking for PNR %s", pnr)
		}
		if err != nil {
			return nil, err
		}
		pax = found
		out["passenger"] = map[string]any{
			"pnr":      found.PNR,
			"name":     found.Name,
			"class":    found.Class,
			"boarding": found.Boarding,
		}
	}

	train := lookupString("train_number", inputs, rc)
	if pax != nil {
		train = pax.TrainNumber
	}
	if train == "" {
		return nil, orchestrator.Fail("no train_number or pnr given")
	}
	t, err := p.schedule.Train(ctx, train)
	if errors.Is(err, railway.ErrTrainNotFound) {
		return nil, orchestrator.Fail("train %s not found", train)
	}
	if err != nil {
		return nil, err
	}

	delay, _ := lookupInt("delay_minutes", inputs, rc)
	out["train_number"] = t.Number
	out["delay_minutes"] = delay

	refund := map[string]any{"eligible": delay >= fullRefundDelay}
	if delay >= fullRefundDelay {
		refund["percent"] = 100
		refund["reason"] = "delay of three hours or more"
		if pax != nil {
			refund["amount"] = pax.Fare
		}
	} else {
		refund["percent"] = 0
		refund["reason"] = "delay below the three hour threshold"
	}
	out["refund"] = refund

	boarding := t.Route[0].Station
	if pax != nil && pax.Boarding != "" {
		boarding = pax.Boarding
	} else if loc := lookupString("location", inputs, rc); loc != "" && t.StopAt(loc) >= 0 {
		boarding = loc
	}
	alts, err := p.alternatives(ctx, t, boarding)
	if err != nil {
		return nil, err
	}
	out["alternatives"] = alts

	if ps, err := p.bookings.Passengers(ctx, t.Number); err == nil {
		out["affected_passengers"] = len(ps)
	}
	if occ, err := p.bookings.Occupancy(ctx, t.Number); err == nil {
		out["booking_summary"] = map[string]any{
			"total_booked":   occ.TotalBooked,
			"waitlisted":     occ.Waitlisted,
			"occupancy_rate": occ.Rate,
		}
	}
	return out, nil
}

// alternatives lists other trains that depart boarding and later reach the
// delayed train's destination.
func (p *Passenger) alternatives(ctx context.Context, delayed *railway.Train, boarding string) ([]map[string]any, error) {
	trains, err := p.schedule.Trains(ctx)
	if err != nil {
		return nil, err
	}
	dest := delayed.Route[len(delayed.Route)-1].Station

	var alts []map[string]any
	for i := range trains {
		t := &trains[i]
		if t.Number == delayed.Number {
			continue
		}
		from, to := t.StopAt(boarding), t.StopAt(dest)
		if from < 0 || to <= from || t.Route[from].Departure == "" {
			continue
		}
		alts = append(alts, map[string]any{
			"train_number": t.Number,
			"train_name":   t.Name,
			"from":         t.Route[from].Station,
			"departure":    t.Route[from].Departure,
			"to":           t.Route[to].Station,
			"arrival":      t.Route[to].Arrival,
		})
	}
	return alts, nil
}
