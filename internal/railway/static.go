package railway

import (
	"context"
	_ "embed"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"
)

//go:embed dataset.yaml
var defaultDataset []byte

// Dataset is the on-disk form of the static data.
type Dataset struct {
	PlatformsPerStation int           `yaml:"platforms_per_station"`
	Trains              []Train       `yaml:"trains"`
	Bookings            []bookingSpec `yaml:"bookings"`
	Passengers          []Passenger   `yaml:"passengers"`
}

type bookingSpec struct {
	TrainNumber   string                  `yaml:"train_number"`
	TotalCapacity int                     `yaml:"total_capacity"`
	Classes       map[string]ClassBooking `yaml:"classes"`
	Boarding      map[string]int          `yaml:"boarding"`
}

// StaticProvider serves schedules and bookings from an in-memory dataset.
// It is read-only after construction and safe for concurrent use.
type StaticProvider struct {
	platforms  int
	trains     map[string]*Train
	order      []string
	bookings   map[string]bookingSpec
	passengers map[string]Passenger
}

var (
	_ ScheduleProvider = (*StaticProvider)(nil)
	_ BookingProvider  = (*StaticProvider)(nil)
)

// Default returns a provider over the built-in dataset.
func Default() (*StaticProvider, error) {
	return Parse(defaultDataset)
}

// Load returns a provider over the dataset at path, or the built-in
// dataset when path is empty.
func Load(path string) (*StaticProvider, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Parse builds a provider from YAML dataset bytes.
func Parse(data []byte) (*StaticProvider, error) {
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}
	return NewStaticProvider(ds)
}

// NewStaticProvider indexes a dataset.
func NewStaticProvider(ds Dataset) (*StaticProvider, error) {
	p := &StaticProvider{
		platforms:  ds.PlatformsPerStation,
		trains:     make(map[string]*Train, len(ds.Trains)),
		bookings:   make(map[string]bookingSpec, len(ds.Bookings)),
		passengers: make(map[string]Passenger, len(ds.Passengers)),
	}
	if p.platforms <= 0 {
		p.platforms = 6
	}
	for i := range ds.Trains {
		t := ds.Trains[i]
		if t.Number == "" {
			return nil, fmt.Errorf("train %d has no number", i+1)
		}
		if _, dup := p.trains[t.Number]; dup {
			return nil, fmt.Errorf("duplicate train %s", t.Number)
		}
		p.trains[t.Number] = &t
		p.order = append(p.order, t.Number)
	}
	for _, b := range ds.Bookings {
		p.bookings[b.TrainNumber] = b
	}
	for _, ps := range ds.Passengers {
		p.passengers[ps.PNR] = ps
	}
	return p, nil
}

// Train returns a copy of the schedule for number.
func (p *StaticProvider) Train(_ context.Context, number string) (*Train, error) {
	t, ok := p.trains[strings.TrimSpace(number)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTrainNotFound, number)
	}
	c := *t
	c.Route = append([]Stop(nil), t.Route...)
	return &c, nil
}

// Trains returns every train in dataset order.
func (p *StaticProvider) Trains(ctx context.Context) ([]Train, error) {
	out := make([]Train, 0, len(p.order))
	for _, n := range p.order {
		t, _ := p.Train(ctx, n)
		out = append(out, *t)
	}
	return out, nil
}

// StationCalls lists trains that arrive at station.
func (p *StaticProvider) StationCalls(_ context.Context, station string) ([]StationCall, error) {
	var calls []StationCall
	for _, n := range p.order {
		t := p.trains[n]
		for _, s := range t.Route {
			if equalStation(s.Station, station) && s.Arrival != "" {
				calls = append(calls, StationCall{
					TrainNumber: t.Number,
					TrainName:   t.Name,
					Arrival:     s.Arrival,
					Departure:   s.Departure,
					Platform:    s.Platform,
				})
			}
		}
	}
	return calls, nil
}

// PlatformAvailability reports platforms in use by arriving trains and the
// ones left free.
func (p *StaticProvider) PlatformAvailability(ctx context.Context, station string) (*PlatformStatus, error) {
	calls, err := p.StationCalls(ctx, station)
	if err != nil {
		return nil, err
	}
	st := &PlatformStatus{Station: station, Usage: make(map[int][]StationCall)}
	for _, c := range calls {
		st.Usage[c.Platform] = append(st.Usage[c.Platform], c)
	}
	for n := 1; n <= p.platforms; n++ {
		if _, used := st.Usage[n]; !used {
			st.Available = append(st.Available, n)
		}
	}
	return st, nil
}

// ConnectingTrains lists other trains departing from station that a
// passenger on number could transfer to.
func (p *StaticProvider) ConnectingTrains(ctx context.Context, number, station string) ([]StationCall, error) {
	main, err := p.Train(ctx, number)
	if err != nil {
		return nil, err
	}
	idx := main.StopAt(station)
	if idx < 0 || main.Route[idx].Arrival == "" {
		return nil, nil
	}

	var out []StationCall
	for _, n := range p.order {
		if n == main.Number {
			continue
		}
		t := p.trains[n]
		for _, s := range t.Route {
			if equalStation(s.Station, station) && s.Departure != "" {
				out = append(out, StationCall{
					TrainNumber: t.Number,
					TrainName:   t.Name,
					Arrival:     s.Arrival,
					Departure:   s.Departure,
					Platform:    s.Platform,
				})
			}
		}
	}
	return out, nil
}

// Occupancy summarizes bookings for number.
func (p *StaticProvider) Occupancy(_ context.Context, number string) (*Occupancy, error) {
	b, ok := p.bookings[strings.TrimSpace(number)]
	if !ok {
		return nil, fmt.Errorf("%w: no bookings for %s", ErrTrainNotFound, number)
	}
	occ := &Occupancy{
		TrainNumber:   b.TrainNumber,
		TotalCapacity: b.TotalCapacity,
		Classes:       make(map[string]ClassBooking, len(b.Classes)),
		Boarding:      make(map[string]int, len(b.Boarding)),
	}
	for name, c := range b.Classes {
		occ.Classes[name] = c
		occ.TotalBooked += c.Booked
		occ.Waitlisted += c.Waitlist
	}
	for st, n := range b.Boarding {
		occ.Boarding[st] = n
	}
	if occ.TotalCapacity == 0 {
		for _, c := range b.Classes {
			occ.TotalCapacity += c.Capacity
		}
	}
	if occ.TotalCapacity > 0 {
		occ.Rate = math.Round(float64(occ.TotalBooked+occ.Waitlisted)/float64(occ.TotalCapacity)*100) / 100
	}
	return occ, nil
}

// Passengers lists passengers booked on number, ordered by PNR.
func (p *StaticProvider) Passengers(_ context.Context, number string) ([]Passenger, error) {
	if _, ok := p.trains[number]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrTrainNotFound, number)
	}
	var out []Passenger
	for _, ps := range p.passengers {
		if ps.TrainNumber == number {
			out = append(out, ps)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PNR < out[j].PNR })
	return out, nil
}

// Passenger looks up a booking by PNR.
func (p *StaticProvider) Passenger(_ context.Context, pnr string) (*Passenger, error) {
	ps, ok := p.passengers[strings.TrimSpace(pnr)]
	if !ok {
		return nil, fmt.Errorf("%w: PNR %s", ErrPassengerNotFound, pnr)
	}
	return &ps, nil
}

func equalStation(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
