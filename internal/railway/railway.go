// Package railway provides schedule and booking data to the executors.
package railway

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTrainNotFound is returned for train numbers missing from the dataset.
	ErrTrainNotFound = errors.New("train not found")
	// ErrPassengerNotFound is returned for unknown PNRs.
	ErrPassengerNotFound = errors.New("passenger not found")
)

// Stop is one station on a train's route. Arrival is empty at the origin and
// Departure is empty at the terminus.
type Stop struct {
	Station   string `yaml:"station" json:"station"`
	Arrival   string `yaml:"arrival,omitempty" json:"arrival,omitempty"`
	Departure string `yaml:"departure,omitempty" json:"departure,omitempty"`
	Platform  int    `yaml:"platform" json:"platform"`
}

// Train is a scheduled service.
type Train struct {
	Number    string `yaml:"number" json:"train_number"`
	Name      string `yaml:"name" json:"train_name"`
	Type      string `yaml:"type" json:"type"`
	Frequency string `yaml:"frequency" json:"frequency"`
	Route     []Stop `yaml:"route" json:"route"`
}

// StopAt returns the index of station on the route, or -1.
func (t *Train) StopAt(station string) int {
	for i, s := range t.Route {
		if equalStation(s.Station, station) {
			return i
		}
	}
	return -1
}

// StationCall is a train calling at a station.
type StationCall struct {
	TrainNumber string `json:"train_number"`
	TrainName   string `json:"train_name"`
	Arrival     string `json:"arrival,omitempty"`
	Departure   string `json:"departure,omitempty"`
	Platform    int    `json:"platform"`
}

// PlatformStatus reports which platforms at a station are in use.
type PlatformStatus struct {
	Station   string                `json:"station"`
	Usage     map[int][]StationCall `json:"platform_usage"`
	Available []int                 `json:"available_platforms"`
}

// ClassBooking is the booking state of one travel class.
type ClassBooking struct {
	Capacity int `yaml:"capacity" json:"capacity"`
	Booked   int `yaml:"booked" json:"booked"`
	Waitlist int `yaml:"waitlist,omitempty" json:"waitlist"`
}

// Occupancy summarizes the bookings on a train.
type Occupancy struct {
	TrainNumber   string                  `json:"train_number"`
	TotalCapacity int                     `json:"total_capacity"`
	TotalBooked   int                     `json:"total_booked"`
	Waitlisted    int                     `json:"waitlisted"`
	Rate          float64                 `json:"occupancy_rate"`
	Classes       map[string]ClassBooking `json:"class_wise_bookings"`
	Boarding      map[string]int          `json:"boarding_by_station"`
}

// Passenger is a booked traveller identified by PNR.
type Passenger struct {
	PNR         string `yaml:"pnr" json:"pnr"`
	TrainNumber string `yaml:"train_number" json:"train_number"`
	Name        string `yaml:"name" json:"name"`
	Class       string `yaml:"class" json:"class"`
	Boarding    string `yaml:"boarding" json:"boarding"`
	Fare        int    `yaml:"fare" json:"fare"`
	Phone       string `yaml:"phone,omitempty" json:"phone,omitempty"`
	Email       string `yaml:"email,omitempty" json:"email,omitempty"`
}

// ScheduleProvider answers timetable questions.
type ScheduleProvider interface {
	Train(ctx context.Context, number string) (*Train, error)
	Trains(ctx context.Context) ([]Train, error)
	StationCalls(ctx context.Context, station string) ([]StationCall, error)
	PlatformAvailability(ctx context.Context, station string) (*PlatformStatus, error)
	ConnectingTrains(ctx context.Context, number, station string) ([]StationCall, error)
}

// BookingProvider answers booking and passenger questions.
type BookingProvider interface {
	Occupancy(ctx context.Context, number string) (*Occupancy, error)
	Passengers(ctx context.Context, number string) ([]Passenger, error)
	Passenger(ctx context.Context, pnr string) (*Passenger, error)
}

// ShiftClock adds minutes to an "HH:MM" clock time, wrapping past midnight.
// The second return value counts the days rolled over.
func ShiftClock(hhmm string, minutes int) (string, int, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return "", 0, fmt.Errorf("parse clock %q: %w", hhmm, err)
	}
	total := t.Hour()*60 + t.Minute() + minutes
	days := 0
	for total >= 24*60 {
		total -= 24 * 60
		days++
	}
	for total < 0 {
		total += 24 * 60
		days--
	}
	return fmt.Sprintf("%02d:%02d", total/60, total%60), days, nil
}
