// Package flightsim is an in-memory flight status service for demos and local
// development. Operators flip a flight to "cancelled" and the monitor picks it
// up on the next cycle.
package flightsim

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"triggerpay/internal/model"
)

// Flight statuses accepted by SetStatus.
var ValidStatuses = []string{
	"scheduled",
	"boarding",
	"departed",
	"in_air",
	"landed",
	"cancelled",
	"delayed",
}

// Flight is the status document served for one flight number.
type Flight struct {
	FlightNumber       string `json:"flight_number"`
	Status             string `json:"status"`
	Airline            string `json:"airline"`
	DepartureAirport   string `json:"departure_airport"`
	ArrivalAirport     string `json:"arrival_airport"`
	ScheduledDeparture string `json:"scheduled_departure"`
	ScheduledArrival   string `json:"scheduled_arrival"`
	UpdatedAt          string `json:"updated_at"`
}

var seeds = map[string]Flight{
	"AA1234": {
		FlightNumber:       "AA1234",
		Airline:            "American Airlines",
		DepartureAirport:   "JFK",
		ArrivalAirport:     "LAX",
		ScheduledDeparture: "2026-02-15T08:00:00Z",
		ScheduledArrival:   "2026-02-15T11:30:00Z",
	},
	"UA5678": {
		FlightNumber:       "UA5678",
		Airline:            "United Airlines",
		DepartureAirport:   "SFO",
		ArrivalAirport:     "ORD",
		ScheduledDeparture: "2026-02-16T14:00:00Z",
		ScheduledArrival:   "2026-02-16T18:15:00Z",
	},
	"DL9012": {
		FlightNumber:       "DL9012",
		Airline:            "Delta Air Lines",
		DepartureAirport:   "ATL",
		ArrivalAirport:     "MIA",
		ScheduledDeparture: "2026-02-17T10:30:00Z",
		ScheduledArrival:   "2026-02-17T12:45:00Z",
	},
}

// Sim holds status overrides. Flights without an override are "scheduled".
type Sim struct {
	mu        sync.RWMutex
	overrides map[string]string
	now       func() time.Time
}

func New(now func() time.Time) *Sim {
	if now == nil {
		now = time.Now
	}
	return &Sim{overrides: make(map[string]string), now: now}
}

// ValidStatus reports whether status may be set.
func ValidStatus(status string) bool {
	for _, s := range ValidStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Flight returns the current document for number. Unknown numbers get
// generic placeholder details rather than an error.
func (s *Sim) Flight(number string) Flight {
	key := strings.ToUpper(strings.TrimSpace(number))
	stamp := s.now().UTC().Format(time.RFC3339)

	s.mu.RLock()
	status, ok := s.overrides[key]
	s.mu.RUnlock()
	if !ok {
		status = "scheduled"
	}

	flight, ok := seeds[key]
	if !ok {
		airline := key
		if len(airline) > 2 {
			airline = airline[:2]
		}
		flight = Flight{
			FlightNumber:       key,
			Airline:            airline,
			DepartureAirport:   "---",
			ArrivalAirport:     "---",
			ScheduledDeparture: stamp,
			ScheduledArrival:   stamp,
		}
	}
	flight.Status = status
	flight.UpdatedAt = stamp
	return flight
}

// SetStatus overrides the status of number.
func (s *Sim) SetStatus(number, status string) (string, error) {
	key := strings.ToUpper(strings.TrimSpace(number))
	if len(key) < 2 {
		return "", fmt.Errorf("invalid flight number %q", number)
	}
	if !ValidStatus(status) {
		return "", fmt.Errorf("invalid status %q, must be one of: %s", status, strings.Join(ValidStatuses, ", "))
	}
	s.mu.Lock()
	s.overrides[key] = status
	s.mu.Unlock()
	return key, nil
}

// Overrides returns a copy of every explicitly set status.
func (s *Sim) Overrides() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.overrides))
	for k, v := range s.overrides {
		out[k] = v
	}
	return out
}

// SeededFlights lists the flight numbers with known details.
func SeededFlights() []string {
	out := make([]string, 0, len(seeds))
	for k := range seeds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Fetch lets the simulator serve as an in-process condition source.
func (s *Sim) Fetch(ctx context.Context, key string) (model.Observation, error) {
	if err := ctx.Err(); err != nil {
		return model.Observation{}, err
	}
	flight := s.Flight(key)
	raw, err := json.Marshal(flight)
	if err != nil {
		return model.Observation{}, fmt.Errorf("encode flight: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return model.Observation{}, fmt.Errorf("decode flight: %w", err)
	}
	return model.Observation{
		Key:       flight.FlightNumber,
		Status:    flight.Status,
		UpdatedAt: flight.UpdatedAt,
		Fields:    fields,
		Raw:       raw,
	}, nil
}
