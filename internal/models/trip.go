package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Trip status enum. An empty status means the trip is still planned; rows
// created before the status column existed carry it, and "open" is the
// legacy spelling of planned. Cancelled is the soft-delete state: the row
// stays so cancelled reservations and ledger entries keep their references,
// but lookups and search no longer return it.
const (
	TripStatusPlanned    = "planned"
	TripStatusOpen       = "open"
	TripStatusInProgress = "in_progress"
	TripStatusCompleted  = "completed"
	TripStatusCancelled  = "cancelled"
)

// Trip is a scheduled ride published by a driver.
//
// Invariant: 0 <= AvailableSeats <= TotalSeats. AvailableSeats reflects
// confirmed commitments only; pending reservations hold no seats. Seat
// counters and Earnings are mutated only inside booking transactions.
type Trip struct {
	ID             uuid.UUID       `json:"id"`
	DriverID       uuid.UUID       `json:"driver_id"`
	DepartureCity  string          `json:"departure_city"`
	ArrivalCity    string          `json:"arrival_city"`
	DepartureDate  time.Time       `json:"departure_date"`
	DepartureTime  string          `json:"departure_time"` // "HH:MM", 24h
	PricePerSeat   decimal.Decimal `json:"price_per_seat"`
	TotalSeats     int             `json:"total_seats"`
	AvailableSeats int             `json:"available_seats"`
	Status         string          `json:"status"`
	Earnings       int             `json:"earnings"`
	EcoVehicle     bool            `json:"eco_vehicle"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// DepartsAt combines DepartureDate and DepartureTime into a single instant.
// A malformed time-of-day falls back to midnight of the departure date.
func (t *Trip) DepartsAt() time.Time {
	day := t.DepartureDate
	tod, err := time.Parse("15:04", t.DepartureTime)
	if err != nil {
		return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	}
	return time.Date(day.Year(), day.Month(), day.Day(), tod.Hour(), tod.Minute(), 0, 0, day.Location())
}

// Bookable reports whether new reservations may target this trip at the
// given instant: the trip must not have departed and must still be planned.
func (t *Trip) Bookable(now time.Time) bool {
	switch t.Status {
	case "", TripStatusPlanned, TripStatusOpen:
	default:
		return false
	}
	return t.DepartsAt().After(now)
}
