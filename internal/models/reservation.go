package models

import (
	"time"

	"github.com/google/uuid"
)

// Reservation status enum. Pending is the initial state; confirmed and
// cancelled are terminal (no transition back to pending).
const (
	ReservationStatusPending   = "pending"
	ReservationStatusConfirmed = "confirmed"
	ReservationStatusCancelled = "cancelled"
)

// Reservation is a passenger's claim on seats of a trip. At most one active
// (pending or confirmed) reservation exists per (trip, passenger) pair;
// the store enforces this with a partial unique index.
//
// CreditSpent and DriverCredit are zero until the reservation is confirmed.
type Reservation struct {
	ID           uuid.UUID  `json:"id"`
	TripID       uuid.UUID  `json:"trip_id"`
	PassengerID  uuid.UUID  `json:"passenger_id"`
	SeatsBooked  int        `json:"seats_booked"`
	Status       string     `json:"status"`
	BookingDate  time.Time  `json:"booking_date"`
	ConfirmedAt  *time.Time `json:"confirmed_at,omitempty"`
	CreditSpent  int        `json:"credit_spent"`
	DriverCredit int        `json:"driver_credit"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Active reports whether the reservation still claims the trip.
func (r *Reservation) Active() bool {
	return r.Status == ReservationStatusPending || r.Status == ReservationStatusConfirmed
}
