package services

import (
	"errors"
	"fmt"
)

// State-conflict and validation failures. These are expected business
// outcomes, reported to the caller as values and never retried.
var (
	ErrTripNotFound         = errors.New("trip not found")
	ErrNotBookable          = errors.New("trip is not open for booking")
	ErrSelfBooking          = errors.New("drivers cannot book seats on their own trip")
	ErrDuplicateReservation = errors.New("an active reservation already exists for this trip")
	ErrNoPendingReservation = errors.New("no pending reservation for this trip")
	ErrNoActiveReservation  = errors.New("no active reservation for this trip")
	ErrTripHasReservations  = errors.New("trip still has active reservations")
	ErrNotTripOwner         = errors.New("account does not own this trip")
	ErrInvalidTransition    = errors.New("invalid trip status transition")
	ErrInvalidSeatCount     = errors.New("seat count must be at least 1")

	// ErrInvalidTrip marks trip publication failures caused by the input;
	// the wrapping message names the rejected field.
	ErrInvalidTrip = errors.New("invalid trip")
)

// InsufficientSeatsError carries the numbers the caller needs for an
// actionable message.
type InsufficientSeatsError struct {
	Requested int
	Available int
}

func (e *InsufficientSeatsError) Error() string {
	return fmt.Sprintf("insufficient seats: requested %d, %d available", e.Requested, e.Available)
}

// InsufficientCreditError carries the computed cost and the balance it
// exceeded.
type InsufficientCreditError struct {
	Required int
	Balance  int
}

func (e *InsufficientCreditError) Error() string {
	return fmt.Sprintf("insufficient credit: %d required, balance is %d", e.Required, e.Balance)
}
