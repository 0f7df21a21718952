package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ridepool/backend/internal/events"
	"github.com/ridepool/backend/internal/models"
	"github.com/ridepool/backend/internal/notify"
	"github.com/ridepool/backend/internal/repository"
)

// PublishTrip validates and stores a new trip for the driver. The trip
// starts planned with the full seat pool available.
func (s *BookingService) PublishTrip(ctx context.Context, trip *models.Trip) error {
	trip.DepartureCity = strings.TrimSpace(trip.DepartureCity)
	trip.ArrivalCity = strings.TrimSpace(trip.ArrivalCity)
	if trip.DepartureCity == "" || trip.ArrivalCity == "" {
		return fmt.Errorf("%w: departure and arrival cities are required", ErrInvalidTrip)
	}
	if trip.TotalSeats < 1 {
		return ErrInvalidSeatCount
	}
	if trip.PricePerSeat.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: price per seat must be positive", ErrInvalidTrip)
	}
	if trip.ID == uuid.Nil {
		trip.ID = uuid.New()
	}
	trip.Status = models.TripStatusPlanned
	trip.AvailableSeats = trip.TotalSeats
	trip.Earnings = 0
	if !trip.DepartsAt().After(s.now()) {
		return fmt.Errorf("%w: departure must be in the future", ErrInvalidTrip)
	}
	if err := s.Trips.Create(ctx, trip); err != nil {
		return fmt.Errorf("create trip: %w", err)
	}
	return nil
}

// StartTrip moves a planned trip to in_progress. Only the driver may do it.
func (s *BookingService) StartTrip(ctx context.Context, tripID, driverID uuid.UUID) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin start-trip tx: %w", err)
	}
	defer tx.Rollback(ctx)

	trip, err := s.Trips.GetByIDForUpdate(ctx, tx, tripID)
	if err != nil {
		if errors.Is(err, repository.ErrTripNotFound) {
			return ErrTripNotFound
		}
		return fmt.Errorf("lock trip: %w", err)
	}
	if trip.DriverID != driverID {
		return ErrNotTripOwner
	}
	switch trip.Status {
	case "", models.TripStatusPlanned, models.TripStatusOpen:
	default:
		return ErrInvalidTransition
	}
	if err := s.Trips.UpdateStatus(ctx, tx, tripID, models.TripStatusInProgress); err != nil {
		return fmt.Errorf("update trip status: %w", err)
	}
	return tx.Commit(ctx)
}

// CompleteTrip moves an in_progress trip to completed and tells each
// confirmed passenger, best-effort.
func (s *BookingService) CompleteTrip(ctx context.Context, tripID, driverID uuid.UUID) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin complete-trip tx: %w", err)
	}
	defer tx.Rollback(ctx)

	trip, err := s.Trips.GetByIDForUpdate(ctx, tx, tripID)
	if err != nil {
		if errors.Is(err, repository.ErrTripNotFound) {
			return ErrTripNotFound
		}
		return fmt.Errorf("lock trip: %w", err)
	}
	if trip.DriverID != driverID {
		return ErrNotTripOwner
	}
	if trip.Status != models.TripStatusInProgress {
		return ErrInvalidTransition
	}
	if err := s.Trips.UpdateStatus(ctx, tx, tripID, models.TripStatusCompleted); err != nil {
		return fmt.Errorf("update trip status: %w", err)
	}

	confirmed, err := s.Reservations.ListConfirmedByTrip(ctx, tripID)
	if err != nil {
		s.Logger.Warn("list confirmed passengers failed", "trip_id", tripID, "error", err)
	}
	msg := fmt.Sprintf("trip %s to %s completed", trip.DepartureCity, trip.ArrivalCity)
	for _, res := range confirmed {
		s.notice(ctx, tx, notify.NoticeArgs{
			AccountID:     res.PassengerID,
			Event:         notify.NoticeTripCompleted,
			TripID:        tripID,
			ReservationID: &res.ID,
			Message:       msg,
		})
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit complete-trip: %w", err)
	}

	s.record(ctx, events.Event{Name: events.EventComplete, TripID: tripID, AccountID: driverID})
	return nil
}

// DeleteTrip cancels a trip that has no active reservations. Structural
// changes that would strand outstanding reservations are rejected. The
// trip row is kept (soft delete) so cancelled reservations and ledger
// entries retain their references; it just stops showing up anywhere.
func (s *BookingService) DeleteTrip(ctx context.Context, tripID, driverID uuid.UUID) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete-trip tx: %w", err)
	}
	defer tx.Rollback(ctx)

	trip, err := s.Trips.GetByIDForUpdate(ctx, tx, tripID)
	if err != nil {
		if errors.Is(err, repository.ErrTripNotFound) {
			return ErrTripNotFound
		}
		return fmt.Errorf("lock trip: %w", err)
	}
	if trip.DriverID != driverID {
		return ErrNotTripOwner
	}
	active, err := s.Reservations.CountActiveByTrip(ctx, tx, tripID)
	if err != nil {
		return fmt.Errorf("count active reservations: %w", err)
	}
	if active > 0 {
		return ErrTripHasReservations
	}
	if err := s.Trips.Delete(ctx, tx, tripID); err != nil {
		return fmt.Errorf("delete trip: %w", err)
	}
	return tx.Commit(ctx)
}

// SweepStalePending cancels pending reservations older than ttl through the
// normal cancel path, one transaction each. Returns how many were
// cancelled; individual failures are logged and skipped.
func (s *BookingService) SweepStalePending(ctx context.Context, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-ttl)
	stale, err := s.Reservations.ListStalePending(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale pending: %w", err)
	}

	cancelled := 0
	for _, res := range stale {
		if _, err := s.Cancel(ctx, res.TripID, res.PassengerID); err != nil {
			// A racing confirm or cancel already moved this one on.
			if errors.Is(err, ErrNoActiveReservation) || errors.Is(err, ErrTripNotFound) {
				continue
			}
			s.Logger.Warn("sweep cancel failed", "reservation_id", res.ID, "error", err)
			continue
		}
		cancelled++
	}
	return cancelled, nil
}
