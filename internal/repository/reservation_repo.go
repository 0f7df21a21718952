package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ridepool/backend/internal/models"
)

// ErrReservationNotFound is returned when no reservation matches the lookup.
var ErrReservationNotFound = errors.New("reservation not found")

type ReservationRepo struct {
	pool *pgxpool.Pool
}

func NewReservationRepo(pool *pgxpool.Pool) *ReservationRepo {
	return &ReservationRepo{pool: pool}
}

const reservationColumns = "id, trip_id, passenger_id, seats_booked, status, booking_date, confirmed_at, credit_spent, driver_credit, created_at, updated_at"

func scanReservation(row pgx.Row) (*models.Reservation, error) {
	var res models.Reservation
	err := row.Scan(&res.ID, &res.TripID, &res.PassengerID, &res.SeatsBooked, &res.Status, &res.BookingDate,
		&res.ConfirmedAt, &res.CreditSpent, &res.DriverCredit, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}
	return &res, nil
}

// Create inserts the reservation inside the caller's transaction. The
// partial unique index on active (trip, passenger) pairs backs up the
// engine's duplicate check.
func (r *ReservationRepo) Create(ctx context.Context, tx pgx.Tx, res *models.Reservation) error {
	return tx.QueryRow(ctx, `
		INSERT INTO reservations (id, trip_id, passenger_id, seats_booked, status, booking_date, confirmed_at, credit_spent, driver_credit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, res.ID, res.TripID, res.PassengerID, res.SeatsBooked, res.Status, res.BookingDate,
		res.ConfirmedAt, res.CreditSpent, res.DriverCredit).Scan(&res.CreatedAt, &res.UpdatedAt)
}

// GetActiveForUpdate locks the pending-or-confirmed reservation for the
// (trip, passenger) pair. Lock the trip row first; lock order is always
// trip, then reservation, then accounts.
func (r *ReservationRepo) GetActiveForUpdate(ctx context.Context, tx pgx.Tx, tripID, passengerID uuid.UUID) (*models.Reservation, error) {
	return scanReservation(tx.QueryRow(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE trip_id = $1 AND passenger_id = $2 AND status IN ('pending', 'confirmed')
		FOR UPDATE
	`, tripID, passengerID))
}

// GetPendingForUpdate locks the pending reservation for the pair, if any.
func (r *ReservationRepo) GetPendingForUpdate(ctx context.Context, tx pgx.Tx, tripID, passengerID uuid.UUID) (*models.Reservation, error) {
	return scanReservation(tx.QueryRow(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE trip_id = $1 AND passenger_id = $2 AND status = 'pending'
		FOR UPDATE
	`, tripID, passengerID))
}

// Update writes the mutable reservation fields. Call after a ForUpdate
// variant in the same transaction.
func (r *ReservationRepo) Update(ctx context.Context, tx pgx.Tx, res *models.Reservation) error {
	_, err := tx.Exec(ctx, `
		UPDATE reservations
		SET seats_booked = $2, status = $3, confirmed_at = $4, credit_spent = $5, driver_credit = $6, updated_at = now()
		WHERE id = $1
	`, res.ID, res.SeatsBooked, res.Status, res.ConfirmedAt, res.CreditSpent, res.DriverCredit)
	return err
}

// CountActiveByTrip counts pending and confirmed reservations on the trip.
// Used as the structural-change guard before a trip is deleted.
func (r *ReservationRepo) CountActiveByTrip(ctx context.Context, tx pgx.Tx, tripID uuid.UUID) (int, error) {
	var n int
	err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM reservations WHERE trip_id = $1 AND status IN ('pending', 'confirmed')
	`, tripID).Scan(&n)
	return n, err
}

func (r *ReservationRepo) ListConfirmedByTrip(ctx context.Context, tripID uuid.UUID) ([]*models.Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE trip_id = $1 AND status = 'confirmed' ORDER BY booking_date
	`, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReservations(rows)
}

func (r *ReservationRepo) ListByPassenger(ctx context.Context, passengerID uuid.UUID) ([]*models.Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE passenger_id = $1 ORDER BY booking_date DESC
	`, passengerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReservations(rows)
}

// ListStalePending returns pending reservations booked before the cutoff.
// The sweep cancels them through the booking engine; this query itself
// takes no locks.
func (r *ReservationRepo) ListStalePending(ctx context.Context, cutoff time.Time) ([]*models.Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE status = 'pending' AND booking_date < $1 ORDER BY booking_date
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReservations(rows)
}

func collectReservations(rows pgx.Rows) ([]*models.Reservation, error) {
	var list []*models.Reservation
	for rows.Next() {
		var res models.Reservation
		if err := rows.Scan(&res.ID, &res.TripID, &res.PassengerID, &res.SeatsBooked, &res.Status, &res.BookingDate,
			&res.ConfirmedAt, &res.CreditSpent, &res.DriverCredit, &res.CreatedAt, &res.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &res)
	}
	return list, rows.Err()
}
