package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ridepool/backend/internal/models"
)

// ErrTripNotFound is returned when no trip matches the lookup.
var ErrTripNotFound = errors.New("trip not found")

type TripRepo struct {
	pool *pgxpool.Pool
}

func NewTripRepo(pool *pgxpool.Pool) *TripRepo {
	return &TripRepo{pool: pool}
}

const tripColumns = "id, driver_id, departure_city, arrival_city, departure_date, departure_time, price_per_seat, total_seats, available_seats, COALESCE(status, ''), earnings, eco_vehicle, created_at, updated_at"

func scanTrip(row pgx.Row) (*models.Trip, error) {
	var t models.Trip
	err := row.Scan(&t.ID, &t.DriverID, &t.DepartureCity, &t.ArrivalCity, &t.DepartureDate, &t.DepartureTime,
		&t.PricePerSeat, &t.TotalSeats, &t.AvailableSeats, &t.Status, &t.Earnings, &t.EcoVehicle, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTripNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *TripRepo) Create(ctx context.Context, t *models.Trip) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO trips (id, driver_id, departure_city, arrival_city, departure_date, departure_time, price_per_seat, total_seats, available_seats, status, earnings, eco_vehicle)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`, t.ID, t.DriverID, t.DepartureCity, t.ArrivalCity, t.DepartureDate, t.DepartureTime,
		t.PricePerSeat, t.TotalSeats, t.AvailableSeats, t.Status, t.Earnings, t.EcoVehicle).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *TripRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Trip, error) {
	return scanTrip(r.pool.QueryRow(ctx, `
		SELECT `+tripColumns+` FROM trips WHERE id = $1 AND (status IS NULL OR status <> 'cancelled')
	`, id))
}

// GetByIDForUpdate locks the trip row. Every seat or earnings mutation must
// go through this lock first so concurrent bookings on the same trip are
// strictly ordered. Cancelled (soft-deleted) trips are not found.
func (r *TripRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Trip, error) {
	return scanTrip(tx.QueryRow(ctx, `
		SELECT `+tripColumns+` FROM trips WHERE id = $1 AND (status IS NULL OR status <> 'cancelled') FOR UPDATE
	`, id))
}

// UpdateSeatState writes the seat counter and cumulative earnings. Call
// after GetByIDForUpdate in the same transaction.
func (r *TripRepo) UpdateSeatState(ctx context.Context, tx pgx.Tx, id uuid.UUID, availableSeats, earnings int) error {
	_, err := tx.Exec(ctx, `
		UPDATE trips SET available_seats = $2, earnings = $3, updated_at = now() WHERE id = $1
	`, id, availableSeats, earnings)
	return err
}

// UpdateStatus moves the trip through its lifecycle. Call after
// GetByIDForUpdate in the same transaction.
func (r *TripRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error {
	_, err := tx.Exec(ctx, `
		UPDATE trips SET status = $2, updated_at = now() WHERE id = $1
	`, id, status)
	return err
}

// Delete soft-deletes the trip by marking it cancelled. The row must stay:
// cancelled reservations and their ledger entries reference it.
func (r *TripRepo) Delete(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE trips SET status = 'cancelled', updated_at = now() WHERE id = $1
	`, id)
	return err
}

func (r *TripRepo) ListByDriver(ctx context.Context, driverID uuid.UUID) ([]*models.Trip, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+tripColumns+` FROM trips
		WHERE driver_id = $1 AND (status IS NULL OR status <> 'cancelled')
		ORDER BY departure_date, departure_time
	`, driverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrips(rows)
}

// TripSearch is the filter set shared by the exact and near-date queries.
// DateFrom == DateTo expresses an exact-date match.
type TripSearch struct {
	DepartureCity string
	ArrivalCity   string
	DateFrom      *time.Time
	DateTo        *time.Time
	EcoOnly       bool
	MaxPrice      *decimal.Decimal
	MinAvgRating  *float64
	Now           time.Time
}

// Search returns bookable future trips with seats left, matching the given
// filters, sorted by departure date then time. City filters are
// case-insensitive substring matches.
func (r *TripRepo) Search(ctx context.Context, q TripSearch) ([]*models.Trip, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	where = append(where, "(status IS NULL OR status IN ('', 'planned', 'open'))")
	where = append(where, "available_seats > 0")
	where = append(where, "(departure_date + departure_time::time) > "+arg(q.Now))

	if q.DepartureCity != "" {
		where = append(where, "departure_city ILIKE '%' || "+arg(q.DepartureCity)+" || '%'")
	}
	if q.ArrivalCity != "" {
		where = append(where, "arrival_city ILIKE '%' || "+arg(q.ArrivalCity)+" || '%'")
	}
	if q.DateFrom != nil && q.DateTo != nil {
		where = append(where, "departure_date BETWEEN "+arg(*q.DateFrom)+" AND "+arg(*q.DateTo))
	} else if q.DateFrom != nil {
		where = append(where, "departure_date = "+arg(*q.DateFrom))
	}
	if q.EcoOnly {
		where = append(where, "eco_vehicle = TRUE")
	}
	if q.MaxPrice != nil {
		where = append(where, "price_per_seat <= "+arg(*q.MaxPrice))
	}
	if q.MinAvgRating != nil {
		where = append(where, `driver_id IN (
			SELECT driver_id FROM reviews WHERE published GROUP BY driver_id HAVING AVG(rating) >= `+arg(*q.MinAvgRating)+`
		)`)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+tripColumns+`
		FROM trips
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY departure_date, departure_time
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrips(rows)
}

func collectTrips(rows pgx.Rows) ([]*models.Trip, error) {
	var list []*models.Trip
	for rows.Next() {
		var t models.Trip
		if err := rows.Scan(&t.ID, &t.DriverID, &t.DepartureCity, &t.ArrivalCity, &t.DepartureDate, &t.DepartureTime,
			&t.PricePerSeat, &t.TotalSeats, &t.AvailableSeats, &t.Status, &t.Earnings, &t.EcoVehicle, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}
