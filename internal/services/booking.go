package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ridepool/backend/internal/events"
	"github.com/ridepool/backend/internal/models"
	"github.com/ridepool/backend/internal/notify"
	"github.com/ridepool/backend/internal/repository"
)

// TxBeginner abstracts transaction creation so tests don't need a
// pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// BookingTripRepo is the trip persistence surface the engine needs.
type BookingTripRepo interface {
	Create(ctx context.Context, t *models.Trip) error
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Trip, error)
	UpdateSeatState(ctx context.Context, tx pgx.Tx, id uuid.UUID, availableSeats, earnings int) error
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error
	Delete(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
}

// BookingReservationRepo is the reservation persistence surface.
type BookingReservationRepo interface {
	Create(ctx context.Context, tx pgx.Tx, res *models.Reservation) error
	GetActiveForUpdate(ctx context.Context, tx pgx.Tx, tripID, passengerID uuid.UUID) (*models.Reservation, error)
	GetPendingForUpdate(ctx context.Context, tx pgx.Tx, tripID, passengerID uuid.UUID) (*models.Reservation, error)
	Update(ctx context.Context, tx pgx.Tx, res *models.Reservation) error
	CountActiveByTrip(ctx context.Context, tx pgx.Tx, tripID uuid.UUID) (int, error)
	ListConfirmedByTrip(ctx context.Context, tripID uuid.UUID) ([]*models.Reservation, error)
	ListStalePending(ctx context.Context, cutoff time.Time) ([]*models.Reservation, error)
}

// BookingAccountRepo locks account rows for balance moves.
type BookingAccountRepo interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error)
}

// BookingLedger is the slice of the ledger service the engine uses.
type BookingLedger interface {
	Balance(ctx context.Context, accountID uuid.UUID) (int, error)
	Adjust(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int, entryType string, reservationID *uuid.UUID, note string) (*models.LedgerEntry, error)
}

// BookingPolicy is captured by the caller per request and handed in, never
// read from mutable configuration mid-transaction.
type BookingPolicy struct {
	AutoConfirm bool
	PlatformFee int
}

type ReserveResult struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	Status        string    `json:"status"`
	Cost          int       `json:"cost"`
}

type ConfirmResult struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	Cost          int       `json:"cost"`
	DriverCredit  int       `json:"driver_credit"`
	ConfirmedAt   time.Time `json:"confirmed_at"`
}

type CancelResult struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	WasConfirmed  bool      `json:"was_confirmed"`
	SeatsReleased int       `json:"seats_released"`
	Refunded      int       `json:"refunded"`
}

type UpdateSeatsResult struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	Status        string    `json:"status"`
	SeatsBooked   int       `json:"seats_booked"`
	Cancelled     bool      `json:"cancelled"`
}

// BookingService orchestrates trips, reservations, and the credit ledger.
// Every public operation is a single transaction: any failure rolls back
// all seat, reservation, and ledger changes made in that call.
//
// Lock order inside a transaction is always trip row, then reservation row,
// then account rows sorted by ID.
type BookingService struct {
	Pool          TxBeginner
	Trips         BookingTripRepo
	Reservations  BookingReservationRepo
	Accounts      BookingAccountRepo
	Ledger        BookingLedger
	Events        events.Recorder
	EnqueueNotice notify.EnqueueFunc
	Logger        *slog.Logger

	now func() time.Time
}

func NewBookingService(
	pool TxBeginner,
	trips BookingTripRepo,
	reservations BookingReservationRepo,
	accounts BookingAccountRepo,
	ledger BookingLedger,
	recorder events.Recorder,
	enqueueNotice notify.EnqueueFunc,
	logger *slog.Logger,
) *BookingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BookingService{
		Pool:          pool,
		Trips:         trips,
		Reservations:  reservations,
		Accounts:      accounts,
		Ledger:        ledger,
		Events:        recorder,
		EnqueueNotice: enqueueNotice,
		Logger:        logger,
		now:           time.Now,
	}
}

// creditCost is the integer credit price of seats at the given per-seat
// price, rounded up so fractional pricing never under-charges.
func creditCost(pricePerSeat decimal.Decimal, seats int) int {
	return int(pricePerSeat.Mul(decimal.NewFromInt(int64(seats))).Ceil().IntPart())
}

// lockOrder returns the two account IDs in deterministic order to avoid
// deadlocks between concurrent confirms and cancels.
func lockOrder(a, b uuid.UUID) []uuid.UUID {
	ids := []uuid.UUID{a, b}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// Reserve creates a pending reservation after validating trip state,
// capacity, and the passenger's balance. Seats are not yet removed from the
// available pool; that happens at confirm time. With AutoConfirm the new
// reservation is confirmed immediately after the reserve transaction
// commits.
func (s *BookingService) Reserve(ctx context.Context, tripID, passengerID uuid.UUID, seats int, policy BookingPolicy) (*ReserveResult, error) {
	if seats < 1 {
		return nil, ErrInvalidSeatCount
	}
	now := s.now()

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin reserve tx: %w", err)
	}
	defer tx.Rollback(ctx)

	trip, err := s.Trips.GetByIDForUpdate(ctx, tx, tripID)
	if err != nil {
		if errors.Is(err, repository.ErrTripNotFound) {
			return nil, ErrTripNotFound
		}
		return nil, fmt.Errorf("lock trip: %w", err)
	}
	if !trip.Bookable(now) {
		return nil, ErrNotBookable
	}
	if trip.DriverID == passengerID {
		return nil, ErrSelfBooking
	}

	if _, err := s.Reservations.GetActiveForUpdate(ctx, tx, tripID, passengerID); err == nil {
		return nil, ErrDuplicateReservation
	} else if !errors.Is(err, repository.ErrReservationNotFound) {
		return nil, fmt.Errorf("check active reservation: %w", err)
	}

	// Pending reservations hold no seats, but reserving more than the pool
	// currently offers would be an oversell promise; reject it here and
	// re-check at confirm time.
	if trip.AvailableSeats < seats {
		return nil, &InsufficientSeatsError{Requested: seats, Available: trip.AvailableSeats}
	}

	cost := creditCost(trip.PricePerSeat, seats)
	balance, err := s.Ledger.Balance(ctx, passengerID)
	if err != nil {
		return nil, fmt.Errorf("read passenger balance: %w", err)
	}
	if balance < cost {
		return nil, &InsufficientCreditError{Required: cost, Balance: balance}
	}

	res := &models.Reservation{
		ID:          uuid.New(),
		TripID:      tripID,
		PassengerID: passengerID,
		SeatsBooked: seats,
		Status:      models.ReservationStatusPending,
		BookingDate: now,
	}
	if err := s.Reservations.Create(ctx, tx, res); err != nil {
		return nil, fmt.Errorf("create reservation: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reserve: %w", err)
	}

	s.record(ctx, events.Event{Name: events.EventReserve, TripID: tripID, AccountID: passengerID, ReservationID: &res.ID, Seats: seats, Amount: cost})

	result := &ReserveResult{ReservationID: res.ID, Status: res.Status, Cost: cost}
	if !policy.AutoConfirm {
		return result, nil
	}

	confirmed, err := s.Confirm(ctx, tripID, passengerID, policy)
	if err != nil {
		// The reservation committed and stays pending; surface why the
		// auto-confirm step failed.
		return result, err
	}
	result.Status = models.ReservationStatusConfirmed
	result.Cost = confirmed.Cost
	return result, nil
}

// Confirm charges the passenger, credits the driver minus the platform fee,
// and removes the seats from the available pool, all in one transaction.
// Bookability, capacity, and balance are re-validated: any of them may have
// changed since reserve.
func (s *BookingService) Confirm(ctx context.Context, tripID, passengerID uuid.UUID, policy BookingPolicy) (*ConfirmResult, error) {
	now := s.now()

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin confirm tx: %w", err)
	}
	defer tx.Rollback(ctx)

	trip, err := s.Trips.GetByIDForUpdate(ctx, tx, tripID)
	if err != nil {
		if errors.Is(err, repository.ErrTripNotFound) {
			return nil, ErrTripNotFound
		}
		return nil, fmt.Errorf("lock trip: %w", err)
	}
	if !trip.Bookable(now) {
		return nil, ErrNotBookable
	}

	res, err := s.Reservations.GetPendingForUpdate(ctx, tx, tripID, passengerID)
	if err != nil {
		if errors.Is(err, repository.ErrReservationNotFound) {
			return nil, ErrNoPendingReservation
		}
		return nil, fmt.Errorf("lock reservation: %w", err)
	}

	if trip.AvailableSeats < res.SeatsBooked {
		return nil, &InsufficientSeatsError{Requested: res.SeatsBooked, Available: trip.AvailableSeats}
	}

	cost := creditCost(trip.PricePerSeat, res.SeatsBooked)
	driverGain := cost - policy.PlatformFee
	if driverGain < 0 {
		driverGain = 0
	}

	var passenger *models.Account
	for _, id := range lockOrder(passengerID, trip.DriverID) {
		acc, err := s.Accounts.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return nil, fmt.Errorf("lock account %s: %w", id, err)
		}
		if id == passengerID {
			passenger = acc
		}
	}
	if passenger.CreditBalance < cost {
		return nil, &InsufficientCreditError{Required: cost, Balance: passenger.CreditBalance}
	}

	res.Status = models.ReservationStatusConfirmed
	res.ConfirmedAt = &now
	res.CreditSpent = cost
	res.DriverCredit = driverGain
	if err := s.Reservations.Update(ctx, tx, res); err != nil {
		return nil, fmt.Errorf("confirm reservation: %w", err)
	}
	if err := s.Trips.UpdateSeatState(ctx, tx, tripID, trip.AvailableSeats-res.SeatsBooked, trip.Earnings+driverGain); err != nil {
		return nil, fmt.Errorf("update trip seats: %w", err)
	}

	note := fmt.Sprintf("%d seat(s) %s to %s", res.SeatsBooked, trip.DepartureCity, trip.ArrivalCity)
	if _, err := s.Ledger.Adjust(ctx, tx, passengerID, -cost, models.LedgerReservationDebit, &res.ID, note); err != nil {
		return nil, fmt.Errorf("debit passenger: %w", err)
	}
	if driverGain > 0 {
		if _, err := s.Ledger.Adjust(ctx, tx, trip.DriverID, driverGain, models.LedgerReservationCredit, &res.ID, note); err != nil {
			return nil, fmt.Errorf("credit driver: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit confirm: %w", err)
	}

	s.record(ctx, events.Event{Name: events.EventConfirm, TripID: tripID, AccountID: passengerID, ReservationID: &res.ID, Seats: res.SeatsBooked, Amount: cost})

	return &ConfirmResult{ReservationID: res.ID, Cost: cost, DriverCredit: driverGain, ConfirmedAt: now}, nil
}

// Cancel voids the passenger's active reservation. A confirmed reservation
// gets its seats restored and its ledger entries reversed; a pending one
// held no seats and no credit, so only the status changes.
func (s *BookingService) Cancel(ctx context.Context, tripID, passengerID uuid.UUID) (*CancelResult, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin cancel tx: %w", err)
	}
	defer tx.Rollback(ctx)

	trip, err := s.Trips.GetByIDForUpdate(ctx, tx, tripID)
	if err != nil {
		if errors.Is(err, repository.ErrTripNotFound) {
			return nil, ErrTripNotFound
		}
		return nil, fmt.Errorf("lock trip: %w", err)
	}

	res, err := s.Reservations.GetActiveForUpdate(ctx, tx, tripID, passengerID)
	if err != nil {
		if errors.Is(err, repository.ErrReservationNotFound) {
			return nil, ErrNoActiveReservation
		}
		return nil, fmt.Errorf("lock reservation: %w", err)
	}

	result, err := s.cancelLocked(ctx, tx, trip, res)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit cancel: %w", err)
	}

	s.record(ctx, events.Event{Name: events.EventCancel, TripID: tripID, AccountID: passengerID, ReservationID: &res.ID, Seats: result.SeatsReleased, Amount: result.Refunded})

	return result, nil
}

// cancelLocked voids a reservation whose trip and reservation rows are
// already locked by tx. Shared by Cancel and the UpdateSeats zero path so
// both reverse the ledger the same way.
func (s *BookingService) cancelLocked(ctx context.Context, tx pgx.Tx, trip *models.Trip, res *models.Reservation) (*CancelResult, error) {
	wasConfirmed := res.Status == models.ReservationStatusConfirmed

	res.Status = models.ReservationStatusCancelled
	if err := s.Reservations.Update(ctx, tx, res); err != nil {
		return nil, fmt.Errorf("cancel reservation: %w", err)
	}

	result := &CancelResult{ReservationID: res.ID, WasConfirmed: wasConfirmed}
	if !wasConfirmed {
		return result, nil
	}

	restored := trip.AvailableSeats + res.SeatsBooked
	if restored > trip.TotalSeats {
		restored = trip.TotalSeats
	}
	earnings := trip.Earnings - res.DriverCredit
	if earnings < 0 {
		earnings = 0
	}
	if err := s.Trips.UpdateSeatState(ctx, tx, trip.ID, restored, earnings); err != nil {
		return nil, fmt.Errorf("restore trip seats: %w", err)
	}

	for _, id := range lockOrder(res.PassengerID, trip.DriverID) {
		if _, err := s.Accounts.GetByIDForUpdate(ctx, tx, id); err != nil {
			return nil, fmt.Errorf("lock account %s: %w", id, err)
		}
	}

	note := fmt.Sprintf("cancellation of %d seat(s) %s to %s", res.SeatsBooked, trip.DepartureCity, trip.ArrivalCity)
	if _, err := s.Ledger.Adjust(ctx, tx, res.PassengerID, res.CreditSpent, models.LedgerReservationRefund, &res.ID, note); err != nil {
		return nil, fmt.Errorf("refund passenger: %w", err)
	}
	if res.DriverCredit > 0 {
		if _, err := s.Ledger.Adjust(ctx, tx, trip.DriverID, -res.DriverCredit, models.LedgerDriverRefund, &res.ID, note); err != nil {
			return nil, fmt.Errorf("reverse driver credit: %w", err)
		}
	}

	s.notice(ctx, tx, notify.NoticeArgs{
		AccountID:     trip.DriverID,
		Event:         notify.NoticeReservationCancelled,
		TripID:        trip.ID,
		ReservationID: &res.ID,
		Message:       note,
	})

	result.SeatsReleased = res.SeatsBooked
	result.Refunded = res.CreditSpent
	return result, nil
}

// UpdateSeats changes the seat count of the passenger's active reservation.
// A new count of zero or less cancels the reservation outright, reversing
// the ledger exactly like Cancel. Otherwise only the seat pool moves;
// amounts charged at confirm time stay as they are.
func (s *BookingService) UpdateSeats(ctx context.Context, tripID, passengerID uuid.UUID, newSeatCount int) (*UpdateSeatsResult, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin update-seats tx: %w", err)
	}
	defer tx.Rollback(ctx)

	trip, err := s.Trips.GetByIDForUpdate(ctx, tx, tripID)
	if err != nil {
		if errors.Is(err, repository.ErrTripNotFound) {
			return nil, ErrTripNotFound
		}
		return nil, fmt.Errorf("lock trip: %w", err)
	}

	res, err := s.Reservations.GetActiveForUpdate(ctx, tx, tripID, passengerID)
	if err != nil {
		if errors.Is(err, repository.ErrReservationNotFound) {
			return nil, ErrNoActiveReservation
		}
		return nil, fmt.Errorf("lock reservation: %w", err)
	}

	if newSeatCount <= 0 {
		cancelled, err := s.cancelLocked(ctx, tx, trip, res)
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit update-seats: %w", err)
		}
		s.record(ctx, events.Event{Name: events.EventCancel, TripID: tripID, AccountID: passengerID, ReservationID: &res.ID, Seats: cancelled.SeatsReleased, Amount: cancelled.Refunded})
		return &UpdateSeatsResult{ReservationID: res.ID, Status: res.Status, SeatsBooked: 0, Cancelled: true}, nil
	}

	delta := newSeatCount - res.SeatsBooked
	switch {
	case delta == 0:
		// nothing to do

	case res.Status == models.ReservationStatusConfirmed && delta > 0:
		if trip.AvailableSeats < delta {
			return nil, &InsufficientSeatsError{Requested: delta, Available: trip.AvailableSeats}
		}
		if err := s.Trips.UpdateSeatState(ctx, tx, tripID, trip.AvailableSeats-delta, trip.Earnings); err != nil {
			return nil, fmt.Errorf("update trip seats: %w", err)
		}

	case res.Status == models.ReservationStatusConfirmed:
		restored := trip.AvailableSeats - delta // delta < 0
		if restored > trip.TotalSeats {
			restored = trip.TotalSeats
		}
		if err := s.Trips.UpdateSeatState(ctx, tx, tripID, restored, trip.Earnings); err != nil {
			return nil, fmt.Errorf("update trip seats: %w", err)
		}

	default:
		// Pending reservations hold no seats; just keep the request
		// satisfiable by the current pool.
		if trip.AvailableSeats < newSeatCount {
			return nil, &InsufficientSeatsError{Requested: newSeatCount, Available: trip.AvailableSeats}
		}
	}

	res.SeatsBooked = newSeatCount
	if err := s.Reservations.Update(ctx, tx, res); err != nil {
		return nil, fmt.Errorf("update reservation seats: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit update-seats: %w", err)
	}

	return &UpdateSeatsResult{ReservationID: res.ID, Status: res.Status, SeatsBooked: newSeatCount}, nil
}

func (s *BookingService) record(ctx context.Context, e events.Event) {
	if s.Events != nil {
		s.Events.Record(ctx, e)
	}
}

// notice enqueues a best-effort notification inside tx. An enqueue failure
// is logged and swallowed; it must never fail the booking transaction.
func (s *BookingService) notice(ctx context.Context, tx pgx.Tx, args notify.NoticeArgs) {
	if s.EnqueueNotice == nil {
		return
	}
	if err := s.EnqueueNotice(ctx, tx, args); err != nil {
		s.Logger.Warn("enqueue notice failed", "event", args.Event, "trip_id", args.TripID, "error", err)
	}
}
