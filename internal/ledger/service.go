package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ridepool/backend/internal/models"
)

// ErrInsufficientFunds is returned when an adjustment would drive the
// account balance negative.
var ErrInsufficientFunds = errInsufficientFunds

// ErrUnknownEntryType is returned for an entry type outside the ledger enum.
var ErrUnknownEntryType = errors.New("unknown ledger entry type")

var validEntryTypes = map[string]bool{
	models.LedgerReservationDebit:  true,
	models.LedgerReservationRefund: true,
	models.LedgerReservationCredit: true,
	models.LedgerDriverRefund:      true,
	models.LedgerManualAdjustment:  true,
}

// Store is the persistence surface the service needs. *Repository satisfies
// it; tests substitute an in-memory implementation.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	ApplyDelta(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int) (int, error)
	AppendTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error
	Balance(ctx context.Context, accountID uuid.UUID) (int, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.LedgerEntry, error)
	ListByReservation(ctx context.Context, reservationID uuid.UUID) ([]*models.LedgerEntry, error)
}

type Service interface {
	Balance(ctx context.Context, accountID uuid.UUID) (int, error)
	HasSufficient(ctx context.Context, accountID uuid.UUID, amount int) (bool, error)
	Adjust(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int, entryType string, reservationID *uuid.UUID, note string) (*models.LedgerEntry, error)
	ManualAdjust(ctx context.Context, accountID uuid.UUID, amount int, note string) (*models.LedgerEntry, error)
	EntriesForAccount(ctx context.Context, accountID uuid.UUID) ([]*models.LedgerEntry, error)
	EntriesForReservation(ctx context.Context, reservationID uuid.UUID) ([]*models.LedgerEntry, error)
}

type service struct {
	store Store
}

func NewService(store Store) Service {
	return &service{store: store}
}

var _ Service = (*service)(nil)

func (s *service) Balance(ctx context.Context, accountID uuid.UUID) (int, error) {
	return s.store.Balance(ctx, accountID)
}

func (s *service) HasSufficient(ctx context.Context, accountID uuid.UUID, amount int) (bool, error) {
	balance, err := s.store.Balance(ctx, accountID)
	if err != nil {
		return false, err
	}
	return balance >= amount, nil
}

// Adjust applies the signed delta to the balance and appends the matching
// ledger entry, both inside the caller's transaction. Either both writes
// commit or neither does; there is no partial ledger state.
func (s *service) Adjust(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int, entryType string, reservationID *uuid.UUID, note string) (*models.LedgerEntry, error) {
	if !validEntryTypes[entryType] {
		return nil, ErrUnknownEntryType
	}
	newBalance, err := s.store.ApplyDelta(ctx, tx, accountID, amount)
	if err != nil {
		return nil, err
	}
	entry := &models.LedgerEntry{
		ID:            uuid.New(),
		AccountID:     accountID,
		ReservationID: reservationID,
		EntryType:     entryType,
		Amount:        amount,
		BalanceAfter:  &newBalance,
		Note:          note,
	}
	if err := s.store.AppendTx(ctx, tx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// ManualAdjust is the out-of-band balance movement (top-ups, support
// corrections). It runs in its own transaction.
func (s *service) ManualAdjust(ctx context.Context, accountID uuid.UUID, amount int, note string) (*models.LedgerEntry, error) {
	if amount == 0 {
		return nil, errors.New("adjustment amount must be non-zero")
	}
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	entry, err := s.Adjust(ctx, tx, accountID, amount, models.LedgerManualAdjustment, nil, note)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) EntriesForAccount(ctx context.Context, accountID uuid.UUID) ([]*models.LedgerEntry, error) {
	return s.store.ListByAccount(ctx, accountID)
}

func (s *service) EntriesForReservation(ctx context.Context, reservationID uuid.UUID) ([]*models.LedgerEntry, error) {
	return s.store.ListByReservation(ctx, reservationID)
}
