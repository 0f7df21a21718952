package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ridepool/backend/internal/models"
)

// noopTx satisfies pgx.Tx for test use; only Commit/Rollback are called.

type noopTx struct{}

func (noopTx) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }
func (noopTx) Commit(context.Context) error          { return nil }
func (noopTx) Rollback(context.Context) error        { return nil }
func (noopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (noopTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (noopTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (noopTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (noopTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (noopTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (noopTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (noopTx) Conn() *pgx.Conn { return nil }

// memStore keeps balances and entries in memory with the same non-negative
// guarantee the SQL store enforces.
type memStore struct {
	mu       sync.Mutex
	balances map[uuid.UUID]int
	entries  []*models.LedgerEntry
}

func newMemStore() *memStore {
	return &memStore{balances: make(map[uuid.UUID]int)}
}

func (m *memStore) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }

func (m *memStore) ApplyDelta(_ context.Context, _ pgx.Tx, accountID uuid.UUID, amount int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[accountID]+amount < 0 {
		return 0, errInsufficientFunds
	}
	m.balances[accountID] += amount
	return m.balances[accountID], nil
}

func (m *memStore) AppendTx(_ context.Context, _ pgx.Tx, e *models.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *memStore) Balance(_ context.Context, accountID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[accountID], nil
}

func (m *memStore) ListByAccount(_ context.Context, accountID uuid.UUID) ([]*models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.LedgerEntry
	for _, e := range m.entries {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) ListByReservation(_ context.Context, reservationID uuid.UUID) ([]*models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.LedgerEntry
	for _, e := range m.entries {
		if e.ReservationID != nil && *e.ReservationID == reservationID {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestAdjustAppendsEntryWithBalance(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)
	ctx := context.Background()
	account := uuid.New()
	reservation := uuid.New()

	store.balances[account] = 50

	entry, err := svc.Adjust(ctx, noopTx{}, account, -20, models.LedgerReservationDebit, &reservation, "2 seat(s) Lyon to Paris")
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if entry.Amount != -20 {
		t.Errorf("amount: got %d, want -20", entry.Amount)
	}
	if entry.BalanceAfter == nil || *entry.BalanceAfter != 30 {
		t.Errorf("balance_after: got %v, want 30", entry.BalanceAfter)
	}
	if entry.ReservationID == nil || *entry.ReservationID != reservation {
		t.Error("entry should reference the reservation")
	}

	byRes, err := svc.EntriesForReservation(ctx, reservation)
	if err != nil || len(byRes) != 1 {
		t.Errorf("EntriesForReservation: %v, %d entries", err, len(byRes))
	}
}

func TestAdjustRejectsOverdraft(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)
	ctx := context.Background()
	account := uuid.New()
	store.balances[account] = 10

	_, err := svc.Adjust(ctx, noopTx{}, account, -11, models.LedgerReservationDebit, nil, "")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("overdraft: got %v, want ErrInsufficientFunds", err)
	}
	// Nothing was written.
	if bal, _ := svc.Balance(ctx, account); bal != 10 {
		t.Errorf("balance: got %d, want 10", bal)
	}
	if entries, _ := svc.EntriesForAccount(ctx, account); len(entries) != 0 {
		t.Errorf("entries: got %d, want 0", len(entries))
	}
}

func TestAdjustRejectsUnknownEntryType(t *testing.T) {
	svc := NewService(newMemStore())
	_, err := svc.Adjust(context.Background(), noopTx{}, uuid.New(), 5, "escrow_lock", nil, "")
	if !errors.Is(err, ErrUnknownEntryType) {
		t.Errorf("unknown type: got %v, want ErrUnknownEntryType", err)
	}
}

func TestManualAdjust(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)
	ctx := context.Background()
	account := uuid.New()

	entry, err := svc.ManualAdjust(ctx, account, 100, "welcome credit")
	if err != nil {
		t.Fatalf("ManualAdjust: %v", err)
	}
	if entry.EntryType != models.LedgerManualAdjustment || entry.ReservationID != nil {
		t.Errorf("entry: %+v", entry)
	}
	if bal, _ := svc.Balance(ctx, account); bal != 100 {
		t.Errorf("balance: got %d, want 100", bal)
	}

	if _, err := svc.ManualAdjust(ctx, account, 0, "noop"); err == nil {
		t.Error("zero adjustment should be rejected")
	}

	ok, err := svc.HasSufficient(ctx, account, 100)
	if err != nil || !ok {
		t.Errorf("HasSufficient(100): %v %v, want true", ok, err)
	}
	ok, _ = svc.HasSufficient(ctx, account, 101)
	if ok {
		t.Error("HasSufficient(101) should be false")
	}
}
