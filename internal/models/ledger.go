package models

import (
	"time"

	"github.com/google/uuid"
)

// Ledger entry_type enums. The credit ledger is append-only: entries are
// never updated or deleted, and corrections are written as new entries with
// the opposite sign.
const (
	LedgerReservationDebit  = "reservation_debit"
	LedgerReservationRefund = "reservation_refund"
	LedgerReservationCredit = "reservation_credit"
	LedgerDriverRefund      = "driver_refund"
	LedgerManualAdjustment  = "manual_adjustment"
)

// LedgerEntry records one signed balance adjustment for an account. Amount
// is the signed delta applied; BalanceAfter is the materialized balance
// immediately after the adjustment committed.
type LedgerEntry struct {
	ID            uuid.UUID  `json:"id"`
	AccountID     uuid.UUID  `json:"account_id"`
	ReservationID *uuid.UUID `json:"reservation_id,omitempty"`
	EntryType     string     `json:"entry_type"`
	Amount        int        `json:"amount"`
	BalanceAfter  *int       `json:"balance_after,omitempty"`
	Note          string     `json:"note,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
