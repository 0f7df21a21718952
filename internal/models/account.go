package models

import (
	"time"

	"github.com/google/uuid"
)

// Account is a marketplace participant. The same account can publish trips
// as a driver and book seats on other drivers' trips as a passenger.
//
// CreditBalance is mutated exclusively through ledger adjustments; no other
// code path writes it.
type Account struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	PasswordHash  string    `json:"-"`
	CreditBalance int       `json:"credit_balance"`
	NotifyURL     *string   `json:"notify_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
