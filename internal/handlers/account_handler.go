package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/ridepool/backend/internal/ledger"
	"github.com/ridepool/backend/internal/middleware"
	"github.com/ridepool/backend/internal/models"
)

// AccountSettings is the mutable account surface the handler needs.
type AccountSettings interface {
	SetNotifyURL(ctx context.Context, id uuid.UUID, url *string) error
}

// DriverTrips lists the trips the account published.
type DriverTrips interface {
	ListByDriver(ctx context.Context, driverID uuid.UUID) ([]*models.Trip, error)
}

// AccountHandler serves the /api/v1/account endpoints.
type AccountHandler struct {
	Accounts AccountSettings
	Trips    DriverTrips
	Ledger   ledger.Service
	Logger   *slog.Logger
}

type meResponse struct {
	ID            string  `json:"id"`
	Email         string  `json:"email"`
	Name          string  `json:"name"`
	CreditBalance int     `json:"credit_balance"`
	NotifyURL     *string `json:"notify_url,omitempty"`
}

// GetMe handles GET /api/v1/account/me. The balance is read from the ledger
// store so the response reflects committed bookings, not the cached row the
// auth middleware loaded.
func (h *AccountHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	balance, err := h.Ledger.Balance(r.Context(), acc.ID)
	if err != nil {
		h.Logger.Error("read balance", "account_id", acc.ID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		ID:            acc.ID.String(),
		Email:         acc.Email,
		Name:          acc.Name,
		CreditBalance: balance,
		NotifyURL:     acc.NotifyURL,
	})
}

// ListLedger handles GET /api/v1/account/ledger.
func (h *AccountHandler) ListLedger(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	entries, err := h.Ledger.EntriesForAccount(r.Context(), acc.ID)
	if err != nil {
		h.Logger.Error("list ledger", "account_id", acc.ID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*models.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- POST /api/v1/account/topup ---

type topupRequest struct {
	Amount int    `json:"amount"`
	Note   string `json:"note"`
}

// Topup handles POST /api/v1/account/topup, adding credits through a manual
// ledger adjustment.
func (h *AccountHandler) Topup(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req topupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Amount <= 0 {
		http.Error(w, `{"error":"amount must be > 0"}`, http.StatusBadRequest)
		return
	}
	note := req.Note
	if note == "" {
		note = "account top-up"
	}
	entry, err := h.Ledger.ManualAdjust(r.Context(), acc.ID, req.Amount, note)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			http.Error(w, `{"error":"insufficient funds"}`, http.StatusPaymentRequired)
			return
		}
		h.Logger.Error("topup", "account_id", acc.ID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// --- PATCH /api/v1/account/settings ---

type settingsRequest struct {
	NotifyURL *string `json:"notify_url"`
}

// UpdateSettings handles PATCH /api/v1/account/settings. Passing a null
// notify_url clears it.
func (h *AccountHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.NotifyURL != nil {
		if _, err := url.ParseRequestURI(*req.NotifyURL); err != nil {
			http.Error(w, `{"error":"notify_url must be a valid URL"}`, http.StatusBadRequest)
			return
		}
	}
	if err := h.Accounts.SetNotifyURL(r.Context(), acc.ID, req.NotifyURL); err != nil {
		h.Logger.Error("update settings", "account_id", acc.ID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTrips handles GET /api/v1/account/trips, the trips this account drives.
func (h *AccountHandler) ListTrips(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	trips, err := h.Trips.ListByDriver(r.Context(), acc.ID)
	if err != nil {
		h.Logger.Error("list driver trips", "account_id", acc.ID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if trips == nil {
		trips = []*models.Trip{}
	}
	writeJSON(w, http.StatusOK, trips)
}
