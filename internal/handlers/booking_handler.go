package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/ridepool/backend/internal/middleware"
	"github.com/ridepool/backend/internal/models"
	"github.com/ridepool/backend/internal/services"
)

// BookingEngine is the reservation surface of the booking service.
type BookingEngine interface {
	Reserve(ctx context.Context, tripID, passengerID uuid.UUID, seats int, policy services.BookingPolicy) (*services.ReserveResult, error)
	Confirm(ctx context.Context, tripID, passengerID uuid.UUID, policy services.BookingPolicy) (*services.ConfirmResult, error)
	Cancel(ctx context.Context, tripID, passengerID uuid.UUID) (*services.CancelResult, error)
	UpdateSeats(ctx context.Context, tripID, passengerID uuid.UUID, newSeatCount int) (*services.UpdateSeatsResult, error)
}

// ReservationLister returns the passenger's reservation history.
type ReservationLister interface {
	ListByPassenger(ctx context.Context, passengerID uuid.UUID) ([]*models.Reservation, error)
}

// BookingHandler serves the reservation endpoints under /api/v1/trips/{id}.
type BookingHandler struct {
	Engine       BookingEngine
	Reservations ReservationLister
	Policy       services.BookingPolicy
	Logger       *slog.Logger
}

// --- POST /api/v1/trips/{id}/reservations ---

type reserveRequest struct {
	Seats int `json:"seats"`
}

// Reserve handles POST /api/v1/trips/{id}/reservations. SeatCheck middleware
// has already validated the seats field.
func (h *BookingHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	tripID, ok := pathUUID(r, "id")
	if !ok {
		http.Error(w, `{"error":"invalid trip id"}`, http.StatusBadRequest)
		return
	}

	seats := middleware.SeatsFromCtx(r.Context())
	if seats == 0 {
		var req reserveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
			return
		}
		seats = req.Seats
	}

	result, err := h.Engine.Reserve(r.Context(), tripID, acc.ID, seats, h.Policy)
	if err != nil {
		// With auto-confirm the reserve may have committed while the
		// confirm step failed; the pending reservation is still reported.
		if result != nil {
			h.Logger.Warn("auto-confirm failed", "trip_id", tripID, "reservation_id", result.ReservationID, "error", err)
			writeJSON(w, http.StatusCreated, result)
			return
		}
		h.writeBookingError(w, err, tripID)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// --- POST /api/v1/trips/{id}/reservations/confirm ---

func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	tripID, ok := pathUUID(r, "id")
	if !ok {
		http.Error(w, `{"error":"invalid trip id"}`, http.StatusBadRequest)
		return
	}
	result, err := h.Engine.Confirm(r.Context(), tripID, acc.ID, h.Policy)
	if err != nil {
		h.writeBookingError(w, err, tripID)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- DELETE /api/v1/trips/{id}/reservations ---

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	tripID, ok := pathUUID(r, "id")
	if !ok {
		http.Error(w, `{"error":"invalid trip id"}`, http.StatusBadRequest)
		return
	}
	result, err := h.Engine.Cancel(r.Context(), tripID, acc.ID)
	if err != nil {
		h.writeBookingError(w, err, tripID)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- PATCH /api/v1/trips/{id}/reservations ---

type updateSeatsRequest struct {
	Seats int `json:"seats"`
}

// UpdateSeats handles PATCH /api/v1/trips/{id}/reservations. A seats value
// of zero cancels the reservation.
func (h *BookingHandler) UpdateSeats(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	tripID, ok := pathUUID(r, "id")
	if !ok {
		http.Error(w, `{"error":"invalid trip id"}`, http.StatusBadRequest)
		return
	}
	var req updateSeatsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Seats < 0 {
		http.Error(w, `{"error":"seats must be >= 0"}`, http.StatusBadRequest)
		return
	}
	result, err := h.Engine.UpdateSeats(r.Context(), tripID, acc.ID, req.Seats)
	if err != nil {
		h.writeBookingError(w, err, tripID)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- GET /api/v1/reservations ---

func (h *BookingHandler) ListReservations(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	reservations, err := h.Reservations.ListByPassenger(r.Context(), acc.ID)
	if err != nil {
		h.Logger.Error("list reservations", "account_id", acc.ID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if reservations == nil {
		reservations = []*models.Reservation{}
	}
	writeJSON(w, http.StatusOK, reservations)
}

// writeBookingError maps booking engine errors onto HTTP statuses. Conflicts
// with trip or reservation state are 409, missing funds 402, missing rows
// 404, everything else is the engine's fault or ours.
func (h *BookingHandler) writeBookingError(w http.ResponseWriter, err error, tripID uuid.UUID) {
	var seatErr *services.InsufficientSeatsError
	var creditErr *services.InsufficientCreditError
	switch {
	case errors.Is(err, services.ErrTripNotFound):
		http.Error(w, `{"error":"trip not found"}`, http.StatusNotFound)
	case errors.Is(err, services.ErrNoPendingReservation), errors.Is(err, services.ErrNoActiveReservation):
		http.Error(w, `{"error":"no matching reservation"}`, http.StatusNotFound)
	case errors.Is(err, services.ErrNotBookable):
		http.Error(w, `{"error":"trip is not bookable"}`, http.StatusConflict)
	case errors.Is(err, services.ErrSelfBooking):
		http.Error(w, `{"error":"drivers cannot book their own trip"}`, http.StatusConflict)
	case errors.Is(err, services.ErrDuplicateReservation):
		http.Error(w, `{"error":"an active reservation already exists for this trip"}`, http.StatusConflict)
	case errors.Is(err, services.ErrInvalidSeatCount):
		http.Error(w, `{"error":"seats must be >= 1"}`, http.StatusBadRequest)
	case errors.As(err, &seatErr):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     "not enough seats",
			"requested": seatErr.Requested,
			"available": seatErr.Available,
		})
	case errors.As(err, &creditErr):
		writeJSON(w, http.StatusPaymentRequired, map[string]any{
			"error":    "insufficient credit",
			"required": creditErr.Required,
			"balance":  creditErr.Balance,
		})
	default:
		h.Logger.Error("booking operation failed", "trip_id", tripID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}
