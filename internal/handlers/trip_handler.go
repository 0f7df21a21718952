package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ridepool/backend/internal/middleware"
	"github.com/ridepool/backend/internal/models"
	"github.com/ridepool/backend/internal/services"
)

// TripRepoForHandler is the read surface of the trip repository the handler
// needs beyond the booking engine.
type TripRepoForHandler interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Trip, error)
}

// TripLifecycle is the slice of the booking engine that manages trips.
type TripLifecycle interface {
	PublishTrip(ctx context.Context, trip *models.Trip) error
	StartTrip(ctx context.Context, tripID, driverID uuid.UUID) error
	CompleteTrip(ctx context.Context, tripID, driverID uuid.UUID) error
	DeleteTrip(ctx context.Context, tripID, driverID uuid.UUID) error
}

// TripSearcher answers searches, widening the date window on an empty exact
// match.
type TripSearcher interface {
	Search(ctx context.Context, c services.SearchCriteria) (*services.SearchOutcome, error)
}

// TripHandler serves the /api/v1/trips endpoints.
type TripHandler struct {
	Trips    TripRepoForHandler
	Engine   TripLifecycle
	Searcher TripSearcher
	Logger   *slog.Logger
}

// --- GET /api/v1/trips ---

type searchResponse struct {
	Trips        []*models.Trip `json:"trips"`
	FallbackUsed bool           `json:"fallback_used"`
	WindowStart  *time.Time     `json:"window_start,omitempty"`
	WindowEnd    *time.Time     `json:"window_end,omitempty"`
}

// Search handles GET /api/v1/trips. All filters are optional query
// parameters; date is YYYY-MM-DD.
func (h *TripHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	c := services.SearchCriteria{
		DepartureCity: q.Get("from"),
		ArrivalCity:   q.Get("to"),
		EcoOnly:       q.Get("eco") == "true",
	}

	if raw := q.Get("date"); raw != "" {
		d, err := time.Parse("2006-01-02", raw)
		if err != nil {
			http.Error(w, `{"error":"date must be YYYY-MM-DD"}`, http.StatusBadRequest)
			return
		}
		c.Date = &d
	}
	if raw := q.Get("max_price"); raw != "" {
		p, err := decimal.NewFromString(raw)
		if err != nil || p.IsNegative() {
			http.Error(w, `{"error":"invalid max_price"}`, http.StatusBadRequest)
			return
		}
		c.MaxPrice = &p
	}
	if raw := q.Get("min_rating"); raw != "" {
		rating, err := strconv.ParseFloat(raw, 64)
		if err != nil || rating < 1 || rating > 5 {
			http.Error(w, `{"error":"min_rating must be between 1 and 5"}`, http.StatusBadRequest)
			return
		}
		c.MinAvgRating = &rating
	}
	if raw := q.Get("tolerance_days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, `{"error":"invalid tolerance_days"}`, http.StatusBadRequest)
			return
		}
		c.ToleranceDays = days
	}

	out, err := h.Searcher.Search(r.Context(), c)
	if err != nil {
		h.Logger.Error("trip search", "error", err)
		http.Error(w, `{"error":"search failed"}`, http.StatusInternalServerError)
		return
	}

	resp := searchResponse{
		Trips:        out.Trips,
		FallbackUsed: out.FallbackUsed,
		WindowStart:  out.WindowStart,
		WindowEnd:    out.WindowEnd,
	}
	if resp.Trips == nil {
		resp.Trips = []*models.Trip{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- GET /api/v1/trips/{id} ---

func (h *TripHandler) GetTrip(w http.ResponseWriter, r *http.Request) {
	tripID, ok := pathUUID(r, "id")
	if !ok {
		http.Error(w, `{"error":"invalid trip id"}`, http.StatusBadRequest)
		return
	}
	trip, err := h.Trips.GetByID(r.Context(), tripID)
	if err != nil {
		http.Error(w, `{"error":"trip not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

// --- POST /api/v1/trips ---

type publishTripRequest struct {
	DepartureCity string `json:"departure_city"`
	ArrivalCity   string `json:"arrival_city"`
	DepartureDate string `json:"departure_date"` // YYYY-MM-DD
	DepartureTime string `json:"departure_time"` // HH:MM
	PricePerSeat  string `json:"price_per_seat"`
	TotalSeats    int    `json:"total_seats"`
	EcoVehicle    bool   `json:"eco_vehicle"`
}

// PublishTrip handles POST /api/v1/trips. The authenticated account becomes
// the driver.
func (h *TripHandler) PublishTrip(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req publishTripRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	date, err := time.Parse("2006-01-02", req.DepartureDate)
	if err != nil {
		http.Error(w, `{"error":"departure_date must be YYYY-MM-DD"}`, http.StatusBadRequest)
		return
	}
	if _, err := time.Parse("15:04", req.DepartureTime); err != nil {
		http.Error(w, `{"error":"departure_time must be HH:MM"}`, http.StatusBadRequest)
		return
	}
	price, err := decimal.NewFromString(req.PricePerSeat)
	if err != nil {
		http.Error(w, `{"error":"invalid price_per_seat"}`, http.StatusBadRequest)
		return
	}

	trip := &models.Trip{
		DriverID:      acc.ID,
		DepartureCity: req.DepartureCity,
		ArrivalCity:   req.ArrivalCity,
		DepartureDate: date,
		DepartureTime: req.DepartureTime,
		PricePerSeat:  price,
		TotalSeats:    req.TotalSeats,
		EcoVehicle:    req.EcoVehicle,
	}
	if err := h.Engine.PublishTrip(r.Context(), trip); err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidSeatCount):
			http.Error(w, `{"error":"total_seats must be >= 1"}`, http.StatusBadRequest)
		case errors.Is(err, services.ErrInvalidTrip):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			h.Logger.Error("publish trip", "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusCreated, trip)
}

// --- POST /api/v1/trips/{id}/start, /complete and DELETE /api/v1/trips/{id} ---

func (h *TripHandler) StartTrip(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.Engine.StartTrip, models.TripStatusInProgress)
}

func (h *TripHandler) CompleteTrip(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.Engine.CompleteTrip, models.TripStatusCompleted)
}

func (h *TripHandler) DeleteTrip(w http.ResponseWriter, r *http.Request) {
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
	if err := h.Engine.DeleteTrip(r.Context(), tripID, acc.ID); err != nil {
		switch {
		case errors.Is(err, services.ErrTripNotFound):
			http.Error(w, `{"error":"trip not found"}`, http.StatusNotFound)
		case errors.Is(err, services.ErrNotTripOwner):
			http.Error(w, `{"error":"only the driver may delete the trip"}`, http.StatusForbidden)
		case errors.Is(err, services.ErrTripHasReservations):
			http.Error(w, `{"error":"trip has active reservations"}`, http.StatusConflict)
		default:
			h.Logger.Error("delete trip", "trip_id", tripID, "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TripHandler) lifecycle(w http.ResponseWriter, r *http.Request, op func(context.Context, uuid.UUID, uuid.UUID) error, newStatus string) {
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
	if err := op(r.Context(), tripID, acc.ID); err != nil {
		switch {
		case errors.Is(err, services.ErrTripNotFound):
			http.Error(w, `{"error":"trip not found"}`, http.StatusNotFound)
		case errors.Is(err, services.ErrNotTripOwner):
			http.Error(w, `{"error":"only the driver may change the trip"}`, http.StatusForbidden)
		case errors.Is(err, services.ErrInvalidTransition):
			http.Error(w, `{"error":"trip is not in a state that allows this"}`, http.StatusConflict)
		default:
			h.Logger.Error("trip lifecycle", "trip_id", tripID, "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"trip_id": tripID.String(), "status": newStatus})
}
