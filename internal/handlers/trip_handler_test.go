package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/ridepool/backend/internal/middleware"
	"github.com/ridepool/backend/internal/models"
	"github.com/ridepool/backend/internal/services"
)

type mockSearcher struct {
	got     services.SearchCriteria
	outcome *services.SearchOutcome
}

func (m *mockSearcher) Search(_ context.Context, c services.SearchCriteria) (*services.SearchOutcome, error) {
	m.got = c
	if m.outcome != nil {
		return m.outcome, nil
	}
	return &services.SearchOutcome{}, nil
}

type mockLifecycle struct {
	err error
}

func (m mockLifecycle) PublishTrip(_ context.Context, trip *models.Trip) error {
	if m.err == nil {
		trip.ID = uuid.New()
	}
	return m.err
}
func (m mockLifecycle) StartTrip(context.Context, uuid.UUID, uuid.UUID) error    { return m.err }
func (m mockLifecycle) CompleteTrip(context.Context, uuid.UUID, uuid.UUID) error { return m.err }
func (m mockLifecycle) DeleteTrip(context.Context, uuid.UUID, uuid.UUID) error   { return m.err }

type mockTripReader struct{}

func (mockTripReader) GetByID(context.Context, uuid.UUID) (*models.Trip, error) {
	return &models.Trip{}, nil
}

func newTripHandler(searcher *mockSearcher, lc mockLifecycle) *TripHandler {
	return &TripHandler{
		Trips:    mockTripReader{},
		Engine:   lc,
		Searcher: searcher,
		Logger:   slog.Default(),
	}
}

func authedReq(method, target, body string, tripID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if tripID != uuid.Nil {
		req.SetPathValue("id", tripID.String())
	}
	acc := &models.Account{ID: uuid.New()}
	return req.WithContext(middleware.WithAccount(req.Context(), acc))
}

func TestSearchHandler_ParsesFilters(t *testing.T) {
	searcher := &mockSearcher{}
	h := newTripHandler(searcher, mockLifecycle{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/trips?from=Lyon&to=Paris&date=2026-07-10&eco=true&max_price=20.50&min_rating=4&tolerance_days=5", nil)
	h.Search(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	c := searcher.got
	if c.DepartureCity != "Lyon" || c.ArrivalCity != "Paris" || !c.EcoOnly || c.ToleranceDays != 5 {
		t.Errorf("criteria: %+v", c)
	}
	if c.Date == nil || c.Date.Format("2006-01-02") != "2026-07-10" {
		t.Errorf("date: %v", c.Date)
	}
	if c.MaxPrice == nil || c.MaxPrice.String() != "20.5" {
		t.Errorf("max price: %v", c.MaxPrice)
	}
	if c.MinAvgRating == nil || *c.MinAvgRating != 4 {
		t.Errorf("min rating: %v", c.MinAvgRating)
	}
}

func TestSearchHandler_RejectsBadParams(t *testing.T) {
	h := newTripHandler(&mockSearcher{}, mockLifecycle{})
	for _, target := range []string{
		"/api/v1/trips?date=tomorrow",
		"/api/v1/trips?max_price=free",
		"/api/v1/trips?min_rating=7",
		"/api/v1/trips?tolerance_days=soon",
	} {
		rec := httptest.NewRecorder()
		h.Search(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, rec.Code)
		}
	}
}

func TestSearchHandler_EmptyResultIsArray(t *testing.T) {
	h := newTripHandler(&mockSearcher{}, mockLifecycle{})
	rec := httptest.NewRecorder()
	h.Search(rec, httptest.NewRequest(http.MethodGet, "/api/v1/trips", nil))

	var out map[string]json.RawMessage
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(out["trips"]) != "[]" {
		t.Errorf("trips should encode as [], got %s", out["trips"])
	}
}

func TestPublishTripHandler(t *testing.T) {
	h := newTripHandler(&mockSearcher{}, mockLifecycle{})

	body := `{
		"departure_city": "Lyon",
		"arrival_city": "Paris",
		"departure_date": "2026-07-10",
		"departure_time": "08:30",
		"price_per_seat": "12.50",
		"total_seats": 4
	}`
	rec := httptest.NewRecorder()
	h.PublishTrip(rec, authedReq(http.MethodPost, "/api/v1/trips", body, uuid.Nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	// Malformed date and time are caught before the engine runs.
	for _, bad := range []string{
		`{"departure_date": "next week", "departure_time": "08:30", "price_per_seat": "5"}`,
		`{"departure_date": "2026-07-10", "departure_time": "8h30", "price_per_seat": "5"}`,
		`{"departure_date": "2026-07-10", "departure_time": "08:30", "price_per_seat": "cheap"}`,
	} {
		rec := httptest.NewRecorder()
		h.PublishTrip(rec, authedReq(http.MethodPost, "/api/v1/trips", bad, uuid.Nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for %s, got %d", bad, rec.Code)
		}
	}
}

func TestPublishTripHandler_EngineErrors(t *testing.T) {
	body := `{
		"departure_city": "Lyon",
		"arrival_city": "Paris",
		"departure_date": "2026-07-10",
		"departure_time": "08:30",
		"price_per_seat": "12.50",
		"total_seats": 4
	}`

	// Validation failures from the engine map to 400 with the reason.
	h := newTripHandler(&mockSearcher{}, mockLifecycle{err: fmt.Errorf("%w: departure must be in the future", services.ErrInvalidTrip)})
	rec := httptest.NewRecorder()
	h.PublishTrip(rec, authedReq(http.MethodPost, "/api/v1/trips", body, uuid.Nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("validation error: expected 400, got %d", rec.Code)
	}

	// A store failure is a generic 500; internal error text never reaches
	// the client.
	h = newTripHandler(&mockSearcher{}, mockLifecycle{err: fmt.Errorf("create trip: %w", errors.New("connection refused"))})
	rec = httptest.NewRecorder()
	h.PublishTrip(rec, authedReq(http.MethodPost, "/api/v1/trips", body, uuid.Nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("store error: expected 500, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Errorf("internal error text leaked to the client: %s", rec.Body.String())
	}
}

func TestTripLifecycleHandlerMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"ok", nil, http.StatusOK},
		{"not found", services.ErrTripNotFound, http.StatusNotFound},
		{"not owner", services.ErrNotTripOwner, http.StatusForbidden},
		{"bad transition", services.ErrInvalidTransition, http.StatusConflict},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h := newTripHandler(&mockSearcher{}, mockLifecycle{err: c.err})
			rec := httptest.NewRecorder()
			h.StartTrip(rec, authedReq(http.MethodPost, "/api/v1/trips/x/start", "", uuid.New()))
			if rec.Code != c.want {
				t.Errorf("status: got %d, want %d", rec.Code, c.want)
			}
		})
	}
}

func TestDeleteTripHandler_ActiveReservations(t *testing.T) {
	h := newTripHandler(&mockSearcher{}, mockLifecycle{err: services.ErrTripHasReservations})
	rec := httptest.NewRecorder()
	h.DeleteTrip(rec, authedReq(http.MethodDelete, "/api/v1/trips/x", "", uuid.New()))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}
