package router

import (
	"net/http"

	"github.com/ridepool/backend/internal/auth"
	"github.com/ridepool/backend/internal/handlers"
	"github.com/ridepool/backend/internal/middleware"
)

// New returns an http.Handler serving the API under /api/v1.
// Middleware chain on protected routes: JWTAuth -> (SeatCheck on reserve) -> handler.
func New(
	authHandler *auth.Handler,
	tripHandler *handlers.TripHandler,
	bookingHandler *handlers.BookingHandler,
	accountHandler *handlers.AccountHandler,
	tokens middleware.TokenValidator,
	accounts middleware.AccountLookup,
) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	authed := middleware.JWTAuth(tokens, accounts)
	seatCheck := middleware.SeatCheck()

	// Public.
	mux.HandleFunc("POST "+base+"/auth/register", authHandler.Register)
	mux.HandleFunc("POST "+base+"/auth/login", authHandler.Login)
	mux.HandleFunc("GET "+base+"/trips", tripHandler.Search)
	mux.HandleFunc("GET "+base+"/trips/{id}", tripHandler.GetTrip)

	// Account.
	mux.Handle("GET "+base+"/account/me", authed(http.HandlerFunc(accountHandler.GetMe)))
	mux.Handle("GET "+base+"/account/ledger", authed(http.HandlerFunc(accountHandler.ListLedger)))
	mux.Handle("POST "+base+"/account/topup", authed(http.HandlerFunc(accountHandler.Topup)))
	mux.Handle("PATCH "+base+"/account/settings", authed(http.HandlerFunc(accountHandler.UpdateSettings)))
	mux.Handle("GET "+base+"/account/trips", authed(http.HandlerFunc(accountHandler.ListTrips)))

	// Trip lifecycle (driver).
	mux.Handle("POST "+base+"/trips", authed(http.HandlerFunc(tripHandler.PublishTrip)))
	mux.Handle("POST "+base+"/trips/{id}/start", authed(http.HandlerFunc(tripHandler.StartTrip)))
	mux.Handle("POST "+base+"/trips/{id}/complete", authed(http.HandlerFunc(tripHandler.CompleteTrip)))
	mux.Handle("DELETE "+base+"/trips/{id}", authed(http.HandlerFunc(tripHandler.DeleteTrip)))

	// Booking (passenger).
	mux.Handle("POST "+base+"/trips/{id}/reservations", authed(seatCheck(http.HandlerFunc(bookingHandler.Reserve))))
	mux.Handle("POST "+base+"/trips/{id}/reservations/confirm", authed(http.HandlerFunc(bookingHandler.Confirm)))
	mux.Handle("DELETE "+base+"/trips/{id}/reservations", authed(http.HandlerFunc(bookingHandler.Cancel)))
	mux.Handle("PATCH "+base+"/trips/{id}/reservations", authed(http.HandlerFunc(bookingHandler.UpdateSeats)))
	mux.Handle("GET "+base+"/reservations", authed(http.HandlerFunc(bookingHandler.ListReservations)))

	return mux
}
