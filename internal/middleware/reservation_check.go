package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
)

const ctxSeatsKey contextKey = "parsed_seats"

// MaxSeatsPerBooking caps one reservation. A request asking for more is
// rejected before it reaches the booking engine.
const MaxSeatsPerBooking = 8

// parsedSeats is stored in context so the handler can read the seat count
// without re-parsing the body.
type parsedSeats struct {
	Seats int `json:"seats"`
}

// SeatsFromCtx returns the seat count parsed by SeatCheck, or 0 if not set.
func SeatsFromCtx(ctx context.Context) int {
	if s, ok := ctx.Value(ctxSeatsKey).(*parsedSeats); ok {
		return s.Seats
	}
	return 0
}

// SeatCheck validates the "seats" field of a booking body before the
// handler runs. Reads the body to extract it, then replaces r.Body so
// downstream handlers can re-read it.
func SeatCheck() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if AccountFromCtx(r.Context()) == nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}

			bodyBytes, err := io.ReadAll(r.Body)
			r.Body.Close()
			if err != nil {
				http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
				return
			}
			// Restore body for the handler.
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			var peek parsedSeats
			if err := json.Unmarshal(bodyBytes, &peek); err != nil {
				http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
				return
			}
			if peek.Seats <= 0 {
				http.Error(w, `{"error":"seats must be > 0"}`, http.StatusBadRequest)
				return
			}
			if peek.Seats > MaxSeatsPerBooking {
				http.Error(w, `{"error":"seats exceeds per-booking limit"}`, http.StatusBadRequest)
				return
			}

			ctx := context.WithValue(r.Context(), ctxSeatsKey, &peek)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
