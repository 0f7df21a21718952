package events

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Event names emitted by the booking engine.
const (
	EventReserve  = "reserve"
	EventConfirm  = "confirm"
	EventCancel   = "cancel"
	EventComplete = "complete"
)

// Event is one booking fact handed to external analytics. Recording is
// best-effort: a recorder must never fail the booking that produced the
// event, so Record returns nothing.
type Event struct {
	Name          string
	TripID        uuid.UUID
	AccountID     uuid.UUID
	ReservationID *uuid.UUID
	Seats         int
	Amount        int
}

type Recorder interface {
	Record(ctx context.Context, e Event)
}

// SlogRecorder writes events as structured log lines.
type SlogRecorder struct {
	log *slog.Logger
}

func NewSlogRecorder(log *slog.Logger) *SlogRecorder {
	if log == nil {
		log = slog.Default()
	}
	return &SlogRecorder{log: log}
}

var _ Recorder = (*SlogRecorder)(nil)

func (r *SlogRecorder) Record(ctx context.Context, e Event) {
	attrs := []any{
		"event", e.Name,
		"trip_id", e.TripID,
		"account_id", e.AccountID,
		"seats", e.Seats,
		"amount", e.Amount,
	}
	if e.ReservationID != nil {
		attrs = append(attrs, "reservation_id", *e.ReservationID)
	}
	r.log.InfoContext(ctx, "booking event", attrs...)
}
