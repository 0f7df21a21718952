package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
)

// Args is the queue payload for one sweep run. The sweep is registered as a
// River periodic job; Args carries no state.
type Args struct{}

func (Args) Kind() string { return "pending_reservation_sweep" }

// Canceller is the slice of the booking engine the sweep needs.
type Canceller interface {
	SweepStalePending(ctx context.Context, ttl time.Duration) (int, error)
}

// Worker cancels pending reservations that sat unconfirmed longer than TTL.
// Stale pending rows hold no seats and no credit, so the sweep is hygiene,
// not correctness; it goes through the engine's own cancel path.
type Worker struct {
	river.WorkerDefaults[Args]
	engine Canceller
	ttl    time.Duration
	log    *slog.Logger
}

func NewWorker(engine Canceller, ttl time.Duration, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{engine: engine, ttl: ttl, log: log}
}

func (w *Worker) Work(ctx context.Context, _ *river.Job[Args]) error {
	n, err := w.engine.SweepStalePending(ctx, w.ttl)
	if err != nil {
		return err
	}
	if n > 0 {
		w.log.Info("stale pending reservations cancelled", "count", n)
	}
	return nil
}
