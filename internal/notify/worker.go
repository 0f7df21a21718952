package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"

	"github.com/ridepool/backend/internal/models"
)

// Notice events delivered to account webhooks.
const (
	NoticeReservationCancelled = "reservation_cancelled"
	NoticeTripCompleted        = "trip_completed"
)

// NoticeArgs is the queue payload for one best-effort notification. Notices
// are enqueued with InsertTx inside the booking transaction, so a notice
// exists exactly when the booking change committed; delivery happens after
// commit and its failure never touches the booking.
type NoticeArgs struct {
	AccountID     uuid.UUID  `json:"account_id"`
	Event         string     `json:"event"`
	TripID        uuid.UUID  `json:"trip_id"`
	ReservationID *uuid.UUID `json:"reservation_id,omitempty"`
	Message       string     `json:"message"`
}

func (NoticeArgs) Kind() string { return "reservation_notice" }

// EnqueueFunc enqueues a notice within the given transaction. Provided by
// main as a closure over river.Client.InsertTx.
type EnqueueFunc func(ctx context.Context, tx pgx.Tx, args NoticeArgs) error

// AccountDirectory resolves the target account's notification endpoint.
type AccountDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

// NoticeWorker delivers notices to the account's webhook, when one is set.
type NoticeWorker struct {
	river.WorkerDefaults[NoticeArgs]
	accounts   AccountDirectory
	httpClient *http.Client
	log        *slog.Logger
}

func NewNoticeWorker(accounts AccountDirectory, log *slog.Logger) *NoticeWorker {
	if log == nil {
		log = slog.Default()
	}
	return &NoticeWorker{
		accounts:   accounts,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

func (w *NoticeWorker) Work(ctx context.Context, job *river.Job[NoticeArgs]) error {
	args := job.Args

	acc, err := w.accounts.GetByID(ctx, args.AccountID)
	if err != nil {
		return fmt.Errorf("resolve notice account: %w", err)
	}
	if acc.NotifyURL == nil || *acc.NotifyURL == "" {
		w.log.Debug("account has no notify url, dropping notice",
			"account_id", args.AccountID, "event", args.Event)
		return nil
	}

	body, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *acc.NotifyURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create notice request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver notice: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notice endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
