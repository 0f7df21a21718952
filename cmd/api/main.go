package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/ridepool/backend/internal/auth"
	"github.com/ridepool/backend/internal/config"
	"github.com/ridepool/backend/internal/events"
	"github.com/ridepool/backend/internal/handlers"
	"github.com/ridepool/backend/internal/ledger"
	"github.com/ridepool/backend/internal/notify"
	"github.com/ridepool/backend/internal/repository"
	"github.com/ridepool/backend/internal/router"
	"github.com/ridepool/backend/internal/services"
	"github.com/ridepool/backend/internal/sweep"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	ctx := context.Background()
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		slog.Error("Invalid DATABASE_URL", "error", err)
		os.Exit(1)
	}
	// Trip prices are NUMERIC; register the shopspring codec on every conn.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL (connection refused or invalid). Ensure Postgres is running, e.g. docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL database successfully!")

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed. If the error is 'connection refused', start PostgreSQL first", "error", err)
		os.Exit(1)
	}
	slog.Info("River migrations applied")

	// Ledger
	ledgerRepo := ledger.NewRepository(pool)
	ledgerSvc := ledger.NewService(ledgerRepo)

	// Repositories
	accountRepo := repository.NewAccountRepo(pool)
	tripRepo := repository.NewTripRepo(pool)
	reservationRepo := repository.NewReservationRepo(pool)

	// Notices: insert func is set after the River client is created
	// (breaks init cycle between booking engine and sweep worker).
	var insertMu sync.Mutex
	var insertFn notify.EnqueueFunc
	enqueueNotice := func(ctx context.Context, tx pgx.Tx, args notify.NoticeArgs) error {
		insertMu.Lock()
		fn := insertFn
		insertMu.Unlock()
		if fn == nil {
			panic("river insert not wired")
		}
		return fn(ctx, tx, args)
	}

	booking := services.NewBookingService(
		pool,
		tripRepo,
		reservationRepo,
		accountRepo,
		ledgerSvc,
		events.NewSlogRecorder(logger),
		enqueueNotice,
		logger,
	)
	searcher := services.NewSearchService(tripRepo)

	workers := river.NewWorkers()
	river.AddWorker(workers, notify.NewNoticeWorker(accountRepo, logger))
	river.AddWorker(workers, sweep.NewWorker(booking, cfg.PendingTTL, logger))

	riverCfg := &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
	}
	if cfg.PendingTTL > 0 {
		riverCfg.PeriodicJobs = []*river.PeriodicJob{
			river.NewPeriodicJob(
				river.PeriodicInterval(cfg.SweepInterval),
				func() (river.JobArgs, *river.InsertOpts) { return sweep.Args{}, nil },
				&river.PeriodicJobOpts{RunOnStart: true},
			),
		}
	}

	riverClient, err := river.NewClient(riverpgxv5.New(pool), riverCfg)
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	insertMu.Lock()
	insertFn = func(ctx context.Context, tx pgx.Tx, args notify.NoticeArgs) error {
		_, err := riverClient.InsertTx(ctx, tx, args, nil)
		return err
	}
	insertMu.Unlock()

	// Auth
	authRepo := auth.NewRepository(pool)
	authSvc := auth.NewService(authRepo, cfg.JWTSecret)
	authHandler := auth.NewHandler(authSvc, logger)

	policy := services.BookingPolicy{AutoConfirm: cfg.AutoConfirm, PlatformFee: cfg.PlatformFee}

	tripHandler := &handlers.TripHandler{
		Trips:    tripRepo,
		Engine:   booking,
		Searcher: searcher,
		Logger:   logger,
	}
	bookingHandler := &handlers.BookingHandler{
		Engine:       booking,
		Reservations: reservationRepo,
		Policy:       policy,
		Logger:       logger,
	}
	accountHandler := &handlers.AccountHandler{
		Accounts: accountRepo,
		Trips:    tripRepo,
		Ledger:   ledgerSvc,
		Logger:   logger,
	}

	apiRouter := router.New(authHandler, tripHandler, bookingHandler, accountHandler, authSvc, accountRepo)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(apiRouter)

	// Start River client (delivers notices, sweeps stale pendings)
	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	serverAddr := "0.0.0.0:" + cfg.Port
	slog.Info("Starting HTTP server", "addr", serverAddr)
	if err := http.ListenAndServe(serverAddr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
