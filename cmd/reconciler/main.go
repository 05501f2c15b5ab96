package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/zerolog/log"

	"github.com/creditwager/creditwager-api/internal/config"
	"github.com/creditwager/creditwager-api/internal/domain/ledger"
	"github.com/creditwager/creditwager-api/internal/domain/realtime"
	"github.com/creditwager/creditwager-api/internal/domain/reconcile"
	"github.com/creditwager/creditwager-api/internal/domain/wager"
	"github.com/creditwager/creditwager-api/internal/pkg/database"
	"github.com/creditwager/creditwager-api/internal/pkg/logger"
	"github.com/creditwager/creditwager-api/migrations"
)

// staleAfter is how long a wager may sit between debit and settlement
// before the sweep treats it as abandoned.
const staleAfter = 5 * time.Minute

func main() {
	cfg := config.Load()
	if err := logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
		LogFile:     cfg.LogFile,
		Service:     "reconciler",
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise logger")
	}

	log.Info().
		Int("workers", cfg.ReconcileWorkers).
		Int("max_attempts", cfg.ReconcileMaxAttempts).
		Dur("poll_interval", cfg.ReconcilePollInterval).
		Msg("Starting reconciler")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	if err := migrations.Up(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	rdb, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(rdb)

	pool, err := database.NewPgxPool(ctx, cfg.DatabaseURL, int32(cfg.ReconcileWorkers+4))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open pgx pool")
	}
	defer pool.Close()

	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create river migrator")
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate river schema")
	}

	policy := database.RetryPolicy{
		Timeout: cfg.StoreTimeout,
		Retries: cfg.StoreRetries,
		Backoff: cfg.StoreRetryBackoff,
	}

	// Replayed payouts still reach open balance streams on the API instances.
	hub := realtime.NewHub(rdb)
	go hub.Run()
	defer hub.Shutdown()

	ledgerSvc := ledger.NewService(ledger.NewRepository(db), policy)
	ledgerSvc.SetPublisher(hub)

	wagerRepo := wager.NewRepository(db)
	engine := wager.NewEngine(wagerRepo, ledgerSvc, wager.Config{
		MinBet:  cfg.MinBet,
		MaxBet:  cfg.MaxBet,
		BetStep: cfg.BetStep,
	})

	// The service needs the client as its enqueuer and the client needs the
	// worker, so the enqueuer is filled in once the client exists.
	enqueuer := &lateEnqueuer{}
	svc := reconcile.NewService(reconcile.NewRepository(db), enqueuer, rdb, policy, reconcile.Config{
		MaxAttempts: cfg.ReconcileMaxAttempts,
		StaleAfter:  staleAfter,
	})
	svc.SetResumer(engine, wagerRepo)
	engine.SetRecorder(svc)

	workers := river.NewWorkers()
	river.AddWorker(workers, reconcile.NewReplayPayoutWorker(svc))

	client, err := river.NewClient[pgx.Tx](riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			reconcile.QueueReconcile: {MaxWorkers: cfg.ReconcileWorkers},
		},
		Workers:     workers,
		MaxAttempts: cfg.ReconcileMaxAttempts,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create river client")
	}
	enqueuer.RiverEnqueuer = reconcile.NewRiverEnqueuer(client)

	if err := client.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start river client")
	}

	svc.RunSweeper(ctx, rdb, cfg.ReconcilePollInterval)

	log.Info().Msg("Shutdown signal received")
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := client.Stop(stopCtx); err != nil {
		log.Error().Err(err).Msg("River client did not stop cleanly")
	}
	log.Info().Msg("reconciler stopped")
}

type lateEnqueuer struct {
	*reconcile.RiverEnqueuer
}
