package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/zerolog/log"

	"github.com/creditwager/creditwager-api/internal/config"
	"github.com/creditwager/creditwager-api/internal/domain/admin"
	"github.com/creditwager/creditwager-api/internal/domain/dashboard"
	"github.com/creditwager/creditwager-api/internal/domain/deposit"
	"github.com/creditwager/creditwager-api/internal/domain/ledger"
	"github.com/creditwager/creditwager-api/internal/domain/realtime"
	"github.com/creditwager/creditwager-api/internal/domain/reconcile"
	"github.com/creditwager/creditwager-api/internal/domain/wager"
	"github.com/creditwager/creditwager-api/internal/domain/withdrawal"
	"github.com/creditwager/creditwager-api/internal/middleware"
	"github.com/creditwager/creditwager-api/internal/pkg/database"
	"github.com/creditwager/creditwager-api/internal/pkg/jwt"
	"github.com/creditwager/creditwager-api/internal/pkg/logger"
	"github.com/creditwager/creditwager-api/internal/pkg/payment"
	"github.com/creditwager/creditwager-api/internal/pkg/storage"
)

func main() {
	cfg := config.Load()
	if err := logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
		LogFile:     cfg.LogFile,
		Service:     "api",
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise logger")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Str("currency", cfg.Currency).
		Msg("Starting CreditWager API")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	rdb, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(rdb)

	// river needs pgx; the API only inserts jobs, the reconciler works them
	pool, err := database.NewPgxPool(ctx, cfg.DatabaseURL, 4)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open pgx pool")
	}
	defer pool.Close()

	riverClient, err := river.NewClient[pgx.Tx](riverpgxv5.New(pool), &river.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create river client")
	}

	policy := database.RetryPolicy{
		Timeout: cfg.StoreTimeout,
		Retries: cfg.StoreRetries,
		Backoff: cfg.StoreRetryBackoff,
	}

	// ---------- Realtime ----------
	hub := realtime.NewHub(rdb)
	go hub.Run()
	defer hub.Shutdown()

	// ---------- Services ----------
	ledgerSvc := ledger.NewService(ledger.NewRepository(db), policy)
	ledgerSvc.SetPublisher(hub)

	paymentClient := payment.NewClient(payment.Config{
		BaseURL:   cfg.PaymentBaseURL,
		SecretKey: cfg.PaymentSecretKey,
		Timeout:   cfg.PaymentTimeout,
	})
	depositSvc := deposit.NewService(ledgerSvc, paymentClient, cfg.DepositPlans, cfg.PaymentWebhookSecret)

	withdrawalSvc := withdrawal.NewService(withdrawal.NewRepository(db), ledgerSvc, withdrawal.Config{
		Rate:       cfg.WithdrawalRate,
		MinCredits: cfg.MinWithdrawalCredits,
		Currency:   cfg.Currency,
	})

	reconcileSvc := reconcile.NewService(
		reconcile.NewRepository(db),
		reconcile.NewRiverEnqueuer(riverClient),
		rdb,
		policy,
		reconcile.Config{MaxAttempts: cfg.ReconcileMaxAttempts},
	)

	engine := wager.NewEngine(wager.NewRepository(db), ledgerSvc, wager.Config{
		MinBet:  cfg.MinBet,
		MaxBet:  cfg.MaxBet,
		BetStep: cfg.BetStep,
	})
	engine.SetRecorder(reconcileSvc)

	exports, err := storage.NewR2Storage(ctx, storage.R2Config{
		AccountID:       cfg.R2AccountID,
		AccessKeyID:     cfg.R2AccessKeyID,
		AccessKeySecret: cfg.R2AccessKeySecret,
		BucketName:      cfg.R2BucketName,
		Endpoint:        cfg.R2Endpoint,
	})
	var objectStore admin.ObjectStore
	switch {
	case errors.Is(err, storage.ErrNotConfigured):
		log.Warn().Msg("R2 storage not configured, ledger exports disabled")
	case err != nil:
		log.Fatal().Err(err).Msg("Failed to create R2 storage")
	default:
		objectStore = exports
	}

	adminSvc := admin.NewService(admin.NewRepository(db), withdrawalSvc, ledgerSvc, reconcileSvc, objectStore, cfg.ExportURLTTL)
	dashboardSvc := dashboard.NewService(dashboard.NewRepository(db), rdb, 30*time.Second)

	router := newRouter(routerDeps{
		ledger:         ledger.NewHandler(ledgerSvc),
		deposit:        deposit.NewHandler(depositSvc),
		withdrawal:     withdrawal.NewHandler(withdrawalSvc),
		wager:          wager.NewHandler(engine, wager.Multipliers(cfg.RouletteMultipliers)),
		realtime:       realtime.NewHandler(hub, ledgerSvc, cfg.AllowedOrigins),
		admin:          admin.NewHandler(adminSvc),
		dashboard:      dashboard.NewHandler(dashboardSvc),
		jwt:            jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL),
		adminJWT:       jwt.NewService(cfg.AdminJWTSecret, cfg.AdminJWTTTL),
		gameRateLimit:  middleware.GameRateLimit(rdb, "roulette", cfg.GameRateLimit, cfg.GameRateWindow),
		allowedOrigins: cfg.AllowedOrigins,
		readiness: map[string]func(context.Context) error{
			"postgres": db.PingContext,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("Server exited properly")
}
