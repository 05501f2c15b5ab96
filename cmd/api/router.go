package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/creditwager/creditwager-api/internal/domain/admin"
	"github.com/creditwager/creditwager-api/internal/domain/dashboard"
	"github.com/creditwager/creditwager-api/internal/domain/deposit"
	"github.com/creditwager/creditwager-api/internal/domain/ledger"
	"github.com/creditwager/creditwager-api/internal/domain/realtime"
	"github.com/creditwager/creditwager-api/internal/domain/wager"
	"github.com/creditwager/creditwager-api/internal/domain/withdrawal"
	"github.com/creditwager/creditwager-api/internal/middleware"
	"github.com/creditwager/creditwager-api/internal/pkg/jwt"
	"github.com/creditwager/creditwager-api/internal/pkg/logger"
	"github.com/creditwager/creditwager-api/internal/pkg/response"
)

const apiTimeout = 20 * time.Second

type routerDeps struct {
	ledger     *ledger.Handler
	deposit    *deposit.Handler
	withdrawal *withdrawal.Handler
	wager      *wager.Handler
	realtime   *realtime.Handler
	admin      *admin.Handler
	dashboard  *dashboard.Handler

	jwt      *jwt.Service
	adminJWT *jwt.Service

	gameRateLimit  func(http.Handler) http.Handler
	allowedOrigins []string

	// readiness checks by dependency name
	readiness map[string]func(context.Context) error
}

func newRouter(d routerDeps) chi.Router {
	authMiddleware := middleware.Auth(d.jwt)

	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(d.allowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, map[string]string{"status": "ok"})
	})
	r.Get("/ready", readyHandler(d.readiness))
	r.Handle("/metrics", promhttp.Handler())

	// WebSocket endpoint (no timeout, the connection is hijacked)
	r.With(authMiddleware).Get("/ws/balance", d.realtime.Balance)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(apiTimeout))

		r.Post("/webhooks/payments", d.deposit.Webhook)

		r.Route("/api/v1", func(r chi.Router) {
			r.Mount("/account", d.ledger.Routes(authMiddleware))
			r.Mount("/deposits", d.deposit.Routes(authMiddleware))
			r.Mount("/withdrawals", d.withdrawal.Routes(authMiddleware))
			r.Mount("/games", d.wager.Routes(authMiddleware, d.gameRateLimit))

			// external game evaluators settle with a game_server admin token
			r.With(
				admin.AuthMiddleware(d.adminJWT),
				admin.RequirePermission(admin.PermSettleWagers),
			).Post("/wagers/settle", d.wager.Settle)
		})

		r.Mount("/api/admin", d.admin.Routes(d.adminJWT, d.dashboard.Stats))
	})

	return r
}

func readyHandler(checks map[string]func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := make(map[string]string, len(checks))
		ready := true
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.LogWarn(r.Context(), "Readiness check failed", "dependency", name, "error", err.Error())
				status[name] = "down"
				ready = false
				continue
			}
			status[name] = "up"
		}

		if !ready {
			response.JSON(w, http.StatusServiceUnavailable, status)
			return
		}
		response.OK(w, status)
	}
}
