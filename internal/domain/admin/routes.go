package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/creditwager/creditwager-api/internal/pkg/jwt"
)

// Routes returns admin router. dashboardStats serves GET /dashboard/stats.
func (h *Handler) Routes(jwtSvc *jwt.Service, dashboardStats http.HandlerFunc) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(jwtSvc))

	// Withdrawals
	r.Route("/withdrawals", func(r chi.Router) {
		r.With(RequirePermission(PermViewWithdrawals)).Get("/", h.ListWithdrawals)
		r.With(RequirePermission(PermDecideWithdrawals)).Post("/{id}/decision", h.DecideWithdrawal)
	})

	// Ledger
	r.With(RequirePermission(PermViewLedger)).Get("/ledger/entries", h.Entries)
	r.With(RequirePermission(PermExportLedger)).Post("/ledger/exports", h.Export)
	r.With(RequirePermission(PermViewLedger)).Get("/accounts/{id}", h.Account)

	// Reconciliation
	r.Route("/reconciliation", func(r chi.Router) {
		r.Use(RequirePermission(PermManageReconciliation))
		r.Get("/", h.Exceptions)
		r.Post("/{id}/retry", h.RetryException)
	})

	// Analytics
	if dashboardStats != nil {
		r.With(RequirePermission(PermViewAnalytics)).Get("/dashboard/stats", dashboardStats)
	}

	// Audit logs
	r.With(RequirePermission(PermViewAuditLogs)).Get("/audit/logs", h.AuditLogs)

	return r
}
