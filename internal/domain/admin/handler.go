package admin

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/creditwager/creditwager-api/internal/domain/ledger"
	"github.com/creditwager/creditwager-api/internal/domain/reconcile"
	"github.com/creditwager/creditwager-api/internal/domain/withdrawal"
	"github.com/creditwager/creditwager-api/internal/pkg/errorhandler"
	"github.com/creditwager/creditwager-api/internal/pkg/response"
	"github.com/creditwager/creditwager-api/internal/pkg/validator"
)

// Handler handles admin HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates admin handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// --- Withdrawals ---

// ListWithdrawals handles GET /admin/withdrawals?status=
func (h *Handler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	status := strings.ToLower(r.URL.Query().Get("status"))
	if status != "" {
		if err := validator.ValidateVar(status, "withdrawal_status"); err != nil {
			response.ValidationError(w, map[string]string{"status": "must be pending, approved or rejected"})
			return
		}
	}
	limit, offset := ledger.ParsePage(r, 50, 200)

	items, total, err := h.service.ListWithdrawals(r.Context(), withdrawal.Status(status), limit, offset)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, errorMappings...)
		return
	}
	response.WithMeta(w, items, response.NewMeta(total, limit, offset))
}

// DecideWithdrawal handles POST /admin/withdrawals/{id}/decision
func (h *Handler) DecideWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid withdrawal ID")
		return
	}

	var req withdrawal.DecideRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.ValidationError(w, errs)
		return
	}

	d, err := h.service.DecideWithdrawal(r.Context(), actorFrom(r), id, withdrawal.Action(strings.ToLower(req.Action)), req.Notes)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, errorMappings...)
		return
	}

	response.OK(w, &DecisionResponse{
		WithdrawalID: d.Withdrawal.ID,
		Status:       d.Withdrawal.Status,
		UserID:       d.Withdrawal.UserID,
		Balance:      d.Balance,
		ProcessedAt:  d.Withdrawal.ProcessedAt,
	})
}

// --- Ledger ---

// Entries handles GET /admin/ledger/entries
func (h *Handler) Entries(w http.ResponseWriter, r *http.Request) {
	filters, errs := entryFilterFromQuery(r).Search()
	if errs != nil {
		response.ValidationError(w, errs)
		return
	}
	filters.Limit, filters.Offset = ledger.ParsePage(r, 50, 500)

	entries, err := h.service.SearchEntries(r.Context(), filters)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, errorMappings...)
		return
	}
	response.OK(w, entries)
}

// Account handles GET /admin/accounts/{id}
func (h *Handler) Account(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid user ID")
		return
	}

	view, err := h.service.GetAccount(r.Context(), userID)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, errorMappings...)
		return
	}
	response.OK(w, view)
}

// Export handles POST /admin/ledger/exports
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	var req EntryFilter
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	filters, errs := req.Search()
	if errs != nil {
		response.ValidationError(w, errs)
		return
	}

	out, err := h.service.ExportLedger(r.Context(), actorFrom(r), filters)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, errorMappings...)
		return
	}
	response.Created(w, out)
}

// --- Reconciliation ---

// Exceptions handles GET /admin/reconciliation?status=
func (h *Handler) Exceptions(w http.ResponseWriter, r *http.Request) {
	status := reconcile.Status(strings.ToLower(r.URL.Query().Get("status")))
	switch status {
	case "", reconcile.StatusOpen, reconcile.StatusResolved, reconcile.StatusFailed:
	default:
		response.ValidationError(w, map[string]string{"status": "must be open, resolved or failed"})
		return
	}
	limit, offset := ledger.ParsePage(r, 50, 200)

	items, total, err := h.service.ListExceptions(r.Context(), status, limit, offset)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, errorMappings...)
		return
	}
	response.WithMeta(w, items, response.NewMeta(total, limit, offset))
}

// RetryException handles POST /admin/reconciliation/{id}/retry
func (h *Handler) RetryException(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid exception ID")
		return
	}

	ex, err := h.service.RetryException(r.Context(), actorFrom(r), id)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, errorMappings...)
		return
	}
	response.OK(w, ex)
}

// --- Audit Logs ---

// AuditLogs handles GET /admin/audit/logs
func (h *Handler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset := ledger.ParsePage(r, 50, 100)
	filter := AuditFilter{Limit: limit, Offset: offset}

	if action := r.URL.Query().Get("action"); action != "" {
		filter.Action = &action
	}
	if entityType := r.URL.Query().Get("entity_type"); entityType != "" {
		filter.EntityType = &entityType
	}
	if v := r.URL.Query().Get("entity_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			response.BadRequest(w, "Invalid entity ID")
			return
		}
		filter.EntityID = &id
	}

	logs, total, err := h.service.ListAuditLogs(r.Context(), filter)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, errorMappings...)
		return
	}
	response.WithMeta(w, logs, response.NewMeta(total, limit, offset))
}
