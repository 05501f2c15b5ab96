package withdrawal

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/creditwager/creditwager-api/internal/domain/ledger"
	"github.com/creditwager/creditwager-api/internal/middleware"
	"github.com/creditwager/creditwager-api/internal/pkg/errorhandler"
	"github.com/creditwager/creditwager-api/internal/pkg/response"
	"github.com/creditwager/creditwager-api/internal/pkg/validator"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Create handles POST /withdrawals
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req CreateRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.ValidationError(w, errs)
		return
	}

	out, err := h.svc.Request(r.Context(), userID, req.Credits, req.PayoutKeyType, req.PayoutKey)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, ErrorMappings...)
		return
	}

	response.Created(w, map[string]interface{}{
		"withdrawal_id":   out.ID,
		"credits":         out.CreditsAmount,
		"currency_amount": out.CurrencyAmount,
		"status":          out.Status,
	})
}

// List handles GET /withdrawals
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit, offset := ledger.ParsePage(r, 20, 100)
	items, err := h.svc.List(r.Context(), userID, limit, offset)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, ErrorMappings...)
		return
	}
	response.OK(w, items)
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/", h.Create)
	r.Get("/", h.List)
	return r
}
