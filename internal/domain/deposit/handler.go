package deposit

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/creditwager/creditwager-api/internal/middleware"
	"github.com/creditwager/creditwager-api/internal/pkg/errorhandler"
	"github.com/creditwager/creditwager-api/internal/pkg/payment"
	"github.com/creditwager/creditwager-api/internal/pkg/response"
	"github.com/creditwager/creditwager-api/internal/pkg/validator"
)

const maxWebhookBytes = 1 << 20

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Confirm handles POST /deposits/confirm
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req confirmRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.ValidationError(w, errs)
		return
	}

	out, err := h.svc.ConfirmCheckout(r.Context(), userID, req.SessionID)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, errorMappings...)
		return
	}

	response.OK(w, out)
}

// Plans handles GET /deposits/plans
func (h *Handler) Plans(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.svc.Plans())
}

// Webhook handles POST /webhooks/payments. It is authenticated by the
// payload signature, not by a user token.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		response.BadRequest(w, "unreadable body")
		return
	}

	out, err := h.svc.HandleWebhook(r.Context(), payload, r.Header.Get("Payment-Signature"))
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			response.Error(w, http.StatusBadRequest, "INVALID_SIGNATURE", "Invalid webhook signature")
			return
		}
		errorhandler.Handle(r.Context(), w, err, errorMappings...)
		return
	}

	if out == nil {
		response.OK(w, map[string]interface{}{"received": true})
		return
	}
	response.OK(w, map[string]interface{}{"received": true, "replayed": out.Replayed})
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/plans", h.Plans)
	r.With(authMiddleware).Post("/confirm", h.Confirm)
	return r
}
