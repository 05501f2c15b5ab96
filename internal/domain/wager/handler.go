package wager

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
	engine      *Engine
	multipliers Multipliers
}

func NewHandler(engine *Engine, multipliers Multipliers) *Handler {
	return &Handler{engine: engine, multipliers: multipliers}
}

// Spin handles POST /games/roulette/spin
func (h *Handler) Spin(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req SpinRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.ValidationError(w, errs)
		return
	}

	bet, err := NewRouletteBet(h.multipliers, req.BetType, req.Number)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, ErrorMappings...)
		return
	}

	res, err := h.engine.Play(r.Context(), userID, req.BetAmount, bet)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, ErrorMappings...)
		return
	}
	response.OK(w, res)
}

// Settle handles POST /wagers/settle for outcomes decided by an external
// evaluator. Mounted behind back-office auth.
func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	var req SettleRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.ValidationError(w, errs)
		return
	}

	userID, _ := uuid.Parse(req.UserID)
	res, err := h.engine.Settle(r.Context(), userID, req.Game, req.BetAmount, req.Won, req.WinAmount, req.Details)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, ErrorMappings...)
		return
	}
	response.OK(w, res)
}

// Sessions handles GET /games/sessions?game&limit&offset
func (h *Handler) Sessions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit, offset := ledger.ParsePage(r, 20, 100)
	items, err := h.engine.Sessions(r.Context(), userID, r.URL.Query().Get("game"), limit, offset)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, ErrorMappings...)
		return
	}
	response.OK(w, items)
}

// Routes mounts the player game endpoints. Spins go through the per-user
// game rate limiter.
func (h *Handler) Routes(authMiddleware, rateLimit func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.With(rateLimit).Post("/roulette/spin", h.Spin)
	r.Get("/sessions", h.Sessions)
	return r
}
