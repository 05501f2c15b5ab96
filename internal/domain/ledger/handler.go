package ledger

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/creditwager/creditwager-api/internal/middleware"
	"github.com/creditwager/creditwager-api/internal/pkg/errorhandler"
	"github.com/creditwager/creditwager-api/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Account handles GET /account
func (h *Handler) Account(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	acct, err := h.svc.GetAccount(r.Context(), userID)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, ErrorMappings...)
		return
	}

	response.OK(w, acct)
}

// Balance handles GET /account/balance
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	balance, err := h.svc.GetBalance(r.Context(), userID)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, ErrorMappings...)
		return
	}

	response.OK(w, map[string]interface{}{"balance": balance})
}

// Transactions handles GET /account/transactions
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit, offset := ParsePage(r, 20, 100)
	p := Pagination{Limit: limit, Offset: offset, Kind: Kind(r.URL.Query().Get("kind"))}
	if p.Kind != "" && !p.Kind.Valid() {
		response.BadRequest(w, "unknown transaction kind")
		return
	}

	entries, total, err := h.svc.History(r.Context(), userID, p)
	if err != nil {
		errorhandler.Handle(r.Context(), w, err, ErrorMappings...)
		return
	}

	response.WithMeta(w, entries, response.NewMeta(total, limit, offset))
}

// ParsePage reads limit and offset query parameters.
func ParsePage(r *http.Request, def, max int) (int, int) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/", h.Account)
	r.Get("/balance", h.Balance)
	r.Get("/transactions", h.Transactions)
	return r
}
