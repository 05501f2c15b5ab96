package dashboard

import (
	"net/http"

	"github.com/creditwager/creditwager-api/internal/pkg/errorhandler"
	"github.com/creditwager/creditwager-api/internal/pkg/response"
)

// Handler handles dashboard HTTP requests
type Handler struct {
	svc *Service
}

// NewHandler creates new dashboard handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Stats handles GET /api/admin/dashboard/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.GetStats(r.Context())
	if err != nil {
		errorhandler.Handle(r.Context(), w, err)
		return
	}
	response.OK(w, stats)
}
