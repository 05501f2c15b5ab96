package admin

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/creditwager/creditwager-api/internal/domain/ledger"
	"github.com/creditwager/creditwager-api/internal/domain/reconcile"
	"github.com/creditwager/creditwager-api/internal/domain/withdrawal"
	"github.com/creditwager/creditwager-api/internal/pkg/errorhandler"
	"github.com/creditwager/creditwager-api/internal/pkg/validator"
)

var errorMappings = append([]errorhandler.Mapping{
	{Err: ErrExportUnavailable, Status: http.StatusServiceUnavailable, Code: "EXPORT_UNAVAILABLE", Message: "Ledger export storage is not configured"},
	{Err: ErrExportTooLarge, Status: http.StatusUnprocessableEntity, Code: "EXPORT_TOO_LARGE", Message: "Narrow the filters; the export exceeds the row limit"},
	{Err: reconcile.ErrExceptionNotFound, Status: http.StatusNotFound, Code: "EXCEPTION_NOT_FOUND", Message: "Reconciliation exception not found"},
}, withdrawal.ErrorMappings...)

// EntryFilter is the ledger search query, used by GET /ledger/entries
// (query string) and POST /ledger/exports (JSON body).
type EntryFilter struct {
	UserID string `json:"user_id" validate:"omitempty,uuid"`
	Kind   string `json:"kind" validate:"omitempty,entry_kind"`
	From   string `json:"from" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	To     string `json:"to" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

func entryFilterFromQuery(r *http.Request) EntryFilter {
	q := r.URL.Query()
	return EntryFilter{
		UserID: q.Get("user_id"),
		Kind:   q.Get("kind"),
		From:   q.Get("from"),
		To:     q.Get("to"),
	}
}

// Search validates the filter and converts it to ledger filters
func (f EntryFilter) Search() (ledger.SearchFilters, map[string]string) {
	if errs := validator.Validate(&f); errs != nil {
		return ledger.SearchFilters{}, errs
	}

	var out ledger.SearchFilters
	if f.UserID != "" {
		id := uuid.MustParse(f.UserID)
		out.UserID = &id
	}
	if f.Kind != "" {
		k := ledger.Kind(f.Kind)
		out.Kind = &k
	}
	if f.From != "" {
		t, _ := time.Parse(time.RFC3339, f.From)
		out.DateFrom = &t
	}
	if f.To != "" {
		t, _ := time.Parse(time.RFC3339, f.To)
		out.DateTo = &t
	}
	if out.DateFrom != nil && out.DateTo != nil && out.DateTo.Before(*out.DateFrom) {
		return ledger.SearchFilters{}, map[string]string{"to": "must not be before from"}
	}
	return out, nil
}

// DecisionResponse is returned by POST /withdrawals/{id}/decision
type DecisionResponse struct {
	WithdrawalID uuid.UUID         `json:"withdrawal_id"`
	Status       withdrawal.Status `json:"status"`
	UserID       uuid.UUID         `json:"user_id"`
	Balance      int64             `json:"balance"`
	ProcessedAt  *time.Time        `json:"processed_at,omitempty"`
}
