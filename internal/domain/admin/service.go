package admin

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/rs/zerolog/log"

	"github.com/creditwager/creditwager-api/internal/domain/ledger"
	"github.com/creditwager/creditwager-api/internal/domain/reconcile"
	"github.com/creditwager/creditwager-api/internal/domain/withdrawal"
)

// Withdrawals is the review side of the withdrawal workflow
type Withdrawals interface {
	ListByStatus(ctx context.Context, status withdrawal.Status, limit, offset int) ([]withdrawal.Withdrawal, int, error)
	Decide(ctx context.Context, id uuid.UUID, action withdrawal.Action, adminID uuid.UUID, notes string) (*withdrawal.Decision, error)
}

// Ledger is the read side of the account service
type Ledger interface {
	LookupAccount(ctx context.Context, userID uuid.UUID) (*ledger.Account, error)
	History(ctx context.Context, userID uuid.UUID, p ledger.Pagination) ([]ledger.Entry, int, error)
	Search(ctx context.Context, filters ledger.SearchFilters) ([]ledger.Entry, error)
}

// Exceptions is the admin side of reconciliation
type Exceptions interface {
	List(ctx context.Context, status reconcile.Status, limit, offset int) ([]reconcile.Exception, int, error)
	Retry(ctx context.Context, id uuid.UUID) (*reconcile.Exception, error)
}

// ObjectStore receives ledger exports
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

const (
	exportPageSize = 1000
	maxExportRows  = 100000
)

// Service handles admin business logic
type Service struct {
	repo        Repository
	withdrawals Withdrawals
	ledger      Ledger
	exceptions  Exceptions
	store       ObjectStore
	exportTTL   time.Duration
	now         func() time.Time
}

// NewService creates admin service. store may be nil when exports are disabled.
func NewService(repo Repository, withdrawals Withdrawals, ledgerSvc Ledger, exceptions Exceptions, store ObjectStore, exportTTL time.Duration) *Service {
	if exportTTL <= 0 {
		exportTTL = 15 * time.Minute
	}
	return &Service{
		repo:        repo,
		withdrawals: withdrawals,
		ledger:      ledgerSvc,
		exceptions:  exceptions,
		store:       store,
		exportTTL:   exportTTL,
		now:         time.Now,
	}
}

// --- Withdrawals ---

func (s *Service) ListWithdrawals(ctx context.Context, status withdrawal.Status, limit, offset int) ([]withdrawal.Withdrawal, int, error) {
	return s.withdrawals.ListByStatus(ctx, status, limit, offset)
}

// DecideWithdrawal applies an approve or reject decision and records it
// in the audit log.
func (s *Service) DecideWithdrawal(ctx context.Context, actor Actor, id uuid.UUID, action withdrawal.Action, notes string) (*withdrawal.Decision, error) {
	d, err := s.withdrawals.Decide(ctx, id, action, actor.ID, notes)
	if err != nil {
		return nil, err
	}

	auditAction := ActionWithdrawalApprove
	if action == withdrawal.ActionReject {
		auditAction = ActionWithdrawalReject
	}
	s.logAction(ctx, actor, auditAction, "withdrawal", id, notes,
		map[string]interface{}{"status": withdrawal.StatusPending},
		map[string]interface{}{
			"status":          d.Withdrawal.Status,
			"user_id":         d.Withdrawal.UserID,
			"credits_amount":  d.Withdrawal.CreditsAmount,
			"currency_amount": d.Withdrawal.CurrencyAmount,
			"balance":         d.Balance,
		},
	)
	return d, nil
}

// --- Ledger ---

// AccountView is an account with its most recent entries
type AccountView struct {
	Account *ledger.Account `json:"account"`
	Recent  []ledger.Entry  `json:"recent_entries"`
	Total   int             `json:"total_entries"`
}

func (s *Service) GetAccount(ctx context.Context, userID uuid.UUID) (*AccountView, error) {
	acct, err := s.ledger.LookupAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries, total, err := s.ledger.History(ctx, userID, ledger.Pagination{Limit: 20})
	if err != nil {
		return nil, err
	}
	return &AccountView{Account: acct, Recent: entries, Total: total}, nil
}

func (s *Service) SearchEntries(ctx context.Context, filters ledger.SearchFilters) ([]ledger.Entry, error) {
	return s.ledger.Search(ctx, filters)
}

// ExportLedger writes the entries matching filters to a CSV object and
// returns a presigned download URL.
func (s *Service) ExportLedger(ctx context.Context, actor Actor, filters ledger.SearchFilters) (*Export, error) {
	if s.store == nil {
		return nil, ErrExportUnavailable
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"id", "user_id", "kind", "amount", "balance_after", "currency_amount", "description", "external_ref", "created_at"})

	// Pages are read up to a fixed cutoff so rows written mid-export cannot
	// shift the offsets.
	now := s.now().UTC()
	if filters.DateTo == nil || filters.DateTo.After(now) {
		filters.DateTo = &now
	}

	rows := 0
	filters.Limit = exportPageSize
	for offset := 0; ; offset += exportPageSize {
		filters.Offset = offset
		page, err := s.ledger.Search(ctx, filters)
		if err != nil {
			return nil, err
		}
		for _, e := range page {
			if rows == maxExportRows {
				return nil, ErrExportTooLarge
			}
			_ = w.Write(entryRecord(e))
			rows++
		}
		if len(page) < exportPageSize {
			break
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}

	key := fmt.Sprintf("exports/ledger/%s/%s.csv", now.Format("2006-01-02"), uuid.NewString())
	if err := s.store.Put(ctx, key, buf.Bytes(), "text/csv"); err != nil {
		return nil, err
	}
	url, err := s.store.PresignGet(ctx, key, s.exportTTL)
	if err != nil {
		return nil, err
	}

	s.logAction(ctx, actor, ActionLedgerExport, "ledger_export", uuid.Nil, "", nil,
		map[string]interface{}{"key": key, "rows": rows, "filters": exportFilterLog(filters)})

	return &Export{Key: key, URL: url, Rows: rows, ExpiresAt: now.Add(s.exportTTL)}, nil
}

func entryRecord(e ledger.Entry) []string {
	currency := ""
	if e.CurrencyAmount.Valid {
		currency = e.CurrencyAmount.Decimal.StringFixed(2)
	}
	ref := ""
	if e.ExternalRef != nil {
		ref = *e.ExternalRef
	}
	return []string{
		e.ID.String(),
		e.UserID.String(),
		string(e.Kind),
		strconv.FormatInt(e.Amount, 10),
		strconv.FormatInt(e.BalanceAfter, 10),
		currency,
		e.Description,
		ref,
		e.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func exportFilterLog(f ledger.SearchFilters) map[string]interface{} {
	out := map[string]interface{}{}
	if f.UserID != nil {
		out["user_id"] = f.UserID.String()
	}
	if f.Kind != nil {
		out["kind"] = string(*f.Kind)
	}
	if f.DateFrom != nil {
		out["from"] = f.DateFrom.Format(time.RFC3339)
	}
	if f.DateTo != nil {
		out["to"] = f.DateTo.Format(time.RFC3339)
	}
	return out
}

// --- Reconciliation ---

func (s *Service) ListExceptions(ctx context.Context, status reconcile.Status, limit, offset int) ([]reconcile.Exception, int, error) {
	return s.exceptions.List(ctx, status, limit, offset)
}

func (s *Service) RetryException(ctx context.Context, actor Actor, id uuid.UUID) (*reconcile.Exception, error) {
	ex, err := s.exceptions.Retry(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logAction(ctx, actor, ActionReconcileRetry, "reconciliation_exception", id, "", nil,
		map[string]interface{}{"status": ex.Status, "wager_id": ex.WagerID})
	return ex, nil
}

// --- Audit Logs ---

// ListAuditLogs returns audit logs
func (s *Service) ListAuditLogs(ctx context.Context, filter AuditFilter) ([]*AuditLog, int, error) {
	return s.repo.ListAuditLogs(ctx, filter)
}

// logAction creates an audit log entry. The action already happened, so a
// failed insert is logged and does not fail the request.
func (s *Service) logAction(ctx context.Context, actor Actor, action, entityType string, entityID uuid.UUID, reason string, oldValue, newValue interface{}) {

	entry := &AuditLog{
		ID:         uuid.New(),
		AdminID:    actor.ID,
		AdminRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   uuid.NullUUID{UUID: entityID, Valid: entityID != uuid.Nil},
		OldValue:   auditJSON(oldValue),
		NewValue:   auditJSON(newValue),
		Reason:     sql.NullString{String: reason, Valid: reason != ""},
		IPAddress:  sql.NullString{String: actor.IP, Valid: actor.IP != ""},
		CreatedAt:  s.now(),
	}

	if err := s.repo.CreateAuditLog(context.WithoutCancel(ctx), entry); err != nil {
		log.Error().
			Err(err).
			Str("admin_id", actor.ID.String()).
			Str("action", action).
			Str("entity_id", entityID.String()).
			Msg("Failed to create audit log")
	}
}

// auditJSON stores nil as SQL NULL rather than the JSON literal null.
func auditJSON(v interface{}) types.NullJSONText {
	if v == nil {
		return types.NullJSONText{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return types.NullJSONText{}
	}
	return types.NullJSONText{JSONText: b, Valid: true}
}
