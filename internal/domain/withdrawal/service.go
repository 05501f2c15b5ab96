package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/creditwager/creditwager-api/internal/domain/ledger"
	"github.com/creditwager/creditwager-api/internal/pkg/database"
	"github.com/creditwager/creditwager-api/internal/pkg/logger"
	"github.com/creditwager/creditwager-api/internal/pkg/metrics"
	"github.com/creditwager/creditwager-api/internal/pkg/validator"
)

// Config holds the withdrawal policy.
type Config struct {
	Rate       decimal.Decimal // currency per credit
	MinCredits int64
	Currency   string
}

type Service struct {
	repo   *Repository
	ledger *ledger.Service
	cfg    Config
}

func NewService(repo *Repository, ledgerSvc *ledger.Service, cfg Config) *Service {
	return &Service{repo: repo, ledger: ledgerSvc, cfg: cfg}
}

// Convert returns the currency paid out for credits, rounded half-up to cents.
func (s *Service) Convert(credits int64) decimal.Decimal {
	return decimal.NewFromInt(credits).Mul(s.cfg.Rate).Round(2)
}

// Request reserves credits and opens a pending withdrawal. The debit and
// the request row commit together.
func (s *Service) Request(ctx context.Context, userID uuid.UUID, credits int64, keyType, key string) (*Withdrawal, error) {
	if credits < s.cfg.MinCredits {
		return nil, fmt.Errorf("%w: minimum is %d credits", ErrBelowMinimum, s.cfg.MinCredits)
	}
	keyType = strings.ToLower(strings.TrimSpace(keyType))
	key = strings.TrimSpace(key)
	if err := validatePayoutKey(keyType, key); err != nil {
		return nil, err
	}

	w := &Withdrawal{
		ID:             uuid.New(),
		UserID:         userID,
		CreditsAmount:  credits,
		CurrencyAmount: s.Convert(credits),
		PayoutKeyType:  keyType,
		PayoutKey:      key,
		Status:         StatusPending,
	}
	m := ledger.Mutation{
		UserID: userID,
		Amount: -credits,
		Meta: ledger.EntryMeta{
			ID:             uuid.New(),
			Kind:           ledger.KindWithdrawal,
			Description:    fmt.Sprintf("Withdrawal of %d credits - %s %s via PIX", credits, w.CurrencyAmount.StringFixed(2), s.cfg.Currency),
			ExternalRef:    w.ID.String(),
			CurrencyAmount: &w.CurrencyAmount,
		},
	}

	var res *ledger.Result
	err := s.ledger.RunTx(ctx, "withdrawal.request", func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		res, err = s.ledger.Store().ApplyEntryTx(ctx, tx, m)
		if err != nil {
			return err
		}
		return s.repo.CreateTx(ctx, tx, w)
	})
	if errors.Is(err, ledger.ErrAccountNotFound) {
		err = ErrInsufficientBalance
	}
	if err != nil {
		return nil, err
	}

	s.ledger.Committed(ctx, res)
	logger.LogInfo(ctx, "withdrawal requested",
		"withdrawal_id", w.ID.String(),
		"user_id", userID.String(),
		"credits", credits,
		"currency_amount", w.CurrencyAmount.StringFixed(2),
	)
	return w, nil
}

// Decide applies an admin decision to a pending request. The status guard,
// the refund or completion entry and the counters commit together, and
// the row lock serializes concurrent decisions.
func (s *Service) Decide(ctx context.Context, id uuid.UUID, action Action, adminID uuid.UUID, notes string) (*Decision, error) {
	var target Status
	switch action {
	case ActionApprove:
		target = StatusApproved
	case ActionReject:
		target = StatusRejected
	default:
		return nil, ErrInvalidAction
	}

	var notesPtr *string
	if n := strings.TrimSpace(notes); n != "" {
		notesPtr = &n
	}
	entryID := uuid.New()

	var (
		w        *Withdrawal
		res      *ledger.Result
		attempts int
	)
	err := s.ledger.RunTx(ctx, "withdrawal.decide", func(ctx context.Context, tx *sqlx.Tx) error {
		attempts++
		res = nil

		cur, err := s.repo.LockTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.Status != StatusPending {
			// An earlier attempt may have committed before its acknowledgement was lost.
			if attempts > 1 && cur.Status == target && cur.ProcessedBy != nil && *cur.ProcessedBy == adminID {
				w = cur
				return nil
			}
			return ErrAlreadyProcessed
		}

		processedAt, err := s.repo.MarkProcessedTx(ctx, tx, id, target, adminID, notesPtr)
		if err != nil {
			return err
		}

		res, err = s.ledger.Store().ApplyEntryTx(ctx, tx, s.decisionMutation(cur, action, entryID))
		if err != nil {
			return err
		}

		cur.Status = target
		cur.ProcessedBy = &adminID
		cur.ProcessedAt = &processedAt
		cur.Notes = notesPtr
		w = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := &Decision{Withdrawal: w}
	if res != nil {
		s.ledger.Committed(ctx, res)
		out.Balance = res.Balance
	} else if out.Balance, err = s.ledger.GetBalance(ctx, w.UserID); err != nil {
		return nil, err
	}

	metrics.WithdrawalDecisions.WithLabelValues(string(action)).Inc()
	logger.LogInfo(ctx, "withdrawal decided",
		"withdrawal_id", id.String(),
		"user_id", w.UserID.String(),
		"admin_id", adminID.String(),
		"status", string(w.Status),
	)
	return out, nil
}

// decisionMutation is the refund for a rejection, or the informational
// completion entry for an approval (the credits already left at request time).
func (s *Service) decisionMutation(w *Withdrawal, action Action, entryID uuid.UUID) ledger.Mutation {
	currency := w.CurrencyAmount
	if action == ActionReject {
		return ledger.Mutation{
			UserID: w.UserID,
			Amount: w.CreditsAmount,
			Meta: ledger.EntryMeta{
				ID:          entryID,
				Kind:        ledger.KindWithdrawalRefund,
				Description: fmt.Sprintf("Refund of rejected withdrawal - %d credits returned", w.CreditsAmount),
				ExternalRef: w.ID.String(),
			},
		}
	}
	return ledger.Mutation{
		UserID: w.UserID,
		Amount: 0,
		Meta: ledger.EntryMeta{
			ID:             entryID,
			Kind:           ledger.KindWithdrawalCompleted,
			Description:    fmt.Sprintf("Withdrawal approved - %s %s sent via PIX", currency.StringFixed(2), s.cfg.Currency),
			ExternalRef:    w.ID.String(),
			CurrencyAmount: &currency,
		},
		Counters: ledger.Counters{Withdrawn: currency},
	}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Withdrawal, error) {
	var w *Withdrawal
	err := database.Retry(ctx, s.ledger.Policy(), "withdrawal.get", func(ctx context.Context) error {
		var err error
		w, err = s.repo.GetByID(ctx, id)
		return err
	})
	return w, err
}

// List returns the user's own requests, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Withdrawal, error) {
	var out []Withdrawal
	err := database.Retry(ctx, s.ledger.Policy(), "withdrawal.list", func(ctx context.Context) error {
		var err error
		out, err = s.repo.ListByUser(ctx, userID, limit, offset)
		return err
	})
	return out, err
}

// ListByStatus is the admin review queue.
func (s *Service) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]Withdrawal, int, error) {
	var (
		out   []Withdrawal
		total int
	)
	err := database.Retry(ctx, s.ledger.Policy(), "withdrawal.list_by_status", func(ctx context.Context) error {
		var err error
		out, total, err = s.repo.ListByStatus(ctx, status, limit, offset)
		return err
	})
	return out, total, err
}

// validatePayoutKey requires a key and a known key type. The key format
// itself is checked by the payout processor.
func validatePayoutKey(keyType, key string) error {
	if keyType == "" || key == "" || len(key) > 140 {
		return ErrInvalidPayoutKey
	}
	if validator.ValidateVar(keyType, "payout_key_type") != nil {
		return fmt.Errorf("%w: unknown key type %q", ErrInvalidPayoutKey, keyType)
	}
	return nil
}
