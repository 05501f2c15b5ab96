package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/creditwager/creditwager-api/internal/pkg/database"
	"github.com/creditwager/creditwager-api/internal/pkg/logger"
	"github.com/creditwager/creditwager-api/internal/pkg/metrics"
)

// Store is the ledger persistence used by Service and by the components
// that compose ledger writes with their own rows.
type Store interface {
	BeginTx(ctx context.Context) (*sqlx.Tx, error)
	EnsureAccount(ctx context.Context, userID uuid.UUID) error
	GetAccount(ctx context.Context, userID uuid.UUID) (*Account, error)
	ApplyEntry(ctx context.Context, m Mutation) (*Result, error)
	ApplyEntryTx(ctx context.Context, tx *sqlx.Tx, m Mutation) (*Result, error)
	BumpCountersTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, c Counters) error
	FindEntryByRef(ctx context.Context, kind Kind, ref string) (*Entry, bool, error)
	ListEntries(ctx context.Context, userID uuid.UUID, p Pagination) ([]Entry, int, error)
	Search(ctx context.Context, filters SearchFilters) ([]Entry, error)
}

// Publisher receives committed balance changes.
type Publisher interface {
	PublishBalance(ctx context.Context, event BalanceEvent)
}

// Service is the account service: the only way balances change.
type Service struct {
	store     Store
	policy    database.RetryPolicy
	publisher Publisher
}

func NewService(store Store, policy database.RetryPolicy) *Service {
	return &Service{store: store, policy: policy}
}

// SetPublisher wires the realtime balance stream.
func (s *Service) SetPublisher(p Publisher) {
	s.publisher = p
}

// Store exposes the underlying store to components that need ApplyEntryTx.
func (s *Service) Store() Store {
	return s.store
}

// Policy is the retry policy shared by ledger-backed components.
func (s *Service) Policy() database.RetryPolicy {
	return s.policy
}

// RunTx runs fn in a store transaction under the service retry policy, so
// components can compose ApplyEntryTx with their own rows. fn must be
// idempotent across attempts.
func (s *Service) RunTx(ctx context.Context, op string, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	return database.Retry(ctx, s.policy, op, func(ctx context.Context) error {
		tx, err := s.store.BeginTx(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if err := fn(ctx, tx); err != nil {
			if errors.Is(err, ErrDuplicateEntry) {
				// the next attempt sees the concurrent entry and replays it
				return fmt.Errorf("%w: %v", database.ErrUnavailable, err)
			}
			return err
		}
		return tx.Commit()
	})
}

// Debit removes amount credits. A zero amount is a no-op that returns the
// current balance.
func (s *Service) Debit(ctx context.Context, userID uuid.UUID, amount int64, meta EntryMeta) (*Result, error) {
	if amount < 0 {
		return nil, ErrInvalidAmount
	}
	if amount == 0 {
		return s.noop(ctx, userID)
	}
	return s.Apply(ctx, Mutation{UserID: userID, Amount: -amount, Meta: meta})
}

// Credit adds amount credits. A zero amount is a no-op.
func (s *Service) Credit(ctx context.Context, userID uuid.UUID, amount int64, meta EntryMeta) (*Result, error) {
	if amount < 0 {
		return nil, ErrInvalidAmount
	}
	if amount == 0 {
		return s.noop(ctx, userID)
	}
	return s.Apply(ctx, Mutation{UserID: userID, Amount: amount, Meta: meta})
}

// Apply runs a mutation with bounded, idempotent retries. The entry id is
// fixed before the first attempt so a retry after a lost commit replays.
func (s *Service) Apply(ctx context.Context, m Mutation) (*Result, error) {
	if !m.Meta.Kind.Valid() {
		return nil, ErrInvalidKind
	}
	if m.Meta.ID == uuid.Nil {
		m.Meta.ID = uuid.New()
	}

	var res *Result
	err := database.Retry(ctx, s.policy, "ledger.apply", func(ctx context.Context) error {
		var err error
		res, err = s.store.ApplyEntry(ctx, m)
		return err
	})
	if err != nil {
		s.reject(ctx, m, err)
		return nil, err
	}

	s.Committed(ctx, res)
	return res, nil
}

// Committed records metrics, logs and publishes a balance change applied
// by this service or inside another component's transaction.
func (s *Service) Committed(ctx context.Context, res *Result) {
	kind := string(res.Entry.Kind)
	if res.Replayed {
		metrics.LedgerReplays.WithLabelValues(kind).Inc()
		logger.LogInfo(ctx, "ledger entry replayed",
			"user_id", res.Entry.UserID.String(),
			"kind", kind,
			"entry_id", res.Entry.ID.String(),
		)
		return
	}

	metrics.LedgerEntries.WithLabelValues(kind).Inc()
	amount := res.Entry.Amount
	if amount < 0 {
		amount = -amount
	}
	metrics.LedgerCredits.WithLabelValues(kind).Add(float64(amount))

	logger.LogInfo(ctx, "ledger entry applied",
		"user_id", res.Entry.UserID.String(),
		"kind", kind,
		"amount", res.Entry.Amount,
		"balance", res.Balance,
		"entry_id", res.Entry.ID.String(),
	)

	if s.publisher != nil {
		s.publisher.PublishBalance(ctx, BalanceEvent{
			Type:    EventBalanceChanged,
			UserID:  res.Entry.UserID,
			Balance: res.Balance,
			EntryID: res.Entry.ID,
			Kind:    res.Entry.Kind,
			Amount:  res.Entry.Amount,
		})
	}
}

func (s *Service) reject(ctx context.Context, m Mutation, err error) {
	switch {
	case errors.Is(err, ErrInsufficientBalance):
		metrics.LedgerRejections.WithLabelValues("insufficient_balance").Inc()
	case errors.Is(err, ErrAccountNotFound):
		metrics.LedgerRejections.WithLabelValues("account_not_found").Inc()
	case errors.Is(err, ErrReferenceConflict):
		metrics.LedgerRejections.WithLabelValues("reference_conflict").Inc()
	case errors.Is(err, database.ErrUnavailable):
		metrics.LedgerRejections.WithLabelValues("store_unavailable").Inc()
		log.Error().Err(err).
			Str("request_id", logger.RequestID(ctx)).
			Str("user_id", m.UserID.String()).
			Str("kind", string(m.Meta.Kind)).
			Int64("amount", m.Amount).
			Msg("ledger store unavailable")
	default:
		metrics.LedgerRejections.WithLabelValues("error").Inc()
	}
}

func (s *Service) noop(ctx context.Context, userID uuid.UUID) (*Result, error) {
	balance, err := s.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Result{Balance: balance}, nil
}

// GetBalance returns the authoritative balance; unknown users have zero.
func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var balance int64
	err := database.Retry(ctx, s.policy, "ledger.get_balance", func(ctx context.Context) error {
		acct, err := s.store.GetAccount(ctx, userID)
		if errors.Is(err, ErrAccountNotFound) {
			balance = 0
			return nil
		}
		if err != nil {
			return err
		}
		balance = acct.Balance
		return nil
	})
	return balance, err
}

// GetAccount returns the caller's account, creating it on first access.
func (s *Service) GetAccount(ctx context.Context, userID uuid.UUID) (*Account, error) {
	var acct *Account
	err := database.Retry(ctx, s.policy, "ledger.get_account", func(ctx context.Context) error {
		if err := s.store.EnsureAccount(ctx, userID); err != nil {
			return err
		}
		var err error
		acct, err = s.store.GetAccount(ctx, userID)
		return err
	})
	return acct, err
}

// LookupAccount returns an existing account without creating it.
func (s *Service) LookupAccount(ctx context.Context, userID uuid.UUID) (*Account, error) {
	var acct *Account
	err := database.Retry(ctx, s.policy, "ledger.lookup_account", func(ctx context.Context) error {
		var err error
		acct, err = s.store.GetAccount(ctx, userID)
		return err
	})
	return acct, err
}

// History returns a page of the user's entries and the total count.
func (s *Service) History(ctx context.Context, userID uuid.UUID, p Pagination) ([]Entry, int, error) {
	if p.Kind != "" && !p.Kind.Valid() {
		return nil, 0, ErrInvalidKind
	}
	var (
		entries []Entry
		total   int
	)
	err := database.Retry(ctx, s.policy, "ledger.history", func(ctx context.Context) error {
		var err error
		entries, total, err = s.store.ListEntries(ctx, userID, p)
		return err
	})
	return entries, total, err
}

// Search lists entries across users.
func (s *Service) Search(ctx context.Context, filters SearchFilters) ([]Entry, error) {
	if filters.Kind != nil && *filters.Kind != "" && !filters.Kind.Valid() {
		return nil, ErrInvalidKind
	}
	var entries []Entry
	err := database.Retry(ctx, s.policy, "ledger.search", func(ctx context.Context) error {
		var err error
		entries, err = s.store.Search(ctx, filters)
		return err
	})
	return entries, err
}
