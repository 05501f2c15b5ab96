// Package ledgertest provides an in-memory ledger store for tests of
// components that only use the non-transactional ledger API.
package ledgertest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/creditwager/creditwager-api/internal/domain/ledger"
)

// ErrNoTx is returned by the transactional methods.
var ErrNoTx = errors.New("ledgertest: transactions are not supported")

var _ ledger.Store = (*MemStore)(nil)

// MemStore is an in-memory ledger.Store with the same locking and
// idempotency rules as the Postgres repository.
type MemStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*ledger.Account
	entries  []ledger.Entry
	failNext []error
}

func New() *MemStore {
	return &MemStore{accounts: make(map[uuid.UUID]*ledger.Account)}
}

// Seed creates an account holding balance, backed by one deposit entry.
func (m *MemStore) Seed(userID uuid.UUID, balance int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[userID] = &ledger.Account{UserID: userID, Balance: balance}
	m.entries = append(m.entries, ledger.Entry{ID: uuid.New(), UserID: userID, Kind: ledger.KindDeposit, Amount: balance, BalanceAfter: balance})
}

// Sum returns the sum of the user's entry amounts.
func (m *MemStore) Sum(userID uuid.UUID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, e := range m.entries {
		if e.UserID == userID {
			total += e.Amount
		}
	}
	return total
}

// FailNext makes the next ApplyEntry calls return errs in order.
func (m *MemStore) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = append(m.failNext, errs...)
}

func (m *MemStore) BeginTx(context.Context) (*sqlx.Tx, error) { return nil, ErrNoTx }

func (m *MemStore) EnsureAccount(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[userID]; !ok {
		m.accounts[userID] = &ledger.Account{UserID: userID}
	}
	return nil
}

func (m *MemStore) GetAccount(_ context.Context, userID uuid.UUID) (*ledger.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[userID]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemStore) ApplyEntry(_ context.Context, mut ledger.Mutation) (*ledger.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.failNext) > 0 {
		err := m.failNext[0]
		m.failNext = m.failNext[1:]
		return nil, err
	}

	a, ok := m.accounts[mut.UserID]
	if !ok {
		if mut.Amount < 0 {
			return nil, ledger.ErrAccountNotFound
		}
		a = &ledger.Account{UserID: mut.UserID}
		m.accounts[mut.UserID] = a
	}

	for _, e := range m.entries {
		if e.ID == mut.Meta.ID || (mut.Meta.ExternalRef != "" && e.Kind == mut.Meta.Kind && e.ExternalRef != nil && *e.ExternalRef == mut.Meta.ExternalRef) {
			if e.UserID != mut.UserID || e.Kind != mut.Meta.Kind || e.Amount != mut.Amount {
				return nil, ledger.ErrReferenceConflict
			}
			return &ledger.Result{Entry: e, Balance: a.Balance, Replayed: true}, nil
		}
	}

	next := a.Balance + mut.Amount
	if next < 0 {
		return nil, ledger.ErrInsufficientBalance
	}
	a.Balance = next
	a.TotalDeposited = a.TotalDeposited.Add(mut.Counters.Deposited)
	a.TotalWithdrawn = a.TotalWithdrawn.Add(mut.Counters.Withdrawn)
	a.TotalWon += mut.Counters.Won
	a.TotalLost += mut.Counters.Lost
	a.Version++

	e := ledger.Entry{
		ID:           mut.Meta.ID,
		UserID:       mut.UserID,
		Kind:         mut.Meta.Kind,
		Amount:       mut.Amount,
		BalanceAfter: next,
		Description:  mut.Meta.Description,
		CreatedAt:    time.Now(),
	}
	if mut.Meta.ExternalRef != "" {
		ref := mut.Meta.ExternalRef
		e.ExternalRef = &ref
	}
	if mut.Meta.CurrencyAmount != nil {
		e.CurrencyAmount = decimal.NullDecimal{Decimal: *mut.Meta.CurrencyAmount, Valid: true}
	}
	m.entries = append(m.entries, e)
	return &ledger.Result{Entry: e, Balance: next}, nil
}

func (m *MemStore) ApplyEntryTx(context.Context, *sqlx.Tx, ledger.Mutation) (*ledger.Result, error) {
	return nil, ErrNoTx
}

func (m *MemStore) BumpCountersTx(context.Context, *sqlx.Tx, uuid.UUID, ledger.Counters) error {
	return ErrNoTx
}

func (m *MemStore) FindEntryByRef(_ context.Context, kind ledger.Kind, ref string) (*ledger.Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.Kind == kind && e.ExternalRef != nil && *e.ExternalRef == ref {
			cp := e
			return &cp, true, nil
		}
	}
	return nil, false, nil
}

func (m *MemStore) ListEntries(_ context.Context, userID uuid.UUID, p ledger.Pagination) ([]ledger.Entry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ledger.Entry, 0)
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if e.UserID == userID && (p.Kind == "" || e.Kind == p.Kind) {
			out = append(out, e)
		}
	}
	total := len(out)
	if p.Offset >= total {
		return []ledger.Entry{}, total, nil
	}
	out = out[p.Offset:]
	if p.Limit > 0 && len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out, total, nil
}

func (m *MemStore) Search(context.Context, ledger.SearchFilters) ([]ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ledger.Entry(nil), m.entries...), nil
}
