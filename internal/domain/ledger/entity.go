package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind is the type of a ledger entry.
type Kind string

const (
	KindDeposit             Kind = "deposit"
	KindWithdrawal          Kind = "withdrawal"
	KindWithdrawalRefund    Kind = "withdrawal_refund"
	KindWithdrawalCompleted Kind = "withdrawal_completed"
	KindBet                 Kind = "bet"
	KindPayout              Kind = "payout"
)

// Valid reports whether k is a known entry kind.
func (k Kind) Valid() bool {
	switch k {
	case KindDeposit, KindWithdrawal, KindWithdrawalRefund, KindWithdrawalCompleted, KindBet, KindPayout:
		return true
	}
	return false
}

// Account is the per-user balance row. Totals are informational and are
// never used to derive Balance.
type Account struct {
	UserID         uuid.UUID       `db:"user_id" json:"user_id"`
	Balance        int64           `db:"balance" json:"balance"`
	TotalDeposited decimal.Decimal `db:"total_deposited" json:"total_deposited"`
	TotalWithdrawn decimal.Decimal `db:"total_withdrawn" json:"total_withdrawn"`
	TotalWon       int64           `db:"total_won" json:"total_won"`
	TotalLost      int64           `db:"total_lost" json:"total_lost"`
	Version        int64           `db:"version" json:"-"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// Entry is an immutable ledger row.
type Entry struct {
	ID             uuid.UUID           `db:"id" json:"id"`
	UserID         uuid.UUID           `db:"user_id" json:"user_id"`
	Kind           Kind                `db:"kind" json:"kind"`
	Amount         int64               `db:"amount" json:"amount"`
	BalanceAfter   int64               `db:"balance_after" json:"balance_after"`
	CurrencyAmount decimal.NullDecimal `db:"currency_amount" json:"currency_amount"`
	Description    string              `db:"description" json:"description"`
	ExternalRef    *string             `db:"external_ref" json:"external_ref,omitempty"`
	CreatedAt      time.Time           `db:"created_at" json:"created_at"`
}

// EntryMeta describes the entry a mutation appends.
type EntryMeta struct {
	// ID may be set by the caller so that a retried mutation is recognised
	// as the same entry. A zero ID is replaced with a fresh one.
	ID             uuid.UUID
	Kind           Kind
	Description    string
	ExternalRef    string
	CurrencyAmount *decimal.Decimal
}

// Counters are added to the account's reporting totals with the mutation.
type Counters struct {
	Deposited decimal.Decimal
	Withdrawn decimal.Decimal
	Won       int64
	Lost      int64
}

// Mutation is one signed balance change plus the entry recording it.
type Mutation struct {
	UserID   uuid.UUID
	Amount   int64
	Meta     EntryMeta
	Counters Counters
}

// Result is the outcome of ApplyEntry. Replayed is true when the entry
// already existed and nothing was written.
type Result struct {
	Entry    Entry `json:"entry"`
	Balance  int64 `json:"balance"`
	Replayed bool  `json:"replayed"`
}

// Pagination controls history listing.
type Pagination struct {
	Limit  int
	Offset int
	Kind   Kind
}

// SearchFilters provides admin-facing entry filtering.
type SearchFilters struct {
	UserID   *uuid.UUID
	Kind     *Kind
	DateFrom *time.Time
	DateTo   *time.Time
	Limit    int
	Offset   int
}

// Imbalance is an account whose stored balance disagrees with its entries.
type Imbalance struct {
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Balance   int64     `db:"balance" json:"balance"`
	LedgerSum int64     `db:"ledger_sum" json:"ledger_sum"`
}

// BalanceEvent is emitted after a committed balance change.
type BalanceEvent struct {
	Type    string    `json:"type"`
	UserID  uuid.UUID `json:"user_id"`
	Balance int64     `json:"balance"`
	EntryID uuid.UUID `json:"entry_id"`
	Kind    Kind      `json:"kind"`
	Amount  int64     `json:"amount"`
}

const EventBalanceChanged = "balance.changed"
