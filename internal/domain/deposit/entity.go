package deposit

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Plan maps a checkout amount in currency to the credits it buys.
type Plan struct {
	Amount  string `json:"amount"`
	Credits int64  `json:"credits"`
}

// Confirmation is the outcome of a deposit confirmation. Replayed is true
// when the external reference had already been credited.
type Confirmation struct {
	EntryID        uuid.UUID       `json:"entry_id"`
	Credits        int64           `json:"credits"`
	CurrencyAmount decimal.Decimal `json:"currency_amount"`
	Balance        int64           `json:"balance"`
	Replayed       bool            `json:"replayed"`
}

type confirmRequest struct {
	SessionID string `json:"session_id" validate:"required,max=255"`
}
