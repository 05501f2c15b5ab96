package withdrawal

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status of a withdrawal request. Approved and rejected are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Action is an admin decision on a pending request.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// Payout key types accepted for PIX transfers.
const (
	KeyTypeCPF    = "cpf"
	KeyTypeCNPJ   = "cnpj"
	KeyTypeEmail  = "email"
	KeyTypePhone  = "phone"
	KeyTypeRandom = "random"
)

// Withdrawal is a request to convert credits back to currency.
type Withdrawal struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	UserID         uuid.UUID       `db:"user_id" json:"user_id"`
	CreditsAmount  int64           `db:"credits_amount" json:"credits_amount"`
	CurrencyAmount decimal.Decimal `db:"currency_amount" json:"currency_amount"`
	PayoutKeyType  string          `db:"payout_key_type" json:"payout_key_type"`
	PayoutKey      string          `db:"payout_key" json:"payout_key"`
	Status         Status          `db:"status" json:"status"`
	Notes          *string         `db:"notes" json:"notes,omitempty"`
	ProcessedBy    *uuid.UUID      `db:"processed_by" json:"processed_by,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt    *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
}

// Decision is the outcome of Decide.
type Decision struct {
	Withdrawal *Withdrawal `json:"withdrawal"`
	Balance    int64       `json:"balance"`
}

// CreateRequest is the body of POST /withdrawals.
type CreateRequest struct {
	Credits       int64  `json:"credits" validate:"required,gte=1"`
	PayoutKeyType string `json:"payout_key_type" validate:"required,payout_key_type"`
	PayoutKey     string `json:"payout_key" validate:"required,max=140"`
}

// DecideRequest is the body of an admin decision.
type DecideRequest struct {
	Action string `json:"action" validate:"required,decision"`
	Notes  string `json:"notes" validate:"max=1000"`
}
