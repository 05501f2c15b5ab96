package wager

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
)

// State of a wager. The outcome is fixed when the wager is placed, so a
// wager that stops in debited or resolved can always be completed.
type State string

const (
	StatePlaced   State = "placed"
	StateDebited  State = "debited"
	StateResolved State = "resolved"
	StateSettled  State = "settled"
)

const (
	ResultWin  = "win"
	ResultLose = "lose"
)

// Wager is the saga row driving one bet through settlement.
type Wager struct {
	ID        uuid.UUID      `db:"id" json:"id"`
	UserID    uuid.UUID      `db:"user_id" json:"user_id"`
	Game      string         `db:"game" json:"game"`
	BetAmount int64          `db:"bet_amount" json:"bet_amount"`
	State     State          `db:"state" json:"state"`
	Won       bool           `db:"won" json:"won"`
	WinAmount int64          `db:"win_amount" json:"win_amount"`
	Details   types.JSONText `db:"details" json:"details"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

// Session is the append-only record of a resolved wager. Its id is the
// wager id.
type Session struct {
	ID        uuid.UUID      `db:"id" json:"id"`
	UserID    uuid.UUID      `db:"user_id" json:"user_id"`
	Game      string         `db:"game" json:"game"`
	BetAmount int64          `db:"bet_amount" json:"bet_amount"`
	Result    string         `db:"result" json:"result"`
	WinAmount int64          `db:"win_amount" json:"win_amount"`
	Details   types.JSONText `db:"details" json:"details"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// Outcome is what a game evaluator decides for a bet.
type Outcome struct {
	Won       bool
	WinAmount int64
	Details   map[string]interface{}
}

// Result is returned to the player once the wager has been driven as far
// as it could go. ReconciliationPending means the debit stands and the
// rest of the settlement is queued for replay.
type Result struct {
	SessionID             uuid.UUID      `json:"session_id"`
	Game                  string         `json:"game"`
	BetAmount             int64          `json:"bet_amount"`
	Won                   bool           `json:"won"`
	WinAmount             int64          `json:"win_amount"`
	Details               types.JSONText `json:"details"`
	State                 State          `json:"state"`
	Balance               int64          `json:"balance"`
	ReconciliationPending bool           `json:"reconciliation_pending"`
}

// PayoutFailure is the data needed to finish a wager whose settlement
// failed after the debit.
type PayoutFailure struct {
	WagerID   uuid.UUID
	UserID    uuid.UUID
	BetAmount int64
	WinAmount int64
	SessionID uuid.UUID
	Reason    string
}

// SpinRequest is the body of POST /games/roulette/spin.
type SpinRequest struct {
	BetAmount int64  `json:"bet_amount" validate:"required,gte=1"`
	BetType   string `json:"bet_type" validate:"required,bet_type"`
	Number    *int   `json:"number" validate:"omitempty,gte=0,lte=36"`
}

// SettleRequest is the body of POST /wagers/settle, used by trusted
// evaluators running outside this service.
type SettleRequest struct {
	UserID    string                 `json:"user_id" validate:"required,uuid"`
	Game      string                 `json:"game" validate:"required,max=50"`
	BetAmount int64                  `json:"bet_amount" validate:"required,gte=1"`
	Won       bool                   `json:"won"`
	WinAmount int64                  `json:"win_amount" validate:"gte=0"`
	Details   map[string]interface{} `json:"details"`
}
