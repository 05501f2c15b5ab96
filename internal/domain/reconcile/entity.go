package reconcile

import (
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

type Status string

const (
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
	StatusFailed   Status = "failed"
)

// WakeChannel is the redis channel that wakes the reconciler sweep.
const WakeChannel = "reconcile:wake"

// QueueReconcile is the river queue replay jobs run on.
const QueueReconcile = "reconcile"

// Exception is a wager whose settlement stopped after the debit.
type Exception struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	WagerID    uuid.UUID  `db:"wager_id" json:"wager_id"`
	UserID     uuid.UUID  `db:"user_id" json:"user_id"`
	BetAmount  int64      `db:"bet_amount" json:"bet_amount"`
	WinAmount  int64      `db:"win_amount" json:"win_amount"`
	SessionID  uuid.UUID  `db:"session_id" json:"session_id"`
	Reason     string     `db:"reason" json:"reason"`
	Status     Status     `db:"status" json:"status"`
	Attempts   int        `db:"attempts" json:"attempts"`
	LastError  *string    `db:"last_error" json:"last_error,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}

// ReplayPayoutArgs is the river job that finishes one exception.
type ReplayPayoutArgs struct {
	ExceptionID uuid.UUID `json:"exception_id"`
	WagerID     uuid.UUID `json:"wager_id"`
}

func (ReplayPayoutArgs) Kind() string { return "replay_payout" }

func (ReplayPayoutArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue: QueueReconcile,
		// one live job per exception; sweeps re-enqueue freely
		UniqueOpts: river.UniqueOpts{ByArgs: true},
	}
}
