package dashboard

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// Stats represents the back-office dashboard figures
type Stats struct {
	Users                int             `json:"users"`
	CreditsInCirculation int64           `json:"credits_in_circulation"`
	TotalDeposited       decimal.Decimal `json:"total_deposited"`
	TotalWithdrawn       decimal.Decimal `json:"total_withdrawn"`
	PendingWithdrawals   PendingStats    `json:"pending_withdrawals"`
	Games                []GameStats     `json:"games"`
	TotalWagered         int64           `json:"total_wagered"`
	TotalPaidOut         int64           `json:"total_paid_out"`
	HouseProfit          int64           `json:"house_profit"`
	OpenExceptions       int             `json:"open_reconciliation_exceptions"`
}

type PendingStats struct {
	Count          int             `db:"count" json:"count"`
	Credits        int64           `db:"credits" json:"credits"`
	CurrencyAmount decimal.Decimal `db:"currency_amount" json:"currency_amount"`
}

// GameStats aggregates settled sessions for one game
type GameStats struct {
	Game     string `db:"game" json:"game"`
	Sessions int    `db:"sessions" json:"sessions"`
	Wins     int    `db:"wins" json:"wins"`
	Wagered  int64  `db:"wagered" json:"wagered"`
	PaidOut  int64  `db:"paid_out" json:"paid_out"`
}

// Repository handles dashboard data aggregation
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new dashboard repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// GetStats aggregates accounts, withdrawals, sessions and ledger entries.
// Wagered and paid out totals come from ledger entries, so a payout still
// awaiting reconciliation is not counted as paid.
func (r *Repository) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Games: []GameStats{}}

	var accounts struct {
		Users     int             `db:"users"`
		Balance   int64           `db:"balance"`
		Deposited decimal.Decimal `db:"deposited"`
		Withdrawn decimal.Decimal `db:"withdrawn"`
	}
	if err := r.db.GetContext(ctx, &accounts, `
		SELECT COUNT(*) AS users,
			COALESCE(SUM(balance), 0) AS balance,
			COALESCE(SUM(total_deposited), 0) AS deposited,
			COALESCE(SUM(total_withdrawn), 0) AS withdrawn
		FROM accounts
	`); err != nil {
		return nil, fmt.Errorf("account totals: %w", err)
	}
	stats.Users = accounts.Users
	stats.CreditsInCirculation = accounts.Balance
	stats.TotalDeposited = accounts.Deposited
	stats.TotalWithdrawn = accounts.Withdrawn

	if err := r.db.GetContext(ctx, &stats.PendingWithdrawals, `
		SELECT COUNT(*) AS count,
			COALESCE(SUM(credits_amount), 0) AS credits,
			COALESCE(SUM(currency_amount), 0) AS currency_amount
		FROM withdrawal_requests
		WHERE status = 'pending'
	`); err != nil {
		return nil, fmt.Errorf("pending withdrawals: %w", err)
	}

	if err := r.db.SelectContext(ctx, &stats.Games, `
		SELECT game,
			COUNT(*) AS sessions,
			COUNT(*) FILTER (WHERE result = 'win') AS wins,
			COALESCE(SUM(bet_amount), 0) AS wagered,
			COALESCE(SUM(win_amount), 0) AS paid_out
		FROM game_sessions
		GROUP BY game
		ORDER BY game
	`); err != nil {
		return nil, fmt.Errorf("games by type: %w", err)
	}

	var flows struct {
		Wagered int64 `db:"wagered"`
		PaidOut int64 `db:"paid_out"`
	}
	if err := r.db.GetContext(ctx, &flows, `
		SELECT COALESCE(-SUM(amount) FILTER (WHERE kind = 'bet'), 0) AS wagered,
			COALESCE(SUM(amount) FILTER (WHERE kind = 'payout'), 0) AS paid_out
		FROM ledger_entries
		WHERE kind IN ('bet', 'payout')
	`); err != nil {
		return nil, fmt.Errorf("wager flows: %w", err)
	}
	stats.TotalWagered = flows.Wagered
	stats.TotalPaidOut = flows.PaidOut
	stats.HouseProfit = flows.Wagered - flows.PaidOut

	if err := r.db.GetContext(ctx, &stats.OpenExceptions, `
		SELECT COUNT(*) FROM reconciliation_exceptions WHERE status = 'open'
	`); err != nil {
		return nil, fmt.Errorf("open exceptions: %w", err)
	}

	return stats, nil
}
