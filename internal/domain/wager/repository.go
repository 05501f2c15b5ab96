package wager

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	wagerColumns   = `id, user_id, game, bet_amount, state, won, win_amount, details, created_at, updated_at`
	sessionColumns = `id, user_id, game, bet_amount, result, win_amount, details, created_at`
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// CreateTx inserts the wager with its fixed outcome. Re-inserting the
// same id is a no-op.
func (r *Repository) CreateTx(ctx context.Context, tx *sqlx.Tx, w *Wager) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wagers (id, user_id, game, bet_amount, state, won, win_amount, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, w.ID, w.UserID, w.Game, w.BetAmount, string(w.State), w.Won, w.WinAmount, w.Details)
	if err != nil {
		return fmt.Errorf("insert wager: %w", err)
	}
	return nil
}

func (r *Repository) LockTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*Wager, error) {
	var w Wager
	err := tx.GetContext(ctx, &w, `SELECT `+wagerColumns+` FROM wagers WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWagerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *Repository) SetStateTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, state State) error {
	_, err := tx.ExecContext(ctx, `UPDATE wagers SET state = $2, updated_at = now() WHERE id = $1`, id, string(state))
	return err
}

// RecordSessionTx writes the game session for w. The session shares the
// wager id, so a replay writes nothing.
func (r *Repository) RecordSessionTx(ctx context.Context, tx *sqlx.Tx, w *Wager) error {
	result := ResultLose
	if w.Won {
		result = ResultWin
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO game_sessions (id, user_id, game, bet_amount, result, win_amount, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, w.ID, w.UserID, w.Game, w.BetAmount, result, w.WinAmount, w.Details)
	if err != nil {
		return fmt.Errorf("insert game session: %w", err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Wager, error) {
	var w Wager
	err := r.db.GetContext(ctx, &w, `SELECT `+wagerColumns+` FROM wagers WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWagerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// ListSessions returns the user's sessions newest first, optionally for one game.
func (r *Repository) ListSessions(ctx context.Context, userID uuid.UUID, game string, limit, offset int) ([]Session, error) {
	out := []Session{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+sessionColumns+`
		FROM game_sessions
		WHERE user_id = $1 AND ($2 = '' OR game = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, userID, game, limit, offset)
	return out, err
}

// ListStale returns wagers stuck before settled since before cutoff.
func (r *Repository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]Wager, error) {
	out := []Wager{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+wagerColumns+`
		FROM wagers
		WHERE state IN ('debited', 'resolved') AND updated_at < $1
		ORDER BY updated_at
		LIMIT $2
	`, cutoff, limit)
	return out, err
}
