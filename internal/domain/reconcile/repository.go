package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const columns = `id, wager_id, user_id, bet_amount, win_amount, session_id, reason, status, attempts, last_error, created_at, resolved_at`

var ErrExceptionNotFound = errors.New("reconciliation exception not found")

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Create opens an exception for a wager. A wager has at most one open
// exception; recording it again returns the existing one.
func (r *Repository) Create(ctx context.Context, e *Exception) (*Exception, error) {
	var out Exception
	err := r.db.GetContext(ctx, &out, `
		INSERT INTO reconciliation_exceptions (id, wager_id, user_id, bet_amount, win_amount, session_id, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (wager_id) WHERE status = 'open' DO NOTHING
		RETURNING `+columns,
		e.ID, e.WagerID, e.UserID, e.BetAmount, e.WinAmount, e.SessionID, e.Reason)
	if errors.Is(err, sql.ErrNoRows) {
		return r.getOpenByWager(ctx, e.WagerID)
	}
	if err != nil {
		return nil, fmt.Errorf("insert exception: %w", err)
	}
	return &out, nil
}

func (r *Repository) getOpenByWager(ctx context.Context, wagerID uuid.UUID) (*Exception, error) {
	var out Exception
	err := r.db.GetContext(ctx, &out, `
		SELECT `+columns+` FROM reconciliation_exceptions WHERE wager_id = $1 AND status = 'open'
	`, wagerID)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Exception, error) {
	var out Exception
	err := r.db.GetContext(ctx, &out, `SELECT `+columns+` FROM reconciliation_exceptions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExceptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns exceptions newest first. An empty status lists all.
func (r *Repository) List(ctx context.Context, status Status, limit, offset int) ([]Exception, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `
		SELECT COUNT(*) FROM reconciliation_exceptions WHERE ($1 = '' OR status = $1)
	`, string(status)); err != nil {
		return nil, 0, err
	}

	out := []Exception{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+columns+`
		FROM reconciliation_exceptions
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, string(status), limit, offset)
	return out, total, err
}

// ListRetryable returns open exceptions that still have attempts left.
func (r *Repository) ListRetryable(ctx context.Context, maxAttempts, limit int) ([]Exception, error) {
	out := []Exception{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+columns+`
		FROM reconciliation_exceptions
		WHERE status = 'open' AND attempts < $1
		ORDER BY created_at
		LIMIT $2
	`, maxAttempts, limit)
	return out, err
}

func (r *Repository) CountOpen(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM reconciliation_exceptions WHERE status = 'open'`)
	return n, err
}

func (r *Repository) MarkResolved(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE reconciliation_exceptions
		SET status = 'resolved', resolved_at = now(), attempts = attempts + 1, last_error = NULL
		WHERE id = $1 AND status <> 'resolved'
	`, id)
	return err
}

// RecordAttempt counts a failed replay and moves the exception to failed
// once maxAttempts is reached. It returns the new status.
func (r *Repository) RecordAttempt(ctx context.Context, id uuid.UUID, lastErr string, maxAttempts int) (Status, error) {
	var status Status
	err := r.db.GetContext(ctx, &status, `
		UPDATE reconciliation_exceptions
		SET attempts = attempts + 1,
			last_error = $2,
			status = CASE WHEN attempts + 1 >= $3 THEN 'failed' ELSE status END
		WHERE id = $1 AND status = 'open'
		RETURNING status
	`, id, lastErr, maxAttempts)
	if errors.Is(err, sql.ErrNoRows) {
		cur, err := r.GetByID(ctx, id)
		if err != nil {
			return "", err
		}
		return cur.Status, nil
	}
	return status, err
}

// Reopen puts a failed exception back in the queue with fresh attempts.
func (r *Repository) Reopen(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE reconciliation_exceptions
		SET status = 'open', attempts = 0
		WHERE id = $1 AND status = 'failed'
	`, id)
	return err
}
