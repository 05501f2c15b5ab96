package withdrawal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const columns = `id, user_id, credits_amount, currency_amount, payout_key_type, payout_key, status, notes, processed_by, created_at, processed_at`

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// CreateTx inserts w. Inserting an id that already exists is a no-op so a
// retried request stays idempotent.
func (r *Repository) CreateTx(ctx context.Context, tx *sqlx.Tx, w *Withdrawal) error {
	err := tx.GetContext(ctx, &w.CreatedAt, `
		INSERT INTO withdrawal_requests (id, user_id, credits_amount, currency_amount, payout_key_type, payout_key, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id
		RETURNING created_at
	`, w.ID, w.UserID, w.CreditsAmount, w.CurrencyAmount, w.PayoutKeyType, w.PayoutKey, string(w.Status))
	if err != nil {
		return fmt.Errorf("insert withdrawal: %w", err)
	}
	return nil
}

// LockTx reads the request and holds its row lock until the transaction ends.
func (r *Repository) LockTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*Withdrawal, error) {
	var w Withdrawal
	err := tx.GetContext(ctx, &w, `SELECT `+columns+` FROM withdrawal_requests WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWithdrawalNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// MarkProcessedTx moves a pending request to status. It affects no row
// when the request already left pending.
func (r *Repository) MarkProcessedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status Status, adminID uuid.UUID, notes *string) (time.Time, error) {
	var processedAt time.Time
	err := tx.GetContext(ctx, &processedAt, `
		UPDATE withdrawal_requests
		SET status = $2, processed_by = $3, notes = $4, processed_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING processed_at
	`, id, string(status), adminID, notes)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrAlreadyProcessed
	}
	return processedAt, err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Withdrawal, error) {
	var w Withdrawal
	err := r.db.GetContext(ctx, &w, `SELECT `+columns+` FROM withdrawal_requests WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWithdrawalNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Withdrawal, error) {
	out := []Withdrawal{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+columns+`
		FROM withdrawal_requests
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return out, err
}

// ListByStatus returns a page of requests, oldest first so reviewers work
// the queue in order. An empty status lists everything.
func (r *Repository) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]Withdrawal, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `
		SELECT COUNT(*) FROM withdrawal_requests WHERE ($1 = '' OR status = $1)
	`, string(status)); err != nil {
		return nil, 0, err
	}

	out := []Withdrawal{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+columns+`
		FROM withdrawal_requests
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`, string(status), limit, offset)
	return out, total, err
}
