package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/creditwager/creditwager-api/internal/pkg/database"
)

const (
	accountColumns = `user_id, balance, total_deposited, total_withdrawn, total_won, total_lost, version, created_at, updated_at`
	entryColumns   = `id, user_id, kind, amount, balance_after, currency_amount, description, external_ref, created_at`
)

// Repository is the Postgres ledger store. Balance changes go through
// ApplyEntry/ApplyEntryTx only.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// BeginTx starts a transaction for callers composing ApplyEntryTx with
// their own writes.
func (r *Repository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
}

func (r *Repository) EnsureAccount(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	return err
}

func (r *Repository) GetAccount(ctx context.Context, userID uuid.UUID) (*Account, error) {
	var a Account
	err := r.db.GetContext(ctx, &a, `SELECT `+accountColumns+` FROM accounts WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ApplyEntry applies m in its own transaction. A concurrent insert of the
// same entry resolves to that entry as a replay.
func (r *Repository) ApplyEntry(ctx context.Context, m Mutation) (*Result, error) {
	if m.Meta.ID == uuid.Nil {
		m.Meta.ID = uuid.New()
	}

	tx, err := r.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := r.ApplyEntryTx(ctx, tx, m)
	if errors.Is(err, ErrDuplicateEntry) {
		_ = tx.Rollback()
		return r.resolveDuplicate(ctx, m)
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return res, nil
}

// ApplyEntryTx locks the account row, returns the prior entry if m was
// already applied, rejects an overdraft, then updates the balance and
// counters and appends the entry. The caller owns commit and rollback; on
// ErrDuplicateEntry the transaction is aborted and must be rolled back.
func (r *Repository) ApplyEntryTx(ctx context.Context, tx *sqlx.Tx, m Mutation) (*Result, error) {
	if !m.Meta.Kind.Valid() {
		return nil, ErrInvalidKind
	}
	if m.Meta.ID == uuid.Nil {
		m.Meta.ID = uuid.New()
	}

	acct, err := r.lockAccount(ctx, tx, m.UserID, m.Amount >= 0)
	if err != nil {
		return nil, err
	}

	prior, err := r.findPrior(ctx, tx, m)
	if err != nil {
		return nil, err
	}
	if prior != nil {
		if err := sameMutation(prior, m); err != nil {
			return nil, err
		}
		return &Result{Entry: *prior, Balance: acct.Balance, Replayed: true}, nil
	}

	next := acct.Balance + m.Amount
	if next < 0 {
		return nil, ErrInsufficientBalance
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $2,
			total_deposited = total_deposited + $3,
			total_withdrawn = total_withdrawn + $4,
			total_won = total_won + $5,
			total_lost = total_lost + $6,
			version = version + 1,
			updated_at = now()
		WHERE user_id = $1
	`, m.UserID, next, m.Counters.Deposited, m.Counters.Withdrawn, m.Counters.Won, m.Counters.Lost); err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}

	entry := Entry{
		ID:           m.Meta.ID,
		UserID:       m.UserID,
		Kind:         m.Meta.Kind,
		Amount:       m.Amount,
		BalanceAfter: next,
		Description:  m.Meta.Description,
	}
	if m.Meta.CurrencyAmount != nil {
		entry.CurrencyAmount = decimal.NullDecimal{Decimal: *m.Meta.CurrencyAmount, Valid: true}
	}
	if m.Meta.ExternalRef != "" {
		ref := m.Meta.ExternalRef
		entry.ExternalRef = &ref
	}

	err = tx.GetContext(ctx, &entry.CreatedAt, `
		INSERT INTO ledger_entries (id, user_id, kind, amount, balance_after, currency_amount, description, external_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, entry.ID, entry.UserID, string(entry.Kind), entry.Amount, entry.BalanceAfter, entry.CurrencyAmount, entry.Description, nullable(m.Meta.ExternalRef))
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			return nil, ErrDuplicateEntry
		}
		return nil, fmt.Errorf("insert entry: %w", err)
	}

	return &Result{Entry: entry, Balance: next}, nil
}

// BumpCountersTx adds to the reporting totals without touching the balance.
func (r *Repository) BumpCountersTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, c Counters) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET total_deposited = total_deposited + $2,
			total_withdrawn = total_withdrawn + $3,
			total_won = total_won + $4,
			total_lost = total_lost + $5,
			updated_at = now()
		WHERE user_id = $1
	`, userID, c.Deposited, c.Withdrawn, c.Won, c.Lost)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *Repository) lockAccount(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, create bool) (*Account, error) {
	var a Account
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1 FOR UPDATE`
	err := tx.GetContext(ctx, &a, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		if !create {
			return nil, ErrAccountNotFound
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO accounts (user_id)
			VALUES ($1)
			ON CONFLICT (user_id) DO NOTHING
		`, userID); err != nil {
			return nil, fmt.Errorf("create account: %w", err)
		}
		err = tx.GetContext(ctx, &a, query, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("lock account: %w", err)
	}
	return &a, nil
}

func (r *Repository) findPrior(ctx context.Context, tx *sqlx.Tx, m Mutation) (*Entry, error) {
	var e Entry
	err := tx.GetContext(ctx, &e, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE id = $1 OR (kind = $2 AND external_ref = $3)
		LIMIT 1
	`, m.Meta.ID, string(m.Meta.Kind), nullable(m.Meta.ExternalRef))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find prior entry: %w", err)
	}
	return &e, nil
}

func (r *Repository) resolveDuplicate(ctx context.Context, m Mutation) (*Result, error) {
	var e Entry
	err := r.db.GetContext(ctx, &e, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE id = $1 OR (kind = $2 AND external_ref = $3)
		LIMIT 1
	`, m.Meta.ID, string(m.Meta.Kind), nullable(m.Meta.ExternalRef))
	if err != nil {
		return nil, fmt.Errorf("resolve duplicate entry: %w", err)
	}
	if err := sameMutation(&e, m); err != nil {
		return nil, err
	}

	acct, err := r.GetAccount(ctx, m.UserID)
	if err != nil {
		return nil, err
	}
	return &Result{Entry: e, Balance: acct.Balance, Replayed: true}, nil
}

func sameMutation(prior *Entry, m Mutation) error {
	if prior.UserID != m.UserID || prior.Kind != m.Meta.Kind || prior.Amount != m.Amount {
		return ErrReferenceConflict
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// FindEntryByRef returns the entry of kind with the external reference ref.
func (r *Repository) FindEntryByRef(ctx context.Context, kind Kind, ref string) (*Entry, bool, error) {
	var e Entry
	err := r.db.GetContext(ctx, &e, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE kind = $1 AND external_ref = $2
	`, string(kind), ref)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &e, true, nil
}

// ListEntries returns a user's entries, newest first, and the total count.
func (r *Repository) ListEntries(ctx context.Context, userID uuid.UUID, p Pagination) ([]Entry, int, error) {
	where := ` WHERE user_id = $1`
	args := []interface{}{userID}
	if p.Kind != "" {
		where += ` AND kind = $2`
		args = append(args, string(p.Kind))
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM ledger_entries`+where, args...); err != nil {
		return nil, 0, err
	}

	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + entryColumns + ` FROM ledger_entries` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, p.Offset)

	entries := make([]Entry, 0)
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// Search lists entries across users for the admin surface.
func (r *Repository) Search(ctx context.Context, filters SearchFilters) ([]Entry, error) {
	base := `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE 1=1`
	args := make([]interface{}, 0, 6)
	idx := 1

	if filters.UserID != nil {
		base += fmt.Sprintf(" AND user_id = $%d", idx)
		args = append(args, *filters.UserID)
		idx++
	}
	if filters.Kind != nil && *filters.Kind != "" {
		base += fmt.Sprintf(" AND kind = $%d", idx)
		args = append(args, string(*filters.Kind))
		idx++
	}
	if filters.DateFrom != nil {
		base += fmt.Sprintf(" AND created_at >= $%d", idx)
		args = append(args, *filters.DateFrom)
		idx++
	}
	if filters.DateTo != nil {
		base += fmt.Sprintf(" AND created_at <= $%d", idx)
		args = append(args, *filters.DateTo)
		idx++
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}

	base = strings.TrimSpace(base) + fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, filters.Offset)

	entries := make([]Entry, 0)
	if err := r.db.SelectContext(ctx, &entries, base, args...); err != nil {
		return nil, err
	}
	return entries, nil
}

// SumEntries returns the sum of all entry amounts for a user.
func (r *Repository) SumEntries(ctx context.Context, userID uuid.UUID) (int64, error) {
	var sum int64
	err := r.db.GetContext(ctx, &sum, `SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE user_id = $1`, userID)
	return sum, err
}

// ListImbalances returns accounts whose balance is negative or differs from
// the sum of their entries.
func (r *Repository) ListImbalances(ctx context.Context) ([]Imbalance, error) {
	out := make([]Imbalance, 0)
	err := r.db.SelectContext(ctx, &out, `
		SELECT a.user_id, a.balance, COALESCE(SUM(e.amount), 0) AS ledger_sum
		FROM accounts a
		LEFT JOIN ledger_entries e ON e.user_id = a.user_id
		GROUP BY a.user_id, a.balance
		HAVING a.balance < 0 OR a.balance <> COALESCE(SUM(e.amount), 0)
		ORDER BY a.user_id
	`)
	return out, err
}
