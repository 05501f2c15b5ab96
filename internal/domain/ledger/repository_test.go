package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	accountCols = []string{"user_id", "balance", "total_deposited", "total_withdrawn", "total_won", "total_lost", "version", "created_at", "updated_at"}
	entryCols   = []string{"id", "user_id", "kind", "amount", "balance_after", "currency_amount", "description", "external_ref", "created_at"}
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(sqlx.NewDb(db, "postgres")), mock
}

func accountRow(userID uuid.UUID, balance int64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(accountCols).AddRow(userID.String(), balance, "0", "0", 0, 0, 1, now, now)
}

const (
	lockQuery  = `SELECT .* FROM accounts WHERE user_id = \$1 FOR UPDATE`
	priorQuery = `FROM ledger_entries\s+WHERE id = \$1 OR \(kind = \$2 AND external_ref = \$3\)`
)

func TestApplyEntry_CreditExistingAccount(t *testing.T) {
	repo, mock := newMockRepo(t)
	userID := uuid.New()
	entryID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(userID).WillReturnRows(accountRow(userID, 100))
	mock.ExpectQuery(priorQuery).
		WithArgs(entryID, "deposit", "ext-1").
		WillReturnRows(sqlmock.NewRows(entryCols))
	mock.ExpectExec(`UPDATE accounts\s+SET balance = \$2`).
		WithArgs(userID, int64(150), sqlmock.AnyArg(), sqlmock.AnyArg(), int64(0), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO ledger_entries`).
		WithArgs(entryID, userID, "deposit", int64(50), int64(150), sqlmock.AnyArg(), "deposit", "ext-1").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectCommit()

	res, err := repo.ApplyEntry(context.Background(), Mutation{
		UserID: userID,
		Amount: 50,
		Meta:   EntryMeta{ID: entryID, Kind: KindDeposit, Description: "deposit", ExternalRef: "ext-1"},
	})
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, int64(150), res.Balance)
	assert.Equal(t, int64(150), res.Entry.BalanceAfter)
	require.NotNil(t, res.Entry.ExternalRef)
	assert.Equal(t, "ext-1", *res.Entry.ExternalRef)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyEntry_InsufficientBalanceWritesNothing(t *testing.T) {
	repo, mock := newMockRepo(t)
	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(userID).WillReturnRows(accountRow(userID, 70))
	mock.ExpectQuery(priorQuery).WillReturnRows(sqlmock.NewRows(entryCols))
	mock.ExpectRollback()

	_, err := repo.ApplyEntry(context.Background(), Mutation{
		UserID: userID,
		Amount: -80,
		Meta:   EntryMeta{Kind: KindBet},
	})
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyEntry_DebitOnMissingAccount(t *testing.T) {
	repo, mock := newMockRepo(t)
	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(userID).WillReturnRows(sqlmock.NewRows(accountCols))
	mock.ExpectRollback()

	_, err := repo.ApplyEntry(context.Background(), Mutation{
		UserID: userID,
		Amount: -10,
		Meta:   EntryMeta{Kind: KindWithdrawal},
	})
	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyEntry_CreditCreatesAccount(t *testing.T) {
	repo, mock := newMockRepo(t)
	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(userID).WillReturnRows(sqlmock.NewRows(accountCols))
	mock.ExpectExec(`INSERT INTO accounts`).WithArgs(userID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(lockQuery).WithArgs(userID).WillReturnRows(accountRow(userID, 0))
	mock.ExpectQuery(priorQuery).WillReturnRows(sqlmock.NewRows(entryCols))
	mock.ExpectExec(`UPDATE accounts`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO ledger_entries`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectCommit()

	res, err := repo.ApplyEntry(context.Background(), Mutation{
		UserID: userID,
		Amount: 100,
		Meta:   EntryMeta{Kind: KindDeposit, ExternalRef: "cs_1"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.Balance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyEntry_ReplaysPriorEntry(t *testing.T) {
	repo, mock := newMockRepo(t)
	userID := uuid.New()
	priorID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(userID).WillReturnRows(accountRow(userID, 200))
	mock.ExpectQuery(priorQuery).WillReturnRows(sqlmock.NewRows(entryCols).
		AddRow(priorID.String(), userID.String(), "deposit", 100, 200, "20.00", "deposit", "ext-1", time.Now()))
	mock.ExpectCommit()

	res, err := repo.ApplyEntry(context.Background(), Mutation{
		UserID: userID,
		Amount: 100,
		Meta:   EntryMeta{Kind: KindDeposit, ExternalRef: "ext-1"},
	})
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assert.Equal(t, priorID, res.Entry.ID)
	assert.Equal(t, int64(200), res.Balance)
	assert.Equal(t, "20", res.Entry.CurrencyAmount.Decimal.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyEntry_ReferenceReusedForDifferentAmount(t *testing.T) {
	repo, mock := newMockRepo(t)
	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WillReturnRows(accountRow(userID, 200))
	mock.ExpectQuery(priorQuery).WillReturnRows(sqlmock.NewRows(entryCols).
		AddRow(uuid.NewString(), userID.String(), "deposit", 100, 200, nil, "deposit", "ext-1", time.Now()))
	mock.ExpectRollback()

	_, err := repo.ApplyEntry(context.Background(), Mutation{
		UserID: userID,
		Amount: 500,
		Meta:   EntryMeta{Kind: KindDeposit, ExternalRef: "ext-1"},
	})
	assert.ErrorIs(t, err, ErrReferenceConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyEntry_ConcurrentInsertResolvesToPrior(t *testing.T) {
	repo, mock := newMockRepo(t)
	userID := uuid.New()
	priorID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WillReturnRows(accountRow(userID, 0))
	mock.ExpectQuery(priorQuery).WillReturnRows(sqlmock.NewRows(entryCols))
	mock.ExpectExec(`UPDATE accounts`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO ledger_entries`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "ledger_entries_kind_ref_key"})
	mock.ExpectRollback()
	mock.ExpectQuery(priorQuery).WillReturnRows(sqlmock.NewRows(entryCols).
		AddRow(priorID.String(), userID.String(), "deposit", 100, 100, nil, "deposit", "ext-9", time.Now()))
	mock.ExpectQuery(`SELECT .* FROM accounts WHERE user_id = \$1`).WillReturnRows(accountRow(userID, 100))

	res, err := repo.ApplyEntry(context.Background(), Mutation{
		UserID: userID,
		Amount: 100,
		Meta:   EntryMeta{Kind: KindDeposit, ExternalRef: "ext-9"},
	})
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assert.Equal(t, priorID, res.Entry.ID)
	assert.Equal(t, int64(100), res.Balance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyEntry_RejectsUnknownKind(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := repo.ApplyEntry(context.Background(), Mutation{UserID: uuid.New(), Amount: 1, Meta: EntryMeta{Kind: "bonus"}})
	assert.ErrorIs(t, err, ErrInvalidKind)
}

func TestSearch_BuildsFilters(t *testing.T) {
	repo, mock := newMockRepo(t)
	userID := uuid.New()
	kind := KindBet

	mock.ExpectQuery(`WHERE 1=1 AND user_id = \$1 AND kind = \$2 ORDER BY created_at DESC, id DESC LIMIT \$3 OFFSET \$4`).
		WithArgs(userID, "bet", 50, 0).
		WillReturnRows(sqlmock.NewRows(entryCols))

	entries, err := repo.Search(context.Background(), SearchFilters{UserID: &userID, Kind: &kind})
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListImbalances(t *testing.T) {
	repo, mock := newMockRepo(t)
	userID := uuid.New()

	mock.ExpectQuery(`HAVING a.balance < 0 OR a.balance <> COALESCE`).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance", "ledger_sum"}).AddRow(userID.String(), 50, 40))

	out, err := repo.ListImbalances(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(10), out[0].Balance-out[0].LedgerSum)
}
