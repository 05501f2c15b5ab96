package withdrawal

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creditwager/creditwager-api/internal/domain/ledger"
	"github.com/creditwager/creditwager-api/internal/pkg/database"
)

var (
	testPolicy  = database.RetryPolicy{Timeout: time.Second, Retries: 1, Backoff: time.Millisecond}
	testConfig  = Config{Rate: decimal.RequireFromString("0.15"), MinCredits: 100, Currency: "BRL"}
	accountCols = []string{"user_id", "balance", "total_deposited", "total_withdrawn", "total_won", "total_lost", "version", "created_at", "updated_at"}
	entryCols   = []string{"id", "user_id", "kind", "amount", "balance_after", "currency_amount", "description", "external_ref", "created_at"}
	requestCols = []string{"id", "user_id", "credits_amount", "currency_amount", "payout_key_type", "payout_key", "status", "notes", "processed_by", "created_at", "processed_at"}
)

const (
	lockAccount    = `SELECT .* FROM accounts WHERE user_id = \$1 FOR UPDATE`
	priorEntry     = `FROM ledger_entries\s+WHERE id = \$1 OR`
	lockWithdrawal = `SELECT .* FROM withdrawal_requests WHERE id = \$1 FOR UPDATE`
)

func newMockService(t *testing.T, cfg Config) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sqlxDB := sqlx.NewDb(db, "postgres")
	ledgerSvc := ledger.NewService(ledger.NewRepository(sqlxDB), testPolicy)
	return NewService(NewRepository(sqlxDB), ledgerSvc, cfg), mock
}

func accountRow(userID uuid.UUID, balance int64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(accountCols).AddRow(userID.String(), balance, "0", "0", 0, 0, 1, now, now)
}

func withdrawalRow(id, userID uuid.UUID, credits int64, status Status) *sqlmock.Rows {
	return sqlmock.NewRows(requestCols).
		AddRow(id.String(), userID.String(), credits, "7.50", "cpf", "12345678901", string(status), nil, nil, time.Now(), nil)
}

func TestRequest_ReservesCredits(t *testing.T) {
	svc, mock := newMockService(t, Config{Rate: testConfig.Rate, MinCredits: 50, Currency: "BRL"})
	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockAccount).WithArgs(userID).WillReturnRows(accountRow(userID, 50))
	mock.ExpectQuery(priorEntry).WillReturnRows(sqlmock.NewRows(entryCols))
	mock.ExpectExec(`UPDATE accounts\s+SET balance = \$2`).
		WithArgs(userID, int64(0), sqlmock.AnyArg(), sqlmock.AnyArg(), int64(0), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO ledger_entries`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectQuery(`INSERT INTO withdrawal_requests`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectCommit()

	// balance 50, withdraw all of it with a short cpf key
	w, err := svc.Request(context.Background(), userID, 50, "cpf", "123")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, w.Status)
	assert.Equal(t, "cpf", w.PayoutKeyType)
	assert.Equal(t, "123", w.PayoutKey)
	assert.True(t, w.CurrencyAmount.Equal(decimal.RequireFromString("7.50")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequest_BelowMinimumWritesNothing(t *testing.T) {
	svc, mock := newMockService(t, testConfig)

	_, err := svc.Request(context.Background(), uuid.New(), 10, "cpf", "12345678901")
	assert.ErrorIs(t, err, ErrBelowMinimum)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequest_InsufficientBalance(t *testing.T) {
	svc, mock := newMockService(t, testConfig)
	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockAccount).WithArgs(userID).WillReturnRows(accountRow(userID, 99))
	mock.ExpectQuery(priorEntry).WillReturnRows(sqlmock.NewRows(entryCols))
	mock.ExpectRollback()

	_, err := svc.Request(context.Background(), userID, 100, "email", "player@example.com")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequest_NoAccountIsInsufficientBalance(t *testing.T) {
	svc, mock := newMockService(t, testConfig)
	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockAccount).WithArgs(userID).WillReturnRows(sqlmock.NewRows(accountCols))
	mock.ExpectRollback()

	_, err := svc.Request(context.Background(), userID, 100, "email", "player@example.com")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecide_RejectRefunds(t *testing.T) {
	svc, mock := newMockService(t, testConfig)
	id, userID, adminID := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockWithdrawal).WithArgs(id).WillReturnRows(withdrawalRow(id, userID, 50, StatusPending))
	mock.ExpectQuery(`UPDATE withdrawal_requests\s+SET status = \$2`).
		WithArgs(id, "rejected", adminID, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"processed_at"}).AddRow(time.Now()))
	mock.ExpectQuery(lockAccount).WithArgs(userID).WillReturnRows(accountRow(userID, 0))
	mock.ExpectQuery(priorEntry).WillReturnRows(sqlmock.NewRows(entryCols))
	mock.ExpectExec(`UPDATE accounts\s+SET balance = \$2`).
		WithArgs(userID, int64(50), sqlmock.AnyArg(), sqlmock.AnyArg(), int64(0), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO ledger_entries`).
		WithArgs(sqlmock.AnyArg(), userID, "withdrawal_refund", int64(50), int64(50), sqlmock.AnyArg(), sqlmock.AnyArg(), id.String()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectCommit()

	out, err := svc.Decide(context.Background(), id, ActionReject, adminID, "invalid key")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, out.Withdrawal.Status)
	assert.Equal(t, int64(50), out.Balance)
	require.NotNil(t, out.Withdrawal.Notes)
	assert.Equal(t, "invalid key", *out.Withdrawal.Notes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecide_ApproveRecordsCompletion(t *testing.T) {
	svc, mock := newMockService(t, testConfig)
	id, userID, adminID := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockWithdrawal).WithArgs(id).WillReturnRows(withdrawalRow(id, userID, 50, StatusPending))
	mock.ExpectQuery(`UPDATE withdrawal_requests`).
		WillReturnRows(sqlmock.NewRows([]string{"processed_at"}).AddRow(time.Now()))
	mock.ExpectQuery(lockAccount).WithArgs(userID).WillReturnRows(accountRow(userID, 30))
	mock.ExpectQuery(priorEntry).WillReturnRows(sqlmock.NewRows(entryCols))
	mock.ExpectExec(`UPDATE accounts\s+SET balance = \$2`).
		WithArgs(userID, int64(30), sqlmock.AnyArg(), sqlmock.AnyArg(), int64(0), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO ledger_entries`).
		WithArgs(sqlmock.AnyArg(), userID, "withdrawal_completed", int64(0), int64(30), sqlmock.AnyArg(), sqlmock.AnyArg(), id.String()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectCommit()

	out, err := svc.Decide(context.Background(), id, ActionApprove, adminID, "")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, out.Withdrawal.Status)
	assert.Equal(t, int64(30), out.Balance)
	assert.Nil(t, out.Withdrawal.Notes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecide_AlreadyProcessed(t *testing.T) {
	svc, mock := newMockService(t, testConfig)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockWithdrawal).WithArgs(id).WillReturnRows(withdrawalRow(id, uuid.New(), 50, StatusRejected))
	mock.ExpectRollback()

	_, err := svc.Decide(context.Background(), id, ActionReject, uuid.New(), "")
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecide_NotFound(t *testing.T) {
	svc, mock := newMockService(t, testConfig)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockWithdrawal).WithArgs(id).WillReturnRows(sqlmock.NewRows(requestCols))
	mock.ExpectRollback()

	_, err := svc.Decide(context.Background(), id, ActionApprove, uuid.New(), "")
	assert.ErrorIs(t, err, ErrWithdrawalNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecide_InvalidAction(t *testing.T) {
	svc, mock := newMockService(t, testConfig)

	_, err := svc.Decide(context.Background(), uuid.New(), Action("hold"), uuid.New(), "")
	assert.ErrorIs(t, err, ErrInvalidAction)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConvertRoundsToCents(t *testing.T) {
	svc := NewService(nil, nil, Config{Rate: decimal.RequireFromString("0.155")})
	assert.Equal(t, "15.50", svc.Convert(100).StringFixed(2))
	assert.Equal(t, "0.16", svc.Convert(1).StringFixed(2))
}

func TestValidatePayoutKey(t *testing.T) {
	tests := []struct {
		keyType string
		key     string
		valid   bool
	}{
		{"cpf", "123", true},
		{"cpf", "123.456.789-01", true},
		{"cnpj", "12.345.678/0001-90", true},
		{"email", "player@example.com", true},
		{"phone", "+55 (11) 91234-5678", true},
		{"random", "abc", true},
		{"iban", "DE89370400440532013000", false},
		{"", "123", false},
		{"cpf", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.keyType+"/"+tt.key, func(t *testing.T) {
			err := validatePayoutKey(tt.keyType, tt.key)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidPayoutKey)
			}
		})
	}
}
