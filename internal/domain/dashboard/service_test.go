package dashboard

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v9"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectStatsQueries(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(`FROM accounts`).
		WillReturnRows(sqlmock.NewRows([]string{"users", "balance", "deposited", "withdrawn"}).AddRow(3, 420, "60.00", "7.50"))
	mock.ExpectQuery(`FROM withdrawal_requests\s+WHERE status = 'pending'`).
		WillReturnRows(sqlmock.NewRows([]string{"count", "credits", "currency_amount"}).AddRow(1, 100, "15.00"))
	mock.ExpectQuery(`FROM game_sessions\s+GROUP BY game`).
		WillReturnRows(sqlmock.NewRows([]string{"game", "sessions", "wins", "wagered", "paid_out"}).AddRow("roulette", 10, 4, 200, 160))
	mock.ExpectQuery(`FROM ledger_entries`).
		WillReturnRows(sqlmock.NewRows([]string{"wagered", "paid_out"}).AddRow(200, 120))
	mock.ExpectQuery(`FROM reconciliation_exceptions WHERE status = 'open'`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
}

func TestGetStats_AggregatesAndComputesHouseProfit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectStatsQueries(mock)
	stats, err := NewRepository(sqlx.NewDb(db, "postgres")).GetStats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Users)
	assert.Equal(t, int64(420), stats.CreditsInCirculation)
	assert.Equal(t, "60", stats.TotalDeposited.String())
	assert.Equal(t, 1, stats.PendingWithdrawals.Count)
	require.Len(t, stats.Games, 1)
	assert.Equal(t, "roulette", stats.Games[0].Game)
	assert.Equal(t, int64(80), stats.HouseProfit)
	assert.Equal(t, 1, stats.OpenExceptions)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_CachesStats(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	rdb, rmock := redismock.NewClientMock()

	svc := NewService(NewRepository(sqlx.NewDb(db, "postgres")), rdb, 30*time.Second)

	rmock.ExpectGet(cacheKey).RedisNil()
	expectStatsQueries(mock)
	rmock.Regexp().ExpectSet(cacheKey, `.*`, 30*time.Second).SetVal("OK")

	first, err := svc.GetStats(context.Background())
	require.NoError(t, err)

	raw, err := json.Marshal(first)
	require.NoError(t, err)
	rmock.ExpectGet(cacheKey).SetVal(string(raw))

	second, err := svc.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.HouseProfit, second.HouseProfit)
	assert.Equal(t, first.Games, second.Games)

	assert.NoError(t, mock.ExpectationsWereMet())
	assert.NoError(t, rmock.ExpectationsWereMet())
}
