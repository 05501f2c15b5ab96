package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(retries int) RetryPolicy {
	return RetryPolicy{Timeout: time.Second, Retries: retries, Backoff: time.Millisecond}
}

func TestRetry_SucceedsAfterTransientErrors(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(3), "apply", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return driver.ErrBadConn
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustedReturnsUnavailable(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(2), "apply", func(ctx context.Context) error {
		calls++
		return &pq.Error{Code: "40001"}
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 3, calls)
}

func TestRetry_PermanentErrorIsNotRetried(t *testing.T) {
	boom := errors.New("insufficient balance")
	calls := 0
	err := Retry(context.Background(), fastPolicy(5), "apply", func(ctx context.Context) error {
		calls++
		return fmt.Errorf("wrapped: %w", boom)
	})

	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 1, calls)
}

func TestRetry_AttemptTimeoutIsBounded(t *testing.T) {
	policy := RetryPolicy{Timeout: 10 * time.Millisecond, Retries: 1, Backoff: time.Millisecond}
	start := time.Now()
	err := Retry(context.Background(), policy, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRetry_CallerCancellationStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, fastPolicy(3), "apply", func(ctx context.Context) error {
		calls++
		return ctx.Err()
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetry_ZeroRetriesRunsOnce(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(0), "apply", func(ctx context.Context) error {
		calls++
		return driver.ErrBadConn
	})

	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 1, calls)
}

func TestRetry_BacksOffBetweenAttempts(t *testing.T) {
	policy := RetryPolicy{Timeout: time.Second, Retries: 2, Backoff: 20 * time.Millisecond}
	var stamps []time.Time
	err := Retry(context.Background(), policy, "apply", func(ctx context.Context) error {
		stamps = append(stamps, time.Now())
		return &pq.Error{Code: "40P01"}
	})

	assert.ErrorIs(t, err, ErrUnavailable)
	require.Len(t, stamps, 3)
	// jitter keeps each wait within half of the nominal interval
	assert.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), 10*time.Millisecond)
	assert.GreaterOrEqual(t, stamps[2].Sub(stamps[1]), 20*time.Millisecond)
}

func TestRetry_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{Timeout: time.Second, Retries: 5, Backoff: time.Hour}

	time.AfterFunc(20*time.Millisecond, cancel)

	calls := 0
	start := time.Now()
	err := Retry(ctx, policy, "apply", func(ctx context.Context) error {
		calls++
		return driver.ErrBadConn
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Second)
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pq.Error{Code: "23505", Constraint: "ledger_entries_kind_ref_key"})

	assert.True(t, IsUniqueViolation(err, ""))
	assert.True(t, IsUniqueViolation(err, "ledger_entries_kind_ref_key"))
	assert.False(t, IsUniqueViolation(err, "other"))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}, ""))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(&pq.Error{Code: "08006"}))
	assert.True(t, IsTransient(&pq.Error{Code: "40P01"}))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(&pq.Error{Code: "23505"}))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(nil))
}
